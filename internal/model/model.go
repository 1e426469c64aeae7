// Package model defines the domain types used across the application.
package model

import (
	"strings"
	"time"
	"unicode"
)

// SourceType classifies where a message came from.
type SourceType string

// Supported source types.
const (
	SourceChannel  SourceType = "channel"
	SourceGroup    SourceType = "group"
	SourcePersonal SourceType = "personal"
)

// Message is a single ingested message. Once persisted it is immutable;
// (ProviderMessageID, SourceID) is unique in the store.
type Message struct {
	ID                int64
	ProviderMessageID int64
	SourceID          string
	SourceType        SourceType
	Text              string
	Sender            string
	SentAt            time.Time
	IngestedAt        time.Time
	MatchedKeywords   []string
}

// Source is a remote channel, group, or conversation that messages
// are ingested from. TotalMessageCount only ever grows.
type Source struct {
	SourceID          string
	SourceType        SourceType
	DisplayName       string
	LastIngestedAt    *time.Time
	TotalMessageCount int64
}

// IngestionSession records the outcome of one ingestion run for reporting.
type IngestionSession struct {
	SessionID         string
	SourceID          string
	StartedAt         time.Time
	EndedAt           *time.Time
	MessagesFetched   int
	MessagesAccepted  int
	BatchesAttempted  int
	ErrorsEncountered int
}

// CleanText strips emoji and control characters from message text.
// Newlines and tabs become single spaces; the result is trimmed.
func CleanText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteRune(' ')
		case unicode.IsControl(r):
		case isEmoji(r):
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F600 && r <= 0x1F64F: // emoticons
		return true
	case r >= 0x1F300 && r <= 0x1F5FF: // symbols and pictographs
		return true
	case r >= 0x1F680 && r <= 0x1F6FF: // transport and map symbols
		return true
	case r >= 0x1F1E6 && r <= 0x1F1FF: // regional indicators
		return true
	case r >= 0x2600 && r <= 0x26FF: // miscellaneous symbols
		return true
	case r >= 0x2700 && r <= 0x27BF: // dingbats
		return true
	case r >= 0xFE00 && r <= 0xFE0F: // variation selectors
		return true
	case r >= 0x1F900 && r <= 0x1F9FF: // supplemental symbols
		return true
	}
	return false
}
