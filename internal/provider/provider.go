// Package provider defines the boundary to the remote messaging
// provider: the history interface used by batch ingestion, the raw
// message shape, and the error taxonomy provider calls can fail with.
package provider

import (
	"context"
	"time"

	"tg_ingest/internal/model"
)

// RawMessage is a message as returned by the provider, before
// sanitation and filtering.
type RawMessage struct {
	ID     int64
	Text   string
	Sender string
	SentAt time.Time
}

// SourceInfo identifies a source known to the provider.
type SourceInfo struct {
	ID   string
	Type model.SourceType
	Name string
}

// History is the pull side of the provider boundary. FetchMessages
// returns up to limit messages older than beforeID, newest first;
// beforeID zero means start from the newest message. An empty page
// means the source is exhausted.
type History interface {
	ListSources(ctx context.Context) ([]SourceInfo, error)
	FetchMessages(ctx context.Context, sourceID string, limit int, beforeID int64) ([]RawMessage, error)
}
