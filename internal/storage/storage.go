// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"time"

	"tg_ingest/internal/model"
)

// Stats summarizes the message store for reporting.
type Stats struct {
	TotalMessages int64
	BySource      []SourceCount
	OldestSentAt  *time.Time
	NewestSentAt  *time.Time
}

// SourceCount is the number of stored messages for one source.
type SourceCount struct {
	SourceID    string
	DisplayName string
	Count       int64
}

// Storage is the interface for all persistence operations.
// InsertMessages is idempotent: rows violating the
// (provider_message_id, source_id) uniqueness are skipped, and the
// returned count covers newly inserted rows only.
type Storage interface {
	InsertMessages(ctx context.Context, msgs []model.Message) (int, error)
	SearchMessages(ctx context.Context, query string, limit int) ([]model.Message, error)

	TouchSource(ctx context.Context, src model.Source, added int64) error
	GetSource(ctx context.Context, sourceID string) (*model.Source, error)
	ListSources(ctx context.Context) ([]model.Source, error)

	RecordSession(ctx context.Context, s *model.IngestionSession) error
	RecentSessions(ctx context.Context, limit int) ([]model.IngestionSession, error)

	Stats(ctx context.Context) (*Stats, error)

	Close() error
}
