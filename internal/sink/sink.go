// Package sink fans accepted messages out to the CSV export and the
// relational store. The export is written first so a storage failure
// never loses data, only dedup.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"tg_ingest/internal/model"
	"tg_ingest/internal/storage"
)

// Exporter receives accepted messages for a flat-file artifact.
// Both the per-run writer and the rolling daily appender satisfy it.
type Exporter interface {
	Append(displayName string, msgs []model.Message) error
	Path() string
}

// Publisher forwards accepted messages to a downstream consumer.
type Publisher interface {
	PublishMessages(ctx context.Context, msgs []model.Message) error
}

// Sink persists accepted batches. A single Sink is shared between the
// batch and realtime paths, so writes are serialized.
type Sink struct {
	store storage.Storage
	pub   Publisher
	log   *slog.Logger

	mu sync.Mutex
}

// New creates a Sink. pub may be nil when no downstream queue is
// configured.
func New(store storage.Storage, pub Publisher, log *slog.Logger) *Sink {
	return &Sink{store: store, pub: pub, log: log}
}

// WriteBatch appends msgs to exp, then inserts them into the store and
// updates the source registry. It returns the number of rows newly
// inserted; duplicates already in the store count as zero.
//
// An export failure aborts the batch. A store failure does not: the
// export already holds the batch, so the error is logged for
// reconciliation and the run continues.
func (s *Sink) WriteBatch(ctx context.Context, src model.Source, msgs []model.Message, exp Exporter) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := exp.Append(src.DisplayName, msgs); err != nil {
		return 0, fmt.Errorf("append export: %w", err)
	}

	written, err := s.store.InsertMessages(ctx, msgs)
	if err != nil {
		s.log.Warn("store insert failed, export retains batch",
			"source", src.SourceID, "messages", len(msgs), "export", exp.Path(), "error", err)
		return 0, nil
	}

	if err := s.store.TouchSource(ctx, src, int64(written)); err != nil {
		s.log.Warn("source registry update failed", "source", src.SourceID, "error", err)
	}

	if s.pub != nil {
		if err := s.pub.PublishMessages(ctx, msgs); err != nil {
			s.log.Warn("publish failed", "source", src.SourceID, "messages", len(msgs), "error", err)
		}
	}

	return written, nil
}
