// Package ingest drives batched message ingestion: the per-source
// fetch loop and the session coordinator that wraps it with quota
// bookkeeping, export artifacts and reporting.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"tg_ingest/internal/filter"
	"tg_ingest/internal/model"
	"tg_ingest/internal/provider"
	"tg_ingest/internal/quota"
	"tg_ingest/internal/retry"
	"tg_ingest/internal/sink"
)

// Executor retries a provider operation under the remote pacing
// policy. Satisfied by retry.Executor.
type Executor interface {
	Do(ctx context.Context, name string, op func() error) error
}

// Options bounds a single ingestion run.
type Options struct {
	BatchSize           int
	MaxBatchesPerSource int
	MaxBatchesBulk      int
	BatchDelay          time.Duration
	SourceDelay         time.Duration
	ExportsDir          string
	BulkExportsDir      string
}

// FetchResult summarizes one source's fetch loop.
type FetchResult struct {
	Fetched  int
	Accepted int
	Written  int
	Batches  int
	Errors   int

	// QuotaExhausted is set when the loop stopped because the
	// tracker denied further acceptance.
	QuotaExhausted bool

	// LastError holds the most recent batch-level failure, for run
	// summaries.
	LastError string
}

// Fetcher pages through a source's history, filters messages and
// hands accepted batches to the sink.
type Fetcher struct {
	provider provider.History
	exec     Executor
	quota    *quota.Tracker
	sink     *sink.Sink
	log      *slog.Logger
	opts     Options

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewFetcher creates a Fetcher.
func NewFetcher(hist provider.History, exec Executor, q *quota.Tracker, snk *sink.Sink, log *slog.Logger, opts Options) *Fetcher {
	return &Fetcher{
		provider: hist,
		exec:     exec,
		quota:    q,
		sink:     snk,
		log:      log,
		opts:     opts,
		sleep:    retry.Sleep,
		now:      time.Now,
	}
}

// FetchSource pulls up to maxBatches pages of src's history, newest
// first, writing accepted messages through the sink into exp.
//
// The loop stops cleanly on quota exhaustion, an empty or short page,
// or a batch abandoned after retries; partial results stay persisted.
// Only fatal provider errors and context cancellation are returned.
func (f *Fetcher) FetchSource(ctx context.Context, src model.Source, keywords []string, maxBatches int, exp sink.Exporter) (FetchResult, error) {
	var res FetchResult
	var cursor int64

	for batch := 0; batch < maxBatches; batch++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !f.quota.CheckLimits() {
			res.QuotaExhausted = true
			f.log.Info("quota exhausted, stopping fetch", "source", src.SourceID, "batches", res.Batches)
			break
		}

		var page []provider.RawMessage
		res.Batches++
		err := f.exec.Do(ctx, "fetch "+src.SourceID, func() error {
			var opErr error
			page, opErr = f.provider.FetchMessages(ctx, src.SourceID, f.opts.BatchSize, cursor)
			return opErr
		})
		if err != nil {
			if errors.Is(err, retry.ErrRetriesExhausted) {
				f.log.Error("batch abandoned", "source", src.SourceID, "batch", res.Batches, "error", err)
				res.Errors++
				res.LastError = err.Error()
				break
			}
			return res, err
		}

		if len(page) == 0 {
			break
		}
		cursor = page[len(page)-1].ID
		res.Fetched += len(page)

		accepted := f.buildMessages(src, page, keywords)
		if len(accepted) > 0 {
			written, err := f.sink.WriteBatch(ctx, src, accepted, exp)
			if err != nil {
				f.log.Error("batch write failed", "source", src.SourceID, "error", err)
				res.Errors++
				res.LastError = err.Error()
				break
			}
			res.Accepted += len(accepted)
			res.Written += written
			f.quota.RecordAcceptance(len(accepted), src.SourceID)
		}

		if len(page) < f.opts.BatchSize {
			break
		}
		if batch < maxBatches-1 {
			if err := f.sleep(ctx, f.opts.BatchDelay); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}

// buildMessages cleans and filters one fetched page. Messages left
// without text are dropped; with keywords set, only messages matching
// at least one keyword survive, with the matched subset recorded.
func (f *Fetcher) buildMessages(src model.Source, page []provider.RawMessage, keywords []string) []model.Message {
	ingestedAt := f.now().UTC()
	accepted := make([]model.Message, 0, len(page))
	for _, raw := range page {
		text := model.CleanText(raw.Text)
		if text == "" {
			continue
		}
		matched := filter.Match(text, keywords)
		if len(keywords) > 0 && len(matched) == 0 {
			continue
		}
		accepted = append(accepted, model.Message{
			ProviderMessageID: raw.ID,
			SourceID:          src.SourceID,
			SourceType:        src.SourceType,
			Text:              text,
			Sender:            raw.Sender,
			SentAt:            raw.SentAt.UTC(),
			IngestedAt:        ingestedAt,
			MatchedKeywords:   matched,
		})
	}
	return accepted
}
