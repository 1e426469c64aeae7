package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"tg_ingest/internal/export"
	"tg_ingest/internal/model"
	"tg_ingest/internal/provider"
	"tg_ingest/internal/quota"
	"tg_ingest/internal/retry"
	"tg_ingest/internal/storage"
)

// Report summarizes a single-source ingestion session.
type Report struct {
	SessionID  string
	Source     model.Source
	Fetched    int
	Accepted   int
	Written    int
	Batches    int
	Errors     int
	ExportPath string

	// QuotaExhausted means the run was denied or cut short by the
	// global quota; SourceLimited means this source may not be
	// ingested again today.
	QuotaExhausted bool
	SourceLimited  bool
}

// SourceOutcome is one source's result within a bulk run.
type SourceOutcome struct {
	SourceID    string
	DisplayName string
	Status      string
	Fetched     int
	Accepted    int
	Written     int
	Detail      string
}

// Per-source outcome states in a bulk run.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// BulkReport summarizes a bulk ingestion run over all known sources.
type BulkReport struct {
	SessionID      string
	Attempted      int
	Succeeded      int
	Failed         int
	Skipped        int
	ZeroAccepted   int
	TotalFetched   int
	TotalAccepted  int
	TotalWritten   int
	ExportPath     string
	SummaryPath    string
	QuotaExhausted bool
	PerSource      []SourceOutcome
}

// Coordinator runs ingestion sessions: it resolves sources, applies
// quota bookkeeping around the fetch loop, and leaves behind the
// export artifacts and session records.
type Coordinator struct {
	store    storage.Storage
	quota    *quota.Tracker
	fetcher  *Fetcher
	provider provider.History
	exec     Executor
	log      *slog.Logger
	opts     Options

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewCoordinator creates a Coordinator sharing the fetcher's quota
// tracker and sink.
func NewCoordinator(store storage.Storage, q *quota.Tracker, f *Fetcher, hist provider.History, exec Executor, log *slog.Logger, opts Options) *Coordinator {
	return &Coordinator{
		store:    store,
		quota:    q,
		fetcher:  f,
		provider: hist,
		exec:     exec,
		log:      log,
		opts:     opts,
		sleep:    retry.Sleep,
		now:      time.Now,
	}
}

// ListSources returns all sources known to the provider.
func (c *Coordinator) ListSources(ctx context.Context) ([]provider.SourceInfo, error) {
	var infos []provider.SourceInfo
	err := c.exec.Do(ctx, "list sources", func() error {
		var opErr error
		infos, opErr = c.provider.ListSources(ctx)
		return opErr
	})
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return infos, nil
}

// resolveSource matches ref against known sources, first by ID, then
// by display name ignoring case. A leading @ is ignored.
func (c *Coordinator) resolveSource(ctx context.Context, ref string) (model.Source, error) {
	infos, err := c.ListSources(ctx)
	if err != nil {
		return model.Source{}, err
	}

	ref = strings.TrimPrefix(ref, "@")
	for _, info := range infos {
		if info.ID == ref {
			return sourceFromInfo(info), nil
		}
	}
	for _, info := range infos {
		if strings.EqualFold(info.Name, ref) {
			return sourceFromInfo(info), nil
		}
	}
	return model.Source{}, fmt.Errorf("unknown source %q", ref)
}

func sourceFromInfo(info provider.SourceInfo) model.Source {
	return model.Source{SourceID: info.ID, SourceType: info.Type, DisplayName: info.Name}
}

// RunSingleSource ingests one source identified by ID or display
// name. Quota denial stops the run cleanly before any provider
// traffic; only fatal errors and cancellation are returned.
func (c *Coordinator) RunSingleSource(ctx context.Context, ref string, keywords []string) (*Report, error) {
	if !c.quota.CheckLimits() {
		c.log.Info("quota exhausted, session not started", "source", ref)
		return &Report{QuotaExhausted: true}, nil
	}

	src, err := c.resolveSource(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !c.quota.CheckSourceLimit(src.SourceID) {
		c.log.Info("source limit reached, session not started", "source", src.SourceID)
		return &Report{Source: src, SourceLimited: true}, nil
	}

	started := c.now().UTC()
	sessionID := export.RunName(src.SourceID, started)
	w, err := export.NewWriter(filepath.Join(c.opts.ExportsDir, sessionID+".csv"))
	if err != nil {
		return nil, err
	}

	c.log.Info("session started", "session", sessionID, "source", src.SourceID, "keywords", strings.Join(keywords, ","))
	res, runErr := c.fetcher.FetchSource(ctx, src, keywords, c.opts.MaxBatchesPerSource, w)

	if err := w.Close(); err != nil {
		c.log.Warn("closing export failed", "path", w.Path(), "error", err)
	}
	c.quota.MarkSessionEnd()
	c.recordSession(ctx, sessionID, src.SourceID, started, res)

	if runErr != nil {
		return nil, runErr
	}

	c.log.Info("session finished", "session", sessionID,
		"fetched", res.Fetched, "accepted", res.Accepted, "written", res.Written, "errors", res.Errors)
	return &Report{
		SessionID:      sessionID,
		Source:         src,
		Fetched:        res.Fetched,
		Accepted:       res.Accepted,
		Written:        res.Written,
		Batches:        res.Batches,
		Errors:         res.Errors,
		ExportPath:     w.Path(),
		QuotaExhausted: res.QuotaExhausted,
	}, nil
}

// RunBulk ingests every known source in sequence into a single export
// file, with a fixed delay between sources. Per-source failures are
// recorded in the summary and the loop proceeds; a fatal error aborts
// the run after the summary is written.
func (c *Coordinator) RunBulk(ctx context.Context, keywords []string) (*BulkReport, error) {
	infos, err := c.ListSources(ctx)
	if err != nil {
		return nil, err
	}

	started := c.now().UTC()
	sessionID := export.RunName("bulk", started)
	w, err := export.NewWriter(filepath.Join(c.opts.BulkExportsDir, sessionID+".csv"))
	if err != nil {
		return nil, err
	}

	c.log.Info("bulk session started", "session", sessionID, "sources", len(infos))

	report := &BulkReport{SessionID: sessionID, ExportPath: w.Path()}
	var totals FetchResult
	var fatal error

	for i, info := range infos {
		if !c.quota.CheckLimits() {
			report.QuotaExhausted = true
			c.log.Info("quota exhausted, stopping bulk run", "attempted", report.Attempted)
			break
		}
		if !c.quota.CheckSourceLimit(info.ID) {
			report.Skipped++
			report.PerSource = append(report.PerSource, SourceOutcome{
				SourceID:    info.ID,
				DisplayName: info.Name,
				Status:      StatusSkipped,
				Detail:      "source limit reached",
			})
			continue
		}

		src := sourceFromInfo(info)
		res, runErr := c.fetcher.FetchSource(ctx, src, keywords, c.opts.MaxBatchesBulk, w)

		report.Attempted++
		totals.Fetched += res.Fetched
		totals.Accepted += res.Accepted
		totals.Written += res.Written
		totals.Batches += res.Batches
		totals.Errors += res.Errors
		if res.Accepted == 0 {
			report.ZeroAccepted++
		}

		outcome := SourceOutcome{
			SourceID:    src.SourceID,
			DisplayName: src.DisplayName,
			Fetched:     res.Fetched,
			Accepted:    res.Accepted,
			Written:     res.Written,
		}
		switch {
		case runErr != nil:
			outcome.Status = StatusFailed
			outcome.Detail = runErr.Error()
			fatal = runErr
		case res.Errors > 0:
			outcome.Status = StatusFailed
			outcome.Detail = res.LastError
			report.Failed++
		default:
			outcome.Status = StatusOK
			report.Succeeded++
		}
		report.PerSource = append(report.PerSource, outcome)

		if fatal != nil {
			c.log.Error("bulk run aborted", "source", src.SourceID, "error", fatal)
			break
		}
		if res.QuotaExhausted {
			report.QuotaExhausted = true
			break
		}
		if i < len(infos)-1 {
			if err := c.sleep(ctx, c.opts.SourceDelay); err != nil {
				fatal = err
				break
			}
		}
	}

	if err := w.Close(); err != nil {
		c.log.Warn("closing export failed", "path", w.Path(), "error", err)
	}
	c.quota.MarkSessionEnd()

	rows := make([]export.SummaryRow, 0, len(report.PerSource))
	for _, o := range report.PerSource {
		rows = append(rows, export.SummaryRow{
			SourceID:    o.SourceID,
			DisplayName: o.DisplayName,
			Status:      o.Status,
			Fetched:     o.Fetched,
			Accepted:    o.Accepted,
			Detail:      o.Detail,
		})
	}
	summaryPath, err := export.WriteBulkSummary(c.opts.BulkExportsDir, sessionID, rows)
	if err != nil {
		c.log.Warn("writing bulk summary failed", "session", sessionID, "error", err)
	} else {
		report.SummaryPath = summaryPath
	}

	c.recordSession(ctx, sessionID, "bulk", started, totals)

	if fatal != nil {
		return nil, fatal
	}

	report.TotalFetched = totals.Fetched
	report.TotalAccepted = totals.Accepted
	report.TotalWritten = totals.Written
	c.log.Info("bulk session finished", "session", sessionID,
		"attempted", report.Attempted, "succeeded", report.Succeeded, "failed", report.Failed,
		"skipped", report.Skipped, "accepted", report.TotalAccepted)
	return report, nil
}

func (c *Coordinator) recordSession(ctx context.Context, sessionID, sourceID string, started time.Time, res FetchResult) {
	ended := c.now().UTC()
	sess := &model.IngestionSession{
		SessionID:         sessionID,
		SourceID:          sourceID,
		StartedAt:         started,
		EndedAt:           &ended,
		MessagesFetched:   res.Fetched,
		MessagesAccepted:  res.Accepted,
		BatchesAttempted:  res.Batches,
		ErrorsEncountered: res.Errors,
	}
	if err := c.store.RecordSession(ctx, sess); err != nil {
		c.log.Warn("recording session failed", "session", sessionID, "error", err)
	}
}
