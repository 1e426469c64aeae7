// Package export writes ingested messages to flat CSV artifacts: one
// append-only file per batch run, a rolling daily file for realtime
// ingestion, and one-shot files for search results and bulk summaries.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tg_ingest/internal/model"
)

const timeLayout = "2006-01-02T15:04:05Z"

var messageHeader = []string{
	"source_type", "source_name", "text", "sender", "sent_at", "ingested_at", "matched_keywords",
}

// SafeName makes s usable inside a file name by replacing anything
// outside [A-Za-z0-9_-] with an underscore.
func SafeName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "source"
	}
	return b.String()
}

// RunName builds the identifier for one ingestion run, used both as
// the session ID and as the base name of the run's export file.
func RunName(prefix string, startedAt time.Time) string {
	return fmt.Sprintf("%s_%s", SafeName(prefix), startedAt.UTC().Format("20060102_150405"))
}

func messageRow(displayName string, m model.Message) []string {
	return []string{
		string(m.SourceType),
		displayName,
		m.Text,
		m.Sender,
		m.SentAt.UTC().Format(timeLayout),
		m.IngestedAt.UTC().Format(timeLayout),
		strings.Join(m.MatchedKeywords, ","),
	}
}

// Writer is the append-only CSV export for a single ingestion run.
// The header is written when the file is created.
type Writer struct {
	f    *os.File
	csv  *csv.Writer
	path string
}

// NewWriter creates the run export file at path, creating parent
// directories as needed.
func NewWriter(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create export directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create export file: %w", err)
	}

	w := &Writer{f: f, csv: csv.NewWriter(f), path: path}
	if err := w.csv.Write(messageHeader); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("flush header: %w", err)
	}
	return w, nil
}

// Append writes one batch of messages to the export file.
func (w *Writer) Append(displayName string, msgs []model.Message) error {
	for _, m := range msgs {
		if err := w.csv.Write(messageRow(displayName, m)); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("flush rows: %w", err)
	}
	return nil
}

// Path returns the export file location.
func (w *Writer) Path() string {
	return w.path
}

// Close flushes and closes the export file.
func (w *Writer) Close() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		_ = w.f.Close()
		return fmt.Errorf("flush export: %w", err)
	}
	return w.f.Close()
}

// DailyAppender appends realtime messages to one CSV file per UTC day,
// writing the header whenever it starts a new file.
type DailyAppender struct {
	dir string
	now func() time.Time

	lastPath string
}

// NewDailyAppender creates an appender writing realtime_YYYYMMDD.csv
// files under dir.
func NewDailyAppender(dir string) *DailyAppender {
	return &DailyAppender{dir: dir, now: time.Now}
}

// Append writes messages to today's realtime file.
func (d *DailyAppender) Append(displayName string, msgs []model.Message) error {
	path := filepath.Join(d.dir, fmt.Sprintf("realtime_%s.csv", d.now().UTC().Format("20060102")))
	d.lastPath = path

	if err := os.MkdirAll(d.dir, 0o750); err != nil {
		return fmt.Errorf("create realtime directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("open realtime file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat realtime file: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(messageHeader); err != nil {
			_ = f.Close()
			return fmt.Errorf("write header: %w", err)
		}
	}
	for _, m := range msgs {
		if err := w.Write(messageRow(displayName, m)); err != nil {
			_ = f.Close()
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush rows: %w", err)
	}
	return f.Close()
}

// Path returns the file most recently appended to.
func (d *DailyAppender) Path() string {
	return d.lastPath
}

// WriteSearchResults writes matched messages to a one-shot CSV under
// dir and returns its path.
func WriteSearchResults(dir, query string, msgs []model.Message, at time.Time) (string, error) {
	path := filepath.Join(dir, fmt.Sprintf("search_%s_%s.csv", SafeName(query), at.UTC().Format("20060102_150405")))

	w, err := NewWriter(path)
	if err != nil {
		return "", err
	}
	if err := w.Append("", msgs); err != nil {
		_ = w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return path, nil
}

// SummaryRow is one source's outcome in a bulk run summary.
type SummaryRow struct {
	SourceID    string
	DisplayName string
	Status      string
	Fetched     int
	Accepted    int
	Detail      string
}

// WriteBulkSummary writes the per-source outcome report of a bulk run
// and returns its path.
func WriteBulkSummary(dir, sessionID string, rows []SummaryRow) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create summary directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_summary.csv", SafeName(sessionID)))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create summary file: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{"source_id", "source_name", "status", "fetched", "accepted", "detail"}); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write header: %w", err)
	}
	for _, r := range rows {
		rec := []string{r.SourceID, r.DisplayName, r.Status, fmt.Sprint(r.Fetched), fmt.Sprint(r.Accepted), r.Detail}
		if err := w.Write(rec); err != nil {
			_ = f.Close()
			return "", fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("flush summary: %w", err)
	}
	return path, f.Close()
}
