package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"tg_ingest/internal/model"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer func() { _ = f.Close() }()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return records
}

func sampleMessage(id int64, text string) model.Message {
	sent := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	return model.Message{
		ProviderMessageID: id,
		SourceID:          "news",
		SourceType:        model.SourceChannel,
		Text:              text,
		Sender:            "abel",
		SentAt:            sent,
		IngestedAt:        sent.Add(time.Minute),
		MatchedKeywords:   []string{"tplf"},
	}
}

func TestSafeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "news_channel", want: "news_channel"},
		{name: "at sign and spaces", in: "@Some Channel", want: "_Some_Channel"},
		{name: "negative numeric id", in: "-1001234", want: "-1001234"},
		{name: "slashes", in: "a/b\\c", want: "a_b_c"},
		{name: "empty falls back", in: "", want: "source"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, SafeName(tt.in)); diff != "" {
				t.Errorf("SafeName() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRunName(t *testing.T) {
	at := time.Date(2025, 3, 10, 9, 30, 15, 0, time.UTC)
	got := RunName("@news", at)
	want := "_news_20250310_093015"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("RunName() mismatch (-want +got):\n%s", diff)
	}
}

func TestWriterAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exports", "news_20250310_090000.csv")

	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	if err := w.Append("News Channel", []model.Message{sampleMessage(1, "first"), sampleMessage(2, "second")}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Append("News Channel", []model.Message{sampleMessage(3, "third")}); err != nil {
		t.Fatalf("append second batch: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	records := readCSV(t, path)
	want := [][]string{
		{"source_type", "source_name", "text", "sender", "sent_at", "ingested_at", "matched_keywords"},
		{"channel", "News Channel", "first", "abel", "2025-03-10T09:00:00Z", "2025-03-10T09:01:00Z", "tplf"},
		{"channel", "News Channel", "second", "abel", "2025-03-10T09:00:00Z", "2025-03-10T09:01:00Z", "tplf"},
		{"channel", "News Channel", "third", "abel", "2025-03-10T09:00:00Z", "2025-03-10T09:01:00Z", "tplf"},
	}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Errorf("export content mismatch (-want +got):\n%s", diff)
	}
}

func TestDailyAppenderWritesHeaderOnce(t *testing.T) {
	dir := t.TempDir()

	d := NewDailyAppender(dir)
	d.now = func() time.Time { return time.Date(2025, 3, 10, 23, 59, 0, 0, time.UTC) }

	if err := d.Append("Chat", []model.Message{sampleMessage(1, "evening")}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := d.Append("Chat", []model.Message{sampleMessage(2, "later")}); err != nil {
		t.Fatalf("append again: %v", err)
	}

	records := readCSV(t, filepath.Join(dir, "realtime_20250310.csv"))
	if len(records) != 3 {
		t.Fatalf("expected header + 2 rows, got %d records", len(records))
	}
	if diff := cmp.Diff(messageHeader, records[0]); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
}

func TestDailyAppenderRollsOverByDay(t *testing.T) {
	dir := t.TempDir()

	d := NewDailyAppender(dir)
	d.now = func() time.Time { return time.Date(2025, 3, 10, 23, 59, 0, 0, time.UTC) }
	if err := d.Append("Chat", []model.Message{sampleMessage(1, "evening")}); err != nil {
		t.Fatalf("append: %v", err)
	}

	d.now = func() time.Time { return time.Date(2025, 3, 11, 0, 1, 0, 0, time.UTC) }
	if err := d.Append("Chat", []model.Message{sampleMessage(2, "morning")}); err != nil {
		t.Fatalf("append next day: %v", err)
	}

	first := readCSV(t, filepath.Join(dir, "realtime_20250310.csv"))
	second := readCSV(t, filepath.Join(dir, "realtime_20250311.csv"))
	if len(first) != 2 || len(second) != 2 {
		t.Errorf("expected 2 records per file, got %d and %d", len(first), len(second))
	}
	if d.Path() != filepath.Join(dir, "realtime_20250311.csv") {
		t.Errorf("unexpected last path %q", d.Path())
	}
}

func TestWriteSearchResults(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	path, err := WriteSearchResults(dir, "tplf meeting", []model.Message{sampleMessage(1, "tplf meeting today")}, at)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	want := filepath.Join(dir, "search_tplf_meeting_20250310_090000.csv")
	if path != want {
		t.Errorf("path mismatch: want %q, got %q", want, path)
	}

	records := readCSV(t, path)
	if len(records) != 2 {
		t.Fatalf("expected header + 1 row, got %d", len(records))
	}
}

func TestWriteBulkSummary(t *testing.T) {
	dir := t.TempDir()

	rows := []SummaryRow{
		{SourceID: "news", DisplayName: "News", Status: "ok", Fetched: 25, Accepted: 20},
		{SourceID: "flaky", DisplayName: "Flaky", Status: "failed", Detail: "retries exhausted"},
	}
	path, err := WriteBulkSummary(dir, "bulk_20250310_090000", rows)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	records := readCSV(t, path)
	want := [][]string{
		{"source_id", "source_name", "status", "fetched", "accepted", "detail"},
		{"news", "News", "ok", "25", "20", ""},
		{"flaky", "Flaky", "failed", "0", "0", "retries exhausted"},
	}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}
