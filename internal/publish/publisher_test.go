package publish

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"tg_ingest/internal/model"
	"tg_ingest/internal/sink"
)

var _ sink.Publisher = (*Publisher)(nil)

func TestPayloadEncoding(t *testing.T) {
	sent := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	m := model.Message{
		ProviderMessageID: 42,
		SourceID:          "-100123",
		SourceType:        model.SourceChannel,
		Text:              "discussing tplf today",
		Sender:            "abel",
		SentAt:            sent,
		IngestedAt:        sent.Add(time.Minute),
		MatchedKeywords:   []string{"tplf"},
	}

	body, err := json.Marshal(payload(m))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	want := `{"provider_message_id":42,"source_id":"-100123","source_type":"channel",` +
		`"text":"discussing tplf today","sender":"abel","sent_at":"2025-03-10T09:00:00Z",` +
		`"ingested_at":"2025-03-10T09:01:00Z","matched_keywords":["tplf"]}`
	if diff := cmp.Diff(want, string(body)); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestPayloadOmitsEmptyFields(t *testing.T) {
	m := model.Message{
		ProviderMessageID: 7,
		SourceID:          "42",
		SourceType:        model.SourcePersonal,
		Text:              "hello",
		SentAt:            time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		IngestedAt:        time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}

	body, err := json.Marshal(payload(m))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	want := `{"provider_message_id":7,"source_id":"42","source_type":"personal",` +
		`"text":"hello","sent_at":"2025-03-10T09:00:00Z","ingested_at":"2025-03-10T09:00:00Z"}`
	if diff := cmp.Diff(want, string(body)); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}
