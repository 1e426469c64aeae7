package filter

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		keywords []string
		want     []string
	}{
		{
			name:     "no keywords matches nothing",
			text:     "anything at all",
			keywords: nil,
			want:     nil,
		},
		{
			name:     "single keyword found",
			text:     "discussing TPLF today",
			keywords: []string{"tplf", "tdf"},
			want:     []string{"tplf"},
		},
		{
			name:     "both keywords found",
			text:     "TPLF and TDF met yesterday",
			keywords: []string{"tplf", "tdf"},
			want:     []string{"tplf", "tdf"},
		},
		{
			name:     "no keyword found",
			text:     "weather report for the weekend",
			keywords: []string{"tplf", "tdf"},
			want:     nil,
		},
		{
			name:     "match is case insensitive both ways",
			text:     "Breaking: ElEcTiOn results",
			keywords: []string{"ELECTION"},
			want:     []string{"election"},
		},
		{
			name:     "substring inside a word counts",
			text:     "the preelection polls",
			keywords: []string{"election"},
			want:     []string{"election"},
		},
		{
			name:     "order follows keyword list not text",
			text:     "beta before alpha",
			keywords: []string{"alpha", "beta"},
			want:     []string{"alpha", "beta"},
		},
		{
			name:     "duplicate keywords reported once",
			text:     "alpha alpha alpha",
			keywords: []string{"alpha", "ALPHA", "alpha"},
			want:     []string{"alpha"},
		},
		{
			name:     "blank keywords ignored",
			text:     "some text",
			keywords: []string{"", "  ", "text"},
			want:     []string{"text"},
		},
		{
			name:     "unicode keyword",
			text:     "Новости из региона",
			keywords: []string{"новости"},
			want:     []string{"новости"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Match(tt.text, tt.keywords)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Match() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		keywords []string
		want     bool
	}{
		{name: "empty keyword set passes everything", text: "whatever", keywords: nil, want: true},
		{name: "empty slice passes everything", text: "whatever", keywords: []string{}, want: true},
		{name: "hit passes", text: "tplf statement", keywords: []string{"tplf"}, want: true},
		{name: "miss fails", text: "unrelated", keywords: []string{"tplf"}, want: false},
		{name: "empty text with keywords fails", text: "", keywords: []string{"tplf"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Matches(tt.text, tt.keywords)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Matches() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
