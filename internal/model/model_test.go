package model

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain text unchanged", in: "hello world", want: "hello world"},
		{name: "emoji stripped", in: "deal done \U0001F600\U0001F680", want: "deal done"},
		{name: "emoji inside word", in: "big\U0001F525news", want: "bignews"},
		{name: "newlines become spaces", in: "line one\nline two", want: "line one line two"},
		{name: "tabs and carriage returns", in: "a\tb\r\nc", want: "a b  c"},
		{name: "control characters dropped", in: "ab\x00\x1bc", want: "abc"},
		{name: "misc symbols stripped", in: "sunny ☀ day", want: "sunny  day"},
		{name: "variation selector stripped", in: "ok™️", want: "ok™"},
		{name: "leading and trailing space trimmed", in: "  padded  ", want: "padded"},
		{name: "only emoji yields empty", in: "\U0001F44D\U0001F44D", want: ""},
		{name: "cyrillic preserved", in: "новости дня", want: "новости дня"},
		{name: "empty stays empty", in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CleanText(tt.in)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("CleanText() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
