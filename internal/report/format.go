// Package report renders run outcomes and store queries for the
// terminal.
package report

import (
	"fmt"
	"strings"

	"tg_ingest/internal/ingest"
	"tg_ingest/internal/model"
	"tg_ingest/internal/provider"
	"tg_ingest/internal/storage"
)

// FormatRunReport formats the outcome of a single-source session.
func FormatRunReport(r *ingest.Report) string {
	if r.SessionID == "" {
		if r.SourceLimited {
			return fmt.Sprintf("Source %s was already ingested today; skipping.", sourceLabel(r.Source))
		}
		if r.QuotaExhausted {
			return "Quota exhausted. Try again after the window resets."
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Session %s: %s\n", r.SessionID, sourceLabel(r.Source))
	fmt.Fprintf(&b, "  fetched %d, accepted %d, written %d (%d batches, %d errors)\n",
		r.Fetched, r.Accepted, r.Written, r.Batches, r.Errors)
	fmt.Fprintf(&b, "  export: %s\n", r.ExportPath)
	if r.QuotaExhausted {
		b.WriteString("  stopped early: quota exhausted\n")
	}
	return b.String()
}

// FormatBulkReport formats the outcome of a bulk session over all
// known sources.
func FormatBulkReport(r *ingest.BulkReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Bulk session %s: %d attempted, %d ok, %d failed, %d skipped\n",
		r.SessionID, r.Attempted, r.Succeeded, r.Failed, r.Skipped)
	fmt.Fprintf(&b, "  accepted %d of %d fetched, %d written",
		r.TotalAccepted, r.TotalFetched, r.TotalWritten)
	if r.ZeroAccepted > 0 {
		fmt.Fprintf(&b, "; %d sources with nothing accepted", r.ZeroAccepted)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "  export:  %s\n", r.ExportPath)
	if r.SummaryPath != "" {
		fmt.Fprintf(&b, "  summary: %s\n", r.SummaryPath)
	}
	if r.QuotaExhausted {
		b.WriteString("  stopped early: quota exhausted\n")
	}

	for _, o := range r.PerSource {
		label := o.DisplayName
		if label == "" {
			label = o.SourceID
		}
		fmt.Fprintf(&b, "\n  %-7s %s: fetched %d, accepted %d", o.Status, label, o.Fetched, o.Accepted)
		if o.Detail != "" {
			fmt.Fprintf(&b, " (%s)", o.Detail)
		}
	}
	if len(r.PerSource) > 0 {
		b.WriteString("\n")
	}
	return b.String()
}

// FormatSourceList formats the sources known to the provider.
func FormatSourceList(infos []provider.SourceInfo) string {
	if len(infos) == 0 {
		return "No sources available."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Known sources (%d):\n", len(infos))
	for _, info := range infos {
		fmt.Fprintf(&b, "  %-8s %s  %s\n", info.Type, info.ID, info.Name)
	}
	return b.String()
}

// FormatSearchResults formats matched messages, newest first, showing
// at most limit of them.
func FormatSearchResults(query string, msgs []model.Message, limit int) string {
	if len(msgs) == 0 {
		return fmt.Sprintf("No messages match %q.", query)
	}

	shown := msgs
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Showing %d of %d messages matching %q:\n", len(shown), len(msgs), query)
	for _, m := range shown {
		fmt.Fprintf(&b, "\n[%s] %s", m.SentAt.Format("2006-01-02 15:04"), m.SourceID)
		if m.Sender != "" {
			fmt.Fprintf(&b, " (%s)", m.Sender)
		}
		b.WriteString("\n")
		b.WriteString(truncate(m.Text, 200))
		b.WriteString("\n")
	}
	return b.String()
}

// FormatStats formats store-wide statistics and recent sessions.
func FormatStats(stats *storage.Stats, sessions []model.IngestionSession) string {
	if stats.TotalMessages == 0 {
		return "The store is empty."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d messages across %d sources\n", stats.TotalMessages, len(stats.BySource))
	if stats.OldestSentAt != nil && stats.NewestSentAt != nil {
		fmt.Fprintf(&b, "Sent between %s and %s\n",
			stats.OldestSentAt.Format("2006-01-02"), stats.NewestSentAt.Format("2006-01-02"))
	}

	b.WriteString("\nBy source:\n")
	for _, s := range stats.BySource {
		label := s.DisplayName
		if label == "" {
			label = s.SourceID
		}
		fmt.Fprintf(&b, "  %s: %d\n", label, s.Count)
	}

	if len(sessions) > 0 {
		b.WriteString("\nRecent sessions:\n")
		for _, s := range sessions {
			fmt.Fprintf(&b, "  %s  fetched %d, accepted %d, %d batches, %d errors\n",
				s.SessionID, s.MessagesFetched, s.MessagesAccepted, s.BatchesAttempted, s.ErrorsEncountered)
		}
	}
	return b.String()
}

func sourceLabel(src model.Source) string {
	if src.DisplayName != "" && src.DisplayName != src.SourceID {
		return fmt.Sprintf("%s (%s)", src.DisplayName, src.SourceID)
	}
	return src.SourceID
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
