// Package filter implements keyword matching over message text.
package filter

import "strings"

// Match returns the subset of keywords found in text, in keyword order.
// Matching is a case-insensitive substring check. Duplicate keywords are
// reported once.
func Match(text string, keywords []string) []string {
	if len(keywords) == 0 {
		return nil
	}

	lower := strings.ToLower(text)
	var matched []string
	seen := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		k := strings.ToLower(strings.TrimSpace(kw))
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if strings.Contains(lower, k) {
			matched = append(matched, k)
		}
	}
	return matched
}

// Matches reports whether text passes the keyword filter.
// An empty keyword set passes everything.
func Matches(text string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	return len(Match(text, keywords)) > 0
}
