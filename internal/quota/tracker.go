// Package quota enforces local ingestion volume limits: messages per
// hour and per day, and in restricted mode a cap on distinct sources
// per day plus a cooldown between sessions.
package quota

import (
	"time"
)

// Limits configures a Tracker.
type Limits struct {
	Hourly           int
	Daily            int
	MaxSourcesPerDay int
	Cooldown         time.Duration
	Restricted       bool
}

// Tracker counts accepted messages against rolling hourly and calendar
// daily windows. It performs no I/O and assumes a single writer; the
// batch ingestion path is the only mutator.
type Tracker struct {
	limits Limits
	now    func() time.Time

	hourlyCount     int
	hourWindowStart time.Time
	dailyCount      int
	dayWindowStart  time.Time
	sourcesToday    map[string]struct{}
	lastSessionEnd  time.Time
}

// New creates a Tracker with fresh windows starting now.
func New(limits Limits) *Tracker {
	t := &Tracker{
		limits:       limits,
		now:          time.Now,
		sourcesToday: make(map[string]struct{}),
	}
	start := t.now().UTC()
	t.hourWindowStart = start
	t.dayWindowStart = start
	return t
}

// CheckLimits reports whether another batch may be fetched under the
// global hourly/daily limits and, in restricted mode, the session
// cooldown. Expired windows are rolled over first.
func (t *Tracker) CheckLimits() bool {
	now := t.rollover()

	if t.limits.Daily > 0 && t.dailyCount >= t.limits.Daily {
		return false
	}
	if t.limits.Hourly > 0 && t.hourlyCount >= t.limits.Hourly {
		return false
	}
	if t.limits.Restricted && !t.lastSessionEnd.IsZero() && now.Sub(t.lastSessionEnd) < t.limits.Cooldown {
		return false
	}
	return true
}

// CheckSourceLimit reports whether the given source may be ingested
// today. Outside restricted mode every source is allowed; in restricted
// mode each source is ingested at most once per day and at most
// MaxSourcesPerDay distinct sources are touched.
func (t *Tracker) CheckSourceLimit(sourceID string) bool {
	t.rollover()

	if !t.limits.Restricted {
		return true
	}
	if _, touched := t.sourcesToday[sourceID]; touched {
		return false
	}
	if t.limits.MaxSourcesPerDay > 0 && len(t.sourcesToday) >= t.limits.MaxSourcesPerDay {
		return false
	}
	return true
}

// RecordAcceptance adds n accepted messages to the hourly and daily
// counters and marks sourceID as touched today when non-empty.
func (t *Tracker) RecordAcceptance(n int, sourceID string) {
	t.rollover()

	t.hourlyCount += n
	t.dailyCount += n
	if sourceID != "" {
		t.sourcesToday[sourceID] = struct{}{}
	}
}

// MarkSessionEnd records the end of an ingestion session for the
// restricted-mode cooldown.
func (t *Tracker) MarkSessionEnd() {
	t.lastSessionEnd = t.now().UTC()
}

// rollover resets expired windows and returns the current time.
// The hourly window resets one hour after it started; the daily window
// resets on a UTC calendar day change, which also clears the set of
// sources touched today.
func (t *Tracker) rollover() time.Time {
	now := t.now().UTC()

	if now.Sub(t.hourWindowStart) > time.Hour {
		t.hourlyCount = 0
		t.hourWindowStart = now
	}

	y1, m1, d1 := t.dayWindowStart.Date()
	y2, m2, d2 := now.Date()
	if y1 != y2 || m1 != m2 || d1 != d2 {
		t.dailyCount = 0
		t.dayWindowStart = now
		t.sourcesToday = make(map[string]struct{})
	}
	return now
}
