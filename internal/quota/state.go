package quota

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// State is a serializable copy of a Tracker's counters, used to carry
// quota usage across process restarts when a state path is configured.
type State struct {
	HourlyCount         int       `json:"hourly_count"`
	HourWindowStart     time.Time `json:"hour_window_start"`
	DailyCount          int       `json:"daily_count"`
	DayWindowStart      time.Time `json:"day_window_start"`
	SourcesTouchedToday []string  `json:"sources_touched_today"`
	LastSessionEndedAt  time.Time `json:"last_session_ended_at"`
}

// Snapshot returns a copy of the tracker's current state.
func (t *Tracker) Snapshot() State {
	sources := make([]string, 0, len(t.sourcesToday))
	for id := range t.sourcesToday {
		sources = append(sources, id)
	}
	sort.Strings(sources)

	return State{
		HourlyCount:         t.hourlyCount,
		HourWindowStart:     t.hourWindowStart,
		DailyCount:          t.dailyCount,
		DayWindowStart:      t.dayWindowStart,
		SourcesTouchedToday: sources,
		LastSessionEndedAt:  t.lastSessionEnd,
	}
}

// Restore overwrites the tracker's counters with a previously saved
// state. Expired windows are rolled over on the next check.
func (t *Tracker) Restore(s State) {
	t.hourlyCount = s.HourlyCount
	t.hourWindowStart = s.HourWindowStart
	t.dailyCount = s.DailyCount
	t.dayWindowStart = s.DayWindowStart
	t.sourcesToday = make(map[string]struct{}, len(s.SourcesTouchedToday))
	for _, id := range s.SourcesTouchedToday {
		t.sourcesToday[id] = struct{}{}
	}
	t.lastSessionEnd = s.LastSessionEndedAt
}

// SaveFile writes the tracker state as JSON to path, atomically via a
// temporary file in the same directory.
func (t *Tracker) SaveFile(path string) error {
	data, err := json.MarshalIndent(t.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal quota state: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create state directory: %w", err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("write quota state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace quota state: %w", err)
	}
	return nil
}

// LoadFile reads a saved state from path into the tracker. A missing
// file is not an error; the tracker keeps its fresh windows.
func (t *Tracker) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read quota state: %w", err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("parse quota state: %w", err)
	}
	t.Restore(s)
	return nil
}
