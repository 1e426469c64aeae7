package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"tg_ingest/internal/provider"
)

// newTestExecutor returns an executor with zero jitter whose sleeps are
// recorded instead of slept.
func newTestExecutor(maxRetries int, baseDelay time.Duration) (*Executor, *[]time.Duration) {
	e := New(maxRetries, baseDelay, slog.New(slog.NewTextHandler(io.Discard, nil)))
	var sleeps []time.Duration
	e.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	e.jitter = func() time.Duration { return 0 }
	return e, &sleeps
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	e, sleeps := newTestExecutor(2, 5*time.Second)

	calls := 0
	err := e.Do(context.Background(), "fetch", func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}

	// Only the pacing delay before the single attempt.
	want := []time.Duration{5 * time.Second}
	if diff := cmp.Diff(want, *sleeps); diff != "" {
		t.Errorf("sleeps mismatch (-want +got):\n%s", diff)
	}
}

func TestDoHonorsRateLimitWithoutCountingAttempt(t *testing.T) {
	e, sleeps := newTestExecutor(0, 5*time.Second)

	calls := 0
	err := e.Do(context.Background(), "fetch", func() error {
		calls++
		if calls == 1 {
			return &provider.RateLimitedError{Wait: 30 * time.Second}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}

	// Pacing, the exact signaled wait, pacing again. With maxRetries=0
	// a counted attempt would have failed the operation instead.
	want := []time.Duration{5 * time.Second, 30 * time.Second, 5 * time.Second}
	if diff := cmp.Diff(want, *sleeps); diff != "" {
		t.Errorf("sleeps mismatch (-want +got):\n%s", diff)
	}
}

func TestDoHonorsSlowMode(t *testing.T) {
	e, sleeps := newTestExecutor(0, time.Second)

	calls := 0
	err := e.Do(context.Background(), "fetch", func() error {
		calls++
		if calls == 1 {
			return &provider.SlowModeError{Wait: 12 * time.Second}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []time.Duration{time.Second, 12 * time.Second, time.Second}
	if diff := cmp.Diff(want, *sleeps); diff != "" {
		t.Errorf("sleeps mismatch (-want +got):\n%s", diff)
	}
}

func TestDoBacksOffExponentially(t *testing.T) {
	e, sleeps := newTestExecutor(2, 5*time.Second)

	boom := errors.New("boom")
	calls := 0
	err := e.Do(context.Background(), "fetch", func() error {
		calls++
		return boom
	})

	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected original error to be wrapped, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls (1 + 2 retries), got %d", calls)
	}

	// Pacing, backoff 2^0, pacing, backoff 2^1, pacing.
	want := []time.Duration{
		5 * time.Second,
		1 * time.Second,
		5 * time.Second,
		2 * time.Second,
		5 * time.Second,
	}
	if diff := cmp.Diff(want, *sleeps); diff != "" {
		t.Errorf("sleeps mismatch (-want +got):\n%s", diff)
	}
}

func TestDoFatalNotRetried(t *testing.T) {
	e, _ := newTestExecutor(2, time.Second)

	calls := 0
	err := e.Do(context.Background(), "fetch", func() error {
		calls++
		return &provider.FatalError{Status: 401}
	})

	if !provider.IsFatal(err) {
		t.Fatalf("expected fatal error to propagate, got %v", err)
	}
	if errors.Is(err, ErrRetriesExhausted) {
		t.Error("fatal error must not be wrapped as exhausted retries")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoStopsOnCancelledContext(t *testing.T) {
	e := New(2, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.jitter = func() time.Duration { return 0 }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := e.Do(ctx, "fetch", func() error {
		calls++
		return nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Errorf("expected no calls after cancellation, got %d", calls)
	}
}

func TestSleepZeroDuration(t *testing.T) {
	if err := Sleep(context.Background(), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
