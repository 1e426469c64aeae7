// Package retry wraps provider calls in the pacing and retry policy
// every remote request must go through: a randomized pre-request
// delay, exact honoring of provider-signaled waits, and exponential
// backoff for everything else.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"tg_ingest/internal/provider"
)

// ErrRetriesExhausted marks an operation that kept failing after all
// backoff retries. It is fatal to the current batch, not the session.
var ErrRetriesExhausted = errors.New("retries exhausted")

const maxJitter = 2 * time.Second

// Executor runs provider operations under the retry policy. Provider-
// signaled waits (rate limit, slow mode) are slept exactly and do not
// consume retry attempts; fatal errors are returned immediately.
type Executor struct {
	maxRetries int
	baseDelay  time.Duration
	log        *slog.Logger

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() time.Duration
}

// New creates an Executor. baseDelay is slept (plus jitter) before
// every attempt; maxRetries bounds the backoff retries after the
// first attempt.
func New(maxRetries int, baseDelay time.Duration, log *slog.Logger) *Executor {
	return &Executor{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		log:        log,
		sleep:      Sleep,
		jitter: func() time.Duration {
			return time.Duration(rand.Int63n(int64(maxJitter)))
		},
	}
}

// Do runs op under the retry policy, returning nil on success, the
// original error when it is fatal, or an error wrapping
// ErrRetriesExhausted once the attempt budget is spent. name labels
// the operation in logs.
func (e *Executor) Do(ctx context.Context, name string, op func() error) error {
	attempt := 0
	for {
		if err := e.sleep(ctx, e.baseDelay+e.jitter()); err != nil {
			return err
		}

		err := op()
		if err == nil {
			return nil
		}

		if wait, ok := provider.WaitFor(err); ok {
			e.log.Warn("provider requested wait", "op", name, "wait", wait)
			if err := e.sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}
		if provider.IsFatal(err) {
			return err
		}

		if attempt >= e.maxRetries {
			return fmt.Errorf("%s: %w: %w", name, ErrRetriesExhausted, err)
		}
		backoff := time.Duration(1<<uint(attempt))*time.Second + e.jitter()
		attempt++
		e.log.Warn("retrying after error", "op", name, "attempt", attempt, "backoff", backoff, "error", err)
		if err := e.sleep(ctx, backoff); err != nil {
			return err
		}
	}
}

// Sleep blocks for d or until ctx is cancelled, returning the context
// error in the latter case.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
