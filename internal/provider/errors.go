package provider

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitedError signals a provider-imposed flood wait. The caller
// must sleep Wait before trying again; the attempt is not a failure.
type RateLimitedError struct {
	Wait time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited by provider, wait %s", e.Wait)
}

// SlowModeError signals a per-source slow mode delay, honored the same
// way as a rate limit.
type SlowModeError struct {
	Wait time.Duration
}

func (e *SlowModeError) Error() string {
	return fmt.Sprintf("slow mode active, wait %s", e.Wait)
}

// TransientError is a retryable provider failure such as a 5xx
// response or a dropped connection.
type TransientError struct {
	Status int
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient provider error (status %d)", e.Status)
}

// FatalError aborts the whole run, typically an authentication
// failure. It is never retried.
type FatalError struct {
	Status int
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("provider rejected request (status %d)", e.Status)
}

// WaitFor returns the provider-signaled wait duration carried by err
// and whether err is such a signal.
func WaitFor(err error) (time.Duration, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.Wait, true
	}
	var sm *SlowModeError
	if errors.As(err, &sm) {
		return sm.Wait, true
	}
	return 0, false
}

// IsFatal reports whether err must abort the run instead of being
// retried.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
