package worker

import (
	"errors"
	"net/http"
	"time"

	"google.golang.org/api/googleapi"
)

// RetryPolicy is the backoff schedule for journal tasks.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryPolicy keeps a burst of failed writes under the Sheets per-minute quota.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    5,
		InitialDelay:  2 * time.Second,
		MaxDelay:      time.Minute,
		BackoffFactor: 2,
	}
}

func (r RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if r.MaxRetries <= 0 {
		r.MaxRetries = def.MaxRetries
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = def.InitialDelay
	}
	if r.MaxDelay <= 0 {
		r.MaxDelay = def.MaxDelay
	}
	if r.BackoffFactor < 1 {
		r.BackoffFactor = def.BackoffFactor
	}
	return r
}

// Exhausted reports whether a task that has failed attempt times goes to the dead letter.
func (r RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= r.withDefaults().MaxRetries
}

// NextDelay returns the wait before the given attempt (1-based), capped at MaxDelay.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	r = r.withDefaults()
	if attempt < 1 {
		attempt = 1
	}

	d := r.InitialDelay
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * r.BackoffFactor)
		if d >= r.MaxDelay {
			return r.MaxDelay
		}
	}
	return min(d, r.MaxDelay)
}

// DelayFor is NextDelay, except that a quota rejection from the Sheets API waits the full MaxDelay.
func (r RetryPolicy) DelayFor(attempt int, cause error) time.Duration {
	var apiErr *googleapi.Error
	if errors.As(cause, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return r.withDefaults().MaxDelay
	}
	return r.NextDelay(attempt)
}
