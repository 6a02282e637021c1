package workqueue

import (
	"time"
)

const (
	defaultAttempts     = 1
	defaultInitialRetry = 200 * time.Millisecond
	defaultMaxRetry     = 5 * time.Second
)

// RetryPolicy describes how many times and how often a failing work
// item is re-executed by the pool. Zero values mean "use defaults".
//
// The default is a single attempt: work items are not retried unless
// the pool or the item asks for it.
type RetryPolicy struct {
	// Attempts is the maximum number of executions.
	Attempts int

	// Initial is the first backoff duration.
	Initial time.Duration

	// Max is the cap for backoff duration.
	Max time.Duration
}

// DefaultRetryPolicy returns the policy a pool uses when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: defaultAttempts,
		Initial:  defaultInitialRetry,
		Max:      defaultMaxRetry,
	}
}

func (r *RetryPolicy) fillDefaults() {
	if r.Attempts <= 0 {
		r.Attempts = defaultAttempts
	}
	if r.Initial <= 0 {
		r.Initial = defaultInitialRetry
	}
	if r.Max <= 0 {
		r.Max = defaultMaxRetry
	}
	if r.Max < r.Initial {
		r.Max = r.Initial
	}
}

// merge returns r with the non-zero fields of o applied.
func (r RetryPolicy) merge(o *RetryPolicy) RetryPolicy {
	if o == nil {
		return r
	}
	if o.Attempts > 0 {
		r.Attempts = o.Attempts
	}
	if o.Initial > 0 {
		r.Initial = o.Initial
	}
	if o.Max > 0 {
		r.Max = o.Max
	}
	if r.Max < r.Initial {
		r.Max = r.Initial
	}
	return r
}
