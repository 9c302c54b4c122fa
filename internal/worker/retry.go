package worker

import "time"

// RetryPolicy is the exponential backoff used for receipt delivery.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// withDefaults fills zero fields: 5 attempts, 2s doubling up to a minute.
func (r RetryPolicy) withDefaults() RetryPolicy {
	if r.MaxRetries <= 0 {
		r.MaxRetries = 5
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = 2 * time.Second
	}
	if r.MaxDelay <= 0 {
		r.MaxDelay = time.Minute
	}
	if r.BackoffFactor < 1 {
		r.BackoffFactor = 2
	}
	return r
}

// Exhausted reports whether a task that failed attempts times is given up.
func (r RetryPolicy) Exhausted(attempts int) bool {
	return attempts >= r.withDefaults().MaxRetries
}

// NextDelay is the wait before retry number attempt (1-based), capped at
// MaxDelay.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	p := r.withDefaults()
	d := p.InitialDelay
	for i := 1; i < attempt && d < p.MaxDelay; i++ {
		d = time.Duration(float64(d) * p.BackoffFactor)
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}
