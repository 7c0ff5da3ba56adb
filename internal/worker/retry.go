package worker

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy defines exponential backoff parameters for transient failures.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// Jitter is the +/- fraction applied to the computed delay so stalled
	// groups do not retry in lockstep. Zero disables jitter.
	Jitter float64
}

// NextDelay returns delay for a given attempt (1-based) with clamping and
// jitter.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = time.Second
	}
	if r.BackoffFactor <= 0 {
		r.BackoffFactor = 2
	}

	delay := float64(r.InitialDelay) * math.Pow(r.BackoffFactor, float64(attempt-1))
	d := time.Duration(delay)
	if r.MaxDelay > 0 && d > r.MaxDelay {
		d = r.MaxDelay
	}

	if r.Jitter > 0 {
		spread := float64(d) * r.Jitter
		d += time.Duration((rand.Float64()*2 - 1) * spread)
	}

	if d <= 0 {
		d = time.Second
	}
	return d
}
