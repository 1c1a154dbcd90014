// Package ratelimit guards outbound API calls with a sliding-window
// message budget per destination and a consecutive-failure circuit
// breaker.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter enforces a per-key request budget over a sliding window.
type Limiter struct {
	mu sync.Mutex

	limit  int
	window time.Duration
	hits   map[string][]time.Time

	allowed uint64
	denied  uint64

	now func() time.Time
}

// NewLimiter creates a limiter allowing limit requests per key per window.
func NewLimiter(limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = 20
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		limit:  limit,
		window: window,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow reports whether the key has budget left and, if so, consumes one
// slot.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	windowStart := now.Add(-l.window)

	recent := l.hits[key][:0]
	for _, t := range l.hits[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= l.limit {
		l.hits[key] = recent
		l.denied++
		return false
	}

	l.hits[key] = append(recent, now)
	l.allowed++
	return true
}

// Stats returns a snapshot of limiter counters.
func (l *Limiter) Stats() map[string]interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return map[string]interface{}{
		"limit":      l.limit,
		"window_sec": l.window.Seconds(),
		"keys":       len(l.hits),
		"allowed":    l.allowed,
		"denied":     l.denied,
	}
}

// State is the circuit breaker state.
type State string

const (
	StateClosed   State = "closed"    // normal operation
	StateOpen     State = "open"      // calls suppressed
	StateHalfOpen State = "half_open" // one probe in flight
)

// Breaker trips open after a run of consecutive failures and allows a
// single probe through once the cooldown has elapsed. A successful probe
// closes it; a failed probe re-opens it for another cooldown.
type Breaker struct {
	mu sync.Mutex

	maxFailures int
	cooldown    time.Duration

	state    State
	failures int
	openedAt time.Time
	probing  bool

	trips uint64

	now func() time.Time
}

func NewBreaker(maxFailures int, cooldown time.Duration) *Breaker {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if cooldown <= 0 {
		cooldown = 60 * time.Second
	}
	return &Breaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		state:       StateClosed,
		now:         time.Now,
	}
}

// Allow reports whether a call may proceed right now.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.state = StateHalfOpen
		b.probing = true
		return true
	default: // half-open
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
}

// RecordSuccess notes a successful call, closing the breaker if it was
// probing.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.probing = false
	b.state = StateClosed
}

// RecordFailure notes a failed call, tripping the breaker once the
// consecutive-failure limit is reached. A failed half-open probe re-opens
// immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.probing = false

	if b.state == StateHalfOpen || b.failures >= b.maxFailures {
		if b.state != StateOpen {
			b.trips++
		}
		b.state = StateOpen
		b.openedAt = b.now()
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats returns a snapshot of breaker counters.
func (b *Breaker) Stats() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return map[string]interface{}{
		"state":                string(b.state),
		"consecutive_failures": b.failures,
		"trips":                b.trips,
		"cooldown_sec":         b.cooldown.Seconds(),
	}
}
