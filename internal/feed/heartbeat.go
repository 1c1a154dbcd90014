package feed

import (
	"sync"
	"time"
)

// A connection is declared dead after this many heartbeats in a row go
// unanswered.
const heartbeatFailureLimit = 3

const rtAlpha = 0.3

// heartbeatMonitor tracks heartbeat round trips and adapts the send
// interval to the measured connection quality. At most one heartbeat is
// outstanding at a time.
type heartbeatMonitor struct {
	mu sync.Mutex

	baseInterval time.Duration
	minInterval  time.Duration
	maxInterval  time.Duration
	pongTimeout  time.Duration

	interval time.Duration

	successes    int
	failures     int
	consecutive  int
	avgRT        time.Duration
	rtSeeded     bool
	pendingSince time.Time
}

func newHeartbeatMonitor(base, min, max, pongTimeout time.Duration) *heartbeatMonitor {
	if base <= 0 {
		base = 20 * time.Second
	}
	if min <= 0 {
		min = 5 * time.Second
	}
	if max <= 0 {
		max = 60 * time.Second
	}
	if pongTimeout <= 0 {
		pongTimeout = 60 * time.Second
	}

	h := &heartbeatMonitor{
		baseInterval: base,
		minInterval:  min,
		maxInterval:  max,
		pongTimeout:  pongTimeout,
	}
	h.interval = clampDuration(base, min, max)
	return h
}

// reset clears all statistics for a fresh connection.
func (h *heartbeatMonitor) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.successes = 0
	h.failures = 0
	h.consecutive = 0
	h.avgRT = 0
	h.rtSeeded = false
	h.pendingSince = time.Time{}
	h.interval = clampDuration(h.baseInterval, h.minInterval, h.maxInterval)
}

// markSent records an outbound heartbeat awaiting a reply.
func (h *heartbeatMonitor) markSent(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pendingSince = now
}

func (h *heartbeatMonitor) hasPending() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.pendingSince.IsZero()
}

// expirePending counts the outstanding heartbeat as failed if its reply
// deadline has passed. Returns true when a failure was recorded.
func (h *heartbeatMonitor) expirePending(now time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.pendingSince.IsZero() || now.Sub(h.pendingSince) < h.pongTimeout {
		return false
	}

	h.pendingSince = time.Time{}
	h.failures++
	h.consecutive++
	h.recomputeLocked()
	return true
}

// pongReceived resolves the outstanding heartbeat. Replies with nothing
// pending (server-initiated pings) do not enter the statistics.
func (h *heartbeatMonitor) pongReceived(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.pendingSince.IsZero() {
		return
	}

	rt := now.Sub(h.pendingSince)
	h.pendingSince = time.Time{}
	h.successes++
	h.consecutive = 0

	if h.rtSeeded {
		h.avgRT = time.Duration(rtAlpha*float64(rt) + (1-rtAlpha)*float64(h.avgRT))
	} else {
		h.avgRT = rt
		h.rtSeeded = true
	}

	h.recomputeLocked()
}

func (h *heartbeatMonitor) consecutiveFailures() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.consecutive
}

func (h *heartbeatMonitor) currentInterval() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interval
}

func (h *heartbeatMonitor) quality() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.qualityLocked()
}

// qualityLocked scores the connection: 70% heartbeat success rate, 30%
// round-trip latency mapped so <=1s is perfect and >=5s is zero.
func (h *heartbeatMonitor) qualityLocked() float64 {
	total := h.successes + h.failures
	if total == 0 {
		return 1.0
	}

	successRate := float64(h.successes) / float64(total)

	timeScore := 1.0
	if h.rtSeeded {
		timeScore = 1.0 - (h.avgRT.Seconds()-1.0)/4.0
		if timeScore < 0 {
			timeScore = 0
		}
		if timeScore > 1 {
			timeScore = 1
		}
	}

	return 0.7*successRate + 0.3*timeScore
}

// recomputeLocked picks the next send interval from the quality score.
func (h *heartbeatMonitor) recomputeLocked() {
	q := h.qualityLocked()

	var next time.Duration
	switch {
	case q >= 0.8:
		next = time.Duration(1.5 * float64(h.baseInterval))
	case q >= 0.6:
		next = h.baseInterval
	case q >= 0.4:
		next = time.Duration(0.7 * float64(h.baseInterval))
	default:
		next = h.minInterval
	}

	h.interval = clampDuration(next, h.minInterval, h.maxInterval)
}

func (h *heartbeatMonitor) stats() map[string]interface{} {
	h.mu.Lock()
	defer h.mu.Unlock()

	return map[string]interface{}{
		"interval_sec":         h.interval.Seconds(),
		"quality":              h.qualityLocked(),
		"successes":            h.successes,
		"failures":             h.failures,
		"consecutive_failures": h.consecutive,
		"avg_rt_ms":            h.avgRT.Milliseconds(),
	}
}

func clampDuration(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}
