package feed

import (
	"testing"
	"time"
)

func newTestMonitor() *heartbeatMonitor {
	return newHeartbeatMonitor(20*time.Second, 5*time.Second, 60*time.Second, 60*time.Second)
}

func TestHeartbeatIntervalLadder(t *testing.T) {
	h := newTestMonitor()
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if got := h.currentInterval(); got != 20*time.Second {
		t.Fatalf("initial interval = %s, want base 20s", got)
	}

	// One fast round trip: quality 1.0, interval stretches to 1.5x base.
	h.markSent(t0)
	h.pongReceived(t0.Add(500 * time.Millisecond))
	if got := h.currentInterval(); got != 30*time.Second {
		t.Fatalf("after perfect heartbeat interval = %s, want 30s", got)
	}

	// One timeout: success rate 0.5, quality 0.65, back to base.
	h.markSent(t0.Add(time.Minute))
	if !h.expirePending(t0.Add(2 * time.Minute)) {
		t.Fatal("expected timeout to register a failure")
	}
	if got := h.currentInterval(); got != 20*time.Second {
		t.Fatalf("after one failure interval = %s, want 20s", got)
	}

	// Second timeout: success rate 1/3, quality ~0.53, shrink to 0.7x base.
	h.markSent(t0.Add(3 * time.Minute))
	h.expirePending(t0.Add(4 * time.Minute))
	if got := h.currentInterval(); got != 14*time.Second {
		t.Fatalf("after two failures interval = %s, want 14s", got)
	}

	// Keep failing until quality drops below 0.4: floor at the min interval.
	for i := 0; i < 5; i++ {
		h.markSent(t0.Add(time.Duration(5+i) * time.Minute))
		h.expirePending(t0.Add(time.Duration(6+i) * time.Minute))
	}
	if got := h.currentInterval(); got != 5*time.Second {
		t.Fatalf("after repeated failures interval = %s, want min 5s", got)
	}
}

func TestHeartbeatSlowRoundTripLowersQuality(t *testing.T) {
	h := newTestMonitor()
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// 5s round trip zeroes the time score: quality 0.7, interval stays base.
	h.markSent(t0)
	h.pongReceived(t0.Add(5 * time.Second))

	if q := h.quality(); q < 0.69 || q > 0.71 {
		t.Errorf("quality = %v, want ~0.7", q)
	}
	if got := h.currentInterval(); got != 20*time.Second {
		t.Errorf("interval = %s, want base 20s", got)
	}
}

func TestHeartbeatResponseTimeEMA(t *testing.T) {
	h := newTestMonitor()
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	h.markSent(t0)
	h.pongReceived(t0.Add(1 * time.Second))
	h.markSent(t0.Add(time.Minute))
	h.pongReceived(t0.Add(time.Minute + 2*time.Second))

	// EMA: 0.3*2s + 0.7*1s = 1.3s
	h.mu.Lock()
	avg := h.avgRT
	h.mu.Unlock()
	if diff := avg - 1300*time.Millisecond; diff < -time.Millisecond || diff > time.Millisecond {
		t.Errorf("avgRT = %s, want ~1.3s", avg)
	}
}

func TestHeartbeatConsecutiveFailuresAndRecovery(t *testing.T) {
	h := newTestMonitor()
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		h.markSent(t0.Add(time.Duration(2*i) * time.Minute))
		h.expirePending(t0.Add(time.Duration(2*i+1) * time.Minute))
	}
	if got := h.consecutiveFailures(); got != heartbeatFailureLimit {
		t.Fatalf("consecutive failures = %d, want %d", got, heartbeatFailureLimit)
	}

	// A successful round trip clears the streak.
	h.markSent(t0.Add(10 * time.Minute))
	h.pongReceived(t0.Add(10*time.Minute + time.Second))
	if got := h.consecutiveFailures(); got != 0 {
		t.Errorf("consecutive failures after success = %d, want 0", got)
	}
}

func TestHeartbeatPendingNotExpiredEarly(t *testing.T) {
	h := newTestMonitor()
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	h.markSent(t0)
	if h.expirePending(t0.Add(59 * time.Second)) {
		t.Error("heartbeat expired before the pong timeout")
	}
	if !h.hasPending() {
		t.Error("pending heartbeat was cleared early")
	}
}

func TestHeartbeatUnsolicitedPongIgnored(t *testing.T) {
	h := newTestMonitor()
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	h.pongReceived(t0)

	h.mu.Lock()
	successes := h.successes
	h.mu.Unlock()
	if successes != 0 {
		t.Errorf("unsolicited pong counted as success")
	}
}

func TestHeartbeatReset(t *testing.T) {
	h := newTestMonitor()
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	h.markSent(t0)
	h.expirePending(t0.Add(2 * time.Minute))
	h.markSent(t0.Add(3 * time.Minute))

	h.reset()

	if h.hasPending() {
		t.Error("pending survived reset")
	}
	if got := h.consecutiveFailures(); got != 0 {
		t.Errorf("consecutive failures after reset = %d", got)
	}
	if got := h.currentInterval(); got != 20*time.Second {
		t.Errorf("interval after reset = %s, want base", got)
	}
}
