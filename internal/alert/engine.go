// Package alert gates, formats, and dispatches chat alerts. The engine
// owns the per-(kind,symbol) cooldown table and a single dispatcher
// goroutine so the feed reader never blocks on a slow sink.
package alert

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"futures-radar-bot/config"
	"futures-radar-bot/internal/detect"
	"futures-radar-bot/internal/logging"
	"futures-radar-bot/internal/market"
	"futures-radar-bot/internal/notification"
	"futures-radar-bot/internal/scoring"
)

// Kind is the alert category. Cooldowns are tracked per (kind, symbol).
type Kind string

const (
	KindLiqLong      Kind = "LIQ_LONG"
	KindLiqShort     Kind = "LIQ_SHORT"
	KindWhaleBuy     Kind = "WHALE_BUY"
	KindWhaleSell    Kind = "WHALE_SELL"
	KindLiqStorm     Kind = "LIQ_STORM"
	KindWhaleCluster Kind = "WHALE_CLUSTER"
	KindGlobalRadar  Kind = "GLOBAL_RADAR"
	KindSystem       Kind = "SYSTEM"
)

// Alert is one formatted message ready for dispatch.
type Alert struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Symbol    string    `json:"symbol"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type recordKey struct {
	kind   Kind
	symbol string
}

// Engine applies per-category cooldowns and minimum-size gates, then
// fans accepted alerts out to every enabled sink.
type Engine struct {
	mu sync.Mutex

	cfg     config.AlertConfig
	det     config.DetectionConfig
	manager *notification.Manager

	records map[recordKey]time.Time
	queue   chan *Alert
	stopCh  chan struct{}
	done    chan struct{}
	started bool

	dispatched     map[Kind]uint64
	suppressed     uint64
	belowThreshold uint64
	queueDropped   uint64
	sendFailures   uint64

	now func() time.Time
	log *logging.Logger
}

func NewEngine(cfg config.AlertConfig, det config.DetectionConfig, manager *notification.Manager) *Engine {
	return &Engine{
		cfg:        cfg,
		det:        det,
		manager:    manager,
		records:    make(map[recordKey]time.Time),
		queue:      make(chan *Alert, cfg.QueueSize),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
		dispatched: make(map[Kind]uint64),
		now:        time.Now,
		log:        logging.Default().WithComponent("alert"),
	}
}

// Start launches the dispatcher and the record sweeper.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	go e.dispatchLoop()
	go e.sweepLoop()
	e.log.Info("alert engine started", "queue_size", cap(e.queue))
}

// Stop drains queued alerts best-effort and shuts the dispatcher down.
// Blocks until the queue is flushed or the send timeout elapses.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	e.mu.Unlock()

	close(e.stopCh)
	select {
	case <-e.done:
	case <-time.After(time.Duration(e.cfg.SendTimeoutSec) * time.Second):
		e.log.Warn("alert flush timed out", "pending", len(e.queue))
	}
}

// PublishLiquidation emits a per-item liquidation alert when the event
// clears the symbol group's minimum size and the cooldown gate.
func (e *Engine) PublishLiquidation(ev *market.LiquidationEvent) bool {
	limits := e.det.LimitsFor(ev.Symbol)
	if ev.VolUSD < limits.LiqAlertMinUSD {
		e.mu.Lock()
		e.belowThreshold++
		e.mu.Unlock()
		return false
	}
	kind := KindLiqLong
	if ev.Side == market.LiqShort {
		kind = KindLiqShort
	}
	cooldown := time.Duration(limits.ItemCooldownSec) * time.Second
	if !e.checkAndRecord(kind, ev.Symbol, cooldown) {
		return false
	}
	return e.enqueue(kind, ev.Symbol, formatLiquidation(ev))
}

// PublishTrade emits a per-item whale trade alert.
func (e *Engine) PublishTrade(ev *market.TradeEvent) bool {
	limits := e.det.LimitsFor(ev.Symbol)
	if ev.VolUSD < limits.WhaleAlertMinUSD {
		e.mu.Lock()
		e.belowThreshold++
		e.mu.Unlock()
		return false
	}
	kind := KindWhaleBuy
	if ev.Side == market.TradeSell {
		kind = KindWhaleSell
	}
	cooldown := time.Duration(limits.ItemCooldownSec) * time.Second
	if !e.checkAndRecord(kind, ev.Symbol, cooldown) {
		return false
	}
	return e.enqueue(kind, ev.Symbol, formatTrade(ev))
}

func (e *Engine) PublishStorm(s *detect.StormInfo) bool {
	cooldown := time.Duration(e.cfg.StormCooldownSec) * time.Second
	if !e.checkAndRecord(KindLiqStorm, s.Symbol, cooldown) {
		return false
	}
	return e.enqueue(KindLiqStorm, s.Symbol, formatStorm(s))
}

func (e *Engine) PublishCluster(c *detect.ClusterInfo) bool {
	cooldown := time.Duration(e.cfg.ClusterCooldownSec) * time.Second
	if !e.checkAndRecord(KindWhaleCluster, c.Symbol, cooldown) {
		return false
	}
	return e.enqueue(KindWhaleCluster, c.Symbol, formatCluster(c))
}

// PublishRadar emits a composite radar alert. High-activity events use
// the shorter cooldown. score may be nil.
func (e *Engine) PublishRadar(ev *detect.RadarEvent, score *scoring.EnhancedScore) bool {
	sec := e.cfg.RadarCooldownSec
	if ev.HighActivity {
		sec = e.cfg.RadarHighActivityCooldownSec
	}
	if !e.checkAndRecord(KindGlobalRadar, ev.Symbol, time.Duration(sec)*time.Second) {
		return false
	}
	return e.enqueue(KindGlobalRadar, ev.Symbol, formatRadar(ev, score))
}

// PublishSystem emits an operational message. System alerts bypass the
// cooldown table.
func (e *Engine) PublishSystem(text string) bool {
	return e.enqueue(KindSystem, "", text)
}

// checkAndRecord gates on the (kind, symbol) cooldown and, when clear,
// advances the record in the same critical section. The record stays
// advanced even if every downstream send fails.
func (e *Engine) checkAndRecord(kind Kind, symbol string, cooldown time.Duration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := recordKey{kind: kind, symbol: symbol}
	now := e.now()
	if last, ok := e.records[key]; ok && now.Sub(last) < cooldown {
		e.suppressed++
		return false
	}
	e.records[key] = now
	return true
}

func (e *Engine) enqueue(kind Kind, symbol, text string) bool {
	a := &Alert{
		ID:        uuid.New().String(),
		Kind:      kind,
		Symbol:    symbol,
		Text:      text,
		CreatedAt: e.now(),
	}
	select {
	case e.queue <- a:
		e.mu.Lock()
		e.dispatched[kind]++
		e.mu.Unlock()
		return true
	default:
		e.mu.Lock()
		e.queueDropped++
		e.mu.Unlock()
		e.log.Warn("alert queue full, dropping", "kind", string(kind), "symbol", symbol)
		return false
	}
}

func (e *Engine) dispatchLoop() {
	defer close(e.done)
	for {
		select {
		case a := <-e.queue:
			e.dispatch(a)
		case <-e.stopCh:
			// Best-effort flush of whatever is still queued.
			for {
				select {
				case a := <-e.queue:
					e.dispatch(a)
				default:
					return
				}
			}
		}
	}
}

// dispatch sends one alert to every enabled sink, one destination at a
// time with fixed spacing. Destination failures never abort siblings.
func (e *Engine) dispatch(a *Alert) {
	spacing := time.Duration(e.cfg.DispatchSpacingMS) * time.Millisecond
	timeout := time.Duration(e.cfg.SendTimeoutSec) * time.Second

	first := true
	for _, sink := range e.manager.Enabled() {
		for _, dest := range sink.Destinations() {
			if !first {
				time.Sleep(spacing)
			}
			first = false

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			err := sink.Send(ctx, dest, a.Text)
			cancel()
			if err != nil {
				e.mu.Lock()
				e.sendFailures++
				e.mu.Unlock()
				e.log.Error("alert send failed", "id", a.ID, "kind", string(a.Kind),
					"sink", sink.Name(), "destination", dest, "error", err.Error())
				continue
			}
			e.log.Debug("alert sent", "id", a.ID, "kind", string(a.Kind),
				"symbol", a.Symbol, "sink", sink.Name())
		}
	}
}

func (e *Engine) sweepLoop() {
	ticker := time.NewTicker(time.Duration(e.cfg.SweepIntervalSec) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.sweep()
		case <-e.stopCh:
			return
		}
	}
}

// sweep drops cooldown records old enough that they can never gate again.
func (e *Engine) sweep() {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-time.Duration(e.cfg.RecordMaxAgeSec) * time.Second)
	removed := 0
	for key, last := range e.records {
		if last.Before(cutoff) {
			delete(e.records, key)
			removed++
		}
	}
	if removed > 0 {
		e.log.Debug("cooldown records swept", "removed", removed, "remaining", len(e.records))
	}
}

func (e *Engine) Stats() map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	byKind := make(map[string]uint64, len(e.dispatched))
	for k, v := range e.dispatched {
		byKind[string(k)] = v
	}
	return map[string]interface{}{
		"dispatched":      byKind,
		"suppressed":      e.suppressed,
		"below_threshold": e.belowThreshold,
		"queue_dropped":   e.queueDropped,
		"send_failures":   e.sendFailures,
		"queue_depth":     len(e.queue),
		"records":         len(e.records),
	}
}
