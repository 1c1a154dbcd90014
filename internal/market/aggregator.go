package market

import (
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"futures-radar-bot/config"
	"futures-radar-bot/internal/logging"
)

const (
	// Events per second above which a symbol's window shrinks, and below
	// which it widens.
	highRateThreshold = 10.0
	lowRateThreshold  = 0.1

	rateAlpha = 0.3

	highDropFraction     = 0.6
	criticalDropFraction = 0.8
)

// symbolWindow holds per-symbol adaptive window state.
type symbolWindow struct {
	window     time.Duration
	rateEMA    float64 // smoothed arrival rate, events/sec
	rateSeeded bool
	lastIngest time.Time
	lastAdjust time.Time
}

// Aggregator buffers liquidation and trade events per symbol and serves
// time-window snapshots to the detectors. All methods are safe for
// concurrent use; reads return copies so callers never hold the lock.
type Aggregator struct {
	mu sync.Mutex

	liquidations map[string][]LiquidationEvent
	trades       map[string][]TradeEvent
	windows      map[string]*symbolWindow

	baseWindow  time.Duration
	minWindow   time.Duration
	maxWindow   time.Duration
	adjustEvery time.Duration
	maxEvents   int
	memoryLimit uint64

	ingested     uint64
	dropped      uint64
	lastPressure PressureLevel

	now      func() time.Time
	memUsage func() uint64

	log *logging.Logger
}

// NewAggregator creates an aggregator from config. Zero or missing config
// values fall back to working defaults so tests can pass a partial struct.
func NewAggregator(cfg config.AggregatorConfig, logger *logging.Logger) *Aggregator {
	if logger == nil {
		logger = logging.Default()
	}

	base := durationOrDefault(cfg.BaseWindowSec, 300*time.Second)
	min := durationOrDefault(cfg.MinWindowSec, 10*time.Second)
	max := durationOrDefault(cfg.MaxWindowSec, 1200*time.Second)
	adjust := durationOrDefault(cfg.AdjustIntervalSec, 60*time.Second)

	maxEvents := cfg.MaxEventsPerBuffer
	if maxEvents <= 0 {
		maxEvents = 1000
	}

	return &Aggregator{
		liquidations: make(map[string][]LiquidationEvent),
		trades:       make(map[string][]TradeEvent),
		windows:      make(map[string]*symbolWindow),
		baseWindow:   base,
		minWindow:    min,
		maxWindow:    max,
		adjustEvery:  adjust,
		maxEvents:    maxEvents,
		memoryLimit:  uint64(cfg.MemoryLimitMB) * 1024 * 1024,
		lastPressure: PressureLow,
		now:          time.Now,
		memUsage:     heapInUse,
		log:          logger.WithComponent("aggregator"),
	}
}

func durationOrDefault(sec int, fallback time.Duration) time.Duration {
	if sec <= 0 {
		return fallback
	}
	return time.Duration(sec) * time.Second
}

func heapInUse() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.Alloc
}

// AddLiquidation ingests one liquidation event. Malformed events are
// counted and dropped, never returned as errors.
func (a *Aggregator) AddLiquidation(e LiquidationEvent) {
	if e.Symbol == "" || e.VolUSD <= 0 || e.Price <= 0 || !e.Side.Valid() {
		a.noteDropped()
		a.log.Warn("dropping malformed liquidation event",
			"symbol", e.Symbol, "vol_usd", e.VolUSD, "side", string(e.Side))
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if e.IngestTime.IsZero() {
		e.IngestTime = a.now()
	}

	// Buffers stay ingest-ordered even if a caller stamps times itself.
	if prev := a.liquidations[e.Symbol]; len(prev) > 0 {
		if last := prev[len(prev)-1].IngestTime; e.IngestTime.Before(last) {
			e.IngestTime = last
		}
	}

	buf := append(a.liquidations[e.Symbol], e)
	if len(buf) > a.maxEvents {
		buf = buf[len(buf)-a.maxEvents:]
	}
	a.liquidations[e.Symbol] = buf

	a.ingested++
	a.trackRateLocked(e.Symbol, e.IngestTime)
	a.evictAgedLocked(e.Symbol)
}

// AddTrade ingests one large-trade event. Same drop semantics as
// AddLiquidation.
func (a *Aggregator) AddTrade(e TradeEvent) {
	if e.Symbol == "" || e.VolUSD <= 0 || e.Price <= 0 || !e.Side.Valid() {
		a.noteDropped()
		a.log.Warn("dropping malformed trade event",
			"symbol", e.Symbol, "vol_usd", e.VolUSD, "side", string(e.Side))
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if e.IngestTime.IsZero() {
		e.IngestTime = a.now()
	}

	if prev := a.trades[e.Symbol]; len(prev) > 0 {
		if last := prev[len(prev)-1].IngestTime; e.IngestTime.Before(last) {
			e.IngestTime = last
		}
	}

	buf := append(a.trades[e.Symbol], e)
	if len(buf) > a.maxEvents {
		buf = buf[len(buf)-a.maxEvents:]
	}
	a.trades[e.Symbol] = buf

	a.ingested++
	a.trackRateLocked(e.Symbol, e.IngestTime)
	a.evictAgedLocked(e.Symbol)
}

func (a *Aggregator) noteDropped() {
	a.mu.Lock()
	a.dropped++
	a.mu.Unlock()
}

// trackRateLocked updates the arrival-rate EMA for a symbol and, at most
// once per adjustment interval, recomputes its adaptive window.
func (a *Aggregator) trackRateLocked(symbol string, ts time.Time) {
	w, ok := a.windows[symbol]
	if !ok {
		w = &symbolWindow{window: a.baseWindow}
		a.windows[symbol] = w
	}

	if !w.lastIngest.IsZero() {
		dt := ts.Sub(w.lastIngest).Seconds()
		if dt <= 0 {
			dt = 0.001
		}
		rate := 1 / dt
		if w.rateSeeded {
			w.rateEMA = rateAlpha*rate + (1-rateAlpha)*w.rateEMA
		} else {
			w.rateEMA = rate
			w.rateSeeded = true
		}
	}
	w.lastIngest = ts

	if !w.rateSeeded {
		return
	}
	if !w.lastAdjust.IsZero() && ts.Sub(w.lastAdjust) < a.adjustEvery {
		return
	}

	target := a.baseWindow
	switch {
	case w.rateEMA > highRateThreshold:
		target = a.baseWindow / 2
	case w.rateEMA < lowRateThreshold:
		target = 2 * a.baseWindow
	}
	if target < a.minWindow {
		target = a.minWindow
	}
	if target > a.maxWindow {
		target = a.maxWindow
	}

	if target != w.window {
		a.log.Debug("adaptive window adjusted",
			"symbol", symbol, "window", target.String(), "rate_per_sec", w.rateEMA)
	}
	w.window = target
	w.lastAdjust = ts
}

// evictAgedLocked drops events older than twice the symbol's current
// window. Runs after every ingest so buffers stay tight between sweeps.
func (a *Aggregator) evictAgedLocked(symbol string) {
	cutoff := a.now().Add(-2 * a.windowForLocked(symbol))

	if buf, ok := a.liquidations[symbol]; ok {
		i := 0
		for i < len(buf) && buf[i].IngestTime.Before(cutoff) {
			i++
		}
		switch {
		case i == len(buf):
			delete(a.liquidations, symbol)
		case i > 0:
			a.liquidations[symbol] = buf[i:]
		}
	}

	if buf, ok := a.trades[symbol]; ok {
		i := 0
		for i < len(buf) && buf[i].IngestTime.Before(cutoff) {
			i++
		}
		switch {
		case i == len(buf):
			delete(a.trades, symbol)
		case i > 0:
			a.trades[symbol] = buf[i:]
		}
	}
}

func (a *Aggregator) windowForLocked(symbol string) time.Duration {
	if w, ok := a.windows[symbol]; ok {
		return w.window
	}
	return a.baseWindow
}

// WindowFor returns the symbol's current adaptive window.
func (a *Aggregator) WindowFor(symbol string) time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.windowForLocked(symbol)
}

// LiquidationWindow returns a snapshot of the symbol's liquidations with
// ingest age <= window. A boundary event aged exactly the window is
// included. Pass window <= 0 to use the symbol's adaptive window.
func (a *Aggregator) LiquidationWindow(symbol string, window time.Duration) []LiquidationEvent {
	a.mu.Lock()
	defer a.mu.Unlock()

	if window <= 0 {
		window = a.windowForLocked(symbol)
	}
	cutoff := a.now().Add(-window)

	buf := a.liquidations[symbol]
	i := len(buf)
	for i > 0 && !buf[i-1].IngestTime.Before(cutoff) {
		i--
	}

	out := make([]LiquidationEvent, len(buf)-i)
	copy(out, buf[i:])
	return out
}

// TradeWindow returns a snapshot of the symbol's trades with ingest age
// <= window. Pass window <= 0 to use the symbol's adaptive window.
func (a *Aggregator) TradeWindow(symbol string, window time.Duration) []TradeEvent {
	a.mu.Lock()
	defer a.mu.Unlock()

	if window <= 0 {
		window = a.windowForLocked(symbol)
	}
	cutoff := a.now().Add(-window)

	buf := a.trades[symbol]
	i := len(buf)
	for i > 0 && !buf[i-1].IngestTime.Before(cutoff) {
		i--
	}

	out := make([]TradeEvent, len(buf)-i)
	copy(out, buf[i:])
	return out
}

// TradeCount reports how many trades fall inside the window without
// copying them out.
func (a *Aggregator) TradeCount(symbol string, window time.Duration) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	if window <= 0 {
		window = a.windowForLocked(symbol)
	}
	cutoff := a.now().Add(-window)

	buf := a.trades[symbol]
	i := len(buf)
	for i > 0 && !buf[i-1].IngestTime.Before(cutoff) {
		i--
	}
	return len(buf) - i
}

// ActiveLiquidationSymbols lists symbols with at least one liquidation
// ingested within the given lookback, sorted for stable iteration.
func (a *Aggregator) ActiveLiquidationSymbols(since time.Duration) []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := a.now().Add(-since)
	symbols := make([]string, 0, len(a.liquidations))
	for sym, buf := range a.liquidations {
		if len(buf) > 0 && !buf[len(buf)-1].IngestTime.Before(cutoff) {
			symbols = append(symbols, sym)
		}
	}
	sort.Strings(symbols)
	return symbols
}

// ActiveTradeSymbols lists symbols with at least one trade ingested within
// the given lookback.
func (a *Aggregator) ActiveTradeSymbols(since time.Duration) []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := a.now().Add(-since)
	symbols := make([]string, 0, len(a.trades))
	for sym, buf := range a.trades {
		if len(buf) > 0 && !buf[len(buf)-1].IngestTime.Before(cutoff) {
			symbols = append(symbols, sym)
		}
	}
	sort.Strings(symbols)
	return symbols
}

// ActiveSymbols lists symbols with any event, of either kind, ingested
// within the given lookback.
func (a *Aggregator) ActiveSymbols(since time.Duration) []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := a.now().Add(-since)
	seen := make(map[string]bool)
	for sym, buf := range a.liquidations {
		if len(buf) > 0 && !buf[len(buf)-1].IngestTime.Before(cutoff) {
			seen[sym] = true
		}
	}
	for sym, buf := range a.trades {
		if len(buf) > 0 && !buf[len(buf)-1].IngestTime.Before(cutoff) {
			seen[sym] = true
		}
	}

	symbols := make([]string, 0, len(seen))
	for sym := range seen {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols
}

// ClearOlderThan removes events older than the given age from every
// buffer, compacting the retained slices. Empty buffers and idle window
// state are dropped. Returns the number of events removed.
func (a *Aggregator) ClearOlderThan(age time.Duration) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := a.now().Add(-age)
	removed := 0

	for sym, buf := range a.liquidations {
		i := 0
		for i < len(buf) && buf[i].IngestTime.Before(cutoff) {
			i++
		}
		if i == 0 {
			continue
		}
		removed += i
		if i == len(buf) {
			delete(a.liquidations, sym)
			continue
		}
		kept := make([]LiquidationEvent, len(buf)-i)
		copy(kept, buf[i:])
		a.liquidations[sym] = kept
	}

	for sym, buf := range a.trades {
		i := 0
		for i < len(buf) && buf[i].IngestTime.Before(cutoff) {
			i++
		}
		if i == 0 {
			continue
		}
		removed += i
		if i == len(buf) {
			delete(a.trades, sym)
			continue
		}
		kept := make([]TradeEvent, len(buf)-i)
		copy(kept, buf[i:])
		a.trades[sym] = kept
	}

	for sym := range a.windows {
		if _, ok := a.liquidations[sym]; ok {
			continue
		}
		if _, ok := a.trades[sym]; ok {
			continue
		}
		delete(a.windows, sym)
	}

	return removed
}

// CheckMemoryPressure samples memory usage against the configured limit
// and, on high or critical pressure, drops the oldest share of every
// buffer. Returns the observed level.
func (a *Aggregator) CheckMemoryPressure() PressureLevel {
	if a.memoryLimit == 0 {
		return PressureLow
	}

	used := a.memUsage()
	ratio := float64(used) / float64(a.memoryLimit)

	level := PressureLow
	switch {
	case ratio >= 0.95:
		level = PressureCritical
	case ratio >= 0.80:
		level = PressureHigh
	case ratio >= 0.60:
		level = PressureMedium
	}

	a.mu.Lock()
	a.lastPressure = level
	dropped := 0
	switch level {
	case PressureCritical:
		dropped = a.dropOldestLocked(criticalDropFraction)
	case PressureHigh:
		dropped = a.dropOldestLocked(highDropFraction)
	}
	a.mu.Unlock()

	if dropped > 0 {
		a.log.Warn("memory pressure eviction",
			"level", string(level), "events_dropped", dropped, "used_mb", used/(1024*1024))
	}
	return level
}

// dropOldestLocked removes the oldest fraction of every buffer, rounding
// the per-buffer drop count up so even single-event buffers shrink.
func (a *Aggregator) dropOldestLocked(fraction float64) int {
	total := 0

	for sym, buf := range a.liquidations {
		n := int(math.Ceil(fraction * float64(len(buf))))
		total += n
		if n >= len(buf) {
			delete(a.liquidations, sym)
			continue
		}
		kept := make([]LiquidationEvent, len(buf)-n)
		copy(kept, buf[n:])
		a.liquidations[sym] = kept
	}

	for sym, buf := range a.trades {
		n := int(math.Ceil(fraction * float64(len(buf))))
		total += n
		if n >= len(buf) {
			delete(a.trades, sym)
			continue
		}
		kept := make([]TradeEvent, len(buf)-n)
		copy(kept, buf[n:])
		a.trades[sym] = kept
	}

	return total
}

// TotalEvents reports the number of buffered events across all symbols.
func (a *Aggregator) TotalEvents() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	total := 0
	for _, buf := range a.liquidations {
		total += len(buf)
	}
	for _, buf := range a.trades {
		total += len(buf)
	}
	return total
}

// Stats returns a snapshot of aggregator counters for the status API.
func (a *Aggregator) Stats() map[string]interface{} {
	a.mu.Lock()
	defer a.mu.Unlock()

	liqEvents := 0
	for _, buf := range a.liquidations {
		liqEvents += len(buf)
	}
	tradeEvents := 0
	for _, buf := range a.trades {
		tradeEvents += len(buf)
	}

	shrunk, widened := 0, 0
	for _, w := range a.windows {
		switch {
		case w.window < a.baseWindow:
			shrunk++
		case w.window > a.baseWindow:
			widened++
		}
	}

	return map[string]interface{}{
		"liquidation_symbols": len(a.liquidations),
		"trade_symbols":       len(a.trades),
		"liquidation_events":  liqEvents,
		"trade_events":        tradeEvents,
		"events_ingested":     a.ingested,
		"events_dropped":      a.dropped,
		"windows_shrunk":      shrunk,
		"windows_widened":     widened,
		"memory_pressure":     string(a.lastPressure),
		"base_window_sec":     int(a.baseWindow.Seconds()),
	}
}
