package alert

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"futures-radar-bot/config"
	"futures-radar-bot/internal/detect"
	"futures-radar-bot/internal/market"
	"futures-radar-bot/internal/notification"
)

type captureSink struct {
	mu    sync.Mutex
	fail  bool
	texts []string
}

func (c *captureSink) Name() string { return "capture" }

func (c *captureSink) IsEnabled() bool { return true }

func (c *captureSink) Destinations() []string { return []string{"dest"} }

func (c *captureSink) Send(_ context.Context, _, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("sink down")
	}
	c.texts = append(c.texts, text)
	return nil
}

func (c *captureSink) received() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.texts))
	copy(out, c.texts)
	return out
}

func testAlertConfig() config.AlertConfig {
	return config.AlertConfig{
		StormCooldownSec:             300,
		ClusterCooldownSec:           600,
		RadarCooldownSec:             300,
		RadarHighActivityCooldownSec: 150,
		DispatchSpacingMS:            1,
		SendTimeoutSec:               2,
		QueueSize:                    16,
		SweepIntervalSec:             3600,
		RecordMaxAgeSec:              86400,
	}
}

func testAlertDetConfig() config.DetectionConfig {
	limits := config.GroupLimits{
		LiqAlertMinUSD:   200_000,
		WhaleAlertMinUSD: 500_000,
		ItemCooldownSec:  300,
	}
	return config.DetectionConfig{
		Majors:         []string{"BTCUSDT", "ETHUSDT"},
		MajorsLimits:   limits,
		LargeCapLimits: limits,
		MidCapLimits:   limits,
	}
}

func newTestEngine(sink notification.Sink) (*Engine, *notification.Manager) {
	m := notification.NewManager()
	if sink != nil {
		m.AddSink(sink)
	}
	return NewEngine(testAlertConfig(), testAlertDetConfig(), m), m
}

func liqEvent(symbol string, usd float64, side market.LiquidationSide) *market.LiquidationEvent {
	return &market.LiquidationEvent{
		Symbol:    symbol,
		BaseAsset: strings.TrimSuffix(symbol, "USDT"),
		Exchange:  "Binance",
		Price:     65000,
		VolUSD:    usd,
		Side:      side,
		EventTime: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
	}
}

func TestPublishLiquidationBelowThresholdDropped(t *testing.T) {
	e, _ := newTestEngine(nil)

	if e.PublishLiquidation(liqEvent("BTCUSDT", 199_999, market.LiqLong)) {
		t.Fatal("below-threshold item should be dropped")
	}
	// The cooldown table must stay untouched so a qualifying item right
	// after still fires.
	if !e.PublishLiquidation(liqEvent("BTCUSDT", 250_000, market.LiqLong)) {
		t.Fatal("qualifying item should pass after a sub-threshold drop")
	}
	stats := e.Stats()
	if got := stats["below_threshold"].(uint64); got != 1 {
		t.Fatalf("below_threshold = %d, want 1", got)
	}
}

func TestPublishLiquidationThresholdInclusive(t *testing.T) {
	e, _ := newTestEngine(nil)
	if !e.PublishLiquidation(liqEvent("BTCUSDT", 200_000, market.LiqShort)) {
		t.Fatal("exactly at liq_min_usd should pass")
	}
}

func TestCooldownSuppressesSecondAlert(t *testing.T) {
	e, _ := newTestEngine(nil)
	base := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	cur := base
	e.now = func() time.Time { return cur }

	storm := &detect.StormInfo{Symbol: "BTCUSDT", Side: market.LiqShort, TotalUSD: 2_600_000, Count: 4, WindowSeconds: 60, DetectTime: base}
	if !e.PublishStorm(storm) {
		t.Fatal("first storm should dispatch")
	}
	cur = base.Add(120 * time.Second)
	if e.PublishStorm(storm) {
		t.Fatal("storm within 300s cooldown should be suppressed")
	}
	cur = base.Add(301 * time.Second)
	if !e.PublishStorm(storm) {
		t.Fatal("storm after cooldown should dispatch")
	}
}

func TestCooldownIsPerKindAndSymbol(t *testing.T) {
	e, _ := newTestEngine(nil)

	if !e.PublishLiquidation(liqEvent("BTCUSDT", 300_000, market.LiqLong)) {
		t.Fatal("LIQ_LONG should dispatch")
	}
	// Different kind on the same symbol has its own record.
	if !e.PublishLiquidation(liqEvent("BTCUSDT", 300_000, market.LiqShort)) {
		t.Fatal("LIQ_SHORT should have its own cooldown")
	}
	// Same kind on another symbol too.
	if !e.PublishLiquidation(liqEvent("ETHUSDT", 300_000, market.LiqLong)) {
		t.Fatal("other symbol should have its own cooldown")
	}
	// Repeat of the first is suppressed.
	if e.PublishLiquidation(liqEvent("BTCUSDT", 300_000, market.LiqLong)) {
		t.Fatal("repeat within cooldown should be suppressed")
	}
}

func TestFailedSendKeepsCooldownAdvanced(t *testing.T) {
	sink := &captureSink{fail: true}
	e, _ := newTestEngine(sink)
	e.Start()

	storm := &detect.StormInfo{Symbol: "SOLUSDT", Side: market.LiqLong, TotalUSD: 1_000_000, Count: 5, WindowSeconds: 60, DetectTime: time.Now()}
	if !e.PublishStorm(storm) {
		t.Fatal("first storm should be accepted at the gate")
	}
	e.Stop()

	if e.PublishStorm(storm) {
		t.Fatal("cooldown must stay advanced after a failed send")
	}
	stats := e.Stats()
	if got := stats["send_failures"].(uint64); got == 0 {
		t.Fatal("send failure was not counted")
	}
}

func TestDispatchFanOut(t *testing.T) {
	a := &captureSink{}
	e, m := newTestEngine(a)
	b := &captureSink{}
	m.AddSink(b)
	e.Start()

	if !e.PublishSystem("radar online") {
		t.Fatal("system message should enqueue")
	}
	e.Stop()

	for _, sink := range []*captureSink{a, b} {
		got := sink.received()
		if len(got) != 1 || got[0] != "radar online" {
			t.Fatalf("sink received %v, want [radar online]", got)
		}
	}
}

func TestSystemAlertsBypassCooldown(t *testing.T) {
	e, _ := newTestEngine(nil)
	if !e.PublishSystem("up") || !e.PublishSystem("up again") {
		t.Fatal("system messages must never be cooldown-gated")
	}
}

func TestQueueOverflowDrops(t *testing.T) {
	cfg := testAlertConfig()
	cfg.QueueSize = 1
	e := NewEngine(cfg, testAlertDetConfig(), notification.NewManager())

	// Dispatcher not started, so the queue fills.
	if !e.PublishSystem("first") {
		t.Fatal("first should enqueue")
	}
	if e.PublishSystem("second") {
		t.Fatal("second should be dropped on a full queue")
	}
	if got := e.Stats()["queue_dropped"].(uint64); got != 1 {
		t.Fatalf("queue_dropped = %d, want 1", got)
	}
}

func TestRadarHighActivityShortCooldown(t *testing.T) {
	e, _ := newTestEngine(nil)
	base := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	cur := base
	e.now = func() time.Time { return cur }

	ev := &detect.RadarEvent{
		Symbol:         "DOGEUSDT",
		Patterns:       []detect.Pattern{detect.PatternClusterOnly},
		CompositeScore: 0.5,
		Volatility:     detect.VolatilityMedium,
		Pressure:       detect.PressureBullish,
		SignalStrength: detect.StrengthModerate,
		HighActivity:   true,
		Summary:        "cluster",
		DetectTime:     base,
	}
	if !e.PublishRadar(ev, nil) {
		t.Fatal("first radar should dispatch")
	}
	cur = base.Add(100 * time.Second)
	if e.PublishRadar(ev, nil) {
		t.Fatal("within 150s high-activity cooldown should suppress")
	}
	cur = base.Add(151 * time.Second)
	if !e.PublishRadar(ev, nil) {
		t.Fatal("high-activity radar should re-fire after 150s")
	}
}

func TestSweepRemovesStaleRecords(t *testing.T) {
	e, _ := newTestEngine(nil)
	base := time.Date(2025, 6, 14, 12, 0, 0, 0, time.UTC)
	cur := base
	e.now = func() time.Time { return cur }

	e.PublishLiquidation(liqEvent("BTCUSDT", 300_000, market.LiqLong))

	cur = base.Add(25 * time.Hour)
	e.PublishLiquidation(liqEvent("ETHUSDT", 300_000, market.LiqLong))
	e.sweep()

	if got := e.Stats()["records"].(int); got != 1 {
		t.Fatalf("records after sweep = %d, want 1", got)
	}
}
