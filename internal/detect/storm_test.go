package detect

import (
	"testing"
	"time"

	"futures-radar-bot/config"
	"futures-radar-bot/internal/market"
)

func testDetectionConfig() config.DetectionConfig {
	cfg := &config.Config{}
	applyTestDefaults(cfg)
	return cfg.DetectionConfig
}

// applyTestDefaults fills a config the way Load does, without touching the
// environment.
func applyTestDefaults(cfg *config.Config) {
	cfg.DetectionConfig = config.DetectionConfig{
		Majors:    []string{"BTCUSDT", "ETHUSDT"},
		LargeCaps: []string{"XRPUSDT", "SOLUSDT", "DOGEUSDT"},
		MajorsLimits: config.GroupLimits{
			StormMinUSD: 2_000_000, StormMinCount: 3, StormCooldownSec: 300,
			ClusterMinUSD: 3_000_000, ClusterMinCount: 3, ClusterMinDominance: 0.70, ClusterCooldownSec: 600,
			RadarMinScore: 0.7, ConvergenceBonus: 0.30,
			LiqAlertMinUSD: 200_000, WhaleAlertMinUSD: 500_000, ItemCooldownSec: 300,
		},
		LargeCapLimits: config.GroupLimits{
			StormMinUSD: 1_000_000, StormMinCount: 2, StormCooldownSec: 450,
			ClusterMinUSD: 1_500_000, ClusterMinCount: 2, ClusterMinDominance: 0.65, ClusterCooldownSec: 900,
			RadarMinScore: 0.6, ConvergenceBonus: 0.25,
			LiqAlertMinUSD: 100_000, WhaleAlertMinUSD: 250_000, ItemCooldownSec: 450,
		},
		MidCapLimits: config.GroupLimits{
			StormMinUSD: 500_000, StormMinCount: 2, StormCooldownSec: 600,
			ClusterMinUSD: 500_000, ClusterMinCount: 2, ClusterMinDominance: 0.60, ClusterCooldownSec: 1200,
			RadarMinScore: 0.5, ConvergenceBonus: 0.20,
			LiqAlertMinUSD: 50_000, WhaleAlertMinUSD: 100_000, ItemCooldownSec: 600,
		},
		ScanIntervalSec:              5,
		ActiveWindowSec:              30,
		RadarCooldownSec:             300,
		RadarHighActivityCooldownSec: 150,
		RadarHighActivityTrades:      50,
		RadarActivityWindowSec:       300,
		RadarSinglePatternMinScore:   0.4,
		RadarConvergenceMinRatio:     2.0,
	}
}

func newTestAggregator(t *testing.T) *market.Aggregator {
	t.Helper()
	return market.NewAggregator(config.AggregatorConfig{
		BaseWindowSec:      300,
		MinWindowSec:       10,
		MaxWindowSec:       1200,
		MaxEventsPerBuffer: 1000,
		MemoryLimitMB:      512,
		AdjustIntervalSec:  60,
	}, nil)
}

func addLiq(agg *market.Aggregator, symbol string, side market.LiquidationSide, volUSD float64) {
	agg.AddLiquidation(market.LiquidationEvent{
		Symbol:    symbol,
		Exchange:  "Binance",
		Price:     50_000,
		VolUSD:    volUSD,
		Side:      side,
		EventTime: time.Now().UTC(),
	})
}

func TestStormDetectShortLiqMajors(t *testing.T) {
	agg := newTestAggregator(t)
	det := NewStormDetector(agg, testDetectionConfig(), nil)

	for _, vol := range []float64{800_000, 700_000, 600_000, 500_000} {
		addLiq(agg, "BTCUSDT", market.LiqShort, vol)
	}

	info := det.Detect("BTCUSDT")
	if info == nil {
		t.Fatal("expected a storm")
	}
	if info.Symbol != "BTCUSDT" || info.Side != market.LiqShort {
		t.Errorf("wrong identity: %+v", info)
	}
	if info.TotalUSD != 2_600_000 {
		t.Errorf("total = %.0f, want 2600000", info.TotalUSD)
	}
	if info.Count != 4 {
		t.Errorf("count = %d, want 4", info.Count)
	}
}

func TestStormBelowThresholdReturnsNothing(t *testing.T) {
	agg := newTestAggregator(t)
	det := NewStormDetector(agg, testDetectionConfig(), nil)

	// 1.9M over 3 events on a MAJORS symbol: USD threshold not met.
	for _, vol := range []float64{700_000, 700_000, 500_000} {
		addLiq(agg, "BTCUSDT", market.LiqLong, vol)
	}
	if info := det.Detect("BTCUSDT"); info != nil {
		t.Fatalf("unexpected storm: %+v", info)
	}

	// 2M over 2 events: count threshold not met for MAJORS.
	agg2 := newTestAggregator(t)
	det2 := NewStormDetector(agg2, testDetectionConfig(), nil)
	addLiq(agg2, "BTCUSDT", market.LiqLong, 1_000_000)
	addLiq(agg2, "BTCUSDT", market.LiqLong, 1_000_000)
	if info := det2.Detect("BTCUSDT"); info != nil {
		t.Fatalf("unexpected storm: %+v", info)
	}
}

func TestStormThresholdInclusive(t *testing.T) {
	agg := newTestAggregator(t)
	det := NewStormDetector(agg, testDetectionConfig(), nil)

	// Exactly 2M over exactly 3 events qualifies for MAJORS.
	addLiq(agg, "ETHUSDT", market.LiqLong, 1_000_000)
	addLiq(agg, "ETHUSDT", market.LiqLong, 500_000)
	addLiq(agg, "ETHUSDT", market.LiqLong, 500_000)

	info := det.Detect("ETHUSDT")
	if info == nil {
		t.Fatal("storm at exact thresholds should qualify")
	}
	if info.TotalUSD != 2_000_000 || info.Count != 3 {
		t.Errorf("got total %.0f count %d", info.TotalUSD, info.Count)
	}
}

func TestStormUnknownSymbolUsesMidCapLimits(t *testing.T) {
	agg := newTestAggregator(t)
	det := NewStormDetector(agg, testDetectionConfig(), nil)

	// 510K over 2 events clears the MID_CAP bar but no other group's.
	addLiq(agg, "PEPEUSDT", market.LiqShort, 300_000)
	addLiq(agg, "PEPEUSDT", market.LiqShort, 210_000)

	info := det.Detect("PEPEUSDT")
	if info == nil {
		t.Fatal("unlisted symbol should fall back to MID_CAP thresholds")
	}
	if info.TotalUSD != 510_000 {
		t.Errorf("total = %.0f", info.TotalUSD)
	}
}

func TestStormBothSidesPicksLarger(t *testing.T) {
	agg := newTestAggregator(t)
	det := NewStormDetector(agg, testDetectionConfig(), nil)

	for i := 0; i < 3; i++ {
		addLiq(agg, "BTCUSDT", market.LiqLong, 800_000) // 2.4M
	}
	for i := 0; i < 3; i++ {
		addLiq(agg, "BTCUSDT", market.LiqShort, 1_000_000) // 3.0M
	}

	info := det.Detect("BTCUSDT")
	if info == nil {
		t.Fatal("expected a storm")
	}
	if info.Side != market.LiqShort || info.TotalUSD != 3_000_000 {
		t.Errorf("expected the heavier short side, got %+v", info)
	}
}

func TestStormCooldownSkipsBuffer(t *testing.T) {
	agg := newTestAggregator(t)
	det := NewStormDetector(agg, testDetectionConfig(), nil)

	base := time.Now()
	det.now = func() time.Time { return base }

	for _, vol := range []float64{800_000, 700_000, 600_000, 500_000} {
		addLiq(agg, "BTCUSDT", market.LiqShort, vol)
	}
	if det.Detect("BTCUSDT") == nil {
		t.Fatal("expected the first detection")
	}

	// Same qualifying data 60s later: inside the 300s MAJORS cooldown.
	det.now = func() time.Time { return base.Add(60 * time.Second) }
	for _, vol := range []float64{800_000, 700_000, 600_000, 500_000} {
		addLiq(agg, "BTCUSDT", market.LiqShort, vol)
	}
	if info := det.Detect("BTCUSDT"); info != nil {
		t.Fatalf("cooldown violated: %+v", info)
	}

	// Past the cooldown the detector fires again.
	det.now = func() time.Time { return base.Add(301 * time.Second) }
	if det.Detect("BTCUSDT") == nil {
		t.Fatal("expected a detection after the cooldown")
	}
}

func TestStormAnalyzeIgnoresCooldown(t *testing.T) {
	agg := newTestAggregator(t)
	det := NewStormDetector(agg, testDetectionConfig(), nil)

	for _, vol := range []float64{800_000, 700_000, 600_000, 500_000} {
		addLiq(agg, "BTCUSDT", market.LiqShort, vol)
	}
	if det.Detect("BTCUSDT") == nil {
		t.Fatal("expected detection")
	}
	if det.Analyze("BTCUSDT") == nil {
		t.Fatal("Analyze should not be gated by the cooldown")
	}
}

func TestStormEmptyWindow(t *testing.T) {
	agg := newTestAggregator(t)
	det := NewStormDetector(agg, testDetectionConfig(), nil)
	if info := det.Detect("BTCUSDT"); info != nil {
		t.Fatalf("detection from an empty window: %+v", info)
	}
}
