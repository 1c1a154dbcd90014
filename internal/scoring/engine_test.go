package scoring

import (
	"math"
	"testing"
	"time"

	"futures-radar-bot/config"
	"futures-radar-bot/internal/detect"
	"futures-radar-bot/internal/market"
)

func testScoringConfig() config.ScoringConfig {
	return config.ScoringConfig{
		StormWeight:          0.4,
		ClusterWeight:        0.4,
		ConvergenceWeight:    0.6,
		ShortLiqSideWeight:   1.2,
		DecayLambdaPerMin:    0.1,
		RecencyBonus:         0.3,
		RecencyWindowMin:     5,
		ContextTTLSec:        60,
		HistoryRetentionSec:  3600,
		HistoryMaxSamples:    720,
		VolumeShareThreshold: 0.3,
	}
}

func testDetConfig() config.DetectionConfig {
	return config.DetectionConfig{
		Majors: []string{"BTCUSDT", "ETHUSDT"},
		MajorsLimits: config.GroupLimits{
			StormMinUSD: 2_000_000, StormMinCount: 3,
			ClusterMinUSD: 3_000_000, ClusterMinCount: 3, ClusterMinDominance: 0.70,
		},
		MidCapLimits: config.GroupLimits{
			StormMinUSD: 500_000, StormMinCount: 2,
			ClusterMinUSD: 500_000, ClusterMinCount: 2, ClusterMinDominance: 0.60,
		},
	}
}

// Noon UTC keeps the session-hour multiplier at 1.0.
var scoreTime = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestEngine() *Engine {
	e := NewEngine(testScoringConfig(), testDetConfig(), nil)
	e.now = func() time.Time { return scoreTime }
	return e
}

func TestScoreNothingToScore(t *testing.T) {
	e := newTestEngine()
	if s := e.Score("BTCUSDT", nil, nil, scoreTime); s != nil {
		t.Fatalf("score from no findings: %+v", s)
	}
}

func TestScoreStormContribution(t *testing.T) {
	e := newTestEngine()
	storm := &detect.StormInfo{
		Symbol: "BTCUSDT", Side: market.LiqShort,
		TotalUSD: 2_600_000, Count: 4, DetectTime: scoreTime,
	}

	s := e.Score("BTCUSDT", storm, nil, scoreTime)
	if s == nil {
		t.Fatal("expected a score")
	}

	// v = 1.3; log10(2.3)/3 * 1.2 + 0.4*0.2
	want := math.Log10(2.3)/3*1.2 + 0.08
	if math.Abs(s.Breakdown.StormContribution-want) > 1e-9 {
		t.Errorf("storm contribution = %.6f, want %.6f", s.Breakdown.StormContribution, want)
	}
	if s.Breakdown.ClusterContribution != 0 {
		t.Errorf("cluster contribution = %.6f, want 0", s.Breakdown.ClusterContribution)
	}
	if s.FinalScore < 0 || s.FinalScore > 1 {
		t.Errorf("final score out of range: %.4f", s.FinalScore)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		t.Errorf("confidence out of range: %.4f", s.Confidence)
	}
}

func TestScoreLongLiqSideWeight(t *testing.T) {
	e := newTestEngine()
	long := &detect.StormInfo{Symbol: "BTCUSDT", Side: market.LiqLong, TotalUSD: 2_600_000, Count: 4, DetectTime: scoreTime}
	short := &detect.StormInfo{Symbol: "BTCUSDT", Side: market.LiqShort, TotalUSD: 2_600_000, Count: 4, DetectTime: scoreTime}

	sl := e.Score("BTCUSDT", long, nil, scoreTime)
	ss := e.Score("BTCUSDT", short, nil, scoreTime)
	if sl.Breakdown.StormContribution >= ss.Breakdown.StormContribution {
		t.Errorf("short-liq should outweigh long-liq: %.4f vs %.4f",
			ss.Breakdown.StormContribution, sl.Breakdown.StormContribution)
	}
}

func TestScoreConvergenceBase(t *testing.T) {
	e := newTestEngine()
	storm := &detect.StormInfo{Symbol: "ETHUSDT", Side: market.LiqShort, TotalUSD: 5_000_000, Count: 4, DetectTime: scoreTime}
	cluster := &detect.ClusterInfo{
		Symbol: "ETHUSDT", TotalBuyUSD: 8_000_000, TotalSellUSD: 1_000_000,
		BuyCount: 3, SellCount: 1, DominantSide: market.TradeBuy,
		DominanceRatio: 8.0 / 9.0, DetectTime: scoreTime,
	}

	s := e.Score("ETHUSDT", storm, cluster, scoreTime)
	if s == nil {
		t.Fatal("expected a score")
	}

	// v_storm 2.5, v_cluster 3.0; both findings add the 0.6 convergence
	// weight to the base.
	stormContrib := math.Log10(3.5)/3*1.2 + 0.08
	clusterContrib := math.Log10(4.0)/3 + (8.0/9.0)*0.2 + (1.0/8.0)*0.1
	wantBase := 0.4*stormContrib + 0.4*clusterContrib + 0.6
	if math.Abs(s.Breakdown.WeightedBase-wantBase) > 1e-9 {
		t.Errorf("weighted base = %.6f, want %.6f", s.Breakdown.WeightedBase, wantBase)
	}

	wantTypes := map[SignalType]bool{
		SignalStorm: true, SignalCluster: true, SignalConvergence: true,
		SignalReversal: true, SignalMomentum: true,
	}
	if len(s.SignalTypes) != len(wantTypes) {
		t.Fatalf("signal types = %v", s.SignalTypes)
	}
	for _, typ := range s.SignalTypes {
		if !wantTypes[typ] {
			t.Errorf("unexpected signal type %s", typ)
		}
	}
}

func TestScoreRecencyBonusAndDecay(t *testing.T) {
	e := newTestEngine()
	storm := &detect.StormInfo{Symbol: "BTCUSDT", Side: market.LiqShort, TotalUSD: 2_600_000, Count: 4, DetectTime: scoreTime}

	// Fresh finding: full recency bonus on top of no decay.
	fresh := e.Score("BTCUSDT", storm, nil, scoreTime)
	if math.Abs(fresh.Breakdown.DecayMultiplier-1.3) > 1e-9 {
		t.Errorf("fresh decay multiplier = %.4f, want 1.3", fresh.Breakdown.DecayMultiplier)
	}

	// Ten minutes old: pure exponential decay, no bonus.
	stale := e.Score("BTCUSDT", storm, nil, scoreTime.Add(10*time.Minute))
	want := math.Exp(-0.1 * 10)
	if math.Abs(stale.Breakdown.DecayMultiplier-want) > 1e-9 {
		t.Errorf("stale decay multiplier = %.4f, want %.4f", stale.Breakdown.DecayMultiplier, want)
	}
	if stale.FinalScore >= fresh.FinalScore {
		t.Errorf("stale score %.4f should be below fresh %.4f", stale.FinalScore, fresh.FinalScore)
	}
}

func TestScoreTagsThresholds(t *testing.T) {
	e := newTestEngine()

	// Storm under $2M: no REVERSAL tag.
	small := &detect.StormInfo{Symbol: "PEPEUSDT", Side: market.LiqLong, TotalUSD: 600_000, Count: 2, DetectTime: scoreTime}
	s := e.Score("PEPEUSDT", small, nil, scoreTime)
	for _, typ := range s.SignalTypes {
		if typ == SignalReversal {
			t.Error("REVERSAL tagged below $2M")
		}
	}

	// Cluster under 0.7 dominance: no MOMENTUM tag.
	weak := &detect.ClusterInfo{
		Symbol: "PEPEUSDT", TotalBuyUSD: 400_000, TotalSellUSD: 200_000,
		BuyCount: 2, SellCount: 1, DominantSide: market.TradeBuy,
		DominanceRatio: 400_000.0 / 600_000.0, DetectTime: scoreTime,
	}
	s = e.Score("PEPEUSDT", nil, weak, scoreTime)
	for _, typ := range s.SignalTypes {
		if typ == SignalMomentum {
			t.Error("MOMENTUM tagged below 0.7 dominance")
		}
	}
}

func TestRecordSamplePruning(t *testing.T) {
	cfg := testScoringConfig()
	cfg.HistoryMaxSamples = 10
	e := NewEngine(cfg, testDetConfig(), nil)
	e.now = func() time.Time { return scoreTime }

	for i := 0; i < 25; i++ {
		e.RecordSample("BTCUSDT", 100_000, 50_000)
	}

	e.mu.Lock()
	n := len(e.history["BTCUSDT"])
	e.mu.Unlock()
	if n != 10 {
		t.Errorf("history length = %d, want capped at 10", n)
	}
}

func TestContextRegimeAndShare(t *testing.T) {
	e := newTestEngine()

	// Rising prices on BTCUSDT, plus a second symbol so market volume is
	// not all BTC.
	tick := scoreTime.Add(-4 * time.Minute)
	price := 50_000.0
	for i := 0; i < 10; i++ {
		e.now = func() time.Time { return tick }
		e.RecordSample("BTCUSDT", 1_000_000, price)
		e.RecordSample("ETHUSDT", 100_000, 3_000)
		tick = tick.Add(20 * time.Second)
		price *= 1.005 // ~5% over the run
	}
	e.now = func() time.Time { return scoreTime }

	mctx := e.contextFor("BTCUSDT", scoreTime)
	if mctx.Regime != RegimeBullMomentum {
		t.Errorf("regime = %s, want bull_momentum", mctx.Regime)
	}
	if mctx.VolumeShare <= 0.3 {
		t.Errorf("volume share = %.4f, want > 0.3", mctx.VolumeShare)
	}

	// The cached context survives within its TTL even after new samples.
	e.RecordSample("BTCUSDT", 1, 1)
	again := e.contextFor("BTCUSDT", scoreTime.Add(30*time.Second))
	if again.ComputedAt != mctx.ComputedAt {
		t.Error("context recomputed inside TTL")
	}
}

func TestContextVolumeShareMultiplier(t *testing.T) {
	e := newTestEngine()

	// BTC dominates market volume: share > 0.3 applies the 1.5x context
	// multiplier versus an otherwise identical quiet engine.
	for i := 0; i < 5; i++ {
		e.RecordSample("BTCUSDT", 10_000_000, 50_000)
		e.RecordSample("ETHUSDT", 100_000, 3_000)
	}

	storm := &detect.StormInfo{Symbol: "BTCUSDT", Side: market.LiqShort, TotalUSD: 2_600_000, Count: 4, DetectTime: scoreTime}
	withShare := e.Score("BTCUSDT", storm, nil, scoreTime)

	quiet := newTestEngine()
	without := quiet.Score("BTCUSDT", storm, nil, scoreTime)

	if withShare.Breakdown.ContextMultiplier <= without.Breakdown.ContextMultiplier {
		t.Errorf("dominant-share multiplier %.4f should exceed baseline %.4f",
			withShare.Breakdown.ContextMultiplier, without.Breakdown.ContextMultiplier)
	}
}
