// Package scoring turns raw detector findings into a context-adjusted
// final score: a weighted base from the storm and cluster contributions,
// decayed by finding age, shifted by the current market regime, and paired
// with a confidence estimate.
package scoring

import (
	"math"
	"sync"
	"time"

	"futures-radar-bot/config"
	"futures-radar-bot/internal/detect"
	"futures-radar-bot/internal/logging"
	"futures-radar-bot/internal/market"
)

// SignalType tags the kind of signal a score represents.
type SignalType string

const (
	SignalStorm       SignalType = "LIQUIDATION_STORM"
	SignalCluster     SignalType = "WHALE_CLUSTER"
	SignalConvergence SignalType = "CONVERGENCE"
	SignalReversal    SignalType = "REVERSAL"
	SignalMomentum    SignalType = "MOMENTUM"
)

// Storm totals at or above this mark the signal as a potential reversal.
const reversalStormUSD = 2_000_000

// momentumDominance is the cluster dominance that tags MOMENTUM.
const momentumDominance = 0.7

// Breakdown exposes the intermediate terms of one score for alerting and
// debugging.
type Breakdown struct {
	StormContribution   float64 `json:"storm_contribution"`
	ClusterContribution float64 `json:"cluster_contribution"`
	WeightedBase        float64 `json:"weighted_base"`
	DecayMultiplier     float64 `json:"decay_multiplier"`
	ContextMultiplier   float64 `json:"context_multiplier"`
}

// EnhancedScore is the engine's output for one symbol.
type EnhancedScore struct {
	Symbol      string       `json:"symbol"`
	FinalScore  float64      `json:"final_score"`
	Confidence  float64      `json:"confidence"`
	SignalTypes []SignalType `json:"signal_types"`
	Breakdown   Breakdown    `json:"breakdown"`
	ComputedAt  time.Time    `json:"computed_at"`
}

// Engine computes enhanced scores. It keeps a bounded per-symbol history of
// volume/price samples from which it derives the cached market context.
type Engine struct {
	mu sync.Mutex

	cfg config.ScoringConfig
	det config.DetectionConfig

	history  map[string][]sample
	contexts map[string]*MarketContext

	scored uint64

	now func() time.Time
	log *logging.Logger
}

type sample struct {
	ts        time.Time
	volumeUSD float64
	price     float64
}

func NewEngine(cfg config.ScoringConfig, det config.DetectionConfig, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		cfg:      cfg,
		det:      det,
		history:  make(map[string][]sample),
		contexts: make(map[string]*MarketContext),
		now:      time.Now,
		log:      logger.WithComponent("scoring"),
	}
}

// RecordSample feeds one volume/price observation into the symbol's
// history ring. Old samples beyond the retention or the cap are dropped.
func (e *Engine) RecordSample(symbol string, volumeUSD, price float64) {
	if symbol == "" || volumeUSD <= 0 || price <= 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	buf := append(e.history[symbol], sample{ts: now, volumeUSD: volumeUSD, price: price})

	cutoff := now.Add(-time.Duration(e.cfg.HistoryRetentionSec) * time.Second)
	i := 0
	for i < len(buf) && buf[i].ts.Before(cutoff) {
		i++
	}
	buf = buf[i:]
	if max := e.cfg.HistoryMaxSamples; max > 0 && len(buf) > max {
		buf = buf[len(buf)-max:]
	}
	e.history[symbol] = buf
}

// Score computes the enhanced score for the given findings. At least one of
// storm or cluster must be present; with neither there is nothing to score.
func (e *Engine) Score(symbol string, storm *detect.StormInfo, cluster *detect.ClusterInfo, now time.Time) *EnhancedScore {
	if storm == nil && cluster == nil {
		return nil
	}
	if now.IsZero() {
		now = e.now()
	}

	limits := e.det.LimitsFor(symbol)

	// Base contributions on a log scale so a 10x threshold breach does not
	// drown everything else.
	var stormContrib, clusterContrib float64
	if storm != nil {
		vStorm := storm.TotalUSD / limits.StormMinUSD
		sideWeight := 1.0
		if storm.Side == market.LiqShort {
			sideWeight = e.cfg.ShortLiqSideWeight
		}
		countBonus := math.Min(float64(storm.Count)/10, 1) * 0.2
		stormContrib = math.Log10(vStorm+1)/3*sideWeight + countBonus
	}
	if cluster != nil {
		vCluster := cluster.TotalUSD() / limits.ClusterMinUSD
		balance := 0.0
		if hi := math.Max(cluster.TotalBuyUSD, cluster.TotalSellUSD); hi > 0 {
			balance = math.Min(cluster.TotalBuyUSD, cluster.TotalSellUSD) / hi
		}
		clusterContrib = math.Log10(vCluster+1)/3 + cluster.DominanceRatio*0.2 + balance*0.1
	}

	base := e.cfg.StormWeight*stormContrib + e.cfg.ClusterWeight*clusterContrib
	if storm != nil && cluster != nil {
		base += e.cfg.ConvergenceWeight
	}
	base = clamp01(base)

	// Time decay from the older finding, with a recency bonus for anything
	// fresher than the recency window.
	ageMin := findingAgeMinutes(storm, cluster, now)
	decay := math.Exp(-e.cfg.DecayLambdaPerMin * ageMin)
	if ageMin < e.cfg.RecencyWindowMin {
		decay += e.cfg.RecencyBonus * (1 - ageMin/e.cfg.RecencyWindowMin)
	}
	decayed := base * decay

	mctx := e.contextFor(symbol, now)
	ctxMult := e.contextMultiplier(symbol, mctx, now)
	adjusted := clamp01(decayed * ctxMult)

	confidence := e.confidence(storm, cluster, adjusted, decay, ctxMult)
	final := adjusted * (0.5 + 0.5*confidence)

	e.mu.Lock()
	e.scored++
	e.mu.Unlock()

	return &EnhancedScore{
		Symbol:      symbol,
		FinalScore:  final,
		Confidence:  confidence,
		SignalTypes: signalTypes(storm, cluster),
		Breakdown: Breakdown{
			StormContribution:   stormContrib,
			ClusterContribution: clusterContrib,
			WeightedBase:        base,
			DecayMultiplier:     decay,
			ContextMultiplier:   ctxMult,
		},
		ComputedAt: now,
	}
}

// findingAgeMinutes measures from the older of the two finding timestamps.
func findingAgeMinutes(storm *detect.StormInfo, cluster *detect.ClusterInfo, now time.Time) float64 {
	var oldest time.Time
	if storm != nil {
		oldest = storm.DetectTime
	}
	if cluster != nil && (oldest.IsZero() || cluster.DetectTime.Before(oldest)) {
		oldest = cluster.DetectTime
	}
	if oldest.IsZero() {
		return 0
	}
	age := now.Sub(oldest).Minutes()
	if age < 0 {
		return 0
	}
	return age
}

// contextMultiplier composes the regime, volatility, volume-share and
// session-hour adjustments.
func (e *Engine) contextMultiplier(symbol string, mctx *MarketContext, now time.Time) float64 {
	mult := 1.0

	switch mctx.Regime {
	case RegimeBullMomentum:
		mult *= 1.2
	case RegimeBearMomentum:
		mult *= 1.3
	case RegimeVolatile:
		mult *= 1.1
	}

	mult *= 1 + 0.3*mctx.VolatilityIndex

	if mctx.VolumeShare > e.cfg.VolumeShareThreshold {
		mult *= 1.5
	}

	hour := now.UTC().Hour()
	switch {
	case hour >= 20 && hour <= 23:
		mult *= 1.1
	case hour >= 2 && hour <= 6:
		mult *= 0.9
	}

	return mult
}

// confidence averages four subscores: signal consistency, score stability,
// recency and market alignment.
func (e *Engine) confidence(storm *detect.StormInfo, cluster *detect.ClusterInfo, adjusted, decay, ctxMult float64) float64 {
	consistency := 0.3
	switch {
	case storm != nil && cluster != nil:
		consistency = 0.8
	case storm != nil || cluster != nil:
		consistency = 0.6
	}

	stability := 0.5
	if math.Abs(adjusted-0.5) > 0.2 {
		stability = 0.7
	}

	recency := 0.4
	switch {
	case decay >= 0.8:
		recency = 0.8
	case decay >= 0.5:
		recency = 0.6
	}

	alignment := 0.3
	switch lift := ctxMult - 1; {
	case lift >= 0.7:
		alignment = 0.7
	case lift >= 0.4:
		alignment = 0.5
	}

	return (consistency + stability + recency + alignment) / 4
}

func signalTypes(storm *detect.StormInfo, cluster *detect.ClusterInfo) []SignalType {
	var types []SignalType
	if storm != nil {
		types = append(types, SignalStorm)
	}
	if cluster != nil {
		types = append(types, SignalCluster)
	}
	if storm != nil && cluster != nil {
		types = append(types, SignalConvergence)
	}
	if storm != nil && storm.TotalUSD >= reversalStormUSD {
		types = append(types, SignalReversal)
	}
	if cluster != nil && cluster.DominanceRatio >= momentumDominance {
		types = append(types, SignalMomentum)
	}
	return types
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Stats returns a snapshot of engine counters for the status API.
func (e *Engine) Stats() map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	samples := 0
	for _, buf := range e.history {
		samples += len(buf)
	}
	return map[string]interface{}{
		"symbols_tracked": len(e.history),
		"history_samples": samples,
		"contexts_cached": len(e.contexts),
		"scores_computed": e.scored,
	}
}
