package detect

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"futures-radar-bot/config"
	"futures-radar-bot/internal/logging"
	"futures-radar-bot/internal/market"
)

// Radar composes the cooldown-free storm and cluster analyses for one
// symbol into a single scored event. It owns its own per-symbol cooldown,
// shortened for symbols with heavy recent trade flow.
type Radar struct {
	mu sync.Mutex

	agg     *market.Aggregator
	storm   *StormDetector
	cluster *ClusterDetector
	cfg     config.DetectionConfig

	lastDetect map[string]time.Time
	detections uint64
	suppressed uint64

	now func() time.Time
	log *logging.Logger
}

func NewRadar(agg *market.Aggregator, storm *StormDetector, cluster *ClusterDetector, cfg config.DetectionConfig, logger *logging.Logger) *Radar {
	if logger == nil {
		logger = logging.Default()
	}
	return &Radar{
		agg:        agg,
		storm:      storm,
		cluster:    cluster,
		cfg:        cfg,
		lastDetect: make(map[string]time.Time),
		now:        time.Now,
		log:        logger.WithComponent("radar"),
	}
}

// Evaluate scores the symbol's current storm and cluster state and emits a
// RadarEvent when the composite clears the admission bar. Within the
// cooldown it returns nil without running either analysis.
func (r *Radar) Evaluate(symbol string) *RadarEvent {
	activityWindow := time.Duration(r.cfg.RadarActivityWindowSec) * time.Second
	highActivity := r.agg.TradeCount(symbol, activityWindow) > r.cfg.RadarHighActivityTrades

	cooldownSec := r.cfg.RadarCooldownSec
	if highActivity {
		cooldownSec = r.cfg.RadarHighActivityCooldownSec
	}
	cooldown := time.Duration(cooldownSec) * time.Second

	r.mu.Lock()
	if last, ok := r.lastDetect[symbol]; ok && r.now().Sub(last) < cooldown {
		r.suppressed++
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	storm := r.storm.Analyze(symbol)
	cluster := r.cluster.Analyze(symbol)
	if storm == nil && cluster == nil {
		return nil
	}

	limits := r.cfg.LimitsFor(symbol)

	var vStorm, vCluster float64
	if storm != nil {
		vStorm = storm.TotalUSD / limits.StormMinUSD
	}
	if cluster != nil {
		vCluster = cluster.TotalUSD() / limits.ClusterMinUSD
	}

	score := capAt(vStorm/3, 0.5) + capAt(vCluster/3, 0.5)

	var patterns []Pattern
	switch {
	case storm != nil && cluster != nil:
		patterns = append(patterns, PatternBoth)
		score += limits.ConvergenceBonus
		if vStorm >= r.cfg.RadarConvergenceMinRatio && vCluster >= r.cfg.RadarConvergenceMinRatio {
			patterns = append(patterns, PatternConvergence)
		}
	case storm != nil:
		patterns = append(patterns, PatternStormOnly)
	default:
		patterns = append(patterns, PatternClusterOnly)
	}
	if score > 1 {
		score = 1
	}

	singlePattern := storm == nil || cluster == nil
	admitted := score >= limits.RadarMinScore ||
		(singlePattern && score >= r.cfg.RadarSinglePatternMinScore)
	if !admitted {
		return nil
	}

	ev := &RadarEvent{
		Symbol:         symbol,
		Patterns:       patterns,
		Storm:          storm,
		Cluster:        cluster,
		CompositeScore: score,
		Volatility:     classifyVolatility(storm, cluster),
		Pressure:       classifyPressure(storm, cluster),
		SignalStrength: classifyStrength(score, hasPattern(patterns, PatternConvergence)),
		HighActivity:   highActivity,
		DetectTime:     r.now(),
	}
	ev.Summary = buildSummary(ev)

	r.mu.Lock()
	r.lastDetect[symbol] = r.now()
	r.detections++
	r.mu.Unlock()

	r.log.Info("radar event",
		"symbol", symbol, "score", score,
		"strength", string(ev.SignalStrength), "pressure", string(ev.Pressure))
	return ev
}

func capAt(v, max float64) float64 {
	if v > max {
		return max
	}
	return v
}

func hasPattern(patterns []Pattern, p Pattern) bool {
	for _, got := range patterns {
		if got == p {
			return true
		}
	}
	return false
}

func classifyStrength(score float64, convergence bool) SignalStrength {
	switch {
	case score >= 0.8 || convergence:
		return StrengthExtreme
	case score >= 0.6:
		return StrengthStrong
	case score >= 0.4:
		return StrengthModerate
	default:
		return StrengthWeak
	}
}

// classifyVolatility buckets the summed storm and cluster flow.
func classifyVolatility(storm *StormInfo, cluster *ClusterInfo) VolatilityLevel {
	total := 0.0
	if storm != nil {
		total += storm.TotalUSD
	}
	if cluster != nil {
		total += cluster.TotalUSD()
	}
	switch {
	case total >= 10_000_000:
		return VolatilityExtreme
	case total >= 5_000_000:
		return VolatilityHigh
	case total >= 2_000_000:
		return VolatilityMedium
	default:
		return VolatilityLow
	}
}

// classifyPressure weighs the directional reading of each finding. Shorts
// getting liquidated and buy-dominated flow lean bullish; the mirror
// combination leans bearish. One side must outweigh the other 1.5x before
// the reading leaves neutral.
func classifyPressure(storm *StormInfo, cluster *ClusterInfo) MarketPressure {
	var bullish, bearish float64

	if storm != nil {
		if storm.Side == market.LiqShort {
			bullish += storm.TotalUSD
		} else {
			bearish += storm.TotalUSD
		}
	}
	if cluster != nil {
		if cluster.DominantSide == market.TradeBuy {
			bullish += cluster.TotalBuyUSD * cluster.DominanceRatio
		} else {
			bearish += cluster.TotalSellUSD * cluster.DominanceRatio
		}
	}

	switch {
	case bullish > 1.5*bearish:
		return PressureBullish
	case bearish > 1.5*bullish:
		return PressureBearish
	default:
		return PressureNeutral
	}
}

func buildSummary(ev *RadarEvent) string {
	var parts []string
	if ev.Storm != nil {
		parts = append(parts, fmt.Sprintf("%s liq storm %s x%d",
			strings.ToLower(ev.Storm.Side.Label()), fmtUSD(ev.Storm.TotalUSD), ev.Storm.Count))
	}
	if ev.Cluster != nil {
		parts = append(parts, fmt.Sprintf("%s-dominated whale flow %s (%.0f%%)",
			strings.ToLower(string(ev.Cluster.DominantSide)), fmtUSD(ev.Cluster.TotalUSD()),
			ev.Cluster.DominanceRatio*100))
	}
	return fmt.Sprintf("%s: %s, %s pressure, score %.2f",
		ev.Symbol, strings.Join(parts, " + "), string(ev.Pressure), ev.CompositeScore)
}

func fmtUSD(v float64) string {
	switch {
	case v >= 1_000_000:
		return fmt.Sprintf("$%.1fM", v/1_000_000)
	case v >= 1_000:
		return fmt.Sprintf("$%.0fK", v/1_000)
	default:
		return fmt.Sprintf("$%.0f", v)
	}
}

// Stats returns a snapshot of radar counters for the status API.
func (r *Radar) Stats() map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return map[string]interface{}{
		"detections":       r.detections,
		"cooldown_entries": len(r.lastDetect),
		"suppressed":       r.suppressed,
	}
}
