package detect

import (
	"sync"
	"time"

	"futures-radar-bot/config"
	"futures-radar-bot/internal/logging"
	"futures-radar-bot/internal/market"
)

// ClusterDetector looks for one-sided bursts of large trades. Volume and
// count alone are not enough: the dominant side must carry at least the
// group's dominance share, so balanced two-way flow never qualifies.
type ClusterDetector struct {
	mu sync.Mutex

	agg *market.Aggregator
	cfg config.DetectionConfig

	lastDetect map[string]time.Time
	detections uint64
	suppressed uint64

	now func() time.Time
	log *logging.Logger
}

func NewClusterDetector(agg *market.Aggregator, cfg config.DetectionConfig, logger *logging.Logger) *ClusterDetector {
	if logger == nil {
		logger = logging.Default()
	}
	return &ClusterDetector{
		agg:        agg,
		cfg:        cfg,
		lastDetect: make(map[string]time.Time),
		now:        time.Now,
		log:        logger.WithComponent("cluster-detector"),
	}
}

// Detect runs the cooldown gate and, when open, the cluster analysis.
func (d *ClusterDetector) Detect(symbol string) *ClusterInfo {
	limits := d.cfg.LimitsFor(symbol)
	cooldown := time.Duration(limits.ClusterCooldownSec) * time.Second

	d.mu.Lock()
	if last, ok := d.lastDetect[symbol]; ok && d.now().Sub(last) < cooldown {
		d.suppressed++
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	info := d.Analyze(symbol)
	if info == nil {
		return nil
	}

	d.mu.Lock()
	d.lastDetect[symbol] = d.now()
	d.detections++
	d.mu.Unlock()

	d.log.Info("whale cluster detected",
		"symbol", symbol, "dominant_side", string(info.DominantSide),
		"total_usd", info.TotalUSD(), "dominance", info.DominanceRatio)
	return info
}

// Analyze inspects the symbol's trade window without the cooldown gate.
func (d *ClusterDetector) Analyze(symbol string) *ClusterInfo {
	window := d.agg.WindowFor(symbol)
	trades := d.agg.TradeWindow(symbol, window)
	if len(trades) == 0 {
		return nil
	}

	var buyUSD, sellUSD float64
	var buyCount, sellCount int
	for _, t := range trades {
		if t.Side == market.TradeBuy {
			buyUSD += t.VolUSD
			buyCount++
		} else {
			sellUSD += t.VolUSD
			sellCount++
		}
	}

	limits := d.cfg.LimitsFor(symbol)
	totalUSD := buyUSD + sellUSD
	if totalUSD < limits.ClusterMinUSD {
		return nil
	}
	if buyCount+sellCount < limits.ClusterMinCount {
		return nil
	}

	dominantUSD := buyUSD
	dominantSide := market.TradeBuy
	if sellUSD > buyUSD {
		dominantUSD = sellUSD
		dominantSide = market.TradeSell
	}
	dominance := dominantUSD / totalUSD
	if dominance < limits.ClusterMinDominance {
		return nil
	}

	return &ClusterInfo{
		Symbol:         symbol,
		TotalBuyUSD:    buyUSD,
		TotalSellUSD:   sellUSD,
		BuyCount:       buyCount,
		SellCount:      sellCount,
		DominantSide:   dominantSide,
		DominanceRatio: dominance,
		WindowSeconds:  window.Seconds(),
		DetectTime:     d.now(),
	}
}

// Stats returns a snapshot of detector counters for the status API.
func (d *ClusterDetector) Stats() map[string]interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return map[string]interface{}{
		"detections":       d.detections,
		"cooldown_entries": len(d.lastDetect),
		"suppressed":       d.suppressed,
	}
}
