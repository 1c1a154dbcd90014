package detect

import (
	"sync"
	"time"

	"futures-radar-bot/config"
	"futures-radar-bot/internal/logging"
	"futures-radar-bot/internal/market"
)

// StormDetector looks for side-homogeneous bursts of liquidations that
// cross the symbol group's USD and count thresholds inside the adaptive
// window.
type StormDetector struct {
	mu sync.Mutex

	agg *market.Aggregator
	cfg config.DetectionConfig

	lastDetect map[string]time.Time
	detections uint64
	suppressed uint64

	now func() time.Time
	log *logging.Logger
}

func NewStormDetector(agg *market.Aggregator, cfg config.DetectionConfig, logger *logging.Logger) *StormDetector {
	if logger == nil {
		logger = logging.Default()
	}
	return &StormDetector{
		agg:        agg,
		cfg:        cfg,
		lastDetect: make(map[string]time.Time),
		now:        time.Now,
		log:        logger.WithComponent("storm-detector"),
	}
}

// Detect runs the cooldown gate and, when open, the storm analysis. Within
// the cooldown it returns nil without touching the buffer. A positive
// detection closes the gate for the group's cooldown.
func (d *StormDetector) Detect(symbol string) *StormInfo {
	limits := d.cfg.LimitsFor(symbol)
	cooldown := time.Duration(limits.StormCooldownSec) * time.Second

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

	d.log.Info("liquidation storm detected",
		"symbol", symbol, "side", string(info.Side),
		"total_usd", info.TotalUSD, "count", info.Count)
	return info
}

// Analyze inspects the symbol's liquidation window without the cooldown
// gate. The radar composes storm and cluster findings through this path.
func (d *StormDetector) Analyze(symbol string) *StormInfo {
	window := d.agg.WindowFor(symbol)
	events := d.agg.LiquidationWindow(symbol, window)
	if len(events) == 0 {
		return nil
	}

	var longUSD, shortUSD float64
	var longCount, shortCount int
	for _, e := range events {
		if e.Side == market.LiqLong {
			longUSD += e.VolUSD
			longCount++
		} else {
			shortUSD += e.VolUSD
			shortCount++
		}
	}

	limits := d.cfg.LimitsFor(symbol)
	longOK := longUSD >= limits.StormMinUSD && longCount >= limits.StormMinCount
	shortOK := shortUSD >= limits.StormMinUSD && shortCount >= limits.StormMinCount

	var side market.LiquidationSide
	var totalUSD float64
	var count int
	switch {
	case longOK && shortOK:
		// Both sides qualify; report the heavier one.
		if longUSD >= shortUSD {
			side, totalUSD, count = market.LiqLong, longUSD, longCount
		} else {
			side, totalUSD, count = market.LiqShort, shortUSD, shortCount
		}
	case longOK:
		side, totalUSD, count = market.LiqLong, longUSD, longCount
	case shortOK:
		side, totalUSD, count = market.LiqShort, shortUSD, shortCount
	default:
		return nil
	}

	return &StormInfo{
		Symbol:        symbol,
		Side:          side,
		TotalUSD:      totalUSD,
		Count:         count,
		WindowSeconds: window.Seconds(),
		DetectTime:    d.now(),
	}
}

// Stats returns a snapshot of detector counters for the status API.
func (d *StormDetector) Stats() map[string]interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return map[string]interface{}{
		"detections":       d.detections,
		"cooldown_entries": len(d.lastDetect),
		"suppressed":       d.suppressed,
	}
}
