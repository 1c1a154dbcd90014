package scoring

import (
	"math"
	"time"
)

// Regime tags the broad behaviour of a symbol's recent prices.
type Regime string

const (
	RegimeBullMomentum Regime = "bull_momentum"
	RegimeBearMomentum Regime = "bear_momentum"
	RegimeVolatile     Regime = "volatile"
	RegimeRanging      Regime = "ranging"
)

// Price-change fraction over the retained history that flags momentum, and
// the coefficient of variation that flags a volatile regime.
const (
	momentumChange = 0.02
	volatileCV     = 0.015
)

// volumeShareWindow is the lookback for the symbol's share of market-wide
// volume.
const volumeShareWindow = 5 * time.Minute

// MarketContext is the cached per-symbol market snapshot the scoring
// pipeline multiplies against.
type MarketContext struct {
	Regime          Regime    `json:"regime"`
	VolatilityIndex float64   `json:"volatility_index"`
	VolumeIndex     float64   `json:"volume_index"`
	VolumeShare     float64   `json:"volume_share"`
	ComputedAt      time.Time `json:"computed_at"`
}

// contextFor returns the symbol's market context, recomputing it only when
// the cached copy has outlived its TTL.
func (e *Engine) contextFor(symbol string, now time.Time) *MarketContext {
	ttl := time.Duration(e.cfg.ContextTTLSec) * time.Second

	e.mu.Lock()
	defer e.mu.Unlock()

	if cached, ok := e.contexts[symbol]; ok && now.Sub(cached.ComputedAt) < ttl {
		return cached
	}

	mctx := e.computeContextLocked(symbol, now)
	e.contexts[symbol] = mctx
	return mctx
}

func (e *Engine) computeContextLocked(symbol string, now time.Time) *MarketContext {
	mctx := &MarketContext{
		Regime:     RegimeRanging,
		ComputedAt: now,
	}

	buf := e.history[symbol]
	if len(buf) >= 2 {
		prices := make([]float64, len(buf))
		for i, s := range buf {
			prices[i] = s.price
		}
		cv := coefficientOfVariation(prices)
		mctx.VolatilityIndex = clamp01(cv * 10)

		change := (prices[len(prices)-1] - prices[0]) / prices[0]
		switch {
		case change > momentumChange:
			mctx.Regime = RegimeBullMomentum
		case change < -momentumChange:
			mctx.Regime = RegimeBearMomentum
		case cv > volatileCV:
			mctx.Regime = RegimeVolatile
		}
	}

	// Market-wide volume dispersion and this symbol's share of flow over
	// the last few minutes.
	shareCutoff := now.Add(-volumeShareWindow)
	var symbolVolume, marketVolume float64
	var allVolumes []float64
	for sym, samples := range e.history {
		symTotal := 0.0
		for _, s := range samples {
			if s.ts.Before(shareCutoff) {
				continue
			}
			symTotal += s.volumeUSD
		}
		if symTotal == 0 {
			continue
		}
		allVolumes = append(allVolumes, symTotal)
		marketVolume += symTotal
		if sym == symbol {
			symbolVolume = symTotal
		}
	}
	if marketVolume > 0 {
		mctx.VolumeShare = symbolVolume / marketVolume
	}
	if len(allVolumes) >= 2 {
		mctx.VolumeIndex = clamp01(coefficientOfVariation(allVolumes))
	}

	return mctx
}

func coefficientOfVariation(values []float64) float64 {
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	if mean == 0 {
		return 0
	}

	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))

	return math.Sqrt(variance) / mean
}
