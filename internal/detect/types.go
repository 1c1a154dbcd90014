// Package detect holds the three pattern detectors that scan the
// aggregator: liquidation storms, whale trade clusters, and the composite
// global radar.
package detect

import (
	"time"

	"futures-radar-bot/internal/market"
)

// StormInfo is one qualifying liquidation storm.
type StormInfo struct {
	Symbol        string                 `json:"symbol"`
	Side          market.LiquidationSide `json:"side"`
	TotalUSD      float64                `json:"total_usd"`
	Count         int                    `json:"count"`
	WindowSeconds float64                `json:"window_seconds"`
	DetectTime    time.Time              `json:"detect_time"`
}

// ClusterInfo is one qualifying side-dominated trade cluster.
type ClusterInfo struct {
	Symbol         string           `json:"symbol"`
	TotalBuyUSD    float64          `json:"total_buy_usd"`
	TotalSellUSD   float64          `json:"total_sell_usd"`
	BuyCount       int              `json:"buy_count"`
	SellCount      int              `json:"sell_count"`
	DominantSide   market.TradeSide `json:"dominant_side"`
	DominanceRatio float64          `json:"dominance_ratio"`
	WindowSeconds  float64          `json:"window_seconds"`
	DetectTime     time.Time        `json:"detect_time"`
}

// TotalUSD is the combined buy and sell flow of the cluster.
func (c *ClusterInfo) TotalUSD() float64 {
	return c.TotalBuyUSD + c.TotalSellUSD
}

// Pattern tags which detectors contributed to a radar event.
type Pattern string

const (
	PatternStormOnly   Pattern = "storm_only"
	PatternClusterOnly Pattern = "cluster_only"
	PatternBoth        Pattern = "storm_and_cluster"
	PatternConvergence Pattern = "convergence"
)

// SignalStrength classifies the composite score.
type SignalStrength string

const (
	StrengthWeak     SignalStrength = "weak"
	StrengthModerate SignalStrength = "moderate"
	StrengthStrong   SignalStrength = "strong"
	StrengthExtreme  SignalStrength = "extreme"
)

// VolatilityLevel classifies the summed USD activity behind a radar event.
type VolatilityLevel string

const (
	VolatilityLow     VolatilityLevel = "low"
	VolatilityMedium  VolatilityLevel = "medium"
	VolatilityHigh    VolatilityLevel = "high"
	VolatilityExtreme VolatilityLevel = "extreme"
)

// MarketPressure is the direction the combined flows lean toward.
type MarketPressure string

const (
	PressureBullish MarketPressure = "bullish"
	PressureBearish MarketPressure = "bearish"
	PressureNeutral MarketPressure = "neutral"
)

// RadarEvent is the composite finding for one symbol.
type RadarEvent struct {
	Symbol         string          `json:"symbol"`
	Patterns       []Pattern       `json:"patterns"`
	Storm          *StormInfo      `json:"storm,omitempty"`
	Cluster        *ClusterInfo    `json:"cluster,omitempty"`
	CompositeScore float64         `json:"composite_score"`
	Volatility     VolatilityLevel `json:"volatility"`
	Pressure       MarketPressure  `json:"pressure"`
	SignalStrength SignalStrength  `json:"signal_strength"`
	HighActivity   bool            `json:"high_activity"`
	Summary        string          `json:"summary"`
	DetectTime     time.Time       `json:"detect_time"`
}

// HasPattern reports whether the event carries the given pattern tag.
func (r *RadarEvent) HasPattern(p Pattern) bool {
	for _, got := range r.Patterns {
		if got == p {
			return true
		}
	}
	return false
}
