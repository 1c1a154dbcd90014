// Package market holds the canonical futures-market event types and the
// rolling-window aggregator the detectors read from.
package market

import "time"

// LiquidationSide tells which position side was force-closed.
type LiquidationSide string

const (
	LiqLong  LiquidationSide = "LONG_LIQ"  // long positions liquidated (forced sell absorbed by buyers)
	LiqShort LiquidationSide = "SHORT_LIQ" // short positions liquidated
)

func (s LiquidationSide) Valid() bool {
	return s == LiqLong || s == LiqShort
}

// Label returns the human-readable form used in alert messages.
func (s LiquidationSide) Label() string {
	if s == LiqLong {
		return "Long"
	}
	return "Short"
}

// TradeSide is the aggressor side of a large futures trade.
type TradeSide string

const (
	TradeBuy  TradeSide = "BUY"
	TradeSell TradeSide = "SELL"
)

func (s TradeSide) Valid() bool {
	return s == TradeBuy || s == TradeSell
}

// LiquidationEvent is one forced-close order reported by the upstream feed.
type LiquidationEvent struct {
	Symbol     string          `json:"symbol"`
	BaseAsset  string          `json:"base_asset"`
	Exchange   string          `json:"exchange"`
	Price      float64         `json:"price"`
	VolUSD     float64         `json:"vol_usd"`
	Side       LiquidationSide `json:"side"`
	EventTime  time.Time       `json:"event_time"`
	IngestTime time.Time       `json:"ingest_time"`
}

// TradeEvent is one large futures trade above the feed's USD filter.
type TradeEvent struct {
	Symbol     string    `json:"symbol"`
	BaseAsset  string    `json:"base_asset"`
	Exchange   string    `json:"exchange"`
	Price      float64   `json:"price"`
	VolUSD     float64   `json:"vol_usd"`
	Side       TradeSide `json:"side"`
	EventTime  time.Time `json:"event_time"`
	IngestTime time.Time `json:"ingest_time"`
}

// PressureLevel classifies sampled memory usage against the configured limit.
type PressureLevel string

const (
	PressureLow      PressureLevel = "low"
	PressureMedium   PressureLevel = "medium"
	PressureHigh     PressureLevel = "high"
	PressureCritical PressureLevel = "critical"
)
