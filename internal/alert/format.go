package alert

import (
	"fmt"
	"strings"
	"time"

	"futures-radar-bot/internal/detect"
	"futures-radar-bot/internal/market"
	"futures-radar-bot/internal/scoring"
)

// FormatUSD renders a notional for chat messages: $X.YM above one
// million, $XK above one thousand, whole dollars below.
func FormatUSD(v float64) string {
	switch {
	case v >= 1_000_000:
		return fmt.Sprintf("$%.1fM", v/1_000_000)
	case v >= 1_000:
		return fmt.Sprintf("$%.0fK", v/1_000)
	default:
		return fmt.Sprintf("$%.0f", v)
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format("15:04:05 UTC")
}

func formatLiquidation(ev *market.LiquidationEvent) string {
	icon := "🔴"
	if ev.Side == market.LiqShort {
		icon = "🟢"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s liquidation on %s\n", icon, ev.Side.Label(), ev.Symbol)
	fmt.Fprintf(&b, "Amount: %s @ %s\n", FormatUSD(ev.VolUSD), formatPrice(ev.Price))
	fmt.Fprintf(&b, "Exchange: %s\n", ev.Exchange)
	fmt.Fprintf(&b, "Time: %s", formatTime(ev.EventTime))
	return b.String()
}

func formatTrade(ev *market.TradeEvent) string {
	icon := "🟩"
	if ev.Side == market.TradeSell {
		icon = "🟥"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s Whale %s on %s\n", icon, ev.Side, ev.Symbol)
	fmt.Fprintf(&b, "Amount: %s @ %s\n", FormatUSD(ev.VolUSD), formatPrice(ev.Price))
	fmt.Fprintf(&b, "Exchange: %s\n", ev.Exchange)
	fmt.Fprintf(&b, "Time: %s", formatTime(ev.EventTime))
	return b.String()
}

func formatStorm(s *detect.StormInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⚡ LIQUIDATION STORM: %s\n", s.Symbol)
	fmt.Fprintf(&b, "Side: %s\n", s.Side.Label())
	fmt.Fprintf(&b, "Total: %s across %d liquidations in %.0fs\n", FormatUSD(s.TotalUSD), s.Count, s.WindowSeconds)
	fmt.Fprintf(&b, "Time: %s", formatTime(s.DetectTime))
	return b.String()
}

func formatCluster(c *detect.ClusterInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🐋 WHALE CLUSTER: %s\n", c.Symbol)
	fmt.Fprintf(&b, "Dominant: %s (%.0f%% of flow)\n", c.DominantSide, c.DominanceRatio*100)
	fmt.Fprintf(&b, "Buys: %s (%d)  Sells: %s (%d)\n",
		FormatUSD(c.TotalBuyUSD), c.BuyCount, FormatUSD(c.TotalSellUSD), c.SellCount)
	fmt.Fprintf(&b, "Window: %.0fs\n", c.WindowSeconds)
	fmt.Fprintf(&b, "Time: %s", formatTime(c.DetectTime))
	return b.String()
}

func formatRadar(ev *detect.RadarEvent, score *scoring.EnhancedScore) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📡 GLOBAL RADAR: %s\n", ev.Symbol)
	fmt.Fprintf(&b, "Score: %.2f (%s)\n", ev.CompositeScore, ev.SignalStrength)
	fmt.Fprintf(&b, "Volatility: %s  Pressure: %s\n", ev.Volatility, ev.Pressure)
	fmt.Fprintf(&b, "%s\n", ev.Summary)

	if ev.Storm != nil {
		fmt.Fprintf(&b, "\nStorm: %s %s, %d events\n",
			FormatUSD(ev.Storm.TotalUSD), ev.Storm.Side.Label(), ev.Storm.Count)
	}
	if ev.Cluster != nil {
		fmt.Fprintf(&b, "\nCluster: %s total, %s dominant (%.0f%%)\n",
			FormatUSD(ev.Cluster.TotalUSD()), ev.Cluster.DominantSide, ev.Cluster.DominanceRatio*100)
	}

	if score != nil {
		fmt.Fprintf(&b, "\nEnhanced: %.2f  Confidence: %.0f%%\n", score.FinalScore, score.Confidence*100)
		if len(score.SignalTypes) > 0 {
			tags := make([]string, len(score.SignalTypes))
			for i, t := range score.SignalTypes {
				tags[i] = string(t)
			}
			fmt.Fprintf(&b, "Tags: %s\n", strings.Join(tags, ", "))
		}
	}

	fmt.Fprintf(&b, "Time: %s", formatTime(ev.DetectTime))
	return b.String()
}

func formatPrice(p float64) string {
	if p >= 1 {
		return fmt.Sprintf("$%.2f", p)
	}
	return fmt.Sprintf("$%.6f", p)
}
