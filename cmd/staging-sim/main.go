// staging-sim replays canned market scenarios through the full
// detection pipeline with a console sink, so the formatting and gating
// behavior can be eyeballed without a live feed.
package main

import (
	"fmt"
	"time"

	"futures-radar-bot/config"
	"futures-radar-bot/internal/alert"
	"futures-radar-bot/internal/detect"
	"futures-radar-bot/internal/logging"
	"futures-radar-bot/internal/market"
	"futures-radar-bot/internal/notification"
	"futures-radar-bot/internal/scoring"
)

type sim struct {
	agg     *market.Aggregator
	storm   *detect.StormDetector
	cluster *detect.ClusterDetector
	radar   *detect.Radar
	scorer  *scoring.Engine
	alerts  *alert.Engine
}

func newSim(cfg *config.Config, logger *logging.Logger) *sim {
	agg := market.NewAggregator(cfg.AggregatorConfig, logger)
	storm := detect.NewStormDetector(agg, cfg.DetectionConfig, logger)
	cluster := detect.NewClusterDetector(agg, cfg.DetectionConfig, logger)

	manager := notification.NewManager()
	manager.AddSink(notification.NewConsoleSink())
	alerts := alert.NewEngine(cfg.AlertConfig, cfg.DetectionConfig, manager)

	return &sim{
		agg:     agg,
		storm:   storm,
		cluster: cluster,
		radar:   detect.NewRadar(agg, storm, cluster, cfg.DetectionConfig, logger),
		scorer:  scoring.NewEngine(cfg.ScoringConfig, cfg.DetectionConfig, logger),
		alerts:  alerts,
	}
}

func (s *sim) liq(symbol string, usd float64, side market.LiquidationSide) {
	s.agg.AddLiquidation(market.LiquidationEvent{
		Symbol: symbol, BaseAsset: symbol[:3], Exchange: "Binance",
		Price: 100, VolUSD: usd, Side: side, EventTime: time.Now(),
	})
}

func (s *sim) trade(symbol string, usd float64, side market.TradeSide) {
	s.agg.AddTrade(market.TradeEvent{
		Symbol: symbol, BaseAsset: symbol[:3], Exchange: "Binance",
		Price: 100, VolUSD: usd, Side: side, EventTime: time.Now(),
	})
	s.scorer.RecordSample(symbol, usd, 100)
}

func banner(name string) {
	fmt.Printf("=== %s ===\n", name)
}

func main() {
	cfg := config.Defaults()
	logger := logging.New(&logging.Config{Level: "WARN", Output: "stderr", Component: "staging-sim"})
	logging.SetDefault(logger)

	s := newSim(cfg, logger)
	s.alerts.Start()
	defer s.alerts.Stop()

	banner("A: BTCUSDT short-liquidation storm (2.6M across 4 events)")
	for _, usd := range []float64{800_000, 700_000, 600_000, 500_000} {
		s.liq("BTCUSDT", usd, market.LiqShort)
	}
	if info := s.storm.Detect("BTCUSDT"); info != nil {
		s.alerts.PublishStorm(info)
	}

	banner("B: XRPUSDT sell-dominated whale cluster")
	s.trade("XRPUSDT", 800_000, market.TradeSell)
	s.trade("XRPUSDT", 700_000, market.TradeSell)
	s.trade("XRPUSDT", 200_000, market.TradeBuy)
	if info := s.cluster.Detect("XRPUSDT"); info != nil {
		s.alerts.PublishCluster(info)
	}

	banner("C: balanced BTCUSDT flow, no cluster expected")
	s.trade("BTCUSDT", 1_000_000, market.TradeBuy)
	s.trade("BTCUSDT", 1_000_000, market.TradeSell)
	if info := s.cluster.Detect("BTCUSDT"); info != nil {
		s.alerts.PublishCluster(info)
	} else {
		fmt.Println("(no cluster, as expected)")
	}

	banner("D: ETHUSDT storm + cluster convergence")
	for i := 0; i < 10; i++ {
		s.liq("ETHUSDT", 500_000, market.LiqShort)
	}
	for i := 0; i < 9; i++ {
		s.trade("ETHUSDT", 1_000_000, market.TradeBuy)
	}
	if ev := s.radar.Evaluate("ETHUSDT"); ev != nil {
		score := s.scorer.Score("ETHUSDT", ev.Storm, ev.Cluster, time.Now())
		s.alerts.PublishRadar(ev, score)
	}

	banner("E: repeat of A inside the cooldown, expect silence")
	s.liq("BTCUSDT", 900_000, market.LiqShort)
	if info := s.storm.Detect("BTCUSDT"); info != nil {
		s.alerts.PublishStorm(info)
	} else {
		fmt.Println("(suppressed by cooldown, as expected)")
	}

	// Let the dispatcher drain before the deferred Stop.
	time.Sleep(500 * time.Millisecond)
}
