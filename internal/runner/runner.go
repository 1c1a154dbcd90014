// Package runner wires the feed, aggregator, detectors, scoring, alert
// engine, and status server together and drives the detection loops.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"futures-radar-bot/config"
	"futures-radar-bot/internal/alert"
	"futures-radar-bot/internal/api"
	"futures-radar-bot/internal/auth"
	"futures-radar-bot/internal/detect"
	"futures-radar-bot/internal/feed"
	"futures-radar-bot/internal/logging"
	"futures-radar-bot/internal/market"
	"futures-radar-bot/internal/notification"
	"futures-radar-bot/internal/scoring"
)

// Runner owns the full pipeline lifecycle.
type Runner struct {
	cfg *config.Config
	log *logging.Logger

	agg     *market.Aggregator
	storm   *detect.StormDetector
	cluster *detect.ClusterDetector
	radar   *detect.Radar
	scorer  *scoring.Engine
	alerts  *alert.Engine
	client  *feed.Client
	server  *api.Server

	stopCh    chan struct{}
	fatalCh   chan error
	wg        sync.WaitGroup
	lastSweep time.Time
}

// New builds the pipeline from config. Components are constructed but
// nothing runs until Run.
func New(cfg *config.Config, logger *logging.Logger) *Runner {
	agg := market.NewAggregator(cfg.AggregatorConfig, logger)
	storm := detect.NewStormDetector(agg, cfg.DetectionConfig, logger)
	cluster := detect.NewClusterDetector(agg, cfg.DetectionConfig, logger)
	radar := detect.NewRadar(agg, storm, cluster, cfg.DetectionConfig, logger)
	scorer := scoring.NewEngine(cfg.ScoringConfig, cfg.DetectionConfig, logger)

	manager := notification.NewManager()
	if cfg.NotificationConfig.Enabled {
		if cfg.NotificationConfig.Telegram.Enabled {
			manager.AddSink(notification.NewTelegramSink(cfg.NotificationConfig.Telegram))
		}
		if cfg.NotificationConfig.Redis.Enabled {
			manager.AddSink(notification.NewRedisPublisher(cfg.NotificationConfig.Redis, cfg.RedisConfig))
		}
	}
	alerts := alert.NewEngine(cfg.AlertConfig, cfg.DetectionConfig, manager)

	client := feed.NewClient(cfg.FeedConfig, logger)

	r := &Runner{
		cfg:     cfg,
		log:     logger.WithComponent("runner"),
		agg:     agg,
		storm:   storm,
		cluster: cluster,
		radar:   radar,
		scorer:  scorer,
		alerts:  alerts,
		client:  client,
		stopCh:  make(chan struct{}),
		fatalCh: make(chan error, 1),
	}

	client.SetLiquidationHandler(func(ev market.LiquidationEvent) {
		agg.AddLiquidation(ev)
		alerts.PublishLiquidation(&ev)
	})
	client.SetTradeHandler(func(ev market.TradeEvent) {
		agg.AddTrade(ev)
		alerts.PublishTrade(&ev)
	})
	client.SetTerminalHandler(func(err error) {
		select {
		case r.fatalCh <- err:
		default:
		}
	})

	if cfg.ServerConfig.Enabled {
		var authManager *auth.Manager
		if cfg.AuthConfig.Enabled {
			authManager = auth.NewManager(cfg.AuthConfig.JWTSecret, cfg.AuthConfig.TokenTTL)
		}
		r.server = api.NewServer(cfg.ServerConfig, authManager, map[string]api.StatsProvider{
			"feed":       client,
			"aggregator": agg,
			"storm":      storm,
			"cluster":    cluster,
			"radar":      radar,
			"scoring":    scorer,
			"alert":      alerts,
			"sinks":      manager,
		})
	}

	return r
}

// Run starts every component and blocks until ctx is cancelled or the
// feed reports a terminal error.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("starting radar pipeline",
		"exchange", r.cfg.FeedConfig.Exchange,
		"watch_symbols", len(r.cfg.FeedConfig.WatchSymbols))

	r.alerts.Start()

	if r.server != nil {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := r.server.Start(); err != nil {
				r.log.Error("status server failed", "error", err.Error())
			}
		}()
	}

	if err := r.client.Start(); err != nil {
		r.alerts.Stop()
		return fmt.Errorf("feed start: %w", err)
	}

	for _, ch := range r.subscriptions() {
		if err := r.client.Subscribe(ch); err != nil {
			r.log.Error("subscribe failed", "channel", ch, "error", err.Error())
		}
	}

	r.alerts.PublishSystem(fmt.Sprintf("Futures radar online: %s, %d symbols watched",
		r.cfg.FeedConfig.Exchange, len(r.cfg.FeedConfig.WatchSymbols)))

	scanEvery := secondsOr(r.cfg.DetectionConfig.ScanIntervalSec, 5*time.Second)
	memCheckEvery := secondsOr(r.cfg.AggregatorConfig.MemoryCheckIntervalSec, 30*time.Second)
	r.startLoop("storm", scanEvery, r.stormTick)
	r.startLoop("cluster", scanEvery, r.clusterTick)
	r.startLoop("radar", scanEvery, r.radarTick)
	r.startLoop("janitor", memCheckEvery, r.janitorTick)

	var cause error
	select {
	case <-ctx.Done():
		r.log.Info("shutdown signal received")
	case err := <-r.fatalCh:
		r.log.Error("feed terminal error", "error", err.Error())
		cause = err
	}

	r.shutdown()
	return cause
}

// subscriptions builds the default channel list: the global liquidation
// stream plus one filtered trade channel per watched symbol.
func (r *Runner) subscriptions() []string {
	out := []string{feed.ChannelLiquidations}
	for _, sym := range r.cfg.FeedConfig.WatchSymbols {
		out = append(out, feed.TradeChannel(r.cfg.FeedConfig.Exchange, sym, r.cfg.FeedConfig.TradeMinUSD))
	}
	return out
}

func (r *Runner) startLoop(name string, interval time.Duration, tick func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.safeTick(name, tick)
			case <-r.stopCh:
				return
			}
		}
	}()
}

// safeTick runs one loop iteration, recovering panics so a bad symbol
// never kills the loop.
func (r *Runner) safeTick(name string, tick func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("loop iteration panicked", "loop", name, "panic", fmt.Sprint(rec))
		}
	}()
	tick()
}

func (r *Runner) activeWindow() time.Duration {
	return secondsOr(r.cfg.DetectionConfig.ActiveWindowSec, 30*time.Second)
}

func (r *Runner) stormTick() {
	for _, sym := range r.agg.ActiveLiquidationSymbols(r.activeWindow()) {
		if info := r.storm.Detect(sym); info != nil {
			r.alerts.PublishStorm(info)
		}
	}
}

func (r *Runner) clusterTick() {
	for _, sym := range r.agg.ActiveTradeSymbols(r.activeWindow()) {
		if info := r.cluster.Detect(sym); info != nil {
			r.alerts.PublishCluster(info)
		}
	}
}

func (r *Runner) radarTick() {
	scanEvery := secondsOr(r.cfg.DetectionConfig.ScanIntervalSec, 5*time.Second)
	for _, sym := range r.agg.ActiveSymbols(r.activeWindow()) {
		// Feed the scoring history from the freshest trades so market
		// context stays current even when nothing fires.
		for _, ev := range r.agg.TradeWindow(sym, scanEvery) {
			r.scorer.RecordSample(sym, ev.VolUSD, ev.Price)
		}

		ev := r.radar.Evaluate(sym)
		if ev == nil {
			continue
		}
		score := r.scorer.Score(sym, ev.Storm, ev.Cluster, time.Now())
		r.alerts.PublishRadar(ev, score)
	}
}

func (r *Runner) janitorTick() {
	r.agg.CheckMemoryPressure()

	sweepEvery := secondsOr(r.cfg.AggregatorConfig.SweepIntervalSec, 5*time.Minute)
	if time.Since(r.lastSweep) >= sweepEvery {
		r.lastSweep = time.Now()
		maxWindow := time.Duration(r.cfg.AggregatorConfig.MaxWindowSec) * time.Second
		removed := r.agg.ClearOlderThan(2 * maxWindow)
		if removed > 0 {
			r.log.Debug("janitor sweep", "removed", removed)
		}
	}
}

func secondsOr(sec int, fallback time.Duration) time.Duration {
	if sec <= 0 {
		return fallback
	}
	return time.Duration(sec) * time.Second
}

// shutdown tears the pipeline down in dependency order: loops first so
// nothing publishes into a stopping engine, then the feed, then a final
// system message, then the alert flush and the HTTP server.
func (r *Runner) shutdown() {
	close(r.stopCh)
	r.client.Stop()

	r.alerts.PublishSystem("Futures radar shutting down")
	r.alerts.Stop()

	if r.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		r.server.Shutdown(ctx)
		cancel()
	}

	r.wg.Wait()
	r.log.Info("radar pipeline stopped")
}
