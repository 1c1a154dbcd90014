package runner

import (
	"testing"

	"futures-radar-bot/config"
	"futures-radar-bot/internal/logging"
)

func testRunnerConfig() *config.Config {
	cfg := &config.Config{}
	cfg.FeedConfig.Exchange = "Binance"
	cfg.FeedConfig.WatchSymbols = []string{"BTCUSDT", "ETHUSDT"}
	cfg.FeedConfig.TradeMinUSD = 100_000
	cfg.AggregatorConfig.BaseWindowSec = 60
	cfg.AggregatorConfig.MaxWindowSec = 120
	cfg.AggregatorConfig.MaxEventsPerBuffer = 1000
	cfg.AlertConfig.QueueSize = 16
	cfg.AlertConfig.SendTimeoutSec = 1
	return cfg
}

func TestSubscriptionsIncludeLiquidationsAndTrades(t *testing.T) {
	r := New(testRunnerConfig(), logging.Default())

	got := r.subscriptions()
	want := []string{
		"liquidationOrders",
		"futures_trades@Binance@BTCUSDT@100000",
		"futures_trades@Binance@ETHUSDT@100000",
	}
	if len(got) != len(want) {
		t.Fatalf("subscriptions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("subscriptions[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestNewWiresStatusServerOnlyWhenEnabled(t *testing.T) {
	cfg := testRunnerConfig()
	r := New(cfg, logging.Default())
	if r.server != nil {
		t.Fatal("server should be nil when disabled")
	}

	cfg = testRunnerConfig()
	cfg.ServerConfig.Enabled = true
	cfg.ServerConfig.Host = "127.0.0.1"
	cfg.ServerConfig.Port = 0
	r = New(cfg, logging.Default())
	if r.server == nil {
		t.Fatal("server should be built when enabled")
	}
}
