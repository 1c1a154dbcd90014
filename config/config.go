package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	FeedConfig         FeedConfig         `json:"feed"`
	AggregatorConfig   AggregatorConfig   `json:"aggregator"`
	DetectionConfig    DetectionConfig    `json:"detection"`
	ScoringConfig      ScoringConfig      `json:"scoring"`
	AlertConfig        AlertConfig        `json:"alerts"`
	NotificationConfig NotificationConfig `json:"notification"`
	ServerConfig       ServerConfig       `json:"server"`
	AuthConfig         AuthConfig         `json:"auth"`
	VaultConfig        VaultConfig        `json:"vault"`
	RedisConfig        RedisConfig        `json:"redis"`
	LoggingConfig      LoggingConfig      `json:"logging"`
}

// FeedConfig holds the upstream websocket feed settings.
type FeedConfig struct {
	URL                  string   `json:"url"`
	APIKey               string   `json:"api_key"`
	Exchange             string   `json:"exchange"`
	WatchSymbols         []string `json:"watch_symbols"`
	TradeMinUSD          float64  `json:"trade_min_usd"`
	HeartbeatBaseSec     int      `json:"heartbeat_base_sec"`
	HeartbeatMinSec      int      `json:"heartbeat_min_sec"`
	HeartbeatMaxSec      int      `json:"heartbeat_max_sec"`
	PongTimeoutSec       int      `json:"pong_timeout_sec"`
	ConnectTimeoutSec    int      `json:"connect_timeout_sec"`
	ReconnectBaseSec     int      `json:"reconnect_base_sec"`
	ReconnectMaxDelaySec int      `json:"reconnect_max_delay_sec"`
	ReconnectMaxAttempts int      `json:"reconnect_max_attempts"`
}

// AggregatorConfig bounds the per-symbol event buffers.
type AggregatorConfig struct {
	BaseWindowSec          int `json:"base_window_sec"`
	MinWindowSec           int `json:"min_window_sec"`
	MaxWindowSec           int `json:"max_window_sec"`
	MaxEventsPerBuffer     int `json:"max_events_per_buffer"`
	MemoryLimitMB          int `json:"memory_limit_mb"`
	AdjustIntervalSec      int `json:"adjust_interval_sec"`
	MemoryCheckIntervalSec int `json:"memory_check_interval_sec"`
	SweepIntervalSec       int `json:"sweep_interval_sec"`
}

// SymbolGroup classifies a symbol for threshold lookup.
type SymbolGroup string

const (
	GroupMajors   SymbolGroup = "MAJORS"
	GroupLargeCap SymbolGroup = "LARGE_CAP"
	GroupMidCap   SymbolGroup = "MID_CAP"
)

// GroupLimits holds every numeric limit for one symbol group.
type GroupLimits struct {
	StormMinUSD         float64 `json:"storm_min_usd"`
	StormMinCount       int     `json:"storm_min_count"`
	StormCooldownSec    int     `json:"storm_cooldown_sec"`
	ClusterMinUSD       float64 `json:"cluster_min_usd"`
	ClusterMinCount     int     `json:"cluster_min_count"`
	ClusterMinDominance float64 `json:"cluster_min_dominance"`
	ClusterCooldownSec  int     `json:"cluster_cooldown_sec"`
	RadarMinScore       float64 `json:"radar_min_score"`
	ConvergenceBonus    float64 `json:"convergence_bonus"`
	LiqAlertMinUSD      float64 `json:"liq_alert_min_usd"`
	WhaleAlertMinUSD    float64 `json:"whale_alert_min_usd"`
	ItemCooldownSec     int     `json:"item_cooldown_sec"`
}

// DetectionConfig holds symbol-group membership and per-group limits.
type DetectionConfig struct {
	Majors         []string    `json:"majors"`
	LargeCaps      []string    `json:"large_caps"`
	MajorsLimits   GroupLimits `json:"majors_limits"`
	LargeCapLimits GroupLimits `json:"large_cap_limits"`
	MidCapLimits   GroupLimits `json:"mid_cap_limits"`

	ScanIntervalSec              int     `json:"scan_interval_sec"`
	ActiveWindowSec              int     `json:"active_window_sec"`
	RadarCooldownSec             int     `json:"radar_cooldown_sec"`
	RadarHighActivityCooldownSec int     `json:"radar_high_activity_cooldown_sec"`
	RadarHighActivityTrades      int     `json:"radar_high_activity_trades"`
	RadarActivityWindowSec       int     `json:"radar_activity_window_sec"`
	RadarSinglePatternMinScore   float64 `json:"radar_single_pattern_min_score"`
	RadarConvergenceMinRatio     float64 `json:"radar_convergence_min_ratio"`
}

// ScoringConfig holds the enhanced scoring weights and context settings.
type ScoringConfig struct {
	StormWeight          float64 `json:"storm_weight"`
	ClusterWeight        float64 `json:"cluster_weight"`
	ConvergenceWeight    float64 `json:"convergence_weight"`
	ShortLiqSideWeight   float64 `json:"short_liq_side_weight"`
	DecayLambdaPerMin    float64 `json:"decay_lambda_per_min"`
	RecencyBonus         float64 `json:"recency_bonus"`
	RecencyWindowMin     float64 `json:"recency_window_min"`
	ContextTTLSec        int     `json:"context_ttl_sec"`
	HistoryRetentionSec  int     `json:"history_retention_sec"`
	HistoryMaxSamples    int     `json:"history_max_samples"`
	VolumeShareThreshold float64 `json:"volume_share_threshold"`
}

// AlertConfig holds alert-engine cooldowns and dispatch pacing.
type AlertConfig struct {
	StormCooldownSec             int `json:"storm_cooldown_sec"`
	ClusterCooldownSec           int `json:"cluster_cooldown_sec"`
	RadarCooldownSec             int `json:"radar_cooldown_sec"`
	RadarHighActivityCooldownSec int `json:"radar_high_activity_cooldown_sec"`
	DispatchSpacingMS            int `json:"dispatch_spacing_ms"`
	SendTimeoutSec               int `json:"send_timeout_sec"`
	QueueSize                    int `json:"queue_size"`
	SweepIntervalSec             int `json:"sweep_interval_sec"`
	RecordMaxAgeSec              int `json:"record_max_age_sec"`
}

type NotificationConfig struct {
	Enabled  bool           `json:"enabled"`
	Telegram TelegramConfig `json:"telegram"`
	Redis    RedisSinkConfig `json:"redis"`
}

type TelegramConfig struct {
	Enabled      bool     `json:"enabled"`
	BotToken     string   `json:"bot_token"`
	ChatIDs      []string `json:"chat_ids"`
	APIBaseURL   string   `json:"api_base_url"`
	MaxPerMinute int      `json:"max_per_minute"`
}

// RedisSinkConfig mirrors dispatched alerts onto a pub/sub channel.
type RedisSinkConfig struct {
	Enabled bool   `json:"enabled"`
	Channel string `json:"channel"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// ServerConfig holds the status API server settings.
type ServerConfig struct {
	Enabled        bool   `json:"enabled"`
	Host           string `json:"host"`
	Port           int    `json:"port"`
	ProductionMode bool   `json:"production_mode"`
}

type AuthConfig struct {
	Enabled   bool          `json:"enabled"`
	JWTSecret string        `json:"jwt_secret"`
	TokenTTL  time.Duration `json:"token_ttl"`
}

type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

// Load reads config.json if present and applies environment overrides.
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		// If no config file, start with empty config
		cfg = &Config{}
	}

	applyDefaults(cfg)

	// Environment variable overrides take precedence
	applyEnvOverrides(cfg)

	return cfg, nil
}

// Defaults returns a config with every field at its production default,
// ignoring config.json and the environment.
func Defaults() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills every zero-valued field with its production default.
func applyDefaults(cfg *Config) {
	f := &cfg.FeedConfig
	if f.URL == "" {
		f.URL = "wss://open-ws.coinglass.com/ws-api"
	}
	if f.Exchange == "" {
		f.Exchange = "Binance"
	}
	if len(f.WatchSymbols) == 0 {
		f.WatchSymbols = defaultWatchSymbols()
	}
	if f.TradeMinUSD == 0 {
		f.TradeMinUSD = 100_000
	}
	if f.HeartbeatBaseSec == 0 {
		f.HeartbeatBaseSec = 20
	}
	if f.HeartbeatMinSec == 0 {
		f.HeartbeatMinSec = 5
	}
	if f.HeartbeatMaxSec == 0 {
		f.HeartbeatMaxSec = 60
	}
	if f.PongTimeoutSec == 0 {
		f.PongTimeoutSec = 60
	}
	if f.ConnectTimeoutSec == 0 {
		f.ConnectTimeoutSec = 30
	}
	if f.ReconnectBaseSec == 0 {
		f.ReconnectBaseSec = 2
	}
	if f.ReconnectMaxDelaySec == 0 {
		f.ReconnectMaxDelaySec = 60
	}
	if f.ReconnectMaxAttempts == 0 {
		f.ReconnectMaxAttempts = 10
	}

	a := &cfg.AggregatorConfig
	if a.BaseWindowSec == 0 {
		a.BaseWindowSec = 300
	}
	if a.MinWindowSec == 0 {
		a.MinWindowSec = 10
	}
	if a.MaxWindowSec == 0 {
		a.MaxWindowSec = 1200
	}
	if a.MaxEventsPerBuffer == 0 {
		a.MaxEventsPerBuffer = 1000
	}
	if a.MemoryLimitMB == 0 {
		a.MemoryLimitMB = 512
	}
	if a.AdjustIntervalSec == 0 {
		a.AdjustIntervalSec = 60
	}
	if a.MemoryCheckIntervalSec == 0 {
		a.MemoryCheckIntervalSec = 30
	}
	if a.SweepIntervalSec == 0 {
		a.SweepIntervalSec = 300
	}

	d := &cfg.DetectionConfig
	if len(d.Majors) == 0 {
		d.Majors = []string{"BTCUSDT", "ETHUSDT"}
	}
	if len(d.LargeCaps) == 0 {
		d.LargeCaps = []string{
			"BNBUSDT", "SOLUSDT", "XRPUSDT", "DOGEUSDT", "ADAUSDT",
			"TRXUSDT", "AVAXUSDT", "LINKUSDT", "DOTUSDT", "LTCUSDT",
		}
	}
	if d.MajorsLimits == (GroupLimits{}) {
		d.MajorsLimits = GroupLimits{
			StormMinUSD:         2_000_000,
			StormMinCount:       3,
			StormCooldownSec:    300,
			ClusterMinUSD:       3_000_000,
			ClusterMinCount:     3,
			ClusterMinDominance: 0.70,
			ClusterCooldownSec:  600,
			RadarMinScore:       0.7,
			ConvergenceBonus:    0.30,
			LiqAlertMinUSD:      200_000,
			WhaleAlertMinUSD:    500_000,
			ItemCooldownSec:     300,
		}
	}
	if d.LargeCapLimits == (GroupLimits{}) {
		d.LargeCapLimits = GroupLimits{
			StormMinUSD:         1_000_000,
			StormMinCount:       2,
			StormCooldownSec:    450,
			ClusterMinUSD:       1_500_000,
			ClusterMinCount:     2,
			ClusterMinDominance: 0.65,
			ClusterCooldownSec:  900,
			RadarMinScore:       0.6,
			ConvergenceBonus:    0.25,
			LiqAlertMinUSD:      100_000,
			WhaleAlertMinUSD:    250_000,
			ItemCooldownSec:     450,
		}
	}
	if d.MidCapLimits == (GroupLimits{}) {
		d.MidCapLimits = GroupLimits{
			StormMinUSD:         500_000,
			StormMinCount:       2,
			StormCooldownSec:    600,
			ClusterMinUSD:       500_000,
			ClusterMinCount:     2,
			ClusterMinDominance: 0.60,
			ClusterCooldownSec:  1200,
			RadarMinScore:       0.5,
			ConvergenceBonus:    0.20,
			LiqAlertMinUSD:      50_000,
			WhaleAlertMinUSD:    100_000,
			ItemCooldownSec:     600,
		}
	}
	if d.ScanIntervalSec == 0 {
		d.ScanIntervalSec = 5
	}
	if d.ActiveWindowSec == 0 {
		d.ActiveWindowSec = 30
	}
	if d.RadarCooldownSec == 0 {
		d.RadarCooldownSec = 300
	}
	if d.RadarHighActivityCooldownSec == 0 {
		d.RadarHighActivityCooldownSec = 150
	}
	if d.RadarHighActivityTrades == 0 {
		d.RadarHighActivityTrades = 50
	}
	if d.RadarActivityWindowSec == 0 {
		d.RadarActivityWindowSec = 300
	}
	if d.RadarSinglePatternMinScore == 0 {
		d.RadarSinglePatternMinScore = 0.4
	}
	if d.RadarConvergenceMinRatio == 0 {
		d.RadarConvergenceMinRatio = 2.0
	}

	s := &cfg.ScoringConfig
	if s.StormWeight == 0 {
		s.StormWeight = 0.4
	}
	if s.ClusterWeight == 0 {
		s.ClusterWeight = 0.4
	}
	if s.ConvergenceWeight == 0 {
		s.ConvergenceWeight = 0.6
	}
	if s.ShortLiqSideWeight == 0 {
		s.ShortLiqSideWeight = 1.2
	}
	if s.DecayLambdaPerMin == 0 {
		s.DecayLambdaPerMin = 0.1
	}
	if s.RecencyBonus == 0 {
		s.RecencyBonus = 0.3
	}
	if s.RecencyWindowMin == 0 {
		s.RecencyWindowMin = 5
	}
	if s.ContextTTLSec == 0 {
		s.ContextTTLSec = 60
	}
	if s.HistoryRetentionSec == 0 {
		s.HistoryRetentionSec = 3600
	}
	if s.HistoryMaxSamples == 0 {
		s.HistoryMaxSamples = 720
	}
	if s.VolumeShareThreshold == 0 {
		s.VolumeShareThreshold = 0.3
	}

	al := &cfg.AlertConfig
	if al.StormCooldownSec == 0 {
		al.StormCooldownSec = 300
	}
	if al.ClusterCooldownSec == 0 {
		al.ClusterCooldownSec = 600
	}
	if al.RadarCooldownSec == 0 {
		al.RadarCooldownSec = 300
	}
	if al.RadarHighActivityCooldownSec == 0 {
		al.RadarHighActivityCooldownSec = 150
	}
	if al.DispatchSpacingMS == 0 {
		al.DispatchSpacingMS = 100
	}
	if al.SendTimeoutSec == 0 {
		al.SendTimeoutSec = 30
	}
	if al.QueueSize == 0 {
		al.QueueSize = 256
	}
	if al.SweepIntervalSec == 0 {
		al.SweepIntervalSec = 3600
	}
	if al.RecordMaxAgeSec == 0 {
		al.RecordMaxAgeSec = 86400
	}

	if cfg.NotificationConfig.Telegram.APIBaseURL == "" {
		cfg.NotificationConfig.Telegram.APIBaseURL = "https://api.telegram.org"
	}
	if cfg.NotificationConfig.Telegram.MaxPerMinute == 0 {
		cfg.NotificationConfig.Telegram.MaxPerMinute = 20
	}
	if cfg.NotificationConfig.Redis.Channel == "" {
		cfg.NotificationConfig.Redis.Channel = "radar:alerts"
	}

	if cfg.RedisConfig.Addr == "" {
		cfg.RedisConfig.Addr = "localhost:6379"
	}

	if cfg.ServerConfig.Host == "" {
		cfg.ServerConfig.Host = "0.0.0.0"
	}
	if cfg.ServerConfig.Port == 0 {
		cfg.ServerConfig.Port = 8088
	}

	if cfg.AuthConfig.TokenTTL == 0 {
		cfg.AuthConfig.TokenTTL = 24 * time.Hour
	}

	if cfg.VaultConfig.MountPath == "" {
		cfg.VaultConfig.MountPath = "secret"
	}
	if cfg.VaultConfig.SecretPath == "" {
		cfg.VaultConfig.SecretPath = "futures-radar"
	}

	if cfg.LoggingConfig.Level == "" {
		cfg.LoggingConfig.Level = "INFO"
	}
	if cfg.LoggingConfig.Output == "" {
		cfg.LoggingConfig.Output = "stdout"
	}
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	// Feed
	cfg.FeedConfig.URL = getEnvOrDefault("FEED_WS_URL", cfg.FeedConfig.URL)
	cfg.FeedConfig.APIKey = getEnvOrDefault("FEED_API_KEY", cfg.FeedConfig.APIKey)
	cfg.FeedConfig.Exchange = getEnvOrDefault("FEED_EXCHANGE", cfg.FeedConfig.Exchange)
	cfg.FeedConfig.WatchSymbols = getEnvListOrDefault("FEED_WATCH_SYMBOLS", cfg.FeedConfig.WatchSymbols)
	cfg.FeedConfig.TradeMinUSD = getEnvFloatOrDefault("FEED_TRADE_MIN_USD", cfg.FeedConfig.TradeMinUSD)
	cfg.FeedConfig.HeartbeatBaseSec = getEnvIntOrDefault("HEARTBEAT_BASE_SEC", cfg.FeedConfig.HeartbeatBaseSec)
	cfg.FeedConfig.HeartbeatMinSec = getEnvIntOrDefault("HEARTBEAT_MIN_SEC", cfg.FeedConfig.HeartbeatMinSec)
	cfg.FeedConfig.HeartbeatMaxSec = getEnvIntOrDefault("HEARTBEAT_MAX_SEC", cfg.FeedConfig.HeartbeatMaxSec)
	cfg.FeedConfig.PongTimeoutSec = getEnvIntOrDefault("HEARTBEAT_PONG_TIMEOUT_SEC", cfg.FeedConfig.PongTimeoutSec)
	cfg.FeedConfig.ReconnectMaxAttempts = getEnvIntOrDefault("RECONNECT_MAX_ATTEMPTS", cfg.FeedConfig.ReconnectMaxAttempts)

	// Aggregator
	cfg.AggregatorConfig.BaseWindowSec = getEnvIntOrDefault("WINDOW_BASE_SEC", cfg.AggregatorConfig.BaseWindowSec)
	cfg.AggregatorConfig.MinWindowSec = getEnvIntOrDefault("WINDOW_MIN_SEC", cfg.AggregatorConfig.MinWindowSec)
	cfg.AggregatorConfig.MaxWindowSec = getEnvIntOrDefault("WINDOW_MAX_SEC", cfg.AggregatorConfig.MaxWindowSec)
	cfg.AggregatorConfig.MaxEventsPerBuffer = getEnvIntOrDefault("BUFFER_MAX_EVENTS", cfg.AggregatorConfig.MaxEventsPerBuffer)
	cfg.AggregatorConfig.MemoryLimitMB = getEnvIntOrDefault("MEMORY_LIMIT_MB", cfg.AggregatorConfig.MemoryLimitMB)

	// Symbol groups
	cfg.DetectionConfig.Majors = getEnvListOrDefault("SYMBOLS_MAJORS", cfg.DetectionConfig.Majors)
	cfg.DetectionConfig.LargeCaps = getEnvListOrDefault("SYMBOLS_LARGE_CAPS", cfg.DetectionConfig.LargeCaps)

	// Alert threshold overrides (applied to every group when set)
	if v := getEnvFloatOrDefault("ALERT_LIQ_MIN_USD", 0); v > 0 {
		cfg.DetectionConfig.MajorsLimits.LiqAlertMinUSD = v
		cfg.DetectionConfig.LargeCapLimits.LiqAlertMinUSD = v
		cfg.DetectionConfig.MidCapLimits.LiqAlertMinUSD = v
	}
	if v := getEnvFloatOrDefault("ALERT_WHALE_MIN_USD", 0); v > 0 {
		cfg.DetectionConfig.MajorsLimits.WhaleAlertMinUSD = v
		cfg.DetectionConfig.LargeCapLimits.WhaleAlertMinUSD = v
		cfg.DetectionConfig.MidCapLimits.WhaleAlertMinUSD = v
	}

	// Notification
	cfg.NotificationConfig.Enabled = getEnvOrDefault("NOTIFICATIONS_ENABLED", boolString(cfg.NotificationConfig.Enabled)) == "true"
	cfg.NotificationConfig.Telegram.Enabled = getEnvOrDefault("TELEGRAM_ENABLED", boolString(cfg.NotificationConfig.Telegram.Enabled)) == "true"
	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken)
	cfg.NotificationConfig.Telegram.ChatIDs = getEnvListOrDefault("TELEGRAM_CHAT_IDS", cfg.NotificationConfig.Telegram.ChatIDs)
	cfg.NotificationConfig.Redis.Enabled = getEnvOrDefault("REDIS_SINK_ENABLED", boolString(cfg.NotificationConfig.Redis.Enabled)) == "true"
	cfg.NotificationConfig.Redis.Channel = getEnvOrDefault("REDIS_SINK_CHANNEL", cfg.NotificationConfig.Redis.Channel)

	// Redis
	cfg.RedisConfig.Addr = getEnvOrDefault("REDIS_ADDR", cfg.RedisConfig.Addr)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)

	// Status API server
	cfg.ServerConfig.Enabled = getEnvOrDefault("API_ENABLED", boolString(cfg.ServerConfig.Enabled)) == "true"
	cfg.ServerConfig.Host = getEnvOrDefault("API_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.Port = getEnvIntOrDefault("API_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.ProductionMode = getEnvOrDefault("API_PRODUCTION_MODE", boolString(cfg.ServerConfig.ProductionMode)) == "true"

	// Auth
	cfg.AuthConfig.Enabled = getEnvOrDefault("API_AUTH_ENABLED", boolString(cfg.AuthConfig.Enabled)) == "true"
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("API_AUTH_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.TokenTTL = getEnvDurationOrDefault("API_AUTH_TOKEN_TTL", cfg.AuthConfig.TokenTTL)

	// Vault
	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", boolString(cfg.VaultConfig.Enabled)) == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.VaultConfig.MountPath)
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.VaultConfig.SecretPath)

	// Logging
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", boolString(cfg.LoggingConfig.JSONFormat)) == "true"
	cfg.LoggingConfig.IncludeFile = getEnvOrDefault("LOG_INCLUDE_FILE", boolString(cfg.LoggingConfig.IncludeFile)) == "true"
}

// Validate enforces the startup contract. A non-nil error is fatal.
func (c *Config) Validate() error {
	var problems []string

	if c.FeedConfig.URL == "" {
		problems = append(problems, "feed URL is required")
	} else if !strings.HasPrefix(c.FeedConfig.URL, "ws://") && !strings.HasPrefix(c.FeedConfig.URL, "wss://") {
		problems = append(problems, "feed URL must use ws:// or wss://")
	}
	if c.FeedConfig.APIKey == "" {
		problems = append(problems, "feed API key is required (FEED_API_KEY)")
	}
	if len(c.FeedConfig.WatchSymbols) == 0 {
		problems = append(problems, "at least one watch symbol is required")
	}

	hb := c.FeedConfig
	if hb.HeartbeatMinSec <= 0 || hb.HeartbeatMinSec > hb.HeartbeatBaseSec || hb.HeartbeatBaseSec > hb.HeartbeatMaxSec {
		problems = append(problems, "heartbeat intervals must satisfy 0 < min <= base <= max")
	}
	if hb.PongTimeoutSec <= 0 {
		problems = append(problems, "pong timeout must be positive")
	}
	if hb.ReconnectMaxAttempts < 1 {
		problems = append(problems, "reconnect max attempts must be at least 1")
	}

	agg := c.AggregatorConfig
	if agg.MinWindowSec <= 0 || agg.MinWindowSec > agg.BaseWindowSec || agg.BaseWindowSec > agg.MaxWindowSec {
		problems = append(problems, "aggregator windows must satisfy 0 < min <= base <= max")
	}
	if agg.MaxEventsPerBuffer <= 0 {
		problems = append(problems, "buffer event cap must be positive")
	}
	if agg.MemoryLimitMB <= 0 {
		problems = append(problems, "memory limit must be positive")
	}

	for _, gl := range []struct {
		name   string
		limits GroupLimits
	}{
		{"majors", c.DetectionConfig.MajorsLimits},
		{"large_cap", c.DetectionConfig.LargeCapLimits},
		{"mid_cap", c.DetectionConfig.MidCapLimits},
	} {
		if gl.limits.StormMinUSD <= 0 || gl.limits.ClusterMinUSD <= 0 {
			problems = append(problems, fmt.Sprintf("%s thresholds must be positive", gl.name))
		}
		if gl.limits.ClusterMinDominance <= 0.5 || gl.limits.ClusterMinDominance > 1 {
			problems = append(problems, fmt.Sprintf("%s cluster dominance must be in (0.5, 1]", gl.name))
		}
	}

	if c.NotificationConfig.Enabled {
		tg := c.NotificationConfig.Telegram
		if tg.Enabled {
			if tg.BotToken == "" {
				problems = append(problems, "telegram bot token is required (TELEGRAM_BOT_TOKEN)")
			}
			if len(tg.ChatIDs) == 0 {
				problems = append(problems, "at least one telegram chat ID is required (TELEGRAM_CHAT_IDS)")
			}
		}
		if !tg.Enabled && !c.NotificationConfig.Redis.Enabled {
			problems = append(problems, "notifications are enabled but no sink is configured")
		}
	}

	// The chat-sink credential must never be shared with another credential;
	// a leaked pairing would let the sink impersonate the feed or the vault.
	token := c.NotificationConfig.Telegram.BotToken
	if token != "" {
		if token == c.FeedConfig.APIKey {
			problems = append(problems, "telegram bot token must differ from feed API key")
		}
		if token == c.VaultConfig.Token {
			problems = append(problems, "telegram bot token must differ from vault token")
		}
		if token == c.AuthConfig.JWTSecret {
			problems = append(problems, "telegram bot token must differ from API auth secret")
		}
	}

	if c.AuthConfig.Enabled && c.AuthConfig.JWTSecret == "" {
		problems = append(problems, "API auth is enabled but no secret is configured (API_AUTH_SECRET)")
	}
	if c.VaultConfig.Enabled && c.VaultConfig.Address == "" {
		problems = append(problems, "vault is enabled but no address is configured (VAULT_ADDR)")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// GroupFor returns the symbol group for a symbol. Symbols not listed as
// majors or large caps are mid caps.
func (d *DetectionConfig) GroupFor(symbol string) SymbolGroup {
	for _, s := range d.Majors {
		if s == symbol {
			return GroupMajors
		}
	}
	for _, s := range d.LargeCaps {
		if s == symbol {
			return GroupLargeCap
		}
	}
	return GroupMidCap
}

// LimitsFor returns the numeric limits for a symbol's group.
func (d *DetectionConfig) LimitsFor(symbol string) GroupLimits {
	switch d.GroupFor(symbol) {
	case GroupMajors:
		return d.MajorsLimits
	case GroupLargeCap:
		return d.LargeCapLimits
	default:
		return d.MidCapLimits
	}
}

// LimitsForGroup returns the numeric limits for a group directly.
func (d *DetectionConfig) LimitsForGroup(group SymbolGroup) GroupLimits {
	switch group {
	case GroupMajors:
		return d.MajorsLimits
	case GroupLargeCap:
		return d.LargeCapLimits
	default:
		return d.MidCapLimits
	}
}

func defaultWatchSymbols() []string {
	return []string{
		"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT", "XRPUSDT",
		"DOGEUSDT", "ADAUSDT", "TRXUSDT", "AVAXUSDT", "LINKUSDT",
	}
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvListOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
