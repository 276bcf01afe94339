package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Environment
	IsProd bool `json:"is_prod"`

	// Postgres DSN. Empty means in-memory stores (local runs, tests).
	DatabaseURL string `json:"-"`

	// Telegram
	Telegram TelegramConfig `json:"telegram"`

	// Discord ops mirror
	Discord DiscordConfig `json:"discord"`

	// Polymarket data sources
	Polymarket PolymarketConfig `json:"polymarket"`

	// Ingestion
	Ingest IngestConfig `json:"ingest"`

	// Behavior detection
	Detector DetectorConfig `json:"detector"`

	// Wallet profiling
	Profiler ProfilerConfig `json:"profiler"`

	// Whale scoring
	Scorer ScorerConfig `json:"scorer"`

	// Alert dispatch
	Alerts AlertsConfig `json:"alerts"`

	// Retention cleanup
	Cleanup CleanupConfig `json:"cleanup"`

	// Settlement report
	Report ReportConfig `json:"report"`

	// Access token lifetime for the external dashboard surface.
	AccessTokenTTL time.Duration `json:"access_token_ttl"`

	// Health/stats HTTP port. Zero disables the server.
	HealthPort int `json:"health_port"`
}

// TelegramConfig holds Telegram-related configuration.
type TelegramConfig struct {
	BotToken string `json:"-"` // Excluded - env var only
}

// DiscordConfig holds Discord-related configuration.
type DiscordConfig struct {
	BotToken     string `json:"-"` // Excluded - env var only
	OpsChannelID string `json:"ops_channel_id"`
}

// PolymarketConfig holds external data-source configuration.
type PolymarketConfig struct {
	GammaAPIURL    string   `json:"gamma_api_url"`
	DataAPIURL     string   `json:"data_api_url"`
	CLOBAPIURL     string   `json:"clob_api_url"`
	MarketWSURL    string   `json:"market_ws_url"`
	UseWebSocket   bool     `json:"use_websocket"`
	WatchedMarkets []string `json:"watched_markets"` // token IDs to poll; empty = top markets by volume
	TopMarkets     int      `json:"top_markets"`
}

// IngestConfig holds trade and orderbook ingestion configuration.
type IngestConfig struct {
	PollInterval      time.Duration `json:"poll_interval"`
	TradeLimit        int           `json:"trade_limit"`
	OrderbookInterval time.Duration `json:"orderbook_interval"`
}

// DetectorConfig holds behavior detection thresholds.
type DetectorConfig struct {
	Interval        time.Duration `json:"interval"`
	TradeWindow     time.Duration `json:"trade_window"`      // lookback for one pass
	PairWindow      time.Duration `json:"pair_window"`       // trailing window per wallet/market pair
	SingleTradeUSD  float64       `json:"single_trade_usd"`  // whale-eligibility unlock
	BuildMinTrades  int           `json:"build_min_trades"`  // same-side trades to count as a build
	BuildMinUSD     float64       `json:"build_min_usd"`     // total value across those trades
	ExitVolumeRatio float64       `json:"exit_volume_ratio"` // sell shares vs buy shares
	ExitMinUSD      float64       `json:"exit_min_usd"`
	SpikeWindow     time.Duration `json:"spike_window"`
	SpikeMultiplier float64       `json:"spike_multiplier"` // vs trailing average window volume
	SpikeMinUSD     float64       `json:"spike_min_usd"`
	DepthShockRatio float64       `json:"depth_shock_ratio"` // trade size vs visible book depth
	DedupWindow     time.Duration `json:"dedup_window"`      // per (wallet, market, type)
}

// ProfilerConfig holds wallet profiling configuration.
type ProfilerConfig struct {
	Interval time.Duration `json:"interval"`
}

// ScorerConfig holds whale scoring configuration.
type ScorerConfig struct {
	Interval        time.Duration `json:"interval"`
	ActivityWindow  time.Duration `json:"activity_window"`  // pairs with trades in this window get scored
	DefaultLifetime time.Duration `json:"default_lifetime"` // assumed market lifetime when unresolved
}

// AlertsConfig holds alert dispatch and conviction synthesis configuration.
type AlertsConfig struct {
	DispatchInterval   time.Duration `json:"dispatch_interval"`
	DispatchWindow     time.Duration `json:"dispatch_window"` // safety lookback per pass
	FreeDelay          time.Duration `json:"free_delay"`      // free tier waits this long after creation
	MarketRateLimit    time.Duration `json:"market_rate_limit"`
	MinNotionalUSD     float64       `json:"min_notional_usd"` // noise floor
	SendThrottle       time.Duration `json:"send_throttle"`    // between consecutive recipient sends
	ConvictionInterval time.Duration `json:"conviction_interval"`
	ConvictionWindow   time.Duration `json:"conviction_window"`
	ConvictionMinScore int           `json:"conviction_min_score"` // 0-100 internal scale
	ConvictionWallets  int           `json:"conviction_wallets"`   // distinct wallets required
	ConvictionSuppress time.Duration `json:"conviction_suppress"`  // per-title re-synthesis window
}

// CleanupConfig holds retention cleanup configuration.
type CleanupConfig struct {
	Interval           time.Duration `json:"interval"`
	OrderbookRetention time.Duration `json:"orderbook_retention"`
}

// ReportConfig holds settlement report configuration.
type ReportConfig struct {
	Interval time.Duration `json:"interval"`
}

// Defaults returns a Config with default values.
func Defaults() *Config {
	return &Config{
		IsProd:   false,
		Telegram: TelegramConfig{},
		Discord:  DiscordConfig{},
		Polymarket: PolymarketConfig{
			GammaAPIURL:  "https://gamma-api.polymarket.com",
			DataAPIURL:   "https://data-api.polymarket.com",
			CLOBAPIURL:   "https://clob.polymarket.com",
			MarketWSURL:  "wss://ws-subscriptions-clob.polymarket.com/ws/market",
			UseWebSocket: false,
			TopMarkets:   20,
		},
		Ingest: IngestConfig{
			PollInterval:      15 * time.Second,
			TradeLimit:        500,
			OrderbookInterval: 1 * time.Minute,
		},
		Detector: DetectorConfig{
			Interval:        1 * time.Minute,
			TradeWindow:     60 * time.Minute,
			PairWindow:      10 * time.Minute,
			SingleTradeUSD:  10000.0,
			BuildMinTrades:  3,
			BuildMinUSD:     5000.0,
			ExitVolumeRatio: 0.50,
			ExitMinUSD:      1000.0,
			SpikeWindow:     5 * time.Minute,
			SpikeMultiplier: 3.0,
			SpikeMinUSD:     5000.0,
			DepthShockRatio: 0.25,
			DedupWindow:     30 * time.Minute,
		},
		Profiler: ProfilerConfig{
			Interval: 10 * time.Minute,
		},
		Scorer: ScorerConfig{
			Interval:        5 * time.Minute,
			ActivityWindow:  24 * time.Hour,
			DefaultLifetime: 14 * 24 * time.Hour,
		},
		Alerts: AlertsConfig{
			DispatchInterval:   1 * time.Minute,
			DispatchWindow:     10 * time.Minute,
			FreeDelay:          90 * time.Minute,
			MarketRateLimit:    15 * time.Minute,
			MinNotionalUSD:     10.0,
			SendThrottle:       1 * time.Second,
			ConvictionInterval: 5 * time.Minute,
			ConvictionWindow:   48 * time.Hour,
			ConvictionMinScore: 75,
			ConvictionWallets:  2,
			ConvictionSuppress: 24 * time.Hour,
		},
		Cleanup: CleanupConfig{
			Interval:           1 * time.Hour,
			OrderbookRetention: 24 * time.Hour,
		},
		Report: ReportConfig{
			Interval: 6 * time.Hour,
		},
		AccessTokenTTL: 24 * time.Hour,
		HealthPort:     8080,
	}
}

// Load loads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		IsProd:      envBool("STAGE", "PROD"),
		DatabaseURL: envString("DATABASE_URL", ""),

		Telegram: TelegramConfig{
			BotToken: envString("TELEGRAM_BOT_KEY", ""),
		},

		Discord: DiscordConfig{
			BotToken:     envString("DISCORD_BOT_TOKEN", ""),
			OpsChannelID: envString("DISCORD_OPS_CHANNEL_ID", ""),
		},

		Polymarket: PolymarketConfig{
			GammaAPIURL:    envString("GAMMA_API_URL", "https://gamma-api.polymarket.com"),
			DataAPIURL:     envString("DATA_API_URL", "https://data-api.polymarket.com"),
			CLOBAPIURL:     envString("CLOB_API_URL", "https://clob.polymarket.com"),
			MarketWSURL:    envString("MARKET_WS_URL", "wss://ws-subscriptions-clob.polymarket.com/ws/market"),
			UseWebSocket:   envBoolDefault("USE_WEBSOCKET", false),
			WatchedMarkets: envStringSlice("WATCHED_MARKETS"),
			TopMarkets:     envInt("TOP_MARKETS_COUNT", 20),
		},

		Ingest: IngestConfig{
			PollInterval:      envDuration("INGEST_POLL_INTERVAL", 15*time.Second),
			TradeLimit:        envInt("INGEST_TRADE_LIMIT", 500),
			OrderbookInterval: envDuration("INGEST_ORDERBOOK_INTERVAL", 1*time.Minute),
		},

		Detector: DetectorConfig{
			Interval:        envDuration("DETECTOR_INTERVAL", 1*time.Minute),
			TradeWindow:     envDuration("DETECTOR_TRADE_WINDOW", 60*time.Minute),
			PairWindow:      envDuration("DETECTOR_PAIR_WINDOW", 10*time.Minute),
			SingleTradeUSD:  envFloat("DETECTOR_SINGLE_TRADE_USD", 10000.0),
			BuildMinTrades:  envInt("DETECTOR_BUILD_MIN_TRADES", 3),
			BuildMinUSD:     envFloat("DETECTOR_BUILD_MIN_USD", 5000.0),
			ExitVolumeRatio: envFloat("DETECTOR_EXIT_VOLUME_RATIO", 0.50),
			ExitMinUSD:      envFloat("DETECTOR_EXIT_MIN_USD", 1000.0),
			SpikeWindow:     envDuration("DETECTOR_SPIKE_WINDOW", 5*time.Minute),
			SpikeMultiplier: envFloat("DETECTOR_SPIKE_MULTIPLIER", 3.0),
			SpikeMinUSD:     envFloat("DETECTOR_SPIKE_MIN_USD", 5000.0),
			DepthShockRatio: envFloat("DETECTOR_DEPTH_SHOCK_RATIO", 0.25),
			DedupWindow:     envDuration("DETECTOR_DEDUP_WINDOW", 30*time.Minute),
		},

		Profiler: ProfilerConfig{
			Interval: envDuration("PROFILER_INTERVAL", 10*time.Minute),
		},

		Scorer: ScorerConfig{
			Interval:        envDuration("SCORER_INTERVAL", 5*time.Minute),
			ActivityWindow:  envDuration("SCORER_ACTIVITY_WINDOW", 24*time.Hour),
			DefaultLifetime: envDuration("SCORER_DEFAULT_LIFETIME", 14*24*time.Hour),
		},

		Alerts: AlertsConfig{
			DispatchInterval:   envDuration("ALERT_DISPATCH_INTERVAL", 1*time.Minute),
			DispatchWindow:     envDuration("ALERT_DISPATCH_WINDOW", 10*time.Minute),
			FreeDelay:          time.Duration(envInt("FREE_ALERT_DELAY_MINUTES", 90)) * time.Minute,
			MarketRateLimit:    time.Duration(envInt("ALERT_RATE_LIMIT_MINUTES", 15)) * time.Minute,
			MinNotionalUSD:     envFloat("ALERT_MIN_NOTIONAL_USD", 10.0),
			SendThrottle:       envDuration("ALERT_SEND_THROTTLE", 1*time.Second),
			ConvictionInterval: envDuration("CONVICTION_INTERVAL", 5*time.Minute),
			ConvictionWindow:   envDuration("CONVICTION_WINDOW", 48*time.Hour),
			ConvictionMinScore: envInt("CONVICTION_MIN_SCORE", 75),
			ConvictionWallets:  envInt("CONVICTION_MIN_WALLETS", 2),
			ConvictionSuppress: envDuration("CONVICTION_SUPPRESS_WINDOW", 24*time.Hour),
		},

		Cleanup: CleanupConfig{
			Interval:           envDuration("CLEANUP_INTERVAL", 1*time.Hour),
			OrderbookRetention: envDuration("ORDERBOOK_RETENTION", 24*time.Hour),
		},

		Report: ReportConfig{
			Interval: envDuration("REPORT_INTERVAL", 6*time.Hour),
		},

		AccessTokenTTL: envDuration("ACCESS_TOKEN_TTL", 24*time.Hour),
		HealthPort:     envInt("PORT", 8080),
	}
}

func envString(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func envBool(key, trueValue string) bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv(key)), trueValue)
}

func envBoolDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	return strings.EqualFold(v, "true") || strings.EqualFold(v, "1") || strings.EqualFold(v, "yes")
}

func envStringSlice(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
