// Package config defines the top-level configuration for the arbitrage
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by CROSSARB_* environment variables.
type Config struct {
	Symbol      string                    `toml:"symbol"`
	Exchanges   map[string]ExchangeConfig `toml:"exchanges"`
	Arbitrage   ArbitrageConfig           `toml:"arbitrage"`
	Risk        RiskConfig                `toml:"risk"`
	Performance PerformanceConfig         `toml:"performance"`
	Postgres    PostgresConfig            `toml:"postgres"`
	Redis       RedisConfig               `toml:"redis"`
	S3          S3Config                  `toml:"s3"`
	Notify      NotifyConfig              `toml:"notify"`
	Mode        string                    `toml:"mode"`
	LogLevel    string                    `toml:"log_level"`
}

// ExchangeConfig holds per-venue connection parameters and credentials.
// Empty WsURL/RestURL fall back to the adapter's production endpoints.
type ExchangeConfig struct {
	Enabled   bool   `toml:"enabled"`
	WsURL     string `toml:"ws_url"`
	RestURL   string `toml:"rest_url"`
	ApiKey    string `toml:"api_key"`
	ApiSecret string `toml:"api_secret"`
}

// ArbitrageConfig holds detection thresholds and sizing limits.
type ArbitrageConfig struct {
	MinSpreadPercent float64 `toml:"min_spread_percent"`
	MinProfitPercent float64 `toml:"min_profit_percent"`
	MaxTradeAmount   float64 `toml:"max_trade_amount"`
	// SizingPolicy selects how trade size is derived: "volume_fraction"
	// (a fraction of visible volume, capped) or "fixed" (always the cap).
	SizingPolicy   string  `toml:"sizing_policy"`
	VolumeFraction float64 `toml:"volume_fraction"`
}

// RiskConfig holds the risk-gate limits enforced before execution.
type RiskConfig struct {
	MaxConcurrentTrades int     `toml:"max_concurrent_trades"`
	MaxDailyLoss        float64 `toml:"max_daily_loss"`
	MaxActiveOrders     int     `toml:"max_active_orders"`
}

// PerformanceConfig holds timing knobs for the detection and execution loops.
type PerformanceConfig struct {
	OpportunityCheckInterval duration `toml:"opportunity_check_interval"`
	MinCheckInterval         duration `toml:"min_check_interval"`
	MaxCheckInterval         duration `toml:"max_check_interval"`
	MaxOpportunityAge        duration `toml:"max_opportunity_age"`
	OrderTimeout             duration `toml:"order_timeout"`
	QuoteCacheTTL            duration `toml:"quote_cache_ttl"`
	ArchiveRetention         duration `toml:"archive_retention"`
	ArchiveInterval          duration `toml:"archive_interval"`
	// PaperFillDelay simulates venue latency in simulation mode.
	PaperFillDelay duration `toml:"paper_fill_delay"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Symbol: "BTCUSDT",
		Exchanges: map[string]ExchangeConfig{
			"binance": {Enabled: true},
			"wazirx":  {Enabled: true},
			"coindcx": {Enabled: false},
			"kraken":  {Enabled: false},
		},
		Arbitrage: ArbitrageConfig{
			MinSpreadPercent: 0.5,
			MinProfitPercent: 0.3,
			MaxTradeAmount:   100.0,
			SizingPolicy:     "volume_fraction",
			VolumeFraction:   0.01,
		},
		Risk: RiskConfig{
			MaxConcurrentTrades: 3,
			MaxDailyLoss:        500.0,
			MaxActiveOrders:     10,
		},
		Performance: PerformanceConfig{
			OpportunityCheckInterval: duration{100 * time.Millisecond},
			MinCheckInterval:         duration{50 * time.Millisecond},
			MaxCheckInterval:         duration{time.Second},
			MaxOpportunityAge:        duration{5 * time.Second},
			OrderTimeout:             duration{5 * time.Second},
			QuoteCacheTTL:            duration{30 * time.Second},
			ArchiveRetention:         duration{7 * 24 * time.Hour},
			ArchiveInterval:          duration{time.Hour},
			PaperFillDelay:           duration{50 * time.Millisecond},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "crossarb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "crossarb-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Notify: NotifyConfig{
			Events: []string{"execution.completed", "execution.failed", "feed.disconnected"},
		},
		Mode:     "simulation",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"live":       true,
	"simulation": true,
	"monitor":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validSizingPolicies enumerates the accepted arbitrage.sizing_policy values.
var validSizingPolicies = map[string]bool{
	"volume_fraction": true,
	"fixed":           true,
}

// EnabledExchanges returns the sorted-stable list of venue names with
// Enabled set. Order follows map iteration and is normalised by callers
// that need determinism.
func (c *Config) EnabledExchanges() []string {
	var out []string
	for name, ex := range c.Exchanges {
		if ex.Enabled {
			out = append(out, name)
		}
	}
	return out
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: live, simulation, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if strings.TrimSpace(c.Symbol) == "" {
		errs = append(errs, "symbol must not be empty")
	}

	enabled := c.EnabledExchanges()
	if len(enabled) < 2 {
		errs = append(errs, fmt.Sprintf("at least two exchanges must be enabled, got %d", len(enabled)))
	}

	// Live trading requires credentials on every enabled venue. Simulation
	// and monitor modes only read public streams.
	if strings.ToLower(c.Mode) == "live" {
		for _, name := range enabled {
			ex := c.Exchanges[name]
			if ex.ApiKey == "" || ex.ApiSecret == "" {
				errs = append(errs, fmt.Sprintf("exchanges.%s: api_key and api_secret are required for live mode", name))
			}
		}
	}

	if c.Arbitrage.MinSpreadPercent <= 0 {
		errs = append(errs, "arbitrage: min_spread_percent must be > 0")
	}
	if c.Arbitrage.MinProfitPercent <= 0 {
		errs = append(errs, "arbitrage: min_profit_percent must be > 0")
	}
	if c.Arbitrage.MaxTradeAmount <= 0 {
		errs = append(errs, "arbitrage: max_trade_amount must be > 0")
	}
	if !validSizingPolicies[c.Arbitrage.SizingPolicy] {
		errs = append(errs, fmt.Sprintf("arbitrage: unknown sizing_policy %q (valid: volume_fraction, fixed)", c.Arbitrage.SizingPolicy))
	}
	if c.Arbitrage.SizingPolicy == "volume_fraction" && (c.Arbitrage.VolumeFraction <= 0 || c.Arbitrage.VolumeFraction > 1) {
		errs = append(errs, "arbitrage: volume_fraction must be in (0, 1]")
	}

	if c.Risk.MaxConcurrentTrades < 1 {
		errs = append(errs, "risk: max_concurrent_trades must be >= 1")
	}
	if c.Risk.MaxDailyLoss <= 0 {
		errs = append(errs, "risk: max_daily_loss must be > 0")
	}
	if c.Risk.MaxActiveOrders < 2 {
		errs = append(errs, "risk: max_active_orders must be >= 2 (one opportunity needs two legs)")
	}

	if c.Performance.OpportunityCheckInterval.Duration <= 0 {
		errs = append(errs, "performance: opportunity_check_interval must be > 0")
	}
	if c.Performance.MinCheckInterval.Duration > c.Performance.MaxCheckInterval.Duration {
		errs = append(errs, "performance: min_check_interval must not exceed max_check_interval")
	}
	if c.Performance.MaxOpportunityAge.Duration <= 0 {
		errs = append(errs, "performance: max_opportunity_age must be > 0")
	}

	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
