package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CROSSARB_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CROSSARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject secrets at deploy time without
// touching the TOML file. Exchange credentials use the venue name in the
// variable, e.g. CROSSARB_EXCHANGE_BINANCE_API_KEY.
func applyEnvOverrides(cfg *Config) {
	// ── Exchanges ──
	for name, ex := range cfg.Exchanges {
		prefix := "CROSSARB_EXCHANGE_" + strings.ToUpper(name)
		setBool(&ex.Enabled, prefix+"_ENABLED")
		setStr(&ex.WsURL, prefix+"_WS_URL")
		setStr(&ex.RestURL, prefix+"_REST_URL")
		setStr(&ex.ApiKey, prefix+"_API_KEY")
		setStr(&ex.ApiSecret, prefix+"_API_SECRET")
		cfg.Exchanges[name] = ex
	}

	// ── Arbitrage ──
	setFloat64(&cfg.Arbitrage.MinSpreadPercent, "CROSSARB_ARBITRAGE_MIN_SPREAD_PERCENT")
	setFloat64(&cfg.Arbitrage.MinProfitPercent, "CROSSARB_ARBITRAGE_MIN_PROFIT_PERCENT")
	setFloat64(&cfg.Arbitrage.MaxTradeAmount, "CROSSARB_ARBITRAGE_MAX_TRADE_AMOUNT")
	setStr(&cfg.Arbitrage.SizingPolicy, "CROSSARB_ARBITRAGE_SIZING_POLICY")
	setFloat64(&cfg.Arbitrage.VolumeFraction, "CROSSARB_ARBITRAGE_VOLUME_FRACTION")

	// ── Risk ──
	setInt(&cfg.Risk.MaxConcurrentTrades, "CROSSARB_RISK_MAX_CONCURRENT_TRADES")
	setFloat64(&cfg.Risk.MaxDailyLoss, "CROSSARB_RISK_MAX_DAILY_LOSS")
	setInt(&cfg.Risk.MaxActiveOrders, "CROSSARB_RISK_MAX_ACTIVE_ORDERS")

	// ── Performance ──
	setDuration(&cfg.Performance.OpportunityCheckInterval, "CROSSARB_PERFORMANCE_OPPORTUNITY_CHECK_INTERVAL")
	setDuration(&cfg.Performance.MinCheckInterval, "CROSSARB_PERFORMANCE_MIN_CHECK_INTERVAL")
	setDuration(&cfg.Performance.MaxCheckInterval, "CROSSARB_PERFORMANCE_MAX_CHECK_INTERVAL")
	setDuration(&cfg.Performance.MaxOpportunityAge, "CROSSARB_PERFORMANCE_MAX_OPPORTUNITY_AGE")
	setDuration(&cfg.Performance.OrderTimeout, "CROSSARB_PERFORMANCE_ORDER_TIMEOUT")
	setDuration(&cfg.Performance.QuoteCacheTTL, "CROSSARB_PERFORMANCE_QUOTE_CACHE_TTL")
	setDuration(&cfg.Performance.ArchiveRetention, "CROSSARB_PERFORMANCE_ARCHIVE_RETENTION")
	setDuration(&cfg.Performance.ArchiveInterval, "CROSSARB_PERFORMANCE_ARCHIVE_INTERVAL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "CROSSARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "CROSSARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CROSSARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CROSSARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CROSSARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CROSSARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CROSSARB_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CROSSARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CROSSARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CROSSARB_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "CROSSARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CROSSARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CROSSARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CROSSARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CROSSARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CROSSARB_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "CROSSARB_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "CROSSARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CROSSARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "CROSSARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CROSSARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CROSSARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CROSSARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CROSSARB_S3_FORCE_PATH_STYLE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CROSSARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CROSSARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CROSSARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CROSSARB_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Symbol, "CROSSARB_SYMBOL")
	setStr(&cfg.Mode, "CROSSARB_MODE")
	setStr(&cfg.LogLevel, "CROSSARB_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
