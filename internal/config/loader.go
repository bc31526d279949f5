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
// built-in defaults, applies ANCHORBOT_* environment variable overrides, and
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

// applyEnvOverrides reads well-known ANCHORBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Top-level ──
	setStr(&cfg.Mode, "ANCHORBOT_MODE")
	setStr(&cfg.LogLevel, "ANCHORBOT_LOG_LEVEL")
	setStr(&cfg.Storage, "ANCHORBOT_STORAGE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ANCHORBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ANCHORBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ANCHORBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ANCHORBOT_SERVER_API_KEY")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ANCHORBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ANCHORBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ANCHORBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ANCHORBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ANCHORBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ANCHORBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ANCHORBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ANCHORBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ANCHORBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ANCHORBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "ANCHORBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ANCHORBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ANCHORBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ANCHORBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ANCHORBOT_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "ANCHORBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "ANCHORBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "ANCHORBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ANCHORBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "ANCHORBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ANCHORBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ANCHORBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ANCHORBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ANCHORBOT_S3_FORCE_PATH_STYLE")

	// ── Worker ──
	setBool(&cfg.Worker.Enabled, "ANCHORBOT_WORKER_ENABLED")
	setDuration(&cfg.Worker.Interval, "ANCHORBOT_WORKER_INTERVAL")

	// ── Market data ──
	setStr(&cfg.MarketData.BaseURL, "ANCHORBOT_MARKET_DATA_BASE_URL")
	setStr(&cfg.MarketData.APIKey, "ANCHORBOT_MARKET_DATA_API_KEY")
	setDuration(&cfg.MarketData.Timeout, "ANCHORBOT_MARKET_DATA_TIMEOUT")
	setDuration(&cfg.MarketData.CacheTTL, "ANCHORBOT_MARKET_DATA_CACHE_TTL")

	// ── Broker ──
	setFloat64(&cfg.Broker.SlippageBps, "ANCHORBOT_BROKER_SLIPPAGE_BPS")
	setFloat64(&cfg.Broker.PartialFillPct, "ANCHORBOT_BROKER_PARTIAL_FILL_PCT")

	// ── Defaults ──
	setFloat64(&cfg.Defaults.Trigger.UpThresholdPct, "ANCHORBOT_TRIGGER_UP_THRESHOLD_PCT")
	setFloat64(&cfg.Defaults.Trigger.DownThresholdPct, "ANCHORBOT_TRIGGER_DOWN_THRESHOLD_PCT")
	setFloat64(&cfg.Defaults.Guardrail.MinStockPct, "ANCHORBOT_GUARDRAIL_MIN_STOCK_PCT")
	setFloat64(&cfg.Defaults.Guardrail.MaxStockPct, "ANCHORBOT_GUARDRAIL_MAX_STOCK_PCT")
	setFloat64(&cfg.Defaults.Guardrail.MaxTradePctOfPosition, "ANCHORBOT_GUARDRAIL_MAX_TRADE_PCT")
	setFloat64(&cfg.Defaults.Guardrail.MaxDailyNotional, "ANCHORBOT_GUARDRAIL_MAX_DAILY_NOTIONAL")
	setInt(&cfg.Defaults.Guardrail.MaxOrdersPerDay, "ANCHORBOT_GUARDRAIL_MAX_ORDERS_PER_DAY")
	setFloat64(&cfg.Defaults.CommissionRate, "ANCHORBOT_COMMISSION_RATE")

	// ── Sim ──
	setStr(&cfg.Sim.CSVPath, "ANCHORBOT_SIM_CSV_PATH")
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
