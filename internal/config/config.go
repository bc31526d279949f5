// Package config defines the top-level configuration for the rebalancer and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by ANCHORBOT_* environment
// variables.
type Config struct {
	// Mode selects the run mode: "serve", "sim", or "once".
	Mode string `toml:"mode"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`
	// Storage selects the persistence backend: "postgres" or "memory".
	Storage string `toml:"storage"`

	Server     ServerConfig     `toml:"server"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Worker     WorkerConfig     `toml:"worker"`
	MarketData MarketDataConfig `toml:"market_data"`
	Broker     BrokerConfig     `toml:"broker"`
	Defaults   DefaultsConfig   `toml:"defaults"`
	Sim        SimConfig        `toml:"sim"`
}

// ServerConfig holds the HTTP API parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
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

// RedisConfig holds Redis connection parameters. When disabled, in-process
// implementations replace the lock manager, quote cache, and signal bus.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for event archival.
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

// WorkerConfig holds the background scheduler parameters.
type WorkerConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval duration `toml:"interval"`
}

// MarketDataConfig holds the quote provider parameters.
type MarketDataConfig struct {
	BaseURL  string   `toml:"base_url"`
	APIKey   string   `toml:"api_key"`
	Timeout  duration `toml:"timeout"`
	CacheTTL duration `toml:"cache_ttl"`
}

// BrokerConfig holds the paper broker parameters.
type BrokerConfig struct {
	SlippageBps    float64 `toml:"slippage_bps"`
	PartialFillPct float64 `toml:"partial_fill_pct"`
}

// DefaultsConfig holds the global fallbacks for the scoped configuration
// chain. Percentages are fractions: 0.03 means 3%.
type DefaultsConfig struct {
	Trigger   TriggerDefaults   `toml:"trigger"`
	Guardrail GuardrailDefaults `toml:"guardrail"`
	Policy    PolicyDefaults    `toml:"policy"`
	// CommissionRate is the global commission fallback rate.
	CommissionRate float64 `toml:"commission_rate"`
}

// TriggerDefaults holds the global trigger thresholds.
type TriggerDefaults struct {
	UpThresholdPct   float64 `toml:"up_threshold_pct"`
	DownThresholdPct float64 `toml:"down_threshold_pct"`
}

// GuardrailDefaults holds the global allocation band and trade limits. A zero
// daily limit disables it.
type GuardrailDefaults struct {
	MinStockPct           float64 `toml:"min_stock_pct"`
	MaxStockPct           float64 `toml:"max_stock_pct"`
	MaxTradePctOfPosition float64 `toml:"max_trade_pct_of_position"`
	MaxDailyNotional      float64 `toml:"max_daily_notional"`
	MaxOrdersPerDay       int     `toml:"max_orders_per_day"`
}

// PolicyDefaults holds the global order policy.
type PolicyDefaults struct {
	MinQuantity     float64 `toml:"min_quantity"`
	MinNotional     float64 `toml:"min_notional"`
	LotSize         float64 `toml:"lot_size"`
	QuantityStep    float64 `toml:"quantity_step"`
	ActionBelowMin  string  `toml:"action_below_min"`
	RebalanceRatio  float64 `toml:"rebalance_ratio"`
	AllowAfterHours bool    `toml:"allow_after_hours"`
}

// SimConfig describes a replay run: a price series CSV and the synthetic
// position it is played against.
type SimConfig struct {
	CSVPath  string  `toml:"csv_path"`
	Ticker   string  `toml:"ticker"`
	Quantity float64 `toml:"quantity"`
	Cash     float64 `toml:"cash"`
	// Anchor seeds the position's anchor price; zero leaves it unset.
	Anchor float64 `toml:"anchor"`
}

// Defaults returns the built-in configuration used before the TOML file and
// environment overrides are applied.
func Defaults() Config {
	return Config{
		Mode:     "serve",
		LogLevel: "info",
		Storage:  "memory",
		Server: ServerConfig{
			Enabled: true,
			Port:    8080,
		},
		Postgres: PostgresConfig{
			Port:          5432,
			SSLMode:       "disable",
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Worker: WorkerConfig{
			Enabled:  true,
			Interval: duration{time.Minute},
		},
		MarketData: MarketDataConfig{
			Timeout:  duration{5 * time.Second},
			CacheTTL: duration{10 * time.Second},
		},
		Broker: BrokerConfig{
			SlippageBps: 0,
		},
		Defaults: DefaultsConfig{
			Trigger: TriggerDefaults{
				UpThresholdPct:   0.03,
				DownThresholdPct: 0.03,
			},
			Guardrail: GuardrailDefaults{
				MinStockPct:           0.25,
				MaxStockPct:           0.75,
				MaxTradePctOfPosition: 0.10,
			},
			Policy: PolicyDefaults{
				MinQuantity:    1,
				LotSize:        1,
				QuantityStep:   1,
				ActionBelowMin: "hold",
				RebalanceRatio: 1,
			},
		},
		Sim: SimConfig{
			Ticker:   "SIM",
			Quantity: 100,
			Cash:     10000,
		},
	}
}

// Validate checks the configuration for internal consistency. It returns the
// first problem found.
func (c *Config) Validate() error {
	switch c.Mode {
	case "serve", "sim", "once":
	default:
		return fmt.Errorf("config: invalid mode %q (want serve, sim, or once)", c.Mode)
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("config: invalid log_level %q", c.LogLevel)
	}

	switch c.Storage {
	case "postgres":
		if c.Postgres.DSN == "" && c.Postgres.Host == "" {
			return fmt.Errorf("config: storage is postgres but neither dsn nor host is set")
		}
	case "memory":
	default:
		return fmt.Errorf("config: invalid storage %q (want postgres or memory)", c.Storage)
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("config: redis enabled but addr is empty")
	}
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			return fmt.Errorf("config: s3 enabled but bucket is empty")
		}
		if c.S3.Region == "" {
			return fmt.Errorf("config: s3 enabled but region is empty")
		}
	}

	if err := c.validateDefaults(); err != nil {
		return err
	}

	if c.Mode == "sim" && c.Sim.CSVPath == "" {
		return fmt.Errorf("config: sim mode requires sim.csv_path")
	}
	return nil
}

func (c *Config) validateDefaults() error {
	d := c.Defaults

	if d.Trigger.UpThresholdPct <= 0 || d.Trigger.DownThresholdPct <= 0 {
		return fmt.Errorf("config: trigger thresholds must be positive fractions")
	}

	g := d.Guardrail
	if g.MinStockPct < 0 || g.MaxStockPct > 1 || g.MinStockPct >= g.MaxStockPct {
		return fmt.Errorf("config: allocation band [%v, %v] must satisfy 0 <= min < max <= 1",
			g.MinStockPct, g.MaxStockPct)
	}
	if g.MaxTradePctOfPosition <= 0 || g.MaxTradePctOfPosition > 1 {
		return fmt.Errorf("config: max_trade_pct_of_position must be in (0, 1]")
	}
	if g.MaxDailyNotional < 0 || g.MaxOrdersPerDay < 0 {
		return fmt.Errorf("config: daily limits must be non-negative")
	}

	switch d.Policy.ActionBelowMin {
	case "hold", "reject":
	default:
		return fmt.Errorf("config: action_below_min must be hold or reject, got %q", d.Policy.ActionBelowMin)
	}
	if d.Policy.RebalanceRatio < 0 {
		return fmt.Errorf("config: rebalance_ratio must be non-negative")
	}
	if d.CommissionRate < 0 || d.CommissionRate >= 1 {
		return fmt.Errorf("config: commission_rate must be in [0, 1)")
	}
	return nil
}

// duration wraps time.Duration so TOML values like "30s" parse directly.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}
