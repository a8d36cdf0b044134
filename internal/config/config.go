package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is the top-level configuration.
type Config struct {
	Store     StoreConfig      `yaml:"store" mapstructure:"store"`
	Cache     CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Redis     RedisConfig      `yaml:"redis" mapstructure:"redis"`
	Waterfall WaterfallConfig  `yaml:"waterfall" mapstructure:"waterfall"`
	Circuit   CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
	Retry     RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Server    ServerConfig     `yaml:"server" mapstructure:"server"`
	Log       LogConfig        `yaml:"log" mapstructure:"log"`
	Monitor   MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Providers []ProviderConfig `yaml:"providers" mapstructure:"providers"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // postgres, sqlite or memory
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// CacheConfig selects the enrichment cache backend.
type CacheConfig struct {
	Backend           string `yaml:"backend" mapstructure:"backend"` // memory, redis or store
	SweepIntervalSecs int    `yaml:"sweep_interval_secs" mapstructure:"sweep_interval_secs"`
}

// RedisConfig holds Redis connection settings for the redis cache backend.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
	Prefix   string `yaml:"prefix" mapstructure:"prefix"`
}

// WaterfallConfig holds orchestrator settings.
type WaterfallConfig struct {
	ConfigPath       string  `yaml:"config_path" mapstructure:"config_path"`
	FieldConcurrency int     `yaml:"field_concurrency" mapstructure:"field_concurrency"`
	AcceptBestEffort bool    `yaml:"accept_best_effort" mapstructure:"accept_best_effort"`
	MaxCostPerJob    float64 `yaml:"max_cost_per_job" mapstructure:"max_cost_per_job"`
}

// CircuitConfig configures the per-provider circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	OpenDurationSecs int `yaml:"open_duration_secs" mapstructure:"open_duration_secs"`
}

// RetryConfig configures transient retries inside HTTP adapters.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MonitoringConfig configures the background alert checker.
type MonitoringConfig struct {
	Enabled                 bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL              string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs       int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours     int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold    float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	ExhaustionRateThreshold float64 `yaml:"exhaustion_rate_threshold" mapstructure:"exhaustion_rate_threshold"`
	SpendThresholdUSD       float64 `yaml:"spend_threshold_usd" mapstructure:"spend_threshold_usd"`
}

// ProviderConfig declares a vendor adapter and its global catalog entry.
// Type "http" builds a JSON-over-HTTP adapter; "static" answers from Values.
type ProviderConfig struct {
	ID            string            `yaml:"id" mapstructure:"id"`
	Name          string            `yaml:"name" mapstructure:"name"`
	Type          string            `yaml:"type" mapstructure:"type"`
	BaseURL       string            `yaml:"base_url" mapstructure:"base_url"`
	APIKey        string            `yaml:"api_key" mapstructure:"api_key"`
	Fields        []string          `yaml:"fields" mapstructure:"fields"`
	CostPerLookup float64           `yaml:"cost_per_lookup" mapstructure:"cost_per_lookup"`
	Priority      int               `yaml:"priority" mapstructure:"priority"`
	Disabled      bool              `yaml:"disabled" mapstructure:"disabled"`
	RatePerSecond float64           `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Burst         int               `yaml:"burst" mapstructure:"burst"`
	Confidence    float64           `yaml:"confidence" mapstructure:"confidence"`
	Values        map[string]string `yaml:"values" mapstructure:"values"`
}

// Load reads configuration from config.yaml, environment variables and defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "enrich.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("cache.backend", "store")
	v.SetDefault("cache.sweep_interval_secs", 3600)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.prefix", "enrich:cache")
	v.SetDefault("waterfall.field_concurrency", 4)
	v.SetDefault("waterfall.accept_best_effort", true)
	v.SetDefault("waterfall.max_cost_per_job", 0.0)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.open_duration_secs", 60)
	v.SetDefault("retry.max_attempts", 2)
	v.SetDefault("retry.initial_backoff_ms", 200)
	v.SetDefault("retry.max_backoff_ms", 1000)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.2)
	v.SetDefault("monitoring.exhaustion_rate_threshold", 0.5)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. Mode is "serve", "enrich"
// or "store"; unknown modes only run the common checks.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			problems = append(problems, "store.sqlite_path is required for the sqlite driver")
		}
	case "memory":
	default:
		problems = append(problems, fmt.Sprintf("store.driver %q is not one of postgres, sqlite, memory", c.Store.Driver))
	}

	if mode == "serve" || mode == "enrich" {
		switch c.Cache.Backend {
		case "memory", "store":
		case "redis":
			if c.Redis.Addr == "" {
				problems = append(problems, "redis.addr is required for the redis cache backend")
			}
		default:
			problems = append(problems, fmt.Sprintf("cache.backend %q is not one of memory, redis, store", c.Cache.Backend))
		}
		if c.Waterfall.FieldConcurrency < 1 {
			problems = append(problems, "waterfall.field_concurrency must be at least 1")
		}
		if c.Waterfall.MaxCostPerJob < 0 {
			problems = append(problems, "waterfall.max_cost_per_job must be non-negative")
		}
		if c.Circuit.FailureThreshold < 1 {
			problems = append(problems, "circuit.failure_threshold must be at least 1")
		}
		if c.Circuit.OpenDurationSecs < 1 {
			problems = append(problems, "circuit.open_duration_secs must be at least 1")
		}
		seen := make(map[string]bool, len(c.Providers))
		for i, p := range c.Providers {
			if p.ID == "" {
				problems = append(problems, fmt.Sprintf("providers[%d].id is required", i))
				continue
			}
			if seen[p.ID] {
				problems = append(problems, fmt.Sprintf("providers[%d].id %q is duplicated", i, p.ID))
			}
			seen[p.ID] = true
			switch p.Type {
			case "", "http":
				if p.BaseURL == "" {
					problems = append(problems, fmt.Sprintf("providers[%d].base_url is required for http providers", i))
				}
			case "static":
			default:
				problems = append(problems, fmt.Sprintf("providers[%d].type %q is not one of http, static", i, p.Type))
			}
		}
	}

	if mode == "serve" && (c.Server.Port < 1 || c.Server.Port > 65535) {
		problems = append(problems, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}
	if mode == "serve" && c.Monitor.Enabled && c.Monitor.LookbackWindowHours < 1 {
		problems = append(problems, "monitoring.lookback_window_hours must be at least 1")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
