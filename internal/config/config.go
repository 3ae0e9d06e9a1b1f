package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Marketplace MarketplaceConfig `yaml:"marketplace" mapstructure:"marketplace"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the persistent cache backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// MarketplaceConfig holds completed-sales API credentials and tuning.
// Retries is accepted for compatibility with older deployments but the
// fetcher performs no automatic retries; only the backoff gate reacts
// to failures.
type MarketplaceConfig struct {
	AppID          string  `yaml:"app_id" mapstructure:"app_id"`
	CertID         string  `yaml:"cert_id" mapstructure:"cert_id"`
	Token          string  `yaml:"token" mapstructure:"token"`
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	CategoryID     string  `yaml:"category_id" mapstructure:"category_id"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxResults     int     `yaml:"max_results" mapstructure:"max_results"`
	LookbackDays   int     `yaml:"lookback_days" mapstructure:"lookback_days"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	Retries        int     `yaml:"retries" mapstructure:"retries"`
}

// Configured reports whether API credentials are present.
func (m MarketplaceConfig) Configured() bool {
	return m.AppID != ""
}

// CacheConfig configures the two cache tiers.
type CacheConfig struct {
	Enabled       bool `yaml:"enabled" mapstructure:"enabled"`
	DefaultDays   int  `yaml:"default_days" mapstructure:"default_days"`
	MemoryEntries int  `yaml:"memory_entries" mapstructure:"memory_entries"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BOOKPRICER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "bookpricer.db")
	v.SetDefault("marketplace.base_url", "https://svcs.ebay.com/services/search/FindingService/v1")
	v.SetDefault("marketplace.category_id", "267")
	v.SetDefault("marketplace.timeout_secs", 10)
	v.SetDefault("marketplace.max_results", 100)
	v.SetDefault("marketplace.lookback_days", 30)
	v.SetDefault("marketplace.requests_per_sec", 2.0)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.default_days", 90)
	v.SetDefault("cache.memory_entries", 1024)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the fields the named command depends on.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, fmt.Sprintf("store.driver %q is not supported (sqlite|postgres)", c.Store.Driver))
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required for the postgres driver")
	}

	switch mode {
	case "serve":
		if c.Server.Port < 1 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be between 1 and 65535")
		}
	case "lookup":
		if !c.Marketplace.Configured() {
			problems = append(problems, "marketplace.app_id is required")
		}
	}

	if len(problems) > 0 {
		return eris.New("invalid config: " + strings.Join(problems, "; "))
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
