package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"tokenwatch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// CacheConfig tunes the two cache tiers.
type CacheConfig struct {
	MemoryTTL time.Duration `mapstructure:"memory_ttl"`
	PriceTTL  time.Duration `mapstructure:"price_ttl"`
}

// ProvidersConfig selects and parameterises upstream data sources.
type ProvidersConfig struct {
	// Primary names the source tried first for symbol lookups.
	Primary     string            `mapstructure:"primary"`
	CoinGecko   CoinGeckoConfig   `mapstructure:"coingecko"`
	DexScreener DexScreenerConfig `mapstructure:"dexscreener"`
	Binance     BinanceConfig     `mapstructure:"binance"`
}

// CoinGeckoConfig covers the aggregator API source.
type CoinGeckoConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RateLimit      int           `mapstructure:"rate_limit"`
}

// DexScreenerConfig covers the DEX pair-index source, including the pair
// filter thresholds that bias selection toward established pairs.
type DexScreenerConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MinLiquidity   float64       `mapstructure:"min_liquidity"`
	MinVolume      float64       `mapstructure:"min_volume"`
	MinPairAge     time.Duration `mapstructure:"min_pair_age"`
	TopPairs       int           `mapstructure:"top_pairs"`
}

// BinanceConfig covers the exchange API source.
type BinanceConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// SchedulerConfig governs the periodic loops.
type SchedulerConfig struct {
	AlertInterval     time.Duration `mapstructure:"alert_interval"`
	WatchlistInterval time.Duration `mapstructure:"watchlist_interval"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	StartupDelay      time.Duration `mapstructure:"startup_delay"`
}

// TelegramConfig describes notification delivery.
type TelegramConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BotToken       string        `mapstructure:"bot_token"`
	APIBase        string        `mapstructure:"api_base"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TOKENWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "tokenwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")

	v.SetDefault("cache.memory_ttl", "30s")
	v.SetDefault("cache.price_ttl", "5m")

	v.SetDefault("providers.primary", "coingecko")
	v.SetDefault("providers.coingecko.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("providers.coingecko.request_timeout", "10s")
	v.SetDefault("providers.coingecko.rate_limit", 30)
	v.SetDefault("providers.dexscreener.base_url", "https://api.dexscreener.com")
	v.SetDefault("providers.dexscreener.request_timeout", "10s")
	v.SetDefault("providers.dexscreener.min_liquidity", 10000.0)
	v.SetDefault("providers.dexscreener.min_volume", 1000.0)
	v.SetDefault("providers.dexscreener.min_pair_age", "24h")
	v.SetDefault("providers.dexscreener.top_pairs", 20)
	v.SetDefault("providers.binance.base_url", "https://api.binance.com")
	v.SetDefault("providers.binance.request_timeout", "10s")

	v.SetDefault("scheduler.alert_interval", "1m")
	v.SetDefault("scheduler.watchlist_interval", "10m")
	v.SetDefault("scheduler.sweep_interval", "1h")
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.request_timeout", "10s")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	switch c.Providers.Primary {
	case "coingecko", "dexscreener", "binance":
	default:
		return fmt.Errorf("providers.primary must be one of coingecko, dexscreener, binance")
	}
	if c.Cache.MemoryTTL <= 0 {
		return fmt.Errorf("cache.memory_ttl must be greater than zero")
	}
	if c.Cache.PriceTTL <= 0 {
		return fmt.Errorf("cache.price_ttl must be greater than zero")
	}
	if c.Scheduler.AlertInterval <= 0 {
		return fmt.Errorf("scheduler.alert_interval must be greater than zero")
	}
	if c.Scheduler.WatchlistInterval <= 0 {
		return fmt.Errorf("scheduler.watchlist_interval must be greater than zero")
	}
	if c.Scheduler.SweepInterval <= 0 {
		return fmt.Errorf("scheduler.sweep_interval must be greater than zero")
	}
	if c.Providers.DexScreener.TopPairs <= 0 {
		return fmt.Errorf("providers.dexscreener.top_pairs must be greater than zero")
	}
	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
	}
	return nil
}
