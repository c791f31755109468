// Package config provides configuration management using viper.
// It supports loading from YAML files, an optional .env file and
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Bot      BotConfig        `mapstructure:"bot"`
	Database DatabaseConfig   `mapstructure:"database"`
	Admin    AdminConfig      `mapstructure:"admin"`
	Voice    VoiceConfig      `mapstructure:"voice"`
	Prices   map[string]int64 `mapstructure:"prices"`
	Reports  ReportsConfig    `mapstructure:"reports"`
	Metrics  MetricsConfig    `mapstructure:"metrics"`
	Logging  LoggingConfig    `mapstructure:"logging"`
}

// BotConfig holds Discord bot configuration.
type BotConfig struct {
	Token         string `mapstructure:"token"`
	CommandPrefix string `mapstructure:"command_prefix"`
	OwnerID       int64  `mapstructure:"owner_id"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// AdminConfig holds the global admin user IDs seeded at startup.
type AdminConfig struct {
	IDs []int64 `mapstructure:"ids"`
}

// VoiceConfig holds the voice accrual engine settings.
type VoiceConfig struct {
	SweepInterval           time.Duration `mapstructure:"sweep_interval"`
	ReapInterval            time.Duration `mapstructure:"reap_interval"`
	StaleTimeout            time.Duration `mapstructure:"stale_timeout"`
	DefaultMinutesPerCredit int           `mapstructure:"default_minutes_per_credit"`
	CreditsPerLevel         int           `mapstructure:"credits_per_level"`
	NotifyJoin              bool          `mapstructure:"notify_join"`
	NotifyQueueSize         int           `mapstructure:"notify_queue_size"`
	RateCacheTTL            time.Duration `mapstructure:"rate_cache_ttl"`
}

// ReportsConfig holds the owner's periodic report settings.
// A zero DailyInterval disables the report.
type ReportsConfig struct {
	DailyInterval time.Duration `mapstructure:"daily_interval"`
}

// MetricsConfig holds the Prometheus endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in configPath, the working directory and ./config.
// A .env file in the working directory is loaded first when present.
func Load(configPath string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// e.g. BOT_TOKEN, DATABASE_HOST, VOICE_SWEEP_INTERVAL
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.command_prefix", "!")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "voicebot")
	v.SetDefault("database.name", "voicebot")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("voice.sweep_interval", "30s")
	v.SetDefault("voice.reap_interval", "2m")
	v.SetDefault("voice.stale_timeout", "2m")
	v.SetDefault("voice.default_minutes_per_credit", 10)
	v.SetDefault("voice.credits_per_level", 2)
	v.SetDefault("voice.notify_join", true)
	v.SetDefault("voice.notify_queue_size", 256)
	v.SetDefault("voice.rate_cache_ttl", "1m")

	v.SetDefault("prices", DefaultPrices())

	v.SetDefault("reports.daily_interval", "24h")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9108")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// DefaultPrices returns the built-in cost of each paid lookup service.
func DefaultPrices() map[string]int64 {
	return map[string]int64{
		"mobile":   1,
		"aadhaar":  1,
		"email":    1,
		"telegram": 5,
		"vehicle":  2,
		"fam":      1,
	}
}

// Validate checks value ranges that the engine relies on.
func (c *Config) Validate() error {
	v := c.Voice
	if v.SweepInterval <= 0 {
		return fmt.Errorf("voice.sweep_interval must be positive, got %s", v.SweepInterval)
	}
	if v.ReapInterval <= 0 {
		return fmt.Errorf("voice.reap_interval must be positive, got %s", v.ReapInterval)
	}
	// A present user's checkpoint can trail the clock by one sweep interval
	// plus the sub-minute remainder the sweeper leaves behind.
	if v.StaleTimeout <= v.SweepInterval+time.Minute {
		return fmt.Errorf("voice.stale_timeout (%s) must exceed voice.sweep_interval (%s) plus one minute",
			v.StaleTimeout, v.SweepInterval)
	}
	if v.DefaultMinutesPerCredit < 1 || v.DefaultMinutesPerCredit > 60 {
		return fmt.Errorf("voice.default_minutes_per_credit must be between 1 and 60, got %d", v.DefaultMinutesPerCredit)
	}
	if v.CreditsPerLevel < 1 {
		return fmt.Errorf("voice.credits_per_level must be at least 1, got %d", v.CreditsPerLevel)
	}
	if c.Reports.DailyInterval < 0 {
		return fmt.Errorf("reports.daily_interval must not be negative, got %s", c.Reports.DailyInterval)
	}
	for name, price := range c.Prices {
		if price < 1 {
			return fmt.Errorf("price for %q must be at least 1, got %d", name, price)
		}
	}
	return nil
}

// AdminIDs returns the configured admins including the owner, without duplicates.
func (c *Config) AdminIDs() []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	if c.Bot.OwnerID != 0 {
		seen[c.Bot.OwnerID] = true
		ids = append(ids, c.Bot.OwnerID)
	}
	for _, id := range c.Admin.IDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}
