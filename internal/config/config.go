package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

type Config struct {
	Port          string `mapstructure:"PORT"`
	AllowedOrigin string `mapstructure:"ALLOWED_ORIGIN"`

	DatabaseURL    string `mapstructure:"DATABASE_URL"`
	MigrateOnStart bool   `mapstructure:"MIGRATE_ON_START"`

	RedisURL              string `mapstructure:"REDIS_URL"`
	LedgerCacheTTLSeconds int    `mapstructure:"LEDGER_CACHE_TTL_SECONDS"`

	AuthSecret            string `mapstructure:"AUTH_SECRET"`
	AccessTokenTTLMinutes int    `mapstructure:"ACCESS_TOKEN_TTL_MINUTES"`
	SupervisorPIN         string `mapstructure:"SUPERVISOR_PIN"`

	SeedSupervisorPassword string `mapstructure:"SEED_SUPERVISOR_PASSWORD"`
	SeedOperatorPassword   string `mapstructure:"SEED_OPERATOR_PASSWORD"`

	Timezone       string `mapstructure:"TIMEZONE"`
	LogLevel       string `mapstructure:"LOG_LEVEL"`
	LogFormat      string `mapstructure:"LOG_FORMAT"`
	MetricsEnabled bool   `mapstructure:"METRICS_ENABLED"`
}

// Load reads configuration from the environment, with an optional .env file
// in the working directory for local development.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	// every key needs a default so Unmarshal sees environment overrides
	v.SetDefault("PORT", "8080")
	v.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("MIGRATE_ON_START", true)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("LEDGER_CACHE_TTL_SECONDS", 30)
	v.SetDefault("AUTH_SECRET", "")
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 720)
	v.SetDefault("SUPERVISOR_PIN", "")
	v.SetDefault("SEED_SUPERVISOR_PASSWORD", "")
	v.SetDefault("SEED_OPERATOR_PASSWORD", "")
	v.SetDefault("TIMEZONE", "America/Sao_Paulo")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("METRICS_ENABLED", false)

	_ = v.ReadInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	cfg.SupervisorPIN = strings.TrimSpace(cfg.SupervisorPIN)
	if cfg.LedgerCacheTTLSeconds < 1 {
		cfg.LedgerCacheTTLSeconds = 30
	}
	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = 720
	}
	if _, err := cfg.Location(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Location is the restaurant's wall-clock zone; business dates are taken in it.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c Config) LedgerCacheTTL() time.Duration {
	return time.Duration(c.LedgerCacheTTLSeconds) * time.Second
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}
