package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creatorhub/backend/internal/domain"
	"github.com/creatorhub/backend/pkg/money"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Port        int
	Env         string
	LogLevel    string
	LogFormat   string
	JWTSecret   string
	CronSecret  string
	CORSOrigins []string

	StoreDriver string
	DatabaseURL string
	DBMaxConns  int32

	Redis RedisConfig

	SweepInterval    time.Duration
	SweepConcurrency int
	SweepLockTTL     time.Duration
	RenewalMode      domain.RenewalMode
	MaxTopUp         money.Amount
}

// RedisConfig configures the optional Redis used for the sweep lock. An empty
// Addr means no Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis address is configured.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

// Load reads .env (if present) and the environment, applying defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 4001)
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_DRIVER", DriverPostgres)
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("SWEEP_INTERVAL", "1h")
	v.SetDefault("SWEEP_CONCURRENCY", 4)
	v.SetDefault("SWEEP_LOCK_TTL", "10m")
	v.SetDefault("RENEWAL_MODE", string(domain.RenewalFixed))
	v.SetDefault("MAX_TOP_UP", "500.00")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:        v.GetInt("PORT"),
		Env:         v.GetString("APP_ENV"),
		LogLevel:    strings.ToLower(v.GetString("LOG_LEVEL")),
		LogFormat:   strings.ToLower(v.GetString("LOG_FORMAT")),
		JWTSecret:   v.GetString("JWT_SECRET"),
		CronSecret:  v.GetString("CRON_SECRET"),
		StoreDriver: strings.ToLower(v.GetString("STORE_DRIVER")),
		DatabaseURL: v.GetString("DATABASE_URL"),
		DBMaxConns:  v.GetInt32("DB_MAX_CONNS"),
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		SweepInterval:    v.GetDuration("SWEEP_INTERVAL"),
		SweepConcurrency: v.GetInt("SWEEP_CONCURRENCY"),
		SweepLockTTL:     v.GetDuration("SWEEP_LOCK_TTL"),
		RenewalMode:      domain.RenewalMode(strings.ToLower(v.GetString("RENEWAL_MODE"))),
	}

	if cfg.LogFormat == "" {
		cfg.LogFormat = "console"
		if cfg.Env == "production" {
			cfg.LogFormat = "json"
		}
	}

	for _, o := range strings.Split(v.GetString("CORS_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}

	maxTopUp, err := money.Parse(v.GetString("MAX_TOP_UP"))
	if err != nil {
		return nil, fmt.Errorf("MAX_TOP_UP: %w", err)
	}
	cfg.MaxTopUp = maxTopUp

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.CronSecret == "" {
		return fmt.Errorf("CRON_SECRET is required")
	}
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMemory, c.StoreDriver)
	}
	switch c.RenewalMode {
	case domain.RenewalFixed, domain.RenewalTier:
	default:
		return fmt.Errorf("RENEWAL_MODE must be %q or %q, got %q", domain.RenewalFixed, domain.RenewalTier, c.RenewalMode)
	}
	if c.SweepInterval < 0 {
		return fmt.Errorf("SWEEP_INTERVAL must not be negative")
	}
	if c.SweepConcurrency < 1 {
		return fmt.Errorf("SWEEP_CONCURRENCY must be at least 1")
	}
	if c.SweepLockTTL <= 0 {
		return fmt.Errorf("SWEEP_LOCK_TTL must be positive")
	}
	if !c.MaxTopUp.IsPositive() {
		return fmt.Errorf("MAX_TOP_UP must be positive")
	}
	return nil
}
