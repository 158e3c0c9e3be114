// Package config loads and validates server config from the environment and an optional .env file.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	devAccessSecret = "dev-access-secret"
)

type Config struct {
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// MySQLDSN is the gorm/MySQL DSN of the document store. Empty only in development,
	// where an in-memory store is used.
	MySQLDSN string `mapstructure:"MYSQL_DSN"`

	// RedisAddr enables the token check and the cross-instance in-flight guard when set.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// KafkaBrokers is comma-separated; membership events are published when set.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string `mapstructure:"KAFKA_TOPIC"`

	JWTAccessSecret  string `mapstructure:"JWT_ACCESS_SECRET"`
	JWTRefreshSecret string `mapstructure:"JWT_REFRESH_SECRET"`

	SessionIdleTTL time.Duration `mapstructure:"SESSION_IDLE_TTL"`
	// ReconcileInterval of 0 disables the member count reconciler.
	ReconcileInterval  time.Duration `mapstructure:"RECONCILE_INTERVAL"`
	ReconcileBatchSize int           `mapstructure:"RECONCILE_BATCH_SIZE"`

	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then the environment. Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("MYSQL_DSN", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "community-membership")
	v.SetDefault("JWT_ACCESS_SECRET", "")
	v.SetDefault("JWT_REFRESH_SECRET", "")
	v.SetDefault("SESSION_IDLE_TTL", "30m")
	v.SetDefault("RECONCILE_INTERVAL", "0s")
	v.SetDefault("RECONCILE_BATCH_SIZE", 500)
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.MySQLDSN == "" && !cfg.Development() {
		return nil, errors.New("config: MYSQL_DSN must be set unless APP_ENV=development")
	}
	if cfg.JWTAccessSecret == "" {
		if !cfg.Development() {
			return nil, errors.New("config: JWT_ACCESS_SECRET must be set unless APP_ENV=development")
		}
		cfg.JWTAccessSecret = devAccessSecret
	}
	if cfg.ReconcileInterval < 0 {
		return nil, errors.New("config: RECONCILE_INTERVAL must not be negative")
	}
	if cfg.ReconcileBatchSize <= 0 {
		cfg.ReconcileBatchSize = 500
	}

	return &cfg, nil
}

func (c *Config) Development() bool {
	return c.Env == EnvDevelopment
}

// KafkaBrokersList returns broker addresses from the comma-separated config.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
