// Package config loads runtime configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"daily-feature-store/internal/storage"
)

// Config holds settings shared by the commands. Flags override these values.
type Config struct {
	PGHost     string `envconfig:"PG_HOST" default:"postgres"`
	PGPort     int    `envconfig:"PG_PORT" default:"5432"`
	PGDB       string `envconfig:"PG_DB" default:"trading_db"`
	PGUser     string `envconfig:"PG_USER" default:"trading_user"`
	PGPassword string `envconfig:"PG_PASSWORD"`
	PGSSLMode  string `envconfig:"PG_SSLMODE" default:"disable"`

	SchemaRaw       string   `envconfig:"PG_SCHEMA_RAW" default:"raw"`
	SchemaAnalytics string   `envconfig:"PG_SCHEMA_ANALYTICS" default:"analytics"`
	SchemaAllow     []string `envconfig:"PG_SCHEMA_ALLOW"` // extends the built-in allow-list

	ClickhouseDSN string `envconfig:"CLICKHOUSE_DSN"`

	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogDevelopment bool   `envconfig:"LOG_DEVELOPMENT" default:"false"`

	ModelPath       string        `envconfig:"MODEL_PATH" default:"models/model.yaml"`
	APIPort         int           `envconfig:"API_PORT" default:"5000"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`

	PushgatewayURL string `envconfig:"PUSHGATEWAY_URL"`
}

// ErrMissingPassword is returned when PostgreSQL is needed but PG_PASSWORD is unset.
var ErrMissingPassword = errors.New("PG_PASSWORD is not set")

// Load reads envFile (if it exists) into the process environment without
// overriding variables that are already set, then decodes the environment.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("load %s: %w", envFile, err)
			}
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	if err := cfg.Schemas().Validate(cfg.SchemaAllow...); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Schemas returns the configured source and destination schemas.
func (c *Config) Schemas() storage.Schemas {
	return storage.Schemas{Raw: c.SchemaRaw, Analytics: c.SchemaAnalytics}
}

// PostgresDSN builds a postgres:// URL. Credentials are escaped.
func (c *Config) PostgresDSN() (string, error) {
	if c.PGPassword == "" {
		return "", ErrMissingPassword
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.PGUser, c.PGPassword),
		Host:   net.JoinHostPort(c.PGHost, strconv.Itoa(c.PGPort)),
		Path:   "/" + c.PGDB,
	}
	q := url.Values{}
	q.Set("sslmode", c.PGSSLMode)
	u.RawQuery = q.Encode()

	return u.String(), nil
}
