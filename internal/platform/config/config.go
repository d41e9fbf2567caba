// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/pesio-ai/be-ops-reports/internal/platform/database"
	"github.com/pesio-ai/be-ops-reports/internal/platform/errors"
)

// Config is the full service configuration.
type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Service  ServiceConfig  `envPrefix:"SERVICE_"`
	Server   ServerConfig   `envPrefix:"SERVER_"`
	Database DatabaseConfig `envPrefix:"DB_"`
	NATS     NATSConfig     `envPrefix:"NATS_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	Auth     AuthConfig     `envPrefix:"AUTH_"`
	Workflow WorkflowConfig `envPrefix:"WORKFLOW_"`
}

type ServiceConfig struct {
	Name        string `env:"NAME" envDefault:"be-ops-reports"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Version     string `env:"VERSION" envDefault:"dev"`
}

type ServerConfig struct {
	Port            int           `env:"PORT" envDefault:"8086"`
	GRPCPort        int           `env:"GRPC_PORT" envDefault:"9086"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"20s"`
}

type DatabaseConfig struct {
	Host        string        `env:"HOST" envDefault:"localhost"`
	Port        int           `env:"PORT" envDefault:"5432"`
	User        string        `env:"USER" envDefault:"postgres"`
	Password    string        `env:"PASSWORD"`
	Database    string        `env:"NAME" envDefault:"reports"`
	SSLMode     string        `env:"SSLMODE" envDefault:"disable"`
	MaxConns    int32         `env:"MAX_CONNS" envDefault:"20"`
	MinConns    int32         `env:"MIN_CONNS" envDefault:"2"`
	MaxConnTime time.Duration `env:"MAX_CONN_TIME" envDefault:"1h"`
	MaxIdleTime time.Duration `env:"MAX_IDLE_TIME" envDefault:"30m"`
	HealthCheck time.Duration `env:"HEALTH_CHECK" envDefault:"1m"`
}

type NATSConfig struct {
	URL           string `env:"URL" envDefault:"nats://localhost:4222"`
	SubjectPrefix string `env:"SUBJECT_PREFIX" envDefault:"notifications.reports"`
}

// RedisConfig is optional; an empty Addr disables the approval chain cache.
type RedisConfig struct {
	Addr     string        `env:"ADDR"`
	Password string        `env:"PASSWORD"`
	DB       int           `env:"DB" envDefault:"0"`
	ChainTTL time.Duration `env:"CHAIN_TTL" envDefault:"5m"`
}

type AuthConfig struct {
	JWTSecret string `env:"JWT_SECRET"`
	Issuer    string `env:"ISSUER"`
}

type WorkflowConfig struct {
	// DefaultApprovalOrgID is the organization whose approval chain applies
	// when an author has no organization or their organization has no chain.
	DefaultApprovalOrgID string `env:"DEFAULT_APPROVAL_ORG_ID"`
}

// Parse reads the environment without validating it. Operator commands
// that only touch the database use it directly.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	cfg, err := Parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that have no safe default.
func (c *Config) Validate() error {
	if c.Workflow.DefaultApprovalOrgID == "" {
		return errors.Configuration("WORKFLOW_DEFAULT_APPROVAL_ORG_ID must be set")
	}
	if c.Auth.JWTSecret == "" {
		return errors.Configuration("AUTH_JWT_SECRET must be set")
	}
	return nil
}

// DatabaseOptions converts the database section for database.New.
func (c *Config) DatabaseOptions() database.Config {
	return database.Config{
		Host:        c.Database.Host,
		Port:        c.Database.Port,
		User:        c.Database.User,
		Password:    c.Database.Password,
		Database:    c.Database.Database,
		SSLMode:     c.Database.SSLMode,
		MaxConns:    c.Database.MaxConns,
		MinConns:    c.Database.MinConns,
		MaxConnTime: c.Database.MaxConnTime,
		MaxIdleTime: c.Database.MaxIdleTime,
		HealthCheck: c.Database.HealthCheck,
	}
}
