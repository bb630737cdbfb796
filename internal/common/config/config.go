// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	API     APIConfig     `mapstructure:"api"`
	Poller  PollerConfig  `mapstructure:"poller"`
	Sinks   SinksConfig   `mapstructure:"sinks"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// --- Core App Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// APIConfig describes the statistics backend and how to reach it.
type APIConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	Timeout   int    `mapstructure:"timeout"` // milliseconds
	Token     string `mapstructure:"token"`
	UserAgent string `mapstructure:"user_agent"`

	Keycloak KeycloakConfig `mapstructure:"keycloak"`
}

// KeycloakConfig enables client-credentials auth when URL is set.
type KeycloakConfig struct {
	URL          string `mapstructure:"url"`
	Realm        string `mapstructure:"realm"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

// Enabled reports whether the Keycloak token source should be used.
func (k KeycloakConfig) Enabled() bool {
	return k.URL != ""
}

// PollerConfig controls which statistics are collected and how often.
type PollerConfig struct {
	Interval        int               `mapstructure:"interval"` // milliseconds
	Concurrency     int               `mapstructure:"concurrency"`
	Endpoints       []string          `mapstructure:"endpoints"`
	JobIDs          []string          `mapstructure:"job_ids"`
	ExecutionParams map[string]string `mapstructure:"execution_params"`
}

// SinksConfig holds the snapshot destinations.
type SinksConfig struct {
	Redis         RedisSinkConfig         `mapstructure:"redis"`
	Postgres      PostgresSinkConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchSinkConfig `mapstructure:"elasticsearch"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RedisSinkConfig struct {
	RedisConfig `mapstructure:",squash"`
	Enabled     bool   `mapstructure:"enabled"`
	KeyPrefix   string `mapstructure:"key_prefix"`
	TTL         int    `mapstructure:"ttl"` // milliseconds
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type PostgresSinkConfig struct {
	PostgresConfig `mapstructure:",squash"`
	Enabled        bool   `mapstructure:"enabled"`
	Table          string `mapstructure:"table"`
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

type ElasticsearchSinkConfig struct {
	ElasticsearchConfig `mapstructure:",squash"`
	Enabled             bool   `mapstructure:"enabled"`
	Index               string `mapstructure:"index"`
}

// MetricsConfig holds the Prometheus listener settings.
type MetricsConfig struct {
	Address string `mapstructure:"address"`
}

// TracingConfig holds span export settings. Tracing is off when JaegerEndpoint is empty.
type TracingConfig struct {
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
