// internal/common/config/loader.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var knownEndpoints = map[string]bool{
	"dashboard":  true,
	"jobs":       true,
	"workers":    true,
	"executions": true,
}

// Load reads config.yaml, then merges config.<APP_ENVIRONMENT>.yaml on top of it.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // optional

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile loads the first .env found walking up towards the project root.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars substitutes ${VAR} placeholders. An unset variable expands to
// "" so overrideEmptyConfig and defaults still apply.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			if expanded := os.ExpandEnv(strVal); expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills secrets from well-known env vars when the files leave them empty.
func overrideEmptyConfig(cfg *Config) {
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = os.Getenv("STATS_API_BASE_URL")
	}
	if cfg.API.Token == "" {
		cfg.API.Token = os.Getenv("STATS_API_TOKEN")
	}
	if cfg.API.Keycloak.ClientSecret == "" {
		cfg.API.Keycloak.ClientSecret = os.Getenv("KEYCLOAK_CLIENT_SECRET")
	}
	if cfg.Sinks.Postgres.Password == "" {
		cfg.Sinks.Postgres.Password = os.Getenv("DB_PASSWORD")
	}
	if cfg.Sinks.Redis.Password == "" {
		cfg.Sinks.Redis.Password = os.Getenv("REDIS_PASSWORD")
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "stats-poller"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}

	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = 15000
	}
	if cfg.API.UserAgent == "" {
		cfg.API.UserAgent = "scheduler-stats"
		if cfg.App.Version != "" {
			cfg.API.UserAgent += "/" + cfg.App.Version
		}
	}

	if cfg.Poller.Interval == 0 {
		cfg.Poller.Interval = 30000
	}
	if cfg.Poller.Concurrency == 0 {
		cfg.Poller.Concurrency = 4
	}
	if len(cfg.Poller.Endpoints) == 0 {
		cfg.Poller.Endpoints = []string{"dashboard", "workers", "executions"}
		if len(cfg.Poller.JobIDs) > 0 {
			cfg.Poller.Endpoints = append(cfg.Poller.Endpoints, "jobs")
		}
	}

	if cfg.Sinks.Redis.KeyPrefix == "" {
		cfg.Sinks.Redis.KeyPrefix = "stats:"
	}
	if cfg.Sinks.Redis.TTL == 0 {
		cfg.Sinks.Redis.TTL = 300000
	}

	if cfg.Sinks.Postgres.Port == 0 {
		cfg.Sinks.Postgres.Port = 5432
	}
	if cfg.Sinks.Postgres.MaxConnections == 0 {
		cfg.Sinks.Postgres.MaxConnections = 5
	}
	if cfg.Sinks.Postgres.MaxIdle == 0 {
		cfg.Sinks.Postgres.MaxIdle = 2
	}
	if cfg.Sinks.Postgres.SSLMode == "" {
		cfg.Sinks.Postgres.SSLMode = "disable"
	}
	if cfg.Sinks.Postgres.Table == "" {
		cfg.Sinks.Postgres.Table = "stats_snapshots"
	}

	if cfg.Sinks.Elasticsearch.Index == "" {
		cfg.Sinks.Elasticsearch.Index = "stats-snapshots"
	}

	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = ":9090"
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = 1.0
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	parsed, err := url.Parse(cfg.API.BaseURL)
	if err != nil {
		return fmt.Errorf("api.base_url is invalid: %w", err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute http(s) URL")
	}
	if cfg.API.Keycloak.Enabled() && (cfg.API.Keycloak.Realm == "" || cfg.API.Keycloak.ClientID == "") {
		return fmt.Errorf("api.keycloak.realm and api.keycloak.client_id are required when keycloak is enabled")
	}

	if cfg.Poller.Interval < 0 {
		return fmt.Errorf("poller.interval must be positive")
	}
	if cfg.Poller.Concurrency < 0 {
		return fmt.Errorf("poller.concurrency must be positive")
	}
	for _, ep := range cfg.Poller.Endpoints {
		if !knownEndpoints[ep] {
			return fmt.Errorf("poller.endpoints: unknown endpoint %q", ep)
		}
		if ep == "jobs" && len(cfg.Poller.JobIDs) == 0 {
			return fmt.Errorf("poller.job_ids is required when polling the jobs endpoint")
		}
	}

	if cfg.Sinks.Redis.Enabled && cfg.Sinks.Redis.Address == "" {
		return fmt.Errorf("sinks.redis.address is required")
	}
	if cfg.Sinks.Postgres.Enabled {
		if cfg.Sinks.Postgres.Host == "" {
			return fmt.Errorf("sinks.postgres.host is required")
		}
		if cfg.Sinks.Postgres.Database == "" {
			return fmt.Errorf("sinks.postgres.database is required")
		}
		if cfg.Sinks.Postgres.User == "" {
			return fmt.Errorf("sinks.postgres.user is required")
		}
	}
	if cfg.Sinks.Elasticsearch.Enabled && len(cfg.Sinks.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("sinks.elasticsearch.addresses is required")
	}

	return nil
}
