package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFromFile_Defaults(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: http://scheduler.local/api
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "http://scheduler.local/api", cfg.API.BaseURL)
	assert.Equal(t, 15000, cfg.API.Timeout)
	assert.Equal(t, "scheduler-stats", cfg.API.UserAgent)
	assert.Equal(t, 30000, cfg.Poller.Interval)
	assert.Equal(t, 4, cfg.Poller.Concurrency)
	assert.Equal(t, []string{"dashboard", "workers", "executions"}, cfg.Poller.Endpoints)
	assert.Equal(t, "stats:", cfg.Sinks.Redis.KeyPrefix)
	assert.Equal(t, "stats_snapshots", cfg.Sinks.Postgres.Table)
	assert.Equal(t, "stats-snapshots", cfg.Sinks.Elasticsearch.Index)
	assert.Equal(t, ":9090", cfg.Metrics.Address)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 15*time.Second, GetDuration(cfg.API.Timeout))
}

func TestLoadFromFile_FullConfig(t *testing.T) {
	path := writeConfig(t, `
app:
  name: stats-poller
  version: 1.2.0
api:
  base_url: https://scheduler.example.com
  timeout: 5000
  keycloak:
    url: https://sso.example.com
    realm: ops
    client_id: stats
poller:
  interval: 10000
  endpoints: [dashboard, jobs]
  job_ids: ["42", "43"]
  execution_params:
    status: done
sinks:
  redis:
    enabled: true
    address: localhost:6379
    ttl: 60000
  postgres:
    enabled: true
    host: db
    database: stats
    user: stats
  elasticsearch:
    enabled: true
    addresses: [http://es:9200]
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "scheduler-stats/1.2.0", cfg.API.UserAgent)
	assert.True(t, cfg.API.Keycloak.Enabled())
	assert.Equal(t, []string{"42", "43"}, cfg.Poller.JobIDs)
	assert.Equal(t, map[string]string{"status": "done"}, cfg.Poller.ExecutionParams)
	assert.True(t, cfg.Sinks.Redis.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Sinks.Redis.Address)
	assert.Equal(t, 60000, cfg.Sinks.Redis.TTL)
	assert.Equal(t, 5432, cfg.Sinks.Postgres.Port)
	assert.Equal(t, "host=db port=5432 user=stats password= dbname=stats sslmode=disable", cfg.Sinks.Postgres.GetDSN())
	assert.Equal(t, []string{"http://es:9200"}, cfg.Sinks.Elasticsearch.Addresses)
}

func TestLoadFromFile_EnvExpansion(t *testing.T) {
	t.Setenv("STATS_TEST_HOST", "stats.internal:8080")
	path := writeConfig(t, `
api:
  base_url: http://${STATS_TEST_HOST}
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "http://stats.internal:8080", cfg.API.BaseURL)
}

func TestLoadFromFile_UnsetPlaceholdersExpandEmpty(t *testing.T) {
	t.Setenv("STATS_TEST_URL", "")
	t.Setenv("STATS_TEST_SECRET", "")
	path := writeConfig(t, `
api:
  base_url: http://scheduler.local/api
  token: ${STATS_TEST_SECRET}
  keycloak:
    url: ${STATS_TEST_URL}
sinks:
  redis:
    enabled: true
    address: localhost:6379
    password: ${STATS_TEST_SECRET}
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.API.Token)
	assert.Empty(t, cfg.API.Keycloak.URL)
	assert.False(t, cfg.API.Keycloak.Enabled())
	assert.Empty(t, cfg.Sinks.Redis.Password)
}

func TestLoadFromFile_SampleConfig(t *testing.T) {
	for _, key := range []string{"STATS_API_TOKEN", "KEYCLOAK_URL", "KEYCLOAK_CLIENT_SECRET", "REDIS_PASSWORD", "DB_PASSWORD"} {
		t.Setenv(key, "")
	}
	t.Setenv("STATS_API_BASE_URL", "http://scheduler.local/api")

	cfg, err := LoadFromFile(filepath.Join("..", "..", "..", "configs", "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "http://scheduler.local/api", cfg.API.BaseURL)
	assert.Empty(t, cfg.API.Token)
	assert.False(t, cfg.API.Keycloak.Enabled())
	assert.Empty(t, cfg.API.Keycloak.ClientSecret)
	assert.True(t, cfg.Sinks.Redis.Enabled)
	assert.Empty(t, cfg.Sinks.Redis.Password)
	assert.Empty(t, cfg.Sinks.Postgres.Password)
}

func TestLoadFromFile_SampleConfigWithSecrets(t *testing.T) {
	t.Setenv("STATS_API_BASE_URL", "http://scheduler.local/api")
	t.Setenv("STATS_API_TOKEN", "tkn")
	t.Setenv("REDIS_PASSWORD", "hunter2")
	t.Setenv("KEYCLOAK_URL", "")

	cfg, err := LoadFromFile(filepath.Join("..", "..", "..", "configs", "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "tkn", cfg.API.Token)
	assert.Equal(t, "hunter2", cfg.Sinks.Redis.Password)
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing base url",
			content: "poller:\n  interval: 1000\n",
			wantErr: "api.base_url is required",
		},
		{
			name:    "relative base url",
			content: "api:\n  base_url: /api\n",
			wantErr: "absolute http(s) URL",
		},
		{
			name:    "unknown endpoint",
			content: "api:\n  base_url: http://x\npoller:\n  endpoints: [queues]\n",
			wantErr: `unknown endpoint "queues"`,
		},
		{
			name:    "jobs without ids",
			content: "api:\n  base_url: http://x\npoller:\n  endpoints: [jobs]\n",
			wantErr: "poller.job_ids is required",
		},
		{
			name:    "redis without address",
			content: "api:\n  base_url: http://x\nsinks:\n  redis:\n    enabled: true\n",
			wantErr: "sinks.redis.address is required",
		},
		{
			name:    "keycloak without realm",
			content: "api:\n  base_url: http://x\n  keycloak:\n    url: http://sso\n",
			wantErr: "api.keycloak.realm",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("STATS_API_BASE_URL", "")
			_, err := LoadFromFile(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
