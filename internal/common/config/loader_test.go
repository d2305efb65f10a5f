package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
camunda:
  broker_address: localhost:26500
  use_plaintext: true
database:
  postgres:
    host: localhost
    database: solvency
    user: solvency
  redis:
    address: localhost:6379
workers:
  save-solvency-assessment:
    enabled: true
    timeout: 10000
  send-rating-notification:
    enabled: false
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "solvency-workers", cfg.App.Name)
	assert.Equal(t, ":8080", cfg.App.HTTPAddress)
	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
	assert.Equal(t, "disable", cfg.Database.Postgres.SSLMode)
	assert.Equal(t, 900, cfg.Solvency.CacheTTL)
	assert.Equal(t, "solvency-ratings", cfg.Solvency.SearchIndex)
	assert.Equal(t, "solvency:rating", cfg.Solvency.CacheKeyspace)
	assert.Equal(t, "us-east-1", cfg.Notifications.AWS.Region)
	assert.Equal(t, "solvency-workers", cfg.Observability.ServiceName)
	assert.Equal(t, "configs/activity-registry.json", cfg.Registry.Path)
	assert.Equal(t, "info", cfg.Logging.Level)

	save := GetWorkerConfig(cfg, "save-solvency-assessment")
	assert.Equal(t, 10000, save.Timeout)
	assert.Equal(t, 5, save.MaxJobsActive)
	assert.Equal(t, 3, save.MaxRetries)
}

func TestLoadFromFile_ExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("SOLVENCY_TEST_DB_PASSWORD", "s3cret")

	withPassword := `
camunda:
  broker_address: localhost:26500
database:
  postgres:
    host: localhost
    database: solvency
    user: solvency
    password: ${SOLVENCY_TEST_DB_PASSWORD}
  redis:
    address: localhost:6379
`
	cfg, err := LoadFromFile(writeConfig(t, withPassword))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Database.Postgres.Password)
	assert.Contains(t, cfg.Database.Postgres.GetDSN(), "password=s3cret")
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing broker",
			body:    "database:\n  postgres:\n    host: h\n    database: d\n    user: u\n  redis:\n    address: r:6379\n",
			wantErr: "camunda.broker_address is required",
		},
		{
			name:    "missing redis",
			body:    "camunda:\n  broker_address: b:26500\ndatabase:\n  postgres:\n    host: h\n    database: d\n    user: u\n",
			wantErr: "database.redis.address is required",
		},
		{
			name:    "indexing without elasticsearch",
			body:    minimalYAML + "solvency:\n  index_enabled: true\n",
			wantErr: "database.elasticsearch.addresses or url is required",
		},
		{
			name:    "sns without topic",
			body:    minimalYAML + "notifications:\n  sns:\n    enabled: true\n",
			wantErr: "notifications.sns.topic_arn is required",
		},
		{
			name:    "email without sender",
			body:    minimalYAML + "notifications:\n  email:\n    enabled: true\n",
			wantErr: "notifications.email.from_email is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestIsWorkerEnabled(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.True(t, IsWorkerEnabled(cfg, "save-solvency-assessment"))
	assert.False(t, IsWorkerEnabled(cfg, "send-rating-notification"))
	assert.True(t, IsWorkerEnabled(cfg, "fetch-solvency-assessment"), "unlisted workers default to enabled")
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, GetDuration(1500))
}

func TestElasticsearchConfig_GetAddresses(t *testing.T) {
	assert.Nil(t, ElasticsearchConfig{}.GetAddresses())
	assert.Equal(t, []string{"http://es:9200"}, ElasticsearchConfig{URL: "http://es:9200"}.GetAddresses())
	assert.Equal(t, []string{"http://a:9200", "http://b:9200"},
		ElasticsearchConfig{Addresses: []string{"http://a:9200", "http://b:9200"}, URL: "http://c:9200"}.GetAddresses())
}
