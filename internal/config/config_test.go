package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "coingecko", cfg.DataSource.Provider)
	assert.Equal(t, 200, cfg.DataSource.UniverseSize)
	assert.Equal(t, 30*time.Minute, cfg.DataSource.CacheTTL)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 4, cfg.Engine.Workers)
	require.Len(t, cfg.Eligibility.DualRolePairs, 1)
	assert.Equal(t, "PAXG", cfg.Eligibility.DualRolePairs[0].Default)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
data_source:
  provider: mock
  universe_size: 50
  cache_ttl: 5m
database:
  driver: memory
eligibility:
  dual_role_pairs:
    - members: [PAXG, XAUT]
      default: XAUT
schedule:
  calculate_cron: "0 0 3 * * *"
`)
	t.Setenv("UNIVERSE_SIZE", "75")
	t.Setenv("CRON_INGEST", "0 0 2 * * *")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "mock", cfg.DataSource.Provider)
	assert.Equal(t, 75, cfg.DataSource.UniverseSize)
	assert.Equal(t, 5*time.Minute, cfg.DataSource.CacheTTL)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "XAUT", cfg.Eligibility.DualRolePairs[0].Default)
	assert.Equal(t, "0 0 3 * * *", cfg.Schedule.CalculateCron)
	assert.Equal(t, "0 0 2 * * *", cfg.Schedule.IngestCron)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "data_source: [unclosed"))
	assert.Error(t, err)
}

func TestPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	assert.Equal(t, DefaultPath, Path())
	t.Setenv("CONFIG_PATH", "/etc/sentinel.yaml")
	assert.Equal(t, "/etc/sentinel.yaml", Path())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"unknown provider", func(c *Config) { c.DataSource.Provider = "yahoo" }},
		{"short history", func(c *Config) { c.DataSource.HistoryDays = 100 }},
		{"bad cron", func(c *Config) { c.Schedule.CalculateCron = "every day" }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres" }},
		{"pair with one member", func(c *Config) {
			c.Eligibility.DualRolePairs = []DualRolePair{{Members: []string{"PAXG"}}}
		}},
		{"token without chat", func(c *Config) { c.Telegram.BotToken = "123:abc" }},
		{"zero workers", func(c *Config) { c.Engine.Workers = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
