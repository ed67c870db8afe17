package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loadFrom points CONFIG_FILE at path (or an empty temp dir when path is
// empty) so tests never pick up a real config.yaml from the working
// directory.
func loadFrom(t *testing.T, path string) (*Config, error) {
	t.Helper()
	if path == "" {
		path = filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(""), 0o644))
	}
	t.Setenv("CONFIG_FILE", path)
	return LoadConfig()
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadFrom(t, "")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout.Std())

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "weather_crop", cfg.Database.Database)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)

	assert.Equal(t, "./wx_data", cfg.Ingestion.WeatherDataDir)
	assert.Equal(t, "./yld_data", cfg.Ingestion.CropYieldDataDir)
	assert.Equal(t, 5, cfg.Ingestion.Workers)
	assert.Equal(t, "refresh", cfg.Ingestion.OnConflict)
	assert.Equal(t, "upsert", cfg.Ingestion.Strategy)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
  read_timeout: 30s
database:
  host: db.internal
  database: weather_prod
ingestion:
  workers: 10
  on_conflict: ignore
  strategy: query
logging:
  level: debug
`), 0o644))

	cfg, err := loadFrom(t, path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout.Std())
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "weather_prod", cfg.Database.Database)
	assert.Equal(t, 10, cfg.Ingestion.Workers)
	assert.Equal(t, "ignore", cfg.Ingestion.OnConflict)
	assert.Equal(t, "query", cfg.Ingestion.Strategy)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Values the file does not mention keep their defaults.
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9999")
	t.Setenv("DB_HOST", "env-db")
	t.Setenv("WEATHER_DATA_DIR", "/srv/wx")
	t.Setenv("INGEST_WORKERS", "3")
	t.Setenv("INGEST_ON_CONFLICT", "ignore")

	cfg, err := loadFrom(t, "")
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "env-db", cfg.Database.Host)
	assert.Equal(t, "/srv/wx", cfg.Ingestion.WeatherDataDir)
	assert.Equal(t, 3, cfg.Ingestion.Workers)
	assert.Equal(t, "ignore", cfg.Ingestion.OnConflict)
}

func TestLoadConfigEnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644))
	t.Setenv("SERVER_PORT", "7070")

	cfg, err := loadFrom(t, path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoadConfigExplicitFileMissing(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a mapping\n"), 0o644))

	_, err := loadFrom(t, path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, errMsg: "server port"},
		{name: "port too high", mutate: func(c *Config) { c.Server.Port = 70000 }, errMsg: "server port"},
		{name: "missing db host", mutate: func(c *Config) { c.Database.Host = "" }, errMsg: "database host"},
		{name: "missing db name", mutate: func(c *Config) { c.Database.Database = "" }, errMsg: "database name"},
		{name: "bad pool size", mutate: func(c *Config) { c.Database.MaxOpenConns = 0 }, errMsg: "max_open_conns"},
		{name: "bad workers", mutate: func(c *Config) { c.Ingestion.Workers = 0 }, errMsg: "workers"},
		{name: "bad on_conflict", mutate: func(c *Config) { c.Ingestion.OnConflict = "merge" }, errMsg: "on_conflict"},
		{name: "bad strategy", mutate: func(c *Config) { c.Ingestion.Strategy = "walk" }, errMsg: "strategy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			}
		})
	}
}
