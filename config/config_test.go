package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5.0, cfg.RequestsPerSecond)
	assert.Equal(t, 100, cfg.MaxPages)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, Duration(10*time.Minute), cfg.HarvestTimeout)
	assert.Equal(t, DocumentStoreMongo, cfg.DocumentStore)
	assert.Equal(t, SQLDriverPostgres, cfg.SQLDriver)
}

func TestLoadFromMissingFiles(t *testing.T) {
	cfg, err := LoadFrom([]string{filepath.Join(t.TempDir(), "absent.yaml")})
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ytharvest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api_key: yaml-key
workers: 8
harvest_timeout: 90s
document_store: file
document_path: /tmp/docs.json
sql_driver: sqlite
sql_dsn: /tmp/youtube.db
`), 0o644))

	cfg, err := LoadFrom([]string{path})
	require.NoError(t, err)
	assert.Equal(t, "yaml-key", cfg.APIKey)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, Duration(90*time.Second), cfg.HarvestTimeout)
	assert.Equal(t, DocumentStoreFile, cfg.DocumentStore)
	assert.Equal(t, SQLDriverSQLite, cfg.SQLDriver)
	assert.Equal(t, 100, cfg.MaxPages, "unset keys keep defaults")
}

func TestLoadFromJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ytharvest.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"api_key": "json-key", "max_pages": 7, "harvest_timeout": "2m"}`), 0o644))

	cfg, err := LoadFrom([]string{path})
	require.NoError(t, err)
	assert.Equal(t, "json-key", cfg.APIKey)
	assert.Equal(t, 7, cfg.MaxPages)
	assert.Equal(t, Duration(2*time.Minute), cfg.HarvestTimeout)
}

func TestLoadFromMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ytharvest.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"workers": `), 0o644))

	_, err := LoadFrom([]string{path})
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ytharvest.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api_key: file-key\nworkers: 2\n"), 0o644))

	t.Setenv("YTHARVEST_API_KEY", "env-key")
	t.Setenv("YTHARVEST_WORKERS", "6")
	t.Setenv("YTHARVEST_RPS", "2.5")
	t.Setenv("YTHARVEST_HARVEST_TIMEOUT", "30s")

	cfg, err := LoadFrom([]string{path})
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.APIKey)
	assert.Equal(t, 6, cfg.Workers)
	assert.Equal(t, 2.5, cfg.RequestsPerSecond)
	assert.Equal(t, Duration(30*time.Second), cfg.HarvestTimeout)
}

func TestEnvMalformedNumber(t *testing.T) {
	t.Setenv("YTHARVEST_MAX_PAGES", "many")
	_, err := LoadFrom(nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero rps", func(c *Config) { c.RequestsPerSecond = 0 }, true},
		{"zero pages", func(c *Config) { c.MaxPages = 0 }, true},
		{"negative workers", func(c *Config) { c.Workers = -1 }, true},
		{"negative timeout", func(c *Config) { c.HarvestTimeout = Duration(-time.Second) }, true},
		{"unknown document store", func(c *Config) { c.DocumentStore = "redis" }, true},
		{"file store without path", func(c *Config) { c.DocumentStore = DocumentStoreFile; c.DocumentPath = "" }, true},
		{"mongo without uri", func(c *Config) { c.MongoURI = "" }, true},
		{"unknown sql driver", func(c *Config) { c.SQLDriver = "mysql" }, true},
		{"sqlite", func(c *Config) { c.SQLDriver = SQLDriverSQLite }, false},
		{"unknown log format", func(c *Config) { c.LogFormat = "xml" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
