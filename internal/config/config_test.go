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

func TestLoad_FileAndDefaults(t *testing.T) {
	path := writeConfig(t, `
ledger:
  sources:
    - url: wss://s1.example.net
    - url: wss://s2.example.net
      timeout: 5s
database:
  url: postgres://localhost/ledgermeta
debug:
  queries: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Ledger.Sources, 2)
	assert.Equal(t, 20*time.Second, cfg.Ledger.Sources[0].Timeout)
	assert.Equal(t, 5*time.Second, cfg.Ledger.Sources[1].Timeout)
	assert.True(t, cfg.Debug.Queries)
	assert.Equal(t, "live", cfg.Snapshot.Variant)
	assert.Equal(t, uint32(32570), cfg.Backfill.Floor)
	assert.Equal(t, filepath.Join("data", "postgres"), cfg.PostgresDir())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LEDGERMETA_LEDGER_SOURCE", "ws://localhost:6006")
	t.Setenv("LEDGERMETA_DATABASE_EMBEDDED", "true")
	t.Setenv("LEDGERMETA_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	require.Len(t, cfg.Ledger.Sources, 1)
	assert.Equal(t, "ws://localhost:6006", cfg.Ledger.Sources[0].URL)
	assert.True(t, cfg.Database.Embedded)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Ledger:   LedgerConfig{Sources: []SourceConfig{{URL: "wss://node"}}},
			Data:     DataConfig{Dir: "./data"},
			Database: DatabaseConfig{URL: "postgres://x"},
			Snapshot: SnapshotConfig{Variant: "live", ChunkSize: 10},
			Pipeline: PipelineConfig{Workers: 1},
			Backfill: BackfillConfig{Enabled: true, BatchSize: 8},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"no sources", func(c *Config) { c.Ledger.Sources = nil }, "ledger.sources"},
		{"http url", func(c *Config) { c.Ledger.Sources[0].URL = "http://node" }, "ws://"},
		{"no database", func(c *Config) { c.Database.URL = "" }, "database.url"},
		{"embedded database", func(c *Config) { c.Database.URL = ""; c.Database.Embedded = true }, ""},
		{"bad variant", func(c *Config) { c.Snapshot.Variant = "Live; DROP" }, "snapshot.variant"},
		{"zero workers", func(c *Config) { c.Pipeline.Workers = 0 }, "pipeline.workers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
