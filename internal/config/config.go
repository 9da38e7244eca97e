package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration of ledgermeta
type Config struct {
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Data     DataConfig     `mapstructure:"data"`
	Debug    DebugConfig    `mapstructure:"debug"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Backfill BackfillConfig `mapstructure:"backfill"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
}

// SourceConfig describes one upstream node
type SourceConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LedgerConfig struct {
	Sources        []SourceConfig `mapstructure:"sources"`
	RequestTimeout time.Duration  `mapstructure:"request_timeout"`
	// Cooldown is how long a failing node is skipped by the pool
	Cooldown time.Duration `mapstructure:"cooldown"`
}

type DataConfig struct {
	Dir string `mapstructure:"dir"`
}

type DebugConfig struct {
	Queries bool `mapstructure:"queries"`
}

type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	Embedded bool   `mapstructure:"embedded"`
	Port     uint32 `mapstructure:"port"`
	MaxConns int32  `mapstructure:"max_conns"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// FlushInterval is how often accumulated progress lines are written
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

type MetricsConfig struct {
	Port int `mapstructure:"port"`
}

type SnapshotConfig struct {
	Variant   string `mapstructure:"variant"`
	ChunkSize int    `mapstructure:"chunk_size"`
}

type BackfillConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Floor      uint32        `mapstructure:"floor"`
	BatchSize  uint32        `mapstructure:"batch_size"`
	BatchPause time.Duration `mapstructure:"batch_pause"`
}

type PipelineConfig struct {
	Workers int `mapstructure:"workers"`
}

var variantPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,31}$`)

// SetDefaults registers default values on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("ledger.request_timeout", 20*time.Second)
	v.SetDefault("ledger.cooldown", 30*time.Second)
	v.SetDefault("data.dir", "./data")
	v.SetDefault("debug.queries", false)
	v.SetDefault("database.embedded", false)
	v.SetDefault("database.port", 5433)
	v.SetDefault("database.max_conns", 8)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.flush_interval", 10*time.Second)
	v.SetDefault("metrics.port", 2112)
	v.SetDefault("snapshot.variant", "live")
	v.SetDefault("snapshot.chunk_size", 2048)
	v.SetDefault("backfill.enabled", true)
	v.SetDefault("backfill.floor", 32570)
	v.SetDefault("backfill.batch_size", 64)
	v.SetDefault("backfill.batch_pause", time.Second)
	v.SetDefault("pipeline.workers", 4)
}

// Load reads the configuration file at path (optional) and applies
// LEDGERMETA_* environment overrides on top of the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("ledgermeta")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// single-source shortcut for env-only setups
	if url := v.GetString("ledger.source"); url != "" && len(cfg.Ledger.Sources) == 0 {
		cfg.Ledger.Sources = []SourceConfig{{URL: url}}
	}

	for i := range cfg.Ledger.Sources {
		if cfg.Ledger.Sources[i].Timeout == 0 {
			cfg.Ledger.Sources[i].Timeout = cfg.Ledger.RequestTimeout
		}
	}

	return &cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if len(c.Ledger.Sources) == 0 {
		errs = append(errs, errors.New("ledger.sources requires at least one node"))
	}
	for i, s := range c.Ledger.Sources {
		if !strings.HasPrefix(s.URL, "ws://") && !strings.HasPrefix(s.URL, "wss://") {
			errs = append(errs, fmt.Errorf("ledger.sources[%d].url must be a ws:// or wss:// url, got %q", i, s.URL))
		}
	}
	if c.Database.URL == "" && !c.Database.Embedded {
		errs = append(errs, errors.New("database.url is required unless database.embedded is set"))
	}
	if c.Data.Dir == "" {
		errs = append(errs, errors.New("data.dir is required"))
	}
	if !variantPattern.MatchString(c.Snapshot.Variant) {
		errs = append(errs, fmt.Errorf("snapshot.variant %q is not a valid name", c.Snapshot.Variant))
	}
	if c.Snapshot.ChunkSize <= 0 {
		errs = append(errs, errors.New("snapshot.chunk_size must be positive"))
	}
	if c.Pipeline.Workers <= 0 {
		errs = append(errs, errors.New("pipeline.workers must be positive"))
	}
	if c.Backfill.Enabled && c.Backfill.BatchSize == 0 {
		errs = append(errs, errors.New("backfill.batch_size must be positive"))
	}

	return errors.Join(errs...)
}

// PostgresDir is where the embedded database keeps its files
func (c *Config) PostgresDir() string {
	return filepath.Join(c.Data.Dir, "postgres")
}
