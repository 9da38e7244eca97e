package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"ledgermeta/internal/config"
	"ledgermeta/internal/logging"
	"ledgermeta/internal/storage"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "ledgermeta",
		Short:         "Ledger state snapshot, sync and backfill",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a config file (yaml, toml or json)")
	root.AddCommand(newRunCommand(), newSnapshotCommand(), newStatusCommand())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		slog.Error("❌ ledgermeta failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads .env, the config file and the environment, then installs
// the default logger
func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logging.Setup(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	slog.Info("Configuration loaded",
		"sources", len(cfg.Ledger.Sources),
		"variant", cfg.Snapshot.Variant,
		"embedded_db", cfg.Database.Embedded,
		"log_level", cfg.Log.Level,
	)
	return cfg, nil
}

// openDatabase connects to the configured database, starting the embedded
// server first when asked to. The returned func releases everything.
func openDatabase(ctx context.Context, cfg *config.Config) (*storage.DB, func(), error) {
	url := cfg.Database.URL
	var embedded *storage.Embedded
	if cfg.Database.Embedded {
		var err error
		embedded, err = storage.StartEmbedded(cfg.PostgresDir(), cfg.Database.Port)
		if err != nil {
			return nil, nil, err
		}
		url = embedded.URL()
		slog.Info("Embedded database started", "dir", cfg.PostgresDir(), "port", cfg.Database.Port)
	}

	stopEmbedded := func() {
		if embedded == nil {
			return
		}
		if err := embedded.Stop(); err != nil {
			slog.Error("Failed to stop embedded database", "error", err)
		}
	}

	db, err := storage.Open(ctx, storage.Options{
		URL:          url,
		MaxConns:     cfg.Database.MaxConns,
		TraceQueries: cfg.Debug.Queries,
	})
	if err != nil {
		stopEmbedded()
		return nil, nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		stopEmbedded()
		return nil, nil, err
	}
	slog.Info("Database connected successfully")

	return db, func() {
		db.Close()
		stopEmbedded()
	}, nil
}
