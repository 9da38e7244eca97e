package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"ledgermeta/internal/api"
	"ledgermeta/internal/config"
	"ledgermeta/internal/ledger/retry"
	"ledgermeta/internal/snapshot"
	"ledgermeta/internal/storage"
	"ledgermeta/internal/tasks"
	"ledgermeta/internal/xrpl"
)

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Build the snapshot if needed, then follow the ledger and backfill history",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runTasks(cmd.Context(), cfg, tasks.Plan(cfg))
		},
	}
}

func newSnapshotCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Build or resume the ledger state snapshot and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runTasks(cmd.Context(), cfg, []string{tasks.Snapshot})
		},
	}
}

func runTasks(ctx context.Context, cfg *config.Config, names []string) error {
	slog.Info("🚀 Starting ledgermeta", "tasks", names)

	db, release, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer release()

	repository, err := storage.NewPostgresRepository(db)
	if err != nil {
		return err
	}

	pool, err := xrpl.NewPool(cfg.Ledger.Sources, xrpl.PoolOptions{Cooldown: cfg.Ledger.Cooldown})
	if err != nil {
		return err
	}
	defer pool.Close()

	retryCfg, err := retry.LoadConfig()
	if err != nil {
		return err
	}

	journal, err := snapshot.Open(ctx, db, cfg.Snapshot.Variant)
	if err != nil {
		return err
	}
	defer journal.Close()

	server := api.NewServer(cfg.Metrics.Port,
		api.StoreStatus{Journal: journal, Progress: repository}, db, pool)
	if err := server.Start(); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Error stopping API server", "error", err)
		}
	}()

	supervisor := tasks.NewSupervisor(tasks.DefaultRegistry(), &tasks.Context{
		Config:     cfg,
		Pool:       pool,
		DB:         db,
		Repository: repository,
		Retry:      retry.NewStrategy(retryCfg),
	})

	err = supervisor.Run(ctx, names)
	if ctx.Err() != nil {
		slog.Warn("Interrupt received, shutting down...")
		return nil
	}
	if err != nil {
		return err
	}
	slog.Info("✅ ledgermeta finished", "tasks", names)
	return nil
}
