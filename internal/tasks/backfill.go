package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"ledgermeta/internal/ledger"
	"ledgermeta/internal/logging"
	"ledgermeta/internal/orchestrator"
	"ledgermeta/internal/pipeline"
	"ledgermeta/internal/services"
	"ledgermeta/internal/snapshot"
)

type backfillTask struct {
	tc         *Context
	store      snapshot.Store
	processor  *ledger.Processor
	backfiller *ledger.Backfiller
}

// NewBackfillTask fills history below the snapshot ledger down to the floor
func NewBackfillTask(ctx context.Context, tc *Context) (Task, error) {
	store, err := snapshot.Open(ctx, tc.DB, tc.Config.Snapshot.Variant)
	if err != nil {
		return nil, err
	}

	orch, _ := orchestrator.Default(tc.Repository)
	processor := ledger.NewProcessor(ledger.ProcessorOptions{
		Repository:   tc.Repository,
		Orchestrator: orch,
		Task:         ledger.TaskBackfill,
		Mode:         services.ModeHistorical,
		Accumulator: logging.NewAccumulator(
			slog.Default().With("task", Backfill), tc.Config.Log.FlushInterval),
	})

	cfg := tc.Config.Backfill
	backfiller := ledger.NewBackfiller(ledger.BackfillerOptions{
		Fetcher:    tc.Pool,
		Processor:  processor,
		Pipeline:   pipeline.Config{Workers: tc.Config.Pipeline.Workers},
		Retry:      tc.Retry,
		Floor:      cfg.Floor,
		BatchSize:  cfg.BatchSize,
		BatchPause: cfg.BatchPause,
	})
	return &backfillTask{tc: tc, store: store, processor: processor, backfiller: backfiller}, nil
}

func (t *backfillTask) Run(ctx context.Context) error {
	snap, err := completedSnapshot(ctx, t.store)
	if err != nil {
		return err
	}
	// progress holds the lowest ledger applied so far
	last, err := ledger.ResumePoint(ctx, t.tc.Repository, ledger.TaskBackfill, snap.LedgerIndex)
	if err != nil {
		return fmt.Errorf("failed to read backfill progress: %w", err)
	}
	if last == 0 {
		return nil
	}
	return t.backfiller.Start(ctx, last-1)
}

func (t *backfillTask) Terminate() error {
	t.processor.Flush()
	return t.store.Close()
}
