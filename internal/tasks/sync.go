package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ledgermeta/internal/ledger"
	"ledgermeta/internal/logging"
	"ledgermeta/internal/models"
	"ledgermeta/internal/orchestrator"
	"ledgermeta/internal/pipeline"
	"ledgermeta/internal/services"
	"ledgermeta/internal/snapshot"
)

// ErrSnapshotIncomplete is returned by tasks that need a finished snapshot
var ErrSnapshotIncomplete = errors.New("snapshot is not complete")

// completedSnapshot returns the completion entry of store
func completedSnapshot(ctx context.Context, store snapshot.Store) (*models.JournalEntry, error) {
	last, err := store.ReadLastJournal(ctx)
	if err != nil {
		return nil, err
	}
	if last == nil || !last.Completed() {
		return nil, ErrSnapshotIncomplete
	}
	return last, nil
}

type syncTask struct {
	tc       *Context
	store    snapshot.Store
	streamer *ledger.Streamer
}

// NewSyncTask follows the network from the snapshot ledger onward, keeping
// the snapshot entries as the live state
func NewSyncTask(ctx context.Context, tc *Context) (Task, error) {
	store, err := snapshot.Open(ctx, tc.DB, tc.Config.Snapshot.Variant)
	if err != nil {
		return nil, err
	}

	orch, _ := orchestrator.Default(tc.Repository)
	processor := ledger.NewProcessor(ledger.ProcessorOptions{
		Repository:   tc.Repository,
		Orchestrator: orch,
		State:        store,
		Task:         ledger.TaskSync,
		Mode:         services.ModeLive,
		Accumulator: logging.NewAccumulator(
			slog.Default().With("task", Sync), tc.Config.Log.FlushInterval),
	})

	streamer := ledger.NewStreamer(ledger.StreamerOptions{
		Subscriber: tc.Pool,
		Fetcher:    tc.Pool,
		Processor:  processor,
		Pipeline:   pipeline.Config{Workers: tc.Config.Pipeline.Workers},
		Retry:      tc.Retry,
	})
	return &syncTask{tc: tc, store: store, streamer: streamer}, nil
}

func (t *syncTask) Run(ctx context.Context) error {
	snap, err := completedSnapshot(ctx, t.store)
	if err != nil {
		return err
	}
	head, err := ledger.ResumePoint(ctx, t.tc.Repository, ledger.TaskSync, snap.LedgerIndex)
	if err != nil {
		return fmt.Errorf("failed to read sync progress: %w", err)
	}
	return t.streamer.Start(ctx, head)
}

func (t *syncTask) Terminate() error {
	t.streamer.Stop()
	return t.store.Close()
}
