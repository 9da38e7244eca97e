package tasks

import (
	"context"
	"log/slog"

	"ledgermeta/internal/logging"
	"ledgermeta/internal/orchestrator"
	"ledgermeta/internal/snapshot"
	"ledgermeta/internal/xrpl"
)

type snapshotTask struct {
	builder *snapshot.Builder
}

// NewSnapshotTask builds the live snapshot. Completing it seeds token
// supplies from the copied trustlines in the same transaction.
func NewSnapshotTask(ctx context.Context, tc *Context) (Task, error) {
	store, err := snapshot.Open(ctx, tc.DB, tc.Config.Snapshot.Variant)
	if err != nil {
		return nil, err
	}

	_, supply := orchestrator.Default(tc.Repository)
	pool := tc.Pool

	builder := snapshot.NewBuilder(store, pool,
		func(opts xrpl.FeedOptions) (snapshot.Feed, error) {
			feed, err := xrpl.NewFeed(pool, opts)
			if err != nil {
				return nil, err
			}
			return feed, nil
		},
		snapshot.BuilderOptions{
			ChunkSize: tc.Config.Snapshot.ChunkSize,
			Accumulator: logging.NewAccumulator(
				slog.Default().With("task", Snapshot), tc.Config.Log.FlushInterval),
			OnComplete: func(ctx context.Context, ledgerIndex uint32) error {
				return supply.SeedFromSnapshot(ctx, store, ledgerIndex)
			},
		},
	)
	return &snapshotTask{builder: builder}, nil
}

func (t *snapshotTask) Run(ctx context.Context) error {
	return t.builder.Run(ctx)
}

func (t *snapshotTask) Terminate() error {
	return t.builder.Terminate()
}
