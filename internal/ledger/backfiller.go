package ledger

import (
	"context"
	"log/slog"
	"time"

	"ledgermeta/internal/ledger/retry"
	"ledgermeta/internal/pipeline"
)

// DefaultFloor is the first ledger of the public full history
const DefaultFloor uint32 = 32570

// BackfillerOptions configure a Backfiller
type BackfillerOptions struct {
	Fetcher   pipeline.Fetcher
	Processor *Processor
	Pipeline  pipeline.Config
	Retry     retry.Strategy
	Floor     uint32
	BatchSize uint32
	// BatchPause is waited between batches so backfill yields to sync
	BatchPause time.Duration
}

// Backfiller walks history downward from a start ledger to the floor
type Backfiller struct {
	opts     BackfillerOptions
	pipeline *pipeline.Pipeline
}

// NewBackfiller creates a new Backfiller instance
func NewBackfiller(opts BackfillerOptions) *Backfiller {
	if opts.Floor == 0 {
		opts.Floor = DefaultFloor
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = 100
	}
	return &Backfiller{
		opts:     opts,
		pipeline: pipeline.New(opts.Pipeline, TaskBackfill, opts.Fetcher, opts.Processor, opts.Retry),
	}
}

// Start applies ledgers from start down to the floor, batch by batch
func (b *Backfiller) Start(ctx context.Context, start uint32) error {
	floor := b.opts.Floor
	if start < floor {
		slog.Info("Backfill already reached floor", "floor", floor)
		return nil
	}
	slog.Info("Starting backfill", "from", start, "floor", floor, "batch_size", b.opts.BatchSize)

	top := start
	for {
		low := floor
		if top-floor >= b.opts.BatchSize {
			low = top - b.opts.BatchSize + 1
		}

		if err := b.pipeline.FetchRange(ctx, top, low); err != nil {
			return err
		}
		if low == floor {
			break
		}
		top = low - 1

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.opts.BatchPause):
		}
	}

	b.opts.Processor.Flush()
	slog.Info("✅ Backfill reached floor", "floor", floor)
	return nil
}
