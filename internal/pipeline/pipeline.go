package pipeline

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"ledgermeta/internal/ledger/retry"
	"ledgermeta/internal/metrics"
)

const defaultWindow = 64

// Pipeline fetches ranges of ledgers concurrently and applies them in order
type Pipeline struct {
	cfg     Config
	task    string
	fetcher Fetcher
	applier Applier
	retry   retry.Strategy
}

// New creates a pipeline for task
func New(cfg Config, task string, fetcher Fetcher, applier Applier, strategy retry.Strategy) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = int(float64(runtime.NumCPU()) * 0.75)
		if cfg.Workers < 2 {
			cfg.Workers = 2
		}
	}
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if cfg.Window < cfg.Workers {
		cfg.Window = cfg.Workers
	}
	return &Pipeline{
		cfg:     cfg,
		task:    task,
		fetcher: fetcher,
		applier: applier,
		retry:   strategy,
	}
}

// FetchRange fetches every ledger from from to to inclusive and applies them
// one by one in that order, which is descending when from > to. The first
// failure stops the range; ledgers before it stay applied.
func (p *Pipeline) FetchRange(ctx context.Context, from, to uint32) error {
	step := int64(1)
	count := int64(to) - int64(from) + 1
	if from > to {
		step = -1
		count = int64(from) - int64(to) + 1
	}

	workers := p.cfg.Workers
	if int64(workers) > count {
		workers = int(count)
	}

	start := time.Now()
	slog.Info("🚀 Fetching ledger range",
		"task", p.task,
		"from", from,
		"to", to,
		"workers", workers,
	)
	metrics.PipelineWorkerCount.Set(float64(workers))
	defer metrics.PipelineWorkerCount.Set(0)

	g, ctx := errgroup.WithContext(ctx)

	indexes := make(chan uint32)
	results := make(chan *Fetched, p.cfg.Window)
	// tokens bound fetched-but-unapplied ledgers to the window
	tokens := make(chan struct{}, p.cfg.Window)

	g.Go(func() error {
		defer close(indexes)
		for i := int64(0); i < count; i++ {
			select {
			case tokens <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
			select {
			case indexes <- uint32(int64(from) + i*step):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	for id := 0; id < workers; id++ {
		w := NewWorker(id, p.fetcher, p.retry)
		g.Go(func() error {
			for index := range indexes {
				result, err := w.Fetch(ctx, index)
				if err != nil {
					return err
				}
				select {
				case results <- result:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}

	orderer := NewOrderer(p.applier, p.task, from, step)
	g.Go(func() error {
		for int64(orderer.Applied()) < count {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case result := <-results:
				applied, err := orderer.ProcessResult(ctx, result)
				for i := 0; i < applied; i++ {
					<-tokens
				}
				if err != nil {
					return err
				}
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("Ledger range stopped",
			"task", p.task,
			"next_expected", orderer.NextExpected(),
			"applied", orderer.Applied(),
			"error", err,
		)
		return err
	}

	slog.Info("✅ Ledger range applied",
		"task", p.task,
		"from", from,
		"to", to,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return nil
}
