package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ledgermeta/internal/ledger/retry"
	"ledgermeta/internal/metrics"
)

// Worker fetches ledgers for the pipeline
type Worker struct {
	id      int
	fetcher Fetcher
	retry   retry.Strategy
}

// NewWorker creates a worker. A nil strategy fetches once.
func NewWorker(id int, fetcher Fetcher, strategy retry.Strategy) *Worker {
	if strategy == nil {
		strategy = retry.NewNoRetryStrategy()
	}
	return &Worker{id: id, fetcher: fetcher, retry: strategy}
}

// Fetch retrieves ledger index, retrying recoverable failures
func (w *Worker) Fetch(ctx context.Context, index uint32) (*Fetched, error) {
	start := time.Now()

	var result *Fetched
	err := w.retry.Execute(ctx, func() error {
		ledger, err := w.fetcher.FetchLedger(ctx, index)
		if err != nil {
			return err
		}
		result = &Fetched{Ledger: ledger, WorkerID: w.id}
		return nil
	})
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("pipeline").Inc()
		return nil, fmt.Errorf("worker %d: %w", w.id, err)
	}

	result.FetchTime = time.Since(start)
	slog.Debug("Worker fetched ledger",
		"worker_id", w.id,
		"ledger_index", index,
		"tx_count", len(result.Ledger.Transactions),
		"duration_ms", result.FetchTime.Milliseconds(),
	)
	return result, nil
}
