package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"ledgermeta/internal/extraction"
	"ledgermeta/internal/logging"
	"ledgermeta/internal/metrics"
	"ledgermeta/internal/models"
	"ledgermeta/internal/orchestrator"
	"ledgermeta/internal/services"
	"ledgermeta/internal/snapshot"
)

// Task names used as progress journal keys
const (
	TaskSync     = "sync"
	TaskBackfill = "backfill"
)

// Repository is the part of storage.Repository the engines need
type Repository interface {
	Tx(ctx context.Context, fn func(ctx context.Context) error) error
	SaveLedger(ctx context.Context, ledger *models.Ledger) error
	AppendProgress(ctx context.Context, task string, ledgerIndex uint32) error
	ReadProgress(ctx context.Context, task string) (*models.ProgressEntry, error)
}

// ProcessorOptions configure a Processor
type ProcessorOptions struct {
	Repository   Repository
	Orchestrator *orchestrator.Orchestrator
	// State receives the ledger's state changes. Leave nil for historical ledgers.
	State       snapshot.Store
	Task        string
	Mode        services.Mode
	Accumulator *logging.Accumulator
}

// Processor applies one ledger at a time, each in a single transaction
type Processor struct {
	opts ProcessorOptions
}

// NewProcessor creates a new Processor instance
func NewProcessor(opts ProcessorOptions) *Processor {
	if opts.Accumulator == nil {
		opts.Accumulator = logging.NewAccumulator(slog.Default(), 10*time.Second)
	}
	return &Processor{opts: opts}
}

// ApplyLedger stores ledger, runs the derivative services and appends the
// task's progress entry. Nothing is kept if any step fails.
func (p *Processor) ApplyLedger(ctx context.Context, ledger *models.Ledger) error {
	start := time.Now()

	err := p.opts.Repository.Tx(ctx, func(ctx context.Context) error {
		if p.opts.State != nil {
			if err := p.applyState(ctx, ledger); err != nil {
				return err
			}
		}
		if err := p.opts.Repository.SaveLedger(ctx, ledger); err != nil {
			return err
		}
		if p.opts.Orchestrator != nil {
			lc := &services.LedgerContext{Ledger: ledger, Mode: p.opts.Mode}
			if err := p.opts.Orchestrator.ProcessLedger(ctx, lc); err != nil {
				return err
			}
		}
		return p.opts.Repository.AppendProgress(ctx, p.opts.Task, ledger.Index)
	})
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues(p.opts.Task).Inc()
		return fmt.Errorf("failed to apply ledger %d: %w", ledger.Index, err)
	}

	metrics.LedgersProcessed.WithLabelValues(p.opts.Task).Inc()
	metrics.TransactionsProcessed.Add(float64(len(ledger.Transactions)))
	metrics.LedgerProcessingDuration.Observe(time.Since(start).Seconds())
	p.opts.Accumulator.Info("Ledgers applied",
		map[string]int64{
			"ledgers":      1,
			"transactions": int64(len(ledger.Transactions)),
		},
		"task", p.opts.Task,
		"ledger_index", ledger.Index,
		"close_time", ledger.CloseTime,
	)
	return nil
}

// applyState replays the ledger's state changes in transaction order
func (p *Processor) applyState(ctx context.Context, ledger *models.Ledger) error {
	txs := make([]*models.Transaction, len(ledger.Transactions))
	for i := range ledger.Transactions {
		txs[i] = &ledger.Transactions[i]
	}
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Meta.TransactionIndex < txs[j].Meta.TransactionIndex
	})

	store := p.opts.State
	for _, tx := range txs {
		for _, change := range extraction.StateChanges(tx) {
			if err := p.applyChange(ctx, store, change); err != nil {
				slog.Error("Failed to apply state change",
					"type", change.Type,
					"index", change.Index,
					"node_type", change.NodeType,
					"tx_hash", tx.Hash,
					"ledger_index", ledger.Index,
					"error", err,
				)
				return fmt.Errorf("apply %s %s of ledger %d: %w", change.Type, change.Index, ledger.Index, err)
			}
			metrics.StateDeltasApplied.WithLabelValues(change.NodeType).Inc()
		}
	}
	return nil
}

func (p *Processor) applyChange(ctx context.Context, store snapshot.Store, change extraction.StateChange) error {
	if change.Deleted() {
		return store.DeleteEntry(ctx, change.Index)
	}

	var previous *models.Entry
	if change.NodeType == models.NodeModified {
		var err error
		if previous, err = store.GetEntry(ctx, change.Index); err != nil {
			return err
		}
	}
	entry, err := change.Apply(previous)
	if err != nil {
		return err
	}
	return store.PutEntry(ctx, entry)
}

// Flush writes out pending progress lines
func (p *Processor) Flush() {
	p.opts.Accumulator.Flush()
}

// ResumePoint returns the ledger the task should continue from: the last
// progress entry of task, or fallback when the task has no progress yet
func ResumePoint(ctx context.Context, repo Repository, task string, fallback uint32) (uint32, error) {
	progress, err := repo.ReadProgress(ctx, task)
	if err != nil {
		return 0, err
	}
	if progress == nil {
		return fallback, nil
	}
	return progress.LedgerIndex, nil
}
