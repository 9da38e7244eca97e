package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"ledgermeta/internal/metrics"
)

// Orderer buffers fetched ledgers and hands them to the applier in range
// order. step is +1 for ascending ranges and -1 for descending ones.
type Orderer struct {
	applier Applier
	task    string
	step    int64

	next    uint32
	pending map[uint32]*Fetched
	applied int
}

// NewOrderer creates an orderer expecting first as its first ledger
func NewOrderer(applier Applier, task string, first uint32, step int64) *Orderer {
	return &Orderer{
		applier: applier,
		task:    task,
		step:    step,
		next:    first,
		pending: make(map[uint32]*Fetched),
	}
}

// ProcessResult buffers result and applies every ledger that is now in order.
// It returns how many ledgers were applied.
func (o *Orderer) ProcessResult(ctx context.Context, result *Fetched) (int, error) {
	o.pending[result.Ledger.Index] = result

	slog.Debug("Orderer received ledger",
		"ledger_index", result.Ledger.Index,
		"worker_id", result.WorkerID,
		"pending_count", len(o.pending),
		"next_expected", o.next,
	)

	applied := 0
	for {
		data, ok := o.pending[o.next]
		if !ok {
			break
		}
		if err := o.applier.ApplyLedger(ctx, data.Ledger); err != nil {
			metrics.PipelineQueueDepth.Set(float64(len(o.pending)))
			return applied, fmt.Errorf("failed to apply ledger %d: %w", o.next, err)
		}
		metrics.HeadLedger.WithLabelValues(o.task).Set(float64(o.next))

		delete(o.pending, o.next)
		o.next = uint32(int64(o.next) + o.step)
		applied++
	}

	o.applied += applied
	metrics.PipelineQueueDepth.Set(float64(len(o.pending)))
	return applied, nil
}

// PendingCount returns the number of ledgers waiting for a predecessor
func (o *Orderer) PendingCount() int {
	return len(o.pending)
}

// NextExpected returns the ledger the orderer is waiting for
func (o *Orderer) NextExpected() uint32 {
	return o.next
}

// Applied returns how many ledgers were applied so far
func (o *Orderer) Applied() int {
	return o.applied
}
