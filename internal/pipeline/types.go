package pipeline

import (
	"context"
	"time"

	"ledgermeta/internal/models"
)

// Fetcher retrieves one ledger with its transactions
type Fetcher interface {
	FetchLedger(ctx context.Context, index uint32) (*models.Ledger, error)
}

// Applier persists one ledger. Calls arrive strictly in range order.
type Applier interface {
	ApplyLedger(ctx context.Context, ledger *models.Ledger) error
}

// ApplierFunc adapts a function to Applier
type ApplierFunc func(ctx context.Context, ledger *models.Ledger) error

// ApplyLedger implements Applier
func (f ApplierFunc) ApplyLedger(ctx context.Context, ledger *models.Ledger) error {
	return f(ctx, ledger)
}

// Fetched is a ledger handed from a worker to the orderer
type Fetched struct {
	Ledger    *models.Ledger
	WorkerID  int
	FetchTime time.Duration
}

// Config sizes a pipeline. Zero Workers picks a value from the CPU count.
type Config struct {
	Workers int
	// Window bounds how far fetching may run ahead of the orderer
	Window int
}
