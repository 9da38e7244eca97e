package storage

import (
	"context"

	"ledgermeta/internal/models"
)

// Repository defines the interface for all storage operations.
// Every method joins the transaction carried by ctx, if any.
type Repository interface {
	// Transactions
	Tx(ctx context.Context, fn func(ctx context.Context) error) error

	// Ledgers
	SaveLedger(ctx context.Context, ledger *models.Ledger) error
	SaveLedgerStats(ctx context.Context, stats *models.LedgerStats) error

	// Tokens
	RequireToken(ctx context.Context, currency, issuer string) (models.Token, error)
	ReadTokenMetrics(ctx context.Context, tokenID int64, sequence uint32) (*models.TokenMetrics, error)
	WriteTokenMetrics(ctx context.Context, m models.TokenMetrics) error

	// Exchanges
	SaveExchanges(ctx context.Context, exchanges []models.Exchange) error
	ReadTokenExchangeAligned(ctx context.Context, base, quote models.Token, sequence uint32) (*models.Exchange, error)

	// Progress journal
	AppendProgress(ctx context.Context, task string, ledgerIndex uint32) error
	ReadProgress(ctx context.Context, task string) (*models.ProgressEntry, error)

	// Health & Maintenance
	Ping(ctx context.Context) error
	Close() error
}
