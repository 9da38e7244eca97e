package services

import (
	"context"

	"ledgermeta/internal/models"
)

// Mode tells services whether a ledger extends the live head or fills history
type Mode string

const (
	ModeLive       Mode = "live"
	ModeHistorical Mode = "historical"
)

// LedgerContext is one ledger being applied, shared by every service
type LedgerContext struct {
	Ledger *models.Ledger
	Mode   Mode
}

// Sequence returns the index of the ledger being applied
func (lc *LedgerContext) Sequence() uint32 {
	return lc.Ledger.Index
}

// Service defines the interface that all derivative services must implement
type Service interface {
	// Process derives data from one ledger. Any error aborts the ledger's
	// transaction.
	Process(ctx context.Context, lc *LedgerContext) error

	// Name returns the service name for logging
	Name() string
}

// Repository is the part of storage.Repository the services need
type Repository interface {
	SaveLedgerStats(ctx context.Context, stats *models.LedgerStats) error
	RequireToken(ctx context.Context, currency, issuer string) (models.Token, error)
	ReadTokenMetrics(ctx context.Context, tokenID int64, sequence uint32) (*models.TokenMetrics, error)
	WriteTokenMetrics(ctx context.Context, m models.TokenMetrics) error
	SaveExchanges(ctx context.Context, exchanges []models.Exchange) error
	ReadTokenExchangeAligned(ctx context.Context, base, quote models.Token, sequence uint32) (*models.Exchange, error)
}
