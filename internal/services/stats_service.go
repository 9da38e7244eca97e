package services

import (
	"context"
	"fmt"

	"ledgermeta/internal/models"
	"ledgermeta/internal/xrpl"
)

// LedgerStatsService records transaction counts and fee statistics per ledger
type LedgerStatsService struct {
	repository Repository
}

// NewLedgerStatsService creates a new LedgerStatsService instance
func NewLedgerStatsService(repository Repository) *LedgerStatsService {
	return &LedgerStatsService{repository: repository}
}

// Process computes and saves the ledger's statistics. Ledgers without
// transactions are not recorded.
func (s *LedgerStatsService) Process(ctx context.Context, lc *LedgerContext) error {
	if len(lc.Ledger.Transactions) == 0 {
		return nil
	}
	stats, err := ComputeStats(lc.Ledger)
	if err != nil {
		return err
	}
	return s.repository.SaveLedgerStats(ctx, stats)
}

// Name returns the service name
func (s *LedgerStatsService) Name() string {
	return "LedgerStatsService"
}

// ComputeStats aggregates the transactions of ledger. Fees are in drops.
func ComputeStats(ledger *models.Ledger) (*models.LedgerStats, error) {
	stats := &models.LedgerStats{
		LedgerIndex:  ledger.Index,
		Hash:         ledger.Hash,
		CloseTime:    ledger.CloseTime,
		TxCount:      len(ledger.Transactions),
		TxTypeCounts: make(map[string]int),
	}

	var total int64
	for i, tx := range ledger.Transactions {
		stats.TxTypeCounts[tx.Type]++

		fee, err := xrpl.ParseDrops(tx.Fee)
		if err != nil {
			return nil, fmt.Errorf("transaction %s: %w", tx.Hash, err)
		}
		total += fee
		if i == 0 || fee < stats.MinFee {
			stats.MinFee = fee
		}
		if fee > stats.MaxFee {
			stats.MaxFee = fee
		}
	}
	if stats.TxCount > 0 {
		stats.AvgFee = total / int64(stats.TxCount)
	}
	return stats, nil
}
