package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"ledgermeta/internal/extraction"
	"ledgermeta/internal/models"
)

// EntryScanner walks stored ledger objects of one type
type EntryScanner interface {
	ScanEntries(ctx context.Context, entryType string, fn func(models.Entry) error) error
}

// SupplyService tracks the outstanding supply of issued tokens. It needs a
// baseline from the snapshot and only moves forward from there.
type SupplyService struct {
	repository Repository
	marketcap  *MarketcapService
}

// NewSupplyService creates a new SupplyService instance
func NewSupplyService(repository Repository, marketcap *MarketcapService) *SupplyService {
	return &SupplyService{repository: repository, marketcap: marketcap}
}

// Process applies the ledger's supply deltas on top of the previous supply
func (s *SupplyService) Process(ctx context.Context, lc *LedgerContext) error {
	if lc.Mode == ModeHistorical {
		return nil
	}

	totals := make(map[models.Token]decimal.Decimal)
	for i := range lc.Ledger.Transactions {
		deltas, err := extraction.SupplyDeltas(&lc.Ledger.Transactions[i])
		if err != nil {
			return err
		}
		for _, d := range deltas {
			totals[d.Token] = totals[d.Token].Add(d.Delta)
		}
	}

	for _, d := range sorted(totals) {
		token, err := s.repository.RequireToken(ctx, d.Token.Currency, d.Token.Issuer)
		if err != nil {
			return err
		}

		supply := d.Delta
		previous, err := s.repository.ReadTokenMetrics(ctx, token.ID, lc.Sequence())
		if err != nil {
			return err
		}
		if previous != nil && previous.Supply != nil {
			supply = previous.Supply.Add(d.Delta)
		}

		err = s.repository.WriteTokenMetrics(ctx, models.TokenMetrics{
			TokenID:        token.ID,
			LedgerSequence: lc.Sequence(),
			Supply:         &supply,
		})
		if err != nil {
			return err
		}
		if err := s.marketcap.UpdateBySupply(ctx, lc, token); err != nil {
			return err
		}
	}
	return nil
}

// Name returns the service name
func (s *SupplyService) Name() string {
	return "SupplyService"
}

// SeedFromSnapshot writes the supply of every issued token held in the
// snapshot's trustlines as of ledgerIndex
func (s *SupplyService) SeedFromSnapshot(ctx context.Context, entries EntryScanner, ledgerIndex uint32) error {
	totals := make(map[models.Token]decimal.Decimal)
	err := entries.ScanEntries(ctx, "RippleState", func(e models.Entry) error {
		fields, err := decodeFields(e)
		if err != nil {
			return err
		}
		issued, err := extraction.Issued(fields)
		if err != nil {
			return fmt.Errorf("trustline %s: %w", e.Index, err)
		}
		for _, d := range issued {
			totals[d.Token] = totals[d.Token].Add(d.Delta)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan trustlines: %w", err)
	}

	for _, d := range sorted(totals) {
		token, err := s.repository.RequireToken(ctx, d.Token.Currency, d.Token.Issuer)
		if err != nil {
			return err
		}
		supply := d.Delta
		err = s.repository.WriteTokenMetrics(ctx, models.TokenMetrics{
			TokenID:        token.ID,
			LedgerSequence: ledgerIndex,
			Supply:         &supply,
		})
		if err != nil {
			return err
		}
	}

	slog.Info("Supply seeded from snapshot", "ledger_index", ledgerIndex, "tokens", len(totals))
	return nil
}

func sorted(totals map[models.Token]decimal.Decimal) []models.SupplyDelta {
	out := make([]models.SupplyDelta, 0, len(totals))
	for token, delta := range totals {
		out = append(out, models.SupplyDelta{Token: token, Delta: delta})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Token.Currency != out[j].Token.Currency {
			return out[i].Token.Currency < out[j].Token.Currency
		}
		return out[i].Token.Issuer < out[j].Token.Issuer
	})
	return out
}
