package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"ledgermeta/internal/models"
)

// MarketcapService keeps token marketcaps in XRP. Both triggers recompute
// supply × price from what is stored at the ledger, so the result does not
// depend on which trigger runs last.
type MarketcapService struct {
	repository Repository
}

// NewMarketcapService creates a new MarketcapService instance
func NewMarketcapService(repository Repository) *MarketcapService {
	return &MarketcapService{repository: repository}
}

// UpdateByExchange recomputes token's marketcap after a trade against XRP
func (s *MarketcapService) UpdateByExchange(ctx context.Context, lc *LedgerContext, token models.Token) error {
	return s.update(ctx, lc, token)
}

// UpdateBySupply recomputes token's marketcap after its supply changed
func (s *MarketcapService) UpdateBySupply(ctx context.Context, lc *LedgerContext, token models.Token) error {
	return s.update(ctx, lc, token)
}

func (s *MarketcapService) update(ctx context.Context, lc *LedgerContext, token models.Token) error {
	if token.IsNative() {
		return nil
	}
	seq := lc.Sequence()

	metrics, err := s.repository.ReadTokenMetrics(ctx, token.ID, seq)
	if err != nil {
		return err
	}
	var supply *decimal.Decimal
	if metrics != nil {
		supply = metrics.Supply
	}
	// history below the snapshot has no supply baseline
	if supply == nil && lc.Mode == ModeHistorical {
		return nil
	}

	xrp, err := s.repository.RequireToken(ctx, models.NativeCurrency, "")
	if err != nil {
		return err
	}
	exchange, err := s.repository.ReadTokenExchangeAligned(ctx, token, xrp, seq)
	if err != nil {
		return err
	}

	marketcap := decimal.Zero
	if supply != nil && exchange != nil {
		marketcap = supply.Mul(exchange.Price)
	}

	err = s.repository.WriteTokenMetrics(ctx, models.TokenMetrics{
		TokenID:        token.ID,
		LedgerSequence: seq,
		Marketcap:      &marketcap,
	})
	if err != nil {
		return fmt.Errorf("failed to update marketcap of %s/%s: %w", token.Currency, token.Issuer, err)
	}
	return nil
}
