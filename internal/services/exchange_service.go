package services

import (
	"context"
	"log/slog"

	"ledgermeta/internal/extraction"
	"ledgermeta/internal/metrics"
	"ledgermeta/internal/models"
)

// ExchangeService records offer fills as exchanges and keeps XRP prices
type ExchangeService struct {
	repository Repository
	marketcap  *MarketcapService
}

// NewExchangeService creates a new ExchangeService instance
func NewExchangeService(repository Repository, marketcap *MarketcapService) *ExchangeService {
	return &ExchangeService{repository: repository, marketcap: marketcap}
}

// Process saves the ledger's exchanges, then updates price and marketcap of
// every token that traded against XRP
func (s *ExchangeService) Process(ctx context.Context, lc *LedgerContext) error {
	var (
		exchanges []models.Exchange
		priced    []models.Token
		seen      = make(map[int64]bool)
	)

	for i := range lc.Ledger.Transactions {
		tx := &lc.Ledger.Transactions[i]
		fills, err := extraction.Fills(tx)
		if err != nil {
			return err
		}
		for _, f := range fills {
			base, err := s.repository.RequireToken(ctx, f.Gets.Currency, f.Gets.Issuer)
			if err != nil {
				return err
			}
			quote, err := s.repository.RequireToken(ctx, f.Pays.Currency, f.Pays.Issuer)
			if err != nil {
				return err
			}
			exchanges = append(exchanges, f.Exchange(lc.Sequence(), base, quote))

			for _, pair := range [][2]models.Token{{base, quote}, {quote, base}} {
				token, counter := pair[0], pair[1]
				if counter.IsNative() && !token.IsNative() && !seen[token.ID] {
					seen[token.ID] = true
					priced = append(priced, token)
				}
			}
		}
	}

	if len(exchanges) == 0 {
		return nil
	}
	if err := s.repository.SaveExchanges(ctx, exchanges); err != nil {
		return err
	}
	metrics.ExchangesSaved.Add(float64(len(exchanges)))

	if len(priced) == 0 {
		return nil
	}
	xrp, err := s.repository.RequireToken(ctx, models.NativeCurrency, "")
	if err != nil {
		return err
	}
	for _, token := range priced {
		exchange, err := s.repository.ReadTokenExchangeAligned(ctx, token, xrp, lc.Sequence())
		if err != nil {
			return err
		}
		if exchange != nil {
			price := exchange.Price
			err := s.repository.WriteTokenMetrics(ctx, models.TokenMetrics{
				TokenID:        token.ID,
				LedgerSequence: lc.Sequence(),
				Price:          &price,
			})
			if err != nil {
				return err
			}
		}
		if err := s.marketcap.UpdateByExchange(ctx, lc, token); err != nil {
			return err
		}
	}

	slog.Debug("Exchanges saved",
		"ledger_index", lc.Sequence(),
		"count", len(exchanges),
		"priced_tokens", len(priced),
	)
	return nil
}

// Name returns the service name
func (s *ExchangeService) Name() string {
	return "ExchangeService"
}
