package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"ledgermeta/internal/services"
)

// Orchestrator runs derivative services over each applied ledger
type Orchestrator struct {
	services []services.Service
}

// New creates a new Orchestrator running services in the given order
func New(services []services.Service) *Orchestrator {
	return &Orchestrator{
		services: services,
	}
}

// ProcessLedger runs lc through every service. The first failure stops the
// ledger so its transaction rolls back.
func (o *Orchestrator) ProcessLedger(ctx context.Context, lc *services.LedgerContext) error {
	slog.Debug("Orchestrator: Processing ledger",
		"ledger_index", lc.Sequence(),
		"mode", lc.Mode,
		"services_count", len(o.services),
	)

	for _, service := range o.services {
		if err := service.Process(ctx, lc); err != nil {
			slog.Error("Service processing failed",
				"service", service.Name(),
				"ledger_index", lc.Sequence(),
				"error", err,
			)
			return fmt.Errorf("%s: %w", service.Name(), err)
		}
	}
	return nil
}

// Services returns the list of registered services (for inspection/testing)
func (o *Orchestrator) Services() []services.Service {
	return o.services
}

// Default wires the derivative services in their processing order
func Default(repository services.Repository) (*Orchestrator, *services.SupplyService) {
	marketcap := services.NewMarketcapService(repository)
	supply := services.NewSupplyService(repository, marketcap)
	return New([]services.Service{
		services.NewLedgerStatsService(repository),
		services.NewExchangeService(repository, marketcap),
		supply,
	}), supply
}
