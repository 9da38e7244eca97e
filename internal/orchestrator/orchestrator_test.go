package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgermeta/internal/models"
	"ledgermeta/internal/services"
)

type stubService struct {
	name  string
	err   error
	calls *[]string
}

func (s stubService) Process(context.Context, *services.LedgerContext) error {
	*s.calls = append(*s.calls, s.name)
	return s.err
}

func (s stubService) Name() string { return s.name }

func TestOrchestrator_RunsServicesInOrder(t *testing.T) {
	var calls []string
	o := New([]services.Service{
		stubService{name: "a", calls: &calls},
		stubService{name: "b", calls: &calls},
	})

	lc := &services.LedgerContext{Ledger: &models.Ledger{Index: 1}, Mode: services.ModeLive}
	require.NoError(t, o.ProcessLedger(context.Background(), lc))
	assert.Equal(t, []string{"a", "b"}, calls)
	assert.Len(t, o.Services(), 2)
}

func TestOrchestrator_StopsAtFirstError(t *testing.T) {
	var calls []string
	boom := errors.New("boom")
	o := New([]services.Service{
		stubService{name: "a", err: boom, calls: &calls},
		stubService{name: "b", calls: &calls},
	})

	lc := &services.LedgerContext{Ledger: &models.Ledger{Index: 1}}
	err := o.ProcessLedger(context.Background(), lc)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "a: boom")
	assert.Equal(t, []string{"a"}, calls)
}
