package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgermeta/internal/models"
	"ledgermeta/internal/storage"
	"ledgermeta/internal/storage/storagetest"
)

func newRepository(t *testing.T) *storage.PostgresRepository {
	t.Helper()
	repo, err := storage.NewPostgresRepository(storagetest.NewDB(t))
	require.NoError(t, err)
	return repo
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestRepository_RequireTokenIsIdempotent(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()

	xrp, err := repo.RequireToken(ctx, "XRP", "")
	require.NoError(t, err)
	assert.True(t, xrp.ID > 0, "native token is seeded")

	usd1, err := repo.RequireToken(ctx, "USD", "rIssuer")
	require.NoError(t, err)
	usd2, err := repo.RequireToken(ctx, "USD", "rIssuer")
	require.NoError(t, err)
	assert.Equal(t, usd1.ID, usd2.ID)
	assert.NotEqual(t, xrp.ID, usd1.ID)
}

func TestRepository_RolledBackTokenIsNotCached(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()
	boom := errors.New("boom")

	var inside models.Token
	err := repo.Tx(ctx, func(ctx context.Context) error {
		var err error
		inside, err = repo.RequireToken(ctx, "EUR", "rGateway")
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	after, err := repo.RequireToken(ctx, "EUR", "rGateway")
	require.NoError(t, err)
	assert.NotEqual(t, inside.ID, after.ID)
}

func TestRepository_TokenMetricsMerge(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()

	token, err := repo.RequireToken(ctx, "USD", "rIssuer")
	require.NoError(t, err)

	require.NoError(t, repo.WriteTokenMetrics(ctx, models.TokenMetrics{TokenID: token.ID, LedgerSequence: 10, Supply: dec("100")}))
	require.NoError(t, repo.WriteTokenMetrics(ctx, models.TokenMetrics{TokenID: token.ID, LedgerSequence: 10, Marketcap: dec("50")}))

	m, err := repo.ReadTokenMetrics(ctx, token.ID, 15)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, uint32(10), m.LedgerSequence)
	assert.True(t, m.Supply.Equal(decimal.NewFromInt(100)), "supply is kept when only marketcap is written")
	assert.True(t, m.Marketcap.Equal(decimal.NewFromInt(50)))
	assert.Nil(t, m.Price)

	m, err = repo.ReadTokenMetrics(ctx, token.ID, 9)
	require.NoError(t, err)
	assert.Nil(t, m)

	require.NoError(t, repo.WriteTokenMetrics(ctx, models.TokenMetrics{TokenID: token.ID, LedgerSequence: 12, Price: dec("0.25")}))
	m, err = repo.ReadTokenMetrics(ctx, token.ID, 15)
	require.NoError(t, err)
	assert.Equal(t, uint32(12), m.LedgerSequence)
	assert.True(t, m.Supply.Equal(decimal.NewFromInt(100)), "supply carries forward from ledger 10")
	assert.True(t, m.Price.Equal(decimal.RequireFromString("0.25")))
}

func TestRepository_ExchangeAlignment(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()

	xrp, err := repo.RequireToken(ctx, "XRP", "")
	require.NoError(t, err)
	usd, err := repo.RequireToken(ctx, "USD", "rIssuer")
	require.NoError(t, err)

	// 1 XRP sold for 0.5 USD, recorded with XRP as base
	require.NoError(t, repo.SaveExchanges(ctx, []models.Exchange{{
		TxHash: "TX1", OfferIndex: "OF1", LedgerSequence: 20,
		Base: xrp, Quote: usd, Price: decimal.RequireFromString("0.5"), Volume: decimal.NewFromInt(10),
		Maker: "rMaker", Taker: "rTaker",
	}}))

	e, err := repo.ReadTokenExchangeAligned(ctx, usd, xrp, 25)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, usd.ID, e.Base.ID)
	assert.True(t, e.Price.Equal(decimal.NewFromInt(2)), "price is XRP per USD")
	assert.True(t, e.Volume.Equal(decimal.NewFromInt(5)))

	e, err = repo.ReadTokenExchangeAligned(ctx, usd, xrp, 19)
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestRepository_LedgerAndProgress(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()

	ledger := &models.Ledger{
		Index: 7, Hash: "H7", ParentHash: "H6", CloseTime: time.Unix(1700000000, 0).UTC(),
		Transactions: []models.Transaction{{
			Hash: "TX7", LedgerIndex: 7, Type: "Payment", Account: "rA", Fee: "10", Result: "tesSUCCESS",
			Raw: []byte(`{"hash": "TX7"}`),
		}},
	}
	require.NoError(t, repo.SaveLedger(ctx, ledger))
	require.NoError(t, repo.SaveLedger(ctx, ledger), "saving a ledger twice is harmless")

	p, err := repo.ReadProgress(ctx, "sync")
	require.NoError(t, err)
	assert.Nil(t, p)

	require.NoError(t, repo.AppendProgress(ctx, "sync", 7))
	require.NoError(t, repo.AppendProgress(ctx, "sync", 8))
	require.NoError(t, repo.AppendProgress(ctx, "backfill", 3))

	p, err = repo.ReadProgress(ctx, "sync")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, uint32(8), p.LedgerIndex)
}
