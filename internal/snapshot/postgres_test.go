package snapshot_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgermeta/internal/models"
	"ledgermeta/internal/snapshot"
	"ledgermeta/internal/storage/storagetest"
)

func TestOpen_RejectsInvalidVariant(t *testing.T) {
	_, err := snapshot.Open(context.Background(), nil, "live; DROP TABLE x")
	assert.ErrorIs(t, err, snapshot.ErrInvalidVariant)
}

func TestPostgresStore_BuildAndResume(t *testing.T) {
	db := storagetest.NewDB(t)
	ctx := context.Background()

	store, err := snapshot.Open(ctx, db, "live")
	require.NoError(t, err)

	l := twoPageLedger()
	require.NoError(t, newBuilder(store, l, nil).Run(ctx))

	count, err := store.CountEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	last, err := store.ReadLastJournal(ctx)
	require.NoError(t, err)
	assert.True(t, last.Completed())
	assert.Equal(t, uint32(500), last.LedgerIndex)

	var lines []string
	require.NoError(t, store.ScanEntries(ctx, "RippleState", func(e models.Entry) error {
		lines = append(lines, e.Index)
		return nil
	}))
	assert.Equal(t, []string{"B2"}, lines)

	lines = nil
	require.NoError(t, store.ScanEntries(ctx, "", func(e models.Entry) error {
		lines = append(lines, e.Index)
		return nil
	}))
	assert.Equal(t, []string{"A1", "B2", "C3"}, lines, "an empty type scans every entry")

	// a second variant is independent
	other, err := snapshot.Open(ctx, db, "historical")
	require.NoError(t, err)
	incomplete, err := snapshot.IsIncomplete(ctx, other)
	require.NoError(t, err)
	assert.True(t, incomplete)
}

func TestPostgresStore_TxRollsBack(t *testing.T) {
	db := storagetest.NewDB(t)
	ctx := context.Background()

	store, err := snapshot.Open(ctx, db, "live")
	require.NoError(t, err)

	err = store.Tx(ctx, func(ctx context.Context) error {
		if err := store.PutEntry(ctx, entry("A1", "AccountRoot")); err != nil {
			return err
		}
		got, err := store.GetEntry(ctx, "A1")
		require.NoError(t, err)
		require.NotNil(t, got)
		return errCrash
	})
	require.ErrorIs(t, err, errCrash)

	got, err := store.GetEntry(ctx, "A1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.PutEntry(ctx, entry("A1", "AccountRoot")))
	require.NoError(t, store.PutEntry(ctx, entry("A1", "AccountRoot")))
	count, err := store.CountEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, store.Close())
	_, err = store.CountEntries(ctx)
	assert.ErrorIs(t, err, snapshot.ErrClosed)
}
