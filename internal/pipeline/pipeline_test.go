package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgermeta/internal/models"
)

type recorder struct {
	mu      sync.Mutex
	indexes []uint32
	failAt  uint32
}

func (r *recorder) ApplyLedger(_ context.Context, l *models.Ledger) error {
	if r.failAt != 0 && l.Index == r.failAt {
		return errors.New("disk full")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexes = append(r.indexes, l.Index)
	return nil
}

func (r *recorder) applied() []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint32(nil), r.indexes...)
}

func fetched(index uint32) *Fetched {
	return &Fetched{Ledger: &models.Ledger{Index: index}}
}

func TestOrderer_AppliesInAscendingOrder(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	o := NewOrderer(rec, "sync", 10, 1)

	n, err := o.ProcessResult(ctx, fetched(12))
	require.NoError(t, err)
	assert.Zero(t, n, "12 must wait for 10 and 11")
	n, err = o.ProcessResult(ctx, fetched(10))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, o.PendingCount())

	n, err = o.ProcessResult(ctx, fetched(11))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, []uint32{10, 11, 12}, rec.applied())
	assert.Equal(t, uint32(13), o.NextExpected())
	assert.Zero(t, o.PendingCount())
}

func TestOrderer_AppliesInDescendingOrder(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	o := NewOrderer(rec, "backfill", 100, -1)

	for _, i := range []uint32{98, 99, 100} {
		_, err := o.ProcessResult(ctx, fetched(i))
		require.NoError(t, err)
	}
	assert.Equal(t, []uint32{100, 99, 98}, rec.applied())
	assert.Equal(t, uint32(97), o.NextExpected())
	assert.Equal(t, 3, o.Applied())
}

func TestOrderer_StopsAtFailure(t *testing.T) {
	rec := &recorder{failAt: 11}
	o := NewOrderer(rec, "sync", 10, 1)

	_, err := o.ProcessResult(context.Background(), fetched(11))
	require.NoError(t, err)
	_, err = o.ProcessResult(context.Background(), fetched(12))
	require.NoError(t, err)

	n, err := o.ProcessResult(context.Background(), fetched(10))
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []uint32{10}, rec.applied())
	assert.Equal(t, uint32(11), o.NextExpected())
}

// jitterFetcher answers out of order: lower indexes take longer
type jitterFetcher struct {
	failAt uint32
}

func (f jitterFetcher) FetchLedger(ctx context.Context, index uint32) (*models.Ledger, error) {
	if f.failAt != 0 && index == f.failAt {
		return nil, fmt.Errorf("ledger %d not found", index)
	}
	time.Sleep(time.Duration(index%4) * time.Millisecond)
	return &models.Ledger{Index: index}, nil
}

func TestPipeline_FetchRangeAscending(t *testing.T) {
	rec := &recorder{}
	p := New(Config{Workers: 4, Window: 8}, "sync", jitterFetcher{}, rec, nil)

	require.NoError(t, p.FetchRange(context.Background(), 1, 40))

	got := rec.applied()
	require.Len(t, got, 40)
	for i, index := range got {
		assert.Equal(t, uint32(i+1), index)
	}
}

func TestPipeline_FetchRangeDescending(t *testing.T) {
	rec := &recorder{}
	p := New(Config{Workers: 3}, "backfill", jitterFetcher{}, rec, nil)

	require.NoError(t, p.FetchRange(context.Background(), 20, 11))
	assert.Equal(t, []uint32{20, 19, 18, 17, 16, 15, 14, 13, 12, 11}, rec.applied())
}

func TestPipeline_SingleLedger(t *testing.T) {
	rec := &recorder{}
	p := New(Config{Workers: 8}, "sync", jitterFetcher{}, rec, nil)

	require.NoError(t, p.FetchRange(context.Background(), 7, 7))
	assert.Equal(t, []uint32{7}, rec.applied())
}

func TestPipeline_FetchErrorStopsRange(t *testing.T) {
	rec := &recorder{}
	p := New(Config{Workers: 4, Window: 4}, "sync", jitterFetcher{failAt: 15}, rec, nil)

	err := p.FetchRange(context.Background(), 10, 30)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger 15 not found")

	got := rec.applied()
	for i, index := range got {
		assert.Equal(t, uint32(10+i), index)
	}
	assert.LessOrEqual(t, len(got), 5, "nothing after the failed ledger may be applied")
}

func TestPipeline_ApplyErrorStopsRange(t *testing.T) {
	rec := &recorder{failAt: 5}
	p := New(Config{Workers: 2}, "sync", jitterFetcher{}, rec, nil)

	err := p.FetchRange(context.Background(), 1, 50)
	require.Error(t, err)
	assert.Equal(t, []uint32{1, 2, 3, 4}, rec.applied())
}
