package intake

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerdesk/ledgerdesk/internal/extraction"
	"github.com/ledgerdesk/ledgerdesk/internal/masterdata/parties"
	"github.com/ledgerdesk/ledgerdesk/internal/platform/httpx"
)

func newTestStore(t *testing.T) (*BatchStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewBatchStore(client, time.Hour), mr
}

func TestBatchStoreRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	rec := BatchRecord{
		ID:        "5f0c6a52-1111-4c3e-9a64-4f1f0e0c0001",
		Kind:      parties.KindSupplier,
		Status:    BatchQueued,
		Documents: []extraction.Document{supplierDoc("F-1", "Acme", "A1", "P1")},
	}
	require.NoError(t, store.Save(ctx, rec))

	got, err := store.Load(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, BatchQueued, got.Status)
	assert.False(t, got.CreatedAt.IsZero())
	require.Len(t, got.Documents, 1)
	assert.Equal(t, "F-1", got.Documents[0].Reference)
	assert.Equal(t, "120", got.Documents[0].Gross.Decimal.String())
	assert.True(t, got.Documents[0].Gross.Valid)
	assert.Equal(t, rec.ID, got.Batch().ID)
}

func TestBatchStoreMissingIsNotFound(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Load(context.Background(), "nope")

	assert.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestBatchStoreClaimOnce(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Claim(ctx, "b1"))
	assert.ErrorIs(t, store.Claim(ctx, "b1"), ErrBatchClaimed)
	assert.True(t, mr.Exists("intake:batch:b1:lock"))

	mr.FastForward(2 * time.Hour)
	assert.NoError(t, store.Claim(ctx, "b1"))
}

func TestBatchStoreFinishAndFail(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, BatchRecord{ID: "b2", Kind: parties.KindCustomer, Status: BatchRunning}))
	require.NoError(t, store.Save(ctx, BatchRecord{ID: "b3", Kind: parties.KindCustomer, Status: BatchRunning}))

	report := Report{BatchID: "b2", Kind: parties.KindCustomer, Totals: Totals{Documents: 2, InvoicesCreated: 2}}
	require.NoError(t, store.Finish(ctx, "b2", report))
	require.NoError(t, store.Fail(ctx, "b3", errors.New("directory down")))

	finished, err := store.Load(ctx, "b2")
	require.NoError(t, err)
	assert.Equal(t, BatchFinished, finished.Status)
	require.NotNil(t, finished.Report)
	assert.Equal(t, 2, finished.Report.Totals.InvoicesCreated)

	failed, err := store.Load(ctx, "b3")
	require.NoError(t, err)
	assert.Equal(t, BatchFailed, failed.Status)
	assert.Equal(t, "directory down", failed.Error)

	assert.ErrorIs(t, store.Finish(ctx, "missing", report), httpx.ErrNotFound)
	mr.FastForward(2 * time.Hour)
	_, err = store.Load(ctx, "b2")
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}
