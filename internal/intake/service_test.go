package intake

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerdesk/ledgerdesk/internal/extraction"
	"github.com/ledgerdesk/ledgerdesk/internal/masterdata/parties"
	"github.com/ledgerdesk/ledgerdesk/internal/platform/httpx"
)

type stubExtractor struct {
	docs  []extraction.Document
	err   error
	calls int
}

func (s *stubExtractor) Extract(_ context.Context, files []extraction.File) ([]extraction.Document, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.docs, nil
}

type recordingEnqueuer struct {
	ids []string
	err error
}

func (r *recordingEnqueuer) EnqueueIntakeBatch(_ context.Context, batchID string) error {
	if r.err != nil {
		return r.err
	}
	r.ids = append(r.ids, batchID)
	return nil
}

type failingDirectory struct{}

func (failingDirectory) ListParties(context.Context, parties.Kind) ([]parties.Party, error) {
	return nil, errBackendDown
}

func newTestService(t *testing.T, extractor Extractor, backend *fakeBackend) (*Service, *recordingEnqueuer, *BatchStore) {
	t.Helper()
	store, _ := newTestStore(t)
	enqueuer := &recordingEnqueuer{}
	svc := NewService(ServiceConfig{
		Extractor: extractor,
		Store:     store,
		Enqueuer:  enqueuer,
		Directory: backend,
		Backend:   backend,
		Matcher:   NewMatcher(0, 0),
	})
	return svc, enqueuer, store
}

func uploads(names ...string) []extraction.File {
	files := make([]extraction.File, len(names))
	for i, name := range names {
		files[i] = extraction.File{Name: name, Content: strings.NewReader("%PDF-1.4")}
	}
	return files
}

func TestServiceSubmitStoresAndQueues(t *testing.T) {
	doc := supplierDoc("F-1", "Acme", "A1")
	doc.Preview = "aGVsbG8="
	doc.Thumbnail = "dGh1bWI="
	extractor := &stubExtractor{docs: []extraction.Document{doc}}
	svc, enqueuer, _ := newTestService(t, extractor, newFakeBackend())

	rec, err := svc.Submit(context.Background(), parties.KindSupplier, uploads("a.pdf"))

	require.NoError(t, err)
	_, err = uuid.Parse(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, BatchQueued, rec.Status)
	assert.Equal(t, []string{rec.ID}, enqueuer.ids)
	require.Len(t, rec.Documents, 1)
	assert.Empty(t, rec.Documents[0].Preview)
	assert.Equal(t, "dGh1bWI=", rec.Documents[0].Thumbnail)

	stored, err := svc.Batch(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, BatchQueued, stored.Status)
}

func TestServiceSubmitRejectsBadInput(t *testing.T) {
	extractor := &stubExtractor{}
	svc, _, _ := newTestService(t, extractor, newFakeBackend())

	_, err := svc.Submit(context.Background(), parties.Kind("vendor"), uploads("a.pdf"))
	assert.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.Submit(context.Background(), parties.KindSupplier, nil)
	assert.ErrorIs(t, err, httpx.ErrValidation)
	assert.Zero(t, extractor.calls)
}

func TestServiceSubmitFailsWholeUploadOnExtractionError(t *testing.T) {
	extractor := &stubExtractor{err: extraction.ErrExtraction}
	svc, enqueuer, _ := newTestService(t, extractor, newFakeBackend())

	_, err := svc.Submit(context.Background(), parties.KindSupplier, uploads("a.pdf", "b.pdf"))

	assert.ErrorIs(t, err, httpx.ErrUpstream)
	assert.ErrorIs(t, err, extraction.ErrExtraction)
	assert.Empty(t, enqueuer.ids)
}

func TestServiceSubmitMarksBatchFailedWhenQueueIsDown(t *testing.T) {
	extractor := &stubExtractor{docs: []extraction.Document{supplierDoc("F-1", "Acme", "A1")}}
	svc, enqueuer, store := newTestService(t, extractor, newFakeBackend())
	enqueuer.err = errors.New("redis down")

	_, err := svc.Submit(context.Background(), parties.KindSupplier, uploads("a.pdf"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")

	keys, err := store.client.Keys(context.Background(), "intake:batch:*").Result()
	require.NoError(t, err)
	require.Len(t, keys, 1)
	stored, err := store.Load(context.Background(), strings.TrimPrefix(keys[0], "intake:batch:"))
	require.NoError(t, err)
	assert.Equal(t, BatchFailed, stored.Status)
	assert.Contains(t, stored.Error, "redis down")
}

func TestServiceBatchValidatesID(t *testing.T) {
	svc, _, _ := newTestService(t, &stubExtractor{}, newFakeBackend())

	_, err := svc.Batch(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.Batch(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestServiceRunDrivesStoredBatchOnce(t *testing.T) {
	backend := newFakeBackend(supplier(1, "Acme Corp", "A1"))
	extractor := &stubExtractor{docs: []extraction.Document{
		supplierDoc("F-1", "ACME", "A1", "P1"),
		supplierDoc("F-2", "Globex", "G1"),
	}}
	svc, _, _ := newTestService(t, extractor, backend)
	ctx := context.Background()

	rec, err := svc.Submit(ctx, parties.KindSupplier, uploads("a.pdf", "b.pdf"))
	require.NoError(t, err)

	report, err := svc.Run(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Totals.InvoicesCreated)
	assert.Equal(t, 1, report.Totals.PartiesCreated)
	assert.Equal(t, 1, report.Totals.PartsCreated)
	assert.Equal(t, MatchExactID, report.Outcomes[0].Match)

	stored, err := svc.Batch(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, BatchFinished, stored.Status)
	require.NotNil(t, stored.Report)
	assert.Equal(t, 2, stored.Report.Totals.InvoicesCreated)

	_, err = svc.Run(ctx, rec.ID)
	assert.ErrorIs(t, err, ErrBatchClaimed)
	assert.Len(t, backend.invoices, 2)
}

func TestServiceRunFailsBatchWhenDirectoryIsDown(t *testing.T) {
	extractor := &stubExtractor{docs: []extraction.Document{supplierDoc("F-1", "Acme", "A1")}}
	store, _ := newTestStore(t)
	backend := newFakeBackend()
	svc := NewService(ServiceConfig{
		Extractor: extractor,
		Store:     store,
		Enqueuer:  &recordingEnqueuer{},
		Directory: failingDirectory{},
		Backend:   backend,
	})
	ctx := context.Background()

	rec, err := svc.Submit(ctx, parties.KindSupplier, uploads("a.pdf"))
	require.NoError(t, err)

	_, err = svc.Run(ctx, rec.ID)
	assert.ErrorIs(t, err, errBackendDown)

	stored, err := store.Load(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, BatchFailed, stored.Status)
	assert.Empty(t, backend.Events())
}

// rejectSetHook fails the first SET on key once armed.
type rejectSetHook struct {
	key   atomic.Value
	fired atomic.Bool
}

func (h *rejectSetHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *rejectSetHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		key, _ := h.key.Load().(string)
		args := cmd.Args()
		if key != "" && cmd.Name() == "set" && len(args) > 1 && args[1] == key && h.fired.CompareAndSwap(false, true) {
			err := errors.New("write refused")
			cmd.SetErr(err)
			return err
		}
		return next(ctx, cmd)
	}
}

func (h *rejectSetHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestServiceRunFailsBatchWhenStatusCannotBeSaved(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	hook := &rejectSetHook{}
	client.AddHook(hook)

	store := NewBatchStore(client, time.Hour)
	backend := newFakeBackend()
	svc := NewService(ServiceConfig{
		Extractor: &stubExtractor{docs: []extraction.Document{supplierDoc("F-1", "Acme", "A1")}},
		Store:     store,
		Enqueuer:  &recordingEnqueuer{},
		Directory: backend,
		Backend:   backend,
		Matcher:   NewMatcher(0, 0),
	})
	ctx := context.Background()

	rec, err := svc.Submit(ctx, parties.KindSupplier, uploads("a.pdf"))
	require.NoError(t, err)
	hook.key.Store(batchKey(rec.ID))

	_, err = svc.Run(ctx, rec.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write refused")

	stored, err := store.Load(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, BatchFailed, stored.Status)
	assert.Contains(t, stored.Error, "write refused")
	assert.Empty(t, backend.Events())
}

func TestServiceRunReportsMissingBatch(t *testing.T) {
	svc, _, _ := newTestService(t, &stubExtractor{}, newFakeBackend())

	_, err := svc.Run(context.Background(), uuid.NewString())

	assert.ErrorIs(t, err, httpx.ErrNotFound)
}
