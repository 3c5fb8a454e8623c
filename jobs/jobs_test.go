package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerdesk/ledgerdesk/internal/intake"
	jobmetrics "github.com/ledgerdesk/ledgerdesk/internal/jobs"
	"github.com/ledgerdesk/ledgerdesk/internal/masterdata/parties"
)

type stubRunner struct {
	ids    []string
	report intake.Report
	err    error
}

func (s *stubRunner) Run(_ context.Context, batchID string) (intake.Report, error) {
	s.ids = append(s.ids, batchID)
	return s.report, s.err
}

func TestNewIntakeBatchTask(t *testing.T) {
	task, err := NewIntakeBatchTask("b-1")
	require.NoError(t, err)
	assert.Equal(t, TaskIntakeBatch, task.Type())

	var payload IntakeBatchPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "b-1", payload.BatchID)

	_, err = NewIntakeBatchTask("")
	assert.Error(t, err)
}

func TestIntakeBatchJobRunsBatch(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)
	runner := &stubRunner{report: intake.Report{Totals: intake.Totals{Documents: 2, InvoicesCreated: 2}}}
	job := NewIntakeBatchJob(runner, nil, metrics)

	task, err := NewIntakeBatchTask("b-2")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	assert.Equal(t, []string{"b-2"}, runner.ids)
	count, err := testutil.GatherAndCount(registry, "ledgerdesk_jobs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIntakeBatchJobIgnoresClaimedBatch(t *testing.T) {
	runner := &stubRunner{err: intake.ErrBatchClaimed}
	task, err := NewIntakeBatchTask("b-3")
	require.NoError(t, err)

	assert.NoError(t, NewIntakeBatchJob(runner, nil, nil).Handle(context.Background(), task))
}

func TestIntakeBatchJobFailuresAreNotRetried(t *testing.T) {
	runner := &stubRunner{err: errors.New("directory down")}
	task, err := NewIntakeBatchTask("b-4")
	require.NoError(t, err)

	err = NewIntakeBatchJob(runner, nil, nil).Handle(context.Background(), task)
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Contains(t, err.Error(), "directory down")
}

func TestIntakeBatchJobBadPayload(t *testing.T) {
	runner := &stubRunner{}
	err := NewIntakeBatchJob(runner, nil, nil).Handle(context.Background(), asynq.NewTask(TaskIntakeBatch, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, runner.ids)
}

type stubDirectory struct {
	invalidated []parties.Kind
	loaded      []parties.Kind
	failKind    parties.Kind
}

func (s *stubDirectory) Invalidate(_ context.Context, kind parties.Kind) error {
	s.invalidated = append(s.invalidated, kind)
	return nil
}

func (s *stubDirectory) Snapshot(_ context.Context, kind parties.Kind) ([]parties.Party, error) {
	if kind == s.failKind {
		return nil, errors.New("db down")
	}
	s.loaded = append(s.loaded, kind)
	return []parties.Party{{ID: 1, Kind: kind}}, nil
}

func TestDirectoryWarmupJob(t *testing.T) {
	dir := &stubDirectory{}
	require.NoError(t, NewDirectoryWarmupJob(dir, nil, nil).Handle(context.Background(), NewDirectoryWarmupTask()))
	assert.Equal(t, []parties.Kind{parties.KindSupplier, parties.KindCustomer}, dir.invalidated)
	assert.Equal(t, []parties.Kind{parties.KindSupplier, parties.KindCustomer}, dir.loaded)

	failing := &stubDirectory{failKind: parties.KindSupplier}
	err := NewDirectoryWarmupJob(failing, nil, nil).Handle(context.Background(), NewDirectoryWarmupTask())
	require.Error(t, err)
	assert.Equal(t, []parties.Kind{parties.KindCustomer}, failing.loaded)
}

func TestServeMuxSkipsIncompleteHandlers(t *testing.T) {
	called := false
	mux := NewServeMux([]TaskHandler{
		{Type: "", Handler: func(context.Context, *asynq.Task) error { return nil }},
		{Type: "noop"},
		{Type: "ok", Handler: func(context.Context, *asynq.Task) error { called = true; return nil }},
	})

	require.NoError(t, mux.ProcessTask(context.Background(), asynq.NewTask("ok", nil)))
	assert.True(t, called)
	assert.Error(t, mux.ProcessTask(context.Background(), asynq.NewTask("noop", nil)))
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(nil, nil).MountRoutes)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"queue":"default","pending":0,"active":0,"scheduled":0,"archived":0,"paused":false}`, rr.Body.String())
}
