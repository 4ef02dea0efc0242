package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-catering/internal/balances"
	jobmetrics "github.com/odyssey-erp/odyssey-catering/internal/jobs"
)

type stubReconciler struct {
	drifts   []balances.Drift
	err      error
	checked  int
	repaired int
}

func (s *stubReconciler) Check(ctx context.Context) ([]balances.Drift, error) {
	s.checked++
	return s.drifts, s.err
}

func (s *stubReconciler) Repair(ctx context.Context) ([]balances.Drift, error) {
	s.repaired++
	return s.drifts, s.err
}

func TestReconcileTaskPayload(t *testing.T) {
	at := time.Date(2026, 10, 19, 2, 0, 0, 0, time.UTC)
	task, err := NewReconcileTask(ReconcilePayload{Repair: true, ScheduledFor: at})
	require.NoError(t, err)
	require.Equal(t, TaskBalancesReconcile, task.Type())

	var payload ReconcilePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.True(t, payload.Repair)
	require.True(t, payload.ScheduledFor.Equal(at))
}

func TestReconcileJobChecksByDefault(t *testing.T) {
	rec := &stubReconciler{drifts: []balances.Drift{{Kind: balances.KindSupplier, ID: 4, Field: "total_paid", Stored: decimal.NewFromInt(10), Computed: decimal.NewFromInt(12)}}}
	job := NewReconcileJob(rec, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskBalancesReconcile, nil)))
	require.Equal(t, 1, rec.checked)
	require.Zero(t, rec.repaired)
}

func TestReconcileJobRepairsWhenAsked(t *testing.T) {
	rec := &stubReconciler{}
	job := NewReconcileJob(rec, nil, nil)
	task, err := NewReconcileTask(ReconcilePayload{Repair: true})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, rec.repaired)
}

func TestReconcileJobPropagatesFailure(t *testing.T) {
	boom := errors.New("db down")
	job := NewReconcileJob(&stubReconciler{err: boom}, nil, nil)
	require.ErrorIs(t, job.Handle(context.Background(), asynq.NewTask(TaskBalancesReconcile, nil)), boom)
}

func TestReconcileJobSkipsRetryOnBadPayload(t *testing.T) {
	job := NewReconcileJob(&stubReconciler{}, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskBalancesReconcile, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type stubCleaner struct {
	retention time.Duration
}

func (s *stubCleaner) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.retention = olderThan
	return 3, nil
}

func TestCleanupJobRetention(t *testing.T) {
	store := &stubCleaner{}
	job := &CleanupJob{Store: store, Retention: 48 * time.Hour}

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	require.Equal(t, 48*time.Hour, store.retention)

	task, err := NewCleanupTask(time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, time.Hour, store.retention)

	require.NoError(t, (&CleanupJob{Store: store}).Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	require.Equal(t, 72*time.Hour, store.retention)
}

type stubEnqueuer struct {
	repair bool
	err    error
}

func (s *stubEnqueuer) EnqueueReconcile(ctx context.Context, repair bool) (*asynq.TaskInfo, error) {
	s.repair = repair
	if s.err != nil {
		return nil, s.err
	}
	return &asynq.TaskInfo{ID: "t-1", Queue: QueueDefault}, nil
}

func TestHandlerEnqueuesReconcile(t *testing.T) {
	enq := &stubEnqueuer{}
	r := chi.NewRouter()
	NewHandler(nil, enq, nil).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reconcile?repair=true", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.True(t, enq.repair)
	require.Contains(t, rec.Body.String(), `"task_id":"t-1"`)

	enq.err = asynq.ErrDuplicateTask
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reconcile", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), "already queued")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"pending":0`)
}
