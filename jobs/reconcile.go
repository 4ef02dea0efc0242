package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-catering/internal/balances"
	jobmetrics "github.com/odyssey-erp/odyssey-catering/internal/jobs"
)

// Reconciler is the subset of balances.Reconciler used by the job.
type Reconciler interface {
	Check(ctx context.Context) ([]balances.Drift, error)
	Repair(ctx context.Context) ([]balances.Drift, error)
}

// ReconcileJob compares every derived total against its ledger rows.
type ReconcileJob struct {
	Reconciler Reconciler
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// NewReconcileJob initialises the reconciliation handler.
func NewReconcileJob(reconciler Reconciler, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconcileJob {
	return &ReconcileJob{Reconciler: reconciler, Logger: logger, Metrics: metrics}
}

// Handle executes one reconciliation run.
func (j *ReconcileJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Reconciler == nil {
		return errors.New("reconcile: handler not configured")
	}
	var payload ReconcilePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.Metrics.Track(TaskBalancesReconcile)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger().With(slog.Bool("repair", payload.Repair))
	var drifts []balances.Drift
	if payload.Repair {
		drifts, err = j.Reconciler.Repair(ctx)
	} else {
		drifts, err = j.Reconciler.Check(ctx)
	}
	if err != nil {
		logger.Error("reconcile failed", slog.Any("error", err))
		return err
	}

	counts := map[string]int{}
	for _, d := range drifts {
		counts[d.Kind]++
		logger.Warn("balance drift",
			slog.String("kind", d.Kind),
			slog.Int64("id", d.ID),
			slog.String("field", d.Field),
			slog.String("stored", d.Stored.String()),
			slog.String("computed", d.Computed.String()),
		)
	}
	if payload.Repair {
		for kind, n := range counts {
			j.Metrics.AddRepairs(kind, n)
		}
	}
	logger.Info("reconcile finished", slog.Int("drifts", len(drifts)))
	return nil
}

func (j *ReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
