package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBalancesReconcile recomputes derived totals and optionally repairs drift.
	TaskBalancesReconcile = "balances:reconcile"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// ReconcilePayload controls a reconciliation run.
type ReconcilePayload struct {
	Repair       bool      `json:"repair"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// CleanupPayload carries the key retention window.
type CleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewReconcileTask constructs an Asynq task for balance reconciliation.
func NewReconcileTask(payload ReconcilePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBalancesReconcile, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// NewCleanupTask constructs an Asynq task for idempotency key cleanup.
func NewCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(CleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
