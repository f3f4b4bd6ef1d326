package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// NewIdempotencyCleanupTask builds the scheduled purge task. It carries no
// payload; the retention lives on the job.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskTypeIdempotencyCleanup, nil)
}

// KeyCleaner purges consumed idempotency keys older than the retention.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// IdempotencyCleanupJob drops idempotency keys past their retention window.
// Keys only guard against short-horizon client retries, so a daily purge
// keeps the table from growing without bound.
type IdempotencyCleanupJob struct {
	Store     KeyCleaner
	Logger    *slog.Logger
	Retention time.Duration
}

func (j *IdempotencyCleanupJob) Handle(ctx context.Context, _ *asynq.Task) error {
	retention := j.Retention
	if retention <= 0 {
		retention = 48 * time.Hour
	}
	if err := j.Store.Cleanup(ctx, retention); err != nil {
		return err
	}
	if j.Logger != nil {
		j.Logger.Info("idempotency keys purged", slog.Duration("retention", retention))
	}
	return nil
}
