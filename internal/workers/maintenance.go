package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
)

// SessionSweeper reclaims expired session index entries.
type SessionSweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// TaskExpirer marks overdue unmatched tasks as expired.
type TaskExpirer interface {
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

// OfferExpirer marks overdue pending offers as expired.
type OfferExpirer interface {
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

// MaintenanceWorker runs the periodic sweep. Every step is idempotent and
// safe to run concurrently with user-driven mutation.
type MaintenanceWorker struct {
	river.WorkerDefaults[MaintenanceArgs]
	Sessions SessionSweeper
	Tasks    TaskExpirer
	Offers   OfferExpirer
	Logger   *slog.Logger
}

func (w *MaintenanceWorker) Work(ctx context.Context, _ *river.Job[MaintenanceArgs]) error {
	now := time.Now()

	swept, err := w.Sessions.SweepExpired(ctx)
	if err != nil {
		return err
	}
	tasks, err := w.Tasks.ExpireOverdue(ctx, now)
	if err != nil {
		return err
	}
	offers, err := w.Offers.ExpireOverdue(ctx, now)
	if err != nil {
		return err
	}
	if swept > 0 || tasks > 0 || offers > 0 {
		w.Logger.Info("maintenance sweep", "sessions", swept, "tasks_expired", tasks, "offers_expired", offers)
	}
	return nil
}
