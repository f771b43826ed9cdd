package workers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"

	"github.com/errandly/backend/internal/models"
	"github.com/errandly/backend/internal/notify"
)

// TeardownMaxAttempts bounds how often River retries a failing teardown
// before the job is logged and abandoned.
const TeardownMaxAttempts = 5

// TeardownChannelStore is the channel persistence needed by teardown.
type TeardownChannelStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Channel, error)
	DeleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
}

// TeardownTaskStore clears the task's channel binding.
type TeardownTaskStore interface {
	ClearChannelTx(ctx context.Context, tx pgx.Tx, taskID uuid.UUID) error
}

type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ChannelTeardownWorker removes participants' channel on the chat provider,
// then deletes the channel record and clears the task binding. River retries
// the whole job with exponential backoff on failure.
type ChannelTeardownWorker struct {
	river.WorkerDefaults[ChannelTeardownArgs]
	Pool     TxBeginner
	Channels TeardownChannelStore
	Tasks    TeardownTaskStore
	Gateway  notify.Gateway
	Logger   *slog.Logger
}

func (w *ChannelTeardownWorker) Work(ctx context.Context, job *river.Job[ChannelTeardownArgs]) error {
	ch, err := w.Channels.GetByID(ctx, job.Args.ChannelID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Already torn down; idempotent.
			return nil
		}
		return err
	}

	if err := w.Gateway.DeleteChannel(ctx, ch.ExternalID); err != nil {
		if job.Attempt >= TeardownMaxAttempts {
			w.Logger.Error("channel teardown abandoned after max attempts",
				"channel_id", ch.ID, "task_id", ch.TaskID, "attempt", job.Attempt, "error", err)
		}
		return err
	}

	tx, err := w.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := w.Tasks.ClearChannelTx(ctx, tx, ch.TaskID); err != nil {
		return err
	}
	if err := w.Channels.DeleteTx(ctx, tx, ch.ID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	w.Logger.Info("channel torn down", "channel_id", ch.ID, "task_id", ch.TaskID)
	return nil
}
