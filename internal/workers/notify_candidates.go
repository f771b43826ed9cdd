package workers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/riverqueue/river"

	"github.com/errandly/backend/internal/models"
	"github.com/errandly/backend/internal/notify"
)

// NotifyCandidatesWorker delivers the new-task announcement to every
// candidate found by the radius search. Individual delivery failures are
// logged and skipped; the fan-out as a whole is not retried unless every
// send failed.
type NotifyCandidatesWorker struct {
	river.WorkerDefaults[NotifyCandidatesArgs]
	Gateway notify.Gateway
	Logger  *slog.Logger
}

func (w *NotifyCandidatesWorker) Work(ctx context.Context, job *river.Job[NotifyCandidatesArgs]) error {
	args := job.Args
	text := announcementText(args)

	failed := 0
	for _, rid := range args.RecipientIDs {
		if err := w.Gateway.SendMessage(ctx, rid, text); err != nil {
			w.Logger.Warn("candidate notification failed",
				"task_id", args.TaskID, "recipient", rid, "error", err)
			failed++
		}
	}
	if failed > 0 && failed == len(args.RecipientIDs) {
		return fmt.Errorf("all %d candidate notifications failed for task %s", failed, args.TaskID)
	}
	return nil
}

func announcementText(args NotifyCandidatesArgs) string {
	if args.TaskKind == models.TaskKindDelivery {
		return fmt.Sprintf("New delivery task %s: pickup at %s, dropoff at %s. Reply with your offer to bid.",
			args.RefCode, args.PickupAddress, args.DropoffAddress)
	}
	return fmt.Sprintf("New errand task %s at %s. Reply with your offer to bid.",
		args.RefCode, args.PickupAddress)
}
