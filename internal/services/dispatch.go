package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/errandly/backend/internal/apperr"
	"github.com/errandly/backend/internal/geo"
	"github.com/errandly/backend/internal/models"
	"github.com/errandly/backend/internal/notify"
	"github.com/errandly/backend/internal/workers"
)

const (
	// DefaultTaskTTL is how long an unmatched task accepts offers.
	DefaultTaskTTL = 24 * time.Hour
	// DefaultOfferTTL is how long a submitted offer stays acceptable.
	DefaultOfferTTL = 15 * time.Minute
	// DefaultTeardownGrace is the delay between a task leaving its active
	// states and its channel being destroyed.
	DefaultTeardownGrace = 10 * time.Minute

	refCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	refCodeLen      = 8
)

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TaskStore is the task persistence used by the dispatcher.
type TaskStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Task, error)
	UpdateTx(ctx context.Context, tx pgx.Tx, t *models.Task) error
}

// OfferStore is the offer persistence used by the dispatcher.
type OfferStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, o *models.Offer) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Offer, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Offer, error)
	HasPendingTx(ctx context.Context, tx pgx.Tx, taskID, workerID uuid.UUID) (bool, error)
	RejectOtherPendingTx(ctx context.Context, tx pgx.Tx, taskID, exceptOfferID uuid.UUID) ([]*models.Offer, error)
	UpdateStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status models.OfferStatus) error
}

// WorkerStore is the worker registry surface used by the dispatcher.
type WorkerStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Worker, error)
	SetAvailabilityTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, available bool) error
	ApplyRatingTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, stars int) error
}

// AccountStore resolves customer accounts for notification delivery.
type AccountStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

// ChannelStore is the channel persistence used by the dispatcher.
type ChannelStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, c *models.Channel) error
}

// RatingStore is the rating persistence used by the dispatcher.
type RatingStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, r *models.Rating) error
}

// CandidateSearcher runs the expanding-radius worker search.
type CandidateSearcher interface {
	FindCandidates(ctx context.Context, center geo.Point, role models.WorkerRole) ([]geo.Candidate, int, error)
}

// InsertTeardownTxFunc enqueues a channel teardown at the given time within
// the transaction. Provided by main using river.Client.InsertTx.
type InsertTeardownTxFunc func(ctx context.Context, tx pgx.Tx, args workers.ChannelTeardownArgs, at time.Time) error

// InsertNotifyTxFunc enqueues the candidate fan-out within the transaction.
type InsertNotifyTxFunc func(ctx context.Context, tx pgx.Tx, args workers.NotifyCandidatesArgs) error

// Dispatcher orchestrates the task lifecycle: creation, candidate search,
// offer collection, atomic acceptance, progress, completion, cancellation,
// disputes, and rating.
type Dispatcher struct {
	Pool            TxBeginner
	Tasks           TaskStore
	Offers          OfferStore
	Workers         WorkerStore
	Accounts        AccountStore
	Channels        ChannelStore
	Ratings         RatingStore
	Search          CandidateSearcher
	Gateway         notify.Gateway
	EnqueueTeardown InsertTeardownTxFunc
	EnqueueNotify   InsertNotifyTxFunc
	TaskTTL         time.Duration
	OfferTTL        time.Duration
	TeardownGrace   time.Duration
	Logger          *slog.Logger
}

// TaskDraft is the accumulated task-creation state committed by the flow's
// final step.
type TaskDraft struct {
	Kind         models.TaskKind
	Pickup       models.Location
	Dropoff      *models.Location
	Instructions string
}

func notFoundOr(err error, entity string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(entity)
	}
	return err
}

// CreateTask persists a pending task, runs the candidate search, and fans
// the announcement out. With zero candidates at the radius cap the task
// stays pending and the customer gets a terminal "no workers found" notice;
// the task is not auto-cancelled.
func (d *Dispatcher) CreateTask(ctx context.Context, customerID uuid.UUID, draft TaskDraft) (*models.Task, error) {
	if !draft.Kind.IsValid() {
		return nil, apperr.Validationf("unknown task kind %q", draft.Kind)
	}
	if draft.Kind == models.TaskKindDelivery && draft.Dropoff == nil {
		return nil, apperr.Validationf("delivery task needs a dropoff location")
	}

	candidates, steps, err := d.Search.FindCandidates(ctx, geo.PointOf(draft.Pickup), draft.Kind.WorkerRole())
	if err != nil {
		return nil, err
	}

	refCode, err := gonanoid.Generate(refCodeAlphabet, refCodeLen)
	if err != nil {
		return nil, fmt.Errorf("generate ref code: %w", err)
	}

	now := time.Now()
	task := &models.Task{
		ID:           uuid.New(),
		CustomerID:   customerID,
		Kind:         draft.Kind,
		RefCode:      refCode,
		Pickup:       draft.Pickup,
		Dropoff:      draft.Dropoff,
		Instructions: draft.Instructions,
		Status:       models.TaskStatusPending,
		ExpiresAt:    now.Add(d.TaskTTL),
	}

	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := d.Tasks.CreateTx(ctx, tx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	if len(candidates) > 0 {
		args := workers.NotifyCandidatesArgs{
			TaskID:        task.ID,
			RefCode:       task.RefCode,
			TaskKind:      task.Kind,
			PickupAddress: task.Pickup.Address,
			RecipientIDs:  make([]int64, 0, len(candidates)),
		}
		if task.Dropoff != nil {
			args.DropoffAddress = task.Dropoff.Address
		}
		for _, c := range candidates {
			args.RecipientIDs = append(args.RecipientIDs, c.Worker.TelegramID)
		}
		if err := d.EnqueueNotify(ctx, tx, args); err != nil {
			return nil, fmt.Errorf("enqueue candidate fan-out: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	d.Logger.Info("task created", "task_id", task.ID, "ref", task.RefCode,
		"kind", task.Kind, "candidates", len(candidates), "search_steps", steps)

	if len(candidates) == 0 {
		d.notifyCustomer(ctx, customerID, noWorkersText(task))
	}
	return task, nil
}

// SubmitOffer records a worker's bid. Preconditions are checked under the
// task row lock so the status flip and the duplicate check cannot race.
func (d *Dispatcher) SubmitOffer(ctx context.Context, workerID, taskID uuid.UUID, price int64, vehicleType *models.VehicleType) (*models.Offer, error) {
	if price <= 0 {
		return nil, apperr.Validationf("price must be greater than zero")
	}

	worker, err := d.Workers.GetByID(ctx, workerID)
	if err != nil {
		return nil, notFoundOr(err, "worker")
	}
	if worker.Verification != models.VerificationVerified {
		return nil, apperr.Preconditionf("you must be verified before submitting offers")
	}

	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	task, err := d.Tasks.GetByIDForUpdate(ctx, tx, taskID)
	if err != nil {
		return nil, notFoundOr(err, "task")
	}
	if !task.Status.AcceptsOffers() {
		return nil, apperr.Preconditionf("task is no longer accepting offers")
	}
	if task.Kind == models.TaskKindDelivery {
		if vehicleType == nil || !vehicleType.IsValid() {
			return nil, apperr.Validationf("delivery offers need a vehicle type")
		}
	} else if vehicleType != nil {
		return nil, apperr.Validationf("vehicle type only applies to delivery tasks")
	}

	dup, err := d.Offers.HasPendingTx(ctx, tx, taskID, workerID)
	if err != nil {
		return nil, err
	}
	if dup {
		return nil, apperr.Preconditionf("you already bid on this task")
	}

	offer := &models.Offer{
		ID:          uuid.New(),
		TaskID:      taskID,
		WorkerID:    workerID,
		Price:       price,
		VehicleType: vehicleType,
		Status:      models.OfferStatusPending,
		ExpiresAt:   time.Now().Add(d.OfferTTL),
	}
	if err := d.Offers.CreateTx(ctx, tx, offer); err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}

	if task.Status == models.TaskStatusPending {
		task.Status = models.TaskStatusOffered
		if err := d.Tasks.UpdateTx(ctx, tx, task); err != nil {
			return nil, fmt.Errorf("mark task offered: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	d.Logger.Info("offer submitted", "offer_id", offer.ID, "task_id", taskID, "worker_id", workerID, "price", price)
	d.notifyCustomer(ctx, task.CustomerID, offerText(task, offer, worker))
	return offer, nil
}

// AcceptOffer is the correctness-critical acceptance transaction. The task
// row lock is taken first and serializes every acceptance attempt for the
// task; the offer lock follows. Everything through channel creation commits
// atomically or not at all.
func (d *Dispatcher) AcceptOffer(ctx context.Context, customerID, offerID uuid.UUID) (*models.Channel, error) {
	// Plain read to learn the task; the authoritative offer state is re-read
	// under the task lock below. Locking the offer before the task would
	// invert the lock order against RejectOtherPendingTx.
	probe, err := d.Offers.GetByID(ctx, offerID)
	if err != nil {
		return nil, notFoundOr(err, "offer")
	}

	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	task, err := d.Tasks.GetByIDForUpdate(ctx, tx, probe.TaskID)
	if err != nil {
		return nil, notFoundOr(err, "task")
	}
	if task.CustomerID != customerID {
		return nil, apperr.Unauthorizedf("this task is not yours")
	}
	if !task.Status.AcceptsOffers() {
		// The race loser lands here: another offer won while we waited on
		// the task lock.
		return nil, apperr.Conflictf("task already resolved")
	}

	offer, err := d.Offers.GetByIDForUpdate(ctx, tx, offerID)
	if err != nil {
		return nil, notFoundOr(err, "offer")
	}
	if offer.Status != models.OfferStatusPending || offer.Expired(time.Now()) {
		return nil, apperr.Preconditionf("offer not found or expired")
	}

	task.Status = models.TaskStatusAccepted
	task.AssignedWorkerID = &offer.WorkerID

	if err := d.Offers.UpdateStatusTx(ctx, tx, offer.ID, models.OfferStatusAccepted); err != nil {
		return nil, fmt.Errorf("accept offer: %w", err)
	}
	rejected, err := d.Offers.RejectOtherPendingTx(ctx, tx, task.ID, offer.ID)
	if err != nil {
		return nil, fmt.Errorf("reject competing offers: %w", err)
	}
	if err := d.Workers.SetAvailabilityTx(ctx, tx, offer.WorkerID, false); err != nil {
		return nil, fmt.Errorf("mark worker busy: %w", err)
	}

	worker, err := d.Workers.GetByID(ctx, offer.WorkerID)
	if err != nil {
		return nil, notFoundOr(err, "worker")
	}
	customer, err := d.Accounts.GetByID(ctx, customerID)
	if err != nil {
		return nil, notFoundOr(err, "customer")
	}

	externalID, err := d.Gateway.CreateChannel(ctx, "Task "+task.RefCode,
		[]int64{customer.TelegramID, worker.TelegramID})
	if err != nil {
		// Rolls back the whole acceptance; the customer can retry.
		return nil, err
	}

	channel := &models.Channel{
		ID:         uuid.New(),
		TaskID:     task.ID,
		CustomerID: customerID,
		WorkerID:   offer.WorkerID,
		ExternalID: externalID,
	}
	if err := d.Channels.CreateTx(ctx, tx, channel); err != nil {
		return nil, fmt.Errorf("create channel record: %w", err)
	}
	task.ChannelID = &channel.ID
	if err := d.Tasks.UpdateTx(ctx, tx, task); err != nil {
		return nil, fmt.Errorf("update task accepted: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	d.Logger.Info("offer accepted", "task_id", task.ID, "offer_id", offer.ID,
		"worker_id", offer.WorkerID, "rejected_offers", len(rejected))

	d.notifyWorker(ctx, worker, fmt.Sprintf("Your offer on task %s was accepted. Check your private channel for details.", task.RefCode))
	for _, lost := range rejected {
		if w, err := d.Workers.GetByID(ctx, lost.WorkerID); err == nil {
			d.notifyWorker(ctx, w, fmt.Sprintf("Task %s was taken by another worker.", task.RefCode))
		}
	}
	d.notifyCustomer(ctx, customerID, fmt.Sprintf("Offer accepted for task %s. Your private channel with the worker is ready.", task.RefCode))
	return channel, nil
}

// ConfirmInProgress is the assigned worker's attestation that work started.
func (d *Dispatcher) ConfirmInProgress(ctx context.Context, workerID, taskID uuid.UUID) error {
	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	task, err := d.Tasks.GetByIDForUpdate(ctx, tx, taskID)
	if err != nil {
		return notFoundOr(err, "task")
	}
	if task.Status != models.TaskStatusAccepted {
		return apperr.Preconditionf("task is %s, expected accepted", task.Status)
	}
	if task.AssignedWorkerID == nil || *task.AssignedWorkerID != workerID {
		return apperr.Unauthorizedf("you are not assigned to this task")
	}

	task.Status = models.TaskStatusInProgress
	if err := d.Tasks.UpdateTx(ctx, tx, task); err != nil {
		return fmt.Errorf("update task in_progress: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	d.notifyCustomer(ctx, task.CustomerID, fmt.Sprintf("Task %s is now in progress.", task.RefCode))
	return nil
}

// MarkCompleted is the customer's attestation that the task finished. It
// restores the worker's availability and schedules channel teardown after
// the grace period. The caller opens the rating flow on success.
func (d *Dispatcher) MarkCompleted(ctx context.Context, customerID, taskID uuid.UUID) (*models.Task, error) {
	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	task, err := d.Tasks.GetByIDForUpdate(ctx, tx, taskID)
	if err != nil {
		return nil, notFoundOr(err, "task")
	}
	if task.CustomerID != customerID {
		return nil, apperr.Unauthorizedf("this task is not yours")
	}
	if task.Status != models.TaskStatusInProgress {
		return nil, apperr.Preconditionf("task is %s, expected in_progress", task.Status)
	}
	if task.AssignedWorkerID == nil {
		d.Logger.Error("invariant violation: in_progress task without assigned worker", "task_id", task.ID)
		return nil, fmt.Errorf("task %s has no assigned worker", task.ID)
	}

	task.Status = models.TaskStatusCompleted
	if err := d.Tasks.UpdateTx(ctx, tx, task); err != nil {
		return nil, fmt.Errorf("update task completed: %w", err)
	}
	if err := d.Workers.SetAvailabilityTx(ctx, tx, *task.AssignedWorkerID, true); err != nil {
		return nil, fmt.Errorf("restore worker availability: %w", err)
	}
	if err := d.scheduleTeardown(ctx, tx, task); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	if w, err := d.Workers.GetByID(ctx, *task.AssignedWorkerID); err == nil {
		d.notifyWorker(ctx, w, fmt.Sprintf("Task %s was marked completed. You are available for new tasks.", task.RefCode))
	}
	return task, nil
}

// CancelTask is explicit customer cancellation, valid only before acceptance.
func (d *Dispatcher) CancelTask(ctx context.Context, customerID, taskID uuid.UUID) error {
	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	task, err := d.Tasks.GetByIDForUpdate(ctx, tx, taskID)
	if err != nil {
		return notFoundOr(err, "task")
	}
	if task.CustomerID != customerID {
		return apperr.Unauthorizedf("this task is not yours")
	}
	if !task.Status.AcceptsOffers() {
		return apperr.Preconditionf("task is %s and can no longer be cancelled", task.Status)
	}

	task.Status = models.TaskStatusCancelled
	if err := d.Tasks.UpdateTx(ctx, tx, task); err != nil {
		return fmt.Errorf("update task cancelled: %w", err)
	}
	rejected, err := d.Offers.RejectOtherPendingTx(ctx, tx, task.ID, uuid.Nil)
	if err != nil {
		return fmt.Errorf("reject pending offers: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	for _, lost := range rejected {
		if w, err := d.Workers.GetByID(ctx, lost.WorkerID); err == nil {
			d.notifyWorker(ctx, w, fmt.Sprintf("Task %s was cancelled by the customer.", task.RefCode))
		}
	}
	return nil
}

// RaiseDispute freezes an active task until an external resolution actor
// forces an outcome. Either party may raise it.
func (d *Dispatcher) RaiseDispute(ctx context.Context, callerAccountID, taskID uuid.UUID) error {
	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	task, err := d.Tasks.GetByIDForUpdate(ctx, tx, taskID)
	if err != nil {
		return notFoundOr(err, "task")
	}
	if task.Status != models.TaskStatusAccepted && task.Status != models.TaskStatusInProgress {
		return apperr.Preconditionf("task is %s; disputes require an active task", task.Status)
	}

	party := task.CustomerID == callerAccountID
	if !party && task.AssignedWorkerID != nil {
		w, err := d.Workers.GetByID(ctx, *task.AssignedWorkerID)
		if err != nil {
			return notFoundOr(err, "worker")
		}
		party = w.AccountID == callerAccountID
	}
	if !party {
		return apperr.Unauthorizedf("only the customer or the assigned worker can raise a dispute")
	}

	task.Status = models.TaskStatusDisputed
	if err := d.Tasks.UpdateTx(ctx, tx, task); err != nil {
		return fmt.Errorf("update task disputed: %w", err)
	}
	if err := d.scheduleTeardown(ctx, tx, task); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	d.notifyCustomer(ctx, task.CustomerID, fmt.Sprintf("A dispute was raised on task %s. Support will review it.", task.RefCode))
	if task.AssignedWorkerID != nil {
		if w, err := d.Workers.GetByID(ctx, *task.AssignedWorkerID); err == nil {
			d.notifyWorker(ctx, w, fmt.Sprintf("A dispute was raised on task %s. Support will review it.", task.RefCode))
		}
	}
	return nil
}

// ResolveDispute is invoked by the external resolution actor and forces a
// disputed task to completed or cancelled, restoring worker availability.
func (d *Dispatcher) ResolveDispute(ctx context.Context, taskID uuid.UUID, outcome models.TaskStatus) error {
	if outcome != models.TaskStatusCompleted && outcome != models.TaskStatusCancelled {
		return apperr.Validationf("dispute outcome must be completed or cancelled, got %q", outcome)
	}

	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	task, err := d.Tasks.GetByIDForUpdate(ctx, tx, taskID)
	if err != nil {
		return notFoundOr(err, "task")
	}
	if task.Status != models.TaskStatusDisputed {
		return apperr.Preconditionf("task is %s, expected disputed", task.Status)
	}

	task.Status = outcome
	if err := d.Tasks.UpdateTx(ctx, tx, task); err != nil {
		return fmt.Errorf("update task resolved: %w", err)
	}
	if task.AssignedWorkerID != nil {
		if err := d.Workers.SetAvailabilityTx(ctx, tx, *task.AssignedWorkerID, true); err != nil {
			return fmt.Errorf("restore worker availability: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	d.Logger.Info("dispute resolved", "task_id", task.ID, "outcome", outcome)
	return nil
}

// Rate records the customer's one-shot rating of the assigned worker and
// folds it into the running mean.
func (d *Dispatcher) Rate(ctx context.Context, customerID, taskID uuid.UUID, stars int, comment string) error {
	if stars < 1 || stars > 5 {
		return apperr.Validationf("rating must be between 1 and 5 stars")
	}

	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	task, err := d.Tasks.GetByIDForUpdate(ctx, tx, taskID)
	if err != nil {
		return notFoundOr(err, "task")
	}
	if task.CustomerID != customerID {
		return apperr.Unauthorizedf("this task is not yours")
	}
	if task.Status != models.TaskStatusCompleted {
		return apperr.Preconditionf("only completed tasks can be rated")
	}
	if task.AssignedWorkerID == nil {
		d.Logger.Error("invariant violation: completed task without assigned worker", "task_id", task.ID)
		return fmt.Errorf("task %s has no assigned worker", task.ID)
	}

	rating := &models.Rating{
		ID:         uuid.New(),
		TaskID:     task.ID,
		WorkerID:   *task.AssignedWorkerID,
		CustomerID: customerID,
		Stars:      stars,
		Comment:    comment,
	}
	if err := d.Ratings.CreateTx(ctx, tx, rating); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperr.Preconditionf("you already rated this task")
		}
		return fmt.Errorf("create rating: %w", err)
	}
	if err := d.Workers.ApplyRatingTx(ctx, tx, *task.AssignedWorkerID, stars); err != nil {
		return fmt.Errorf("apply rating: %w", err)
	}
	return tx.Commit(ctx)
}

// scheduleTeardown enqueues channel destruction after the grace period, if
// the task has a channel.
func (d *Dispatcher) scheduleTeardown(ctx context.Context, tx pgx.Tx, task *models.Task) error {
	if task.ChannelID == nil {
		return nil
	}
	args := workers.ChannelTeardownArgs{ChannelID: *task.ChannelID}
	if err := d.EnqueueTeardown(ctx, tx, args, time.Now().Add(d.TeardownGrace)); err != nil {
		return fmt.Errorf("enqueue channel teardown: %w", err)
	}
	return nil
}

// Notifications are best-effort after commit; failures are logged, never
// surfaced.
func (d *Dispatcher) notifyCustomer(ctx context.Context, customerID uuid.UUID, text string) {
	acc, err := d.Accounts.GetByID(ctx, customerID)
	if err != nil {
		d.Logger.Warn("notify customer: resolve account failed", "customer_id", customerID, "error", err)
		return
	}
	if err := d.Gateway.SendMessage(ctx, acc.TelegramID, text); err != nil {
		d.Logger.Warn("notify customer failed", "customer_id", customerID, "error", err)
	}
}

func (d *Dispatcher) notifyWorker(ctx context.Context, w *models.Worker, text string) {
	if err := d.Gateway.SendMessage(ctx, w.TelegramID, text); err != nil {
		d.Logger.Warn("notify worker failed", "worker_id", w.ID, "error", err)
	}
}

func noWorkersText(task *models.Task) string {
	if task.Kind == models.TaskKindDelivery {
		return fmt.Sprintf("No riders found near your pickup for task %s. Your task stays open; we'll keep looking.", task.RefCode)
	}
	return fmt.Sprintf("No erranders found near your location for task %s. Your task stays open; we'll keep looking.", task.RefCode)
}

func offerText(task *models.Task, offer *models.Offer, worker *models.Worker) string {
	rating := "unrated"
	if worker.ReviewCount > 0 {
		rating = fmt.Sprintf("%.1f★ (%d reviews)", worker.RatingAverage(), worker.ReviewCount)
	}
	return fmt.Sprintf("New offer on task %s: %d from a worker rated %s.", task.RefCode, offer.Price, rating)
}
