package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/errandly/backend/internal/apperr"
	"github.com/errandly/backend/internal/geo"
	"github.com/errandly/backend/internal/models"
	"github.com/errandly/backend/internal/workers"
)

// ---------------------------------------------------------------------------
// In-memory mocks. These let us test the real Dispatcher logic without a
// database; transactional rollback is not reproduced, so rollback tests
// assert on state the dispatcher only writes after external calls succeed.
// ---------------------------------------------------------------------------

// --- noopTx satisfies pgx.Tx for test use; only Commit/Rollback are called. ---

type noopTx struct{}

func (noopTx) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }
func (noopTx) Commit(context.Context) error          { return nil }
func (noopTx) Rollback(context.Context) error        { return nil }
func (noopTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (noopTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (noopTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (noopTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (noopTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (noopTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (noopTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (noopTx) Conn() *pgx.Conn { return nil }

type mockPool struct{}

func (mockPool) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }

// --- TaskStore mock ---

type mockTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*models.Task
}

func newMockTaskStore() *mockTaskStore {
	return &mockTaskStore{tasks: make(map[uuid.UUID]*models.Task)}
}

func (m *mockTaskStore) CreateTx(_ context.Context, _ pgx.Tx, t *models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *mockTaskStore) GetByID(_ context.Context, id uuid.UUID) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (m *mockTaskStore) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*models.Task, error) {
	return m.GetByID(ctx, id)
}

func (m *mockTaskStore) UpdateTx(_ context.Context, _ pgx.Tx, t *models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *mockTaskStore) status(id uuid.UUID) models.TaskStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks[id].Status
}

// --- OfferStore mock ---

type mockOfferStore struct {
	mu     sync.Mutex
	offers map[uuid.UUID]*models.Offer
}

func newMockOfferStore() *mockOfferStore {
	return &mockOfferStore{offers: make(map[uuid.UUID]*models.Offer)}
}

func (m *mockOfferStore) CreateTx(_ context.Context, _ pgx.Tx, o *models.Offer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.offers[o.ID] = &cp
	return nil
}

func (m *mockOfferStore) GetByID(_ context.Context, id uuid.UUID) (*models.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *o
	return &cp, nil
}

func (m *mockOfferStore) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*models.Offer, error) {
	return m.GetByID(ctx, id)
}

func (m *mockOfferStore) HasPendingTx(_ context.Context, _ pgx.Tx, taskID, workerID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.offers {
		if o.TaskID == taskID && o.WorkerID == workerID && o.Status == models.OfferStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockOfferStore) RejectOtherPendingTx(_ context.Context, _ pgx.Tx, taskID, exceptOfferID uuid.UUID) ([]*models.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rejected []*models.Offer
	for _, o := range m.offers {
		if o.TaskID == taskID && o.ID != exceptOfferID && o.Status == models.OfferStatusPending {
			o.Status = models.OfferStatusRejected
			cp := *o
			rejected = append(rejected, &cp)
		}
	}
	return rejected, nil
}

func (m *mockOfferStore) UpdateStatusTx(_ context.Context, _ pgx.Tx, id uuid.UUID, status models.OfferStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[id]
	if !ok {
		return pgx.ErrNoRows
	}
	o.Status = status
	return nil
}

func (m *mockOfferStore) status(id uuid.UUID) models.OfferStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offers[id].Status
}

// --- WorkerStore mock ---

type mockWorkerStore struct {
	mu      sync.Mutex
	workers map[uuid.UUID]*models.Worker
}

func newMockWorkerStore(ws ...*models.Worker) *mockWorkerStore {
	m := &mockWorkerStore{workers: make(map[uuid.UUID]*models.Worker)}
	for _, w := range ws {
		cp := *w
		m.workers[w.ID] = &cp
	}
	return m
}

func (m *mockWorkerStore) GetByID(_ context.Context, id uuid.UUID) (*models.Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *w
	return &cp, nil
}

func (m *mockWorkerStore) SetAvailabilityTx(_ context.Context, _ pgx.Tx, id uuid.UUID, available bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[id]
	if !ok {
		return pgx.ErrNoRows
	}
	w.IsAvailable = available
	return nil
}

func (m *mockWorkerStore) ApplyRatingTx(_ context.Context, _ pgx.Tx, id uuid.UUID, stars int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[id]
	if !ok {
		return pgx.ErrNoRows
	}
	w.RatingSum += int64(stars)
	w.ReviewCount++
	return nil
}

func (m *mockWorkerStore) available(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.workers[id].IsAvailable
}

// --- AccountStore mock ---

type mockAccountStore struct {
	accounts map[uuid.UUID]*models.Account
}

func (m *mockAccountStore) GetByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

// --- ChannelStore mock ---

type mockChannelStore struct {
	mu       sync.Mutex
	channels map[uuid.UUID]*models.Channel
}

func newMockChannelStore() *mockChannelStore {
	return &mockChannelStore{channels: make(map[uuid.UUID]*models.Channel)}
}

func (m *mockChannelStore) CreateTx(_ context.Context, _ pgx.Tx, c *models.Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.channels[c.ID] = &cp
	return nil
}

// --- RatingStore mock: enforces the one-rating-per-(task,worker) index ---

type mockRatingStore struct {
	mu      sync.Mutex
	ratings []*models.Rating
}

func (m *mockRatingStore) CreateTx(_ context.Context, _ pgx.Tx, r *models.Rating) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.ratings {
		if existing.TaskID == r.TaskID && existing.WorkerID == r.WorkerID {
			return &pgconn.PgError{Code: "23505", ConstraintName: "ratings_task_worker_key"}
		}
	}
	cp := *r
	m.ratings = append(m.ratings, &cp)
	return nil
}

// --- CandidateSearcher mock ---

type mockSearch struct {
	candidates []geo.Candidate
	steps      int
}

func (m *mockSearch) FindCandidates(context.Context, geo.Point, models.WorkerRole) ([]geo.Candidate, int, error) {
	return m.candidates, m.steps, nil
}

// --- Gateway mock ---

type mockGateway struct {
	mu          sync.Mutex
	messages    map[int64][]string
	channels    int64
	createCalls [][]int64
	createErr   error
}

func newMockGateway() *mockGateway {
	return &mockGateway{messages: make(map[int64][]string), channels: 1000}
}

func (m *mockGateway) SendMessage(_ context.Context, recipientID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[recipientID] = append(m.messages[recipientID], text)
	return nil
}

func (m *mockGateway) CreateChannel(_ context.Context, _ string, participantIDs []int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return 0, m.createErr
	}
	m.channels++
	m.createCalls = append(m.createCalls, participantIDs)
	return m.channels, nil
}

func (m *mockGateway) DeleteChannel(context.Context, int64) error        { return nil }
func (m *mockGateway) PromoteMember(context.Context, int64, int64) error { return nil }

func (m *mockGateway) sentTo(recipientID int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.messages[recipientID]...)
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

type teardownCall struct {
	args workers.ChannelTeardownArgs
	at   time.Time
}

type fixture struct {
	d         *Dispatcher
	tasks     *mockTaskStore
	offers    *mockOfferStore
	staff     *mockWorkerStore
	accounts  *mockAccountStore
	channels  *mockChannelStore
	ratings   *mockRatingStore
	search    *mockSearch
	gateway   *mockGateway
	teardowns []teardownCall
	notifies  []workers.NotifyCandidatesArgs
}

func newFixture(staff *mockWorkerStore, accounts *mockAccountStore) *fixture {
	f := &fixture{
		tasks:    newMockTaskStore(),
		offers:   newMockOfferStore(),
		staff:    staff,
		accounts: accounts,
		channels: newMockChannelStore(),
		ratings:  &mockRatingStore{},
		search:   &mockSearch{steps: 1},
		gateway:  newMockGateway(),
	}
	f.d = &Dispatcher{
		Pool:     mockPool{},
		Tasks:    f.tasks,
		Offers:   f.offers,
		Workers:  f.staff,
		Accounts: f.accounts,
		Channels: f.channels,
		Ratings:  f.ratings,
		Search:   f.search,
		Gateway:  f.gateway,
		EnqueueTeardown: func(_ context.Context, _ pgx.Tx, args workers.ChannelTeardownArgs, at time.Time) error {
			f.teardowns = append(f.teardowns, teardownCall{args: args, at: at})
			return nil
		},
		EnqueueNotify: func(_ context.Context, _ pgx.Tx, args workers.NotifyCandidatesArgs) error {
			f.notifies = append(f.notifies, args)
			return nil
		},
		TaskTTL:       DefaultTaskTTL,
		OfferTTL:      DefaultOfferTTL,
		TeardownGrace: DefaultTeardownGrace,
		Logger:        slog.Default(),
	}
	return f
}

func makeWorker(role models.WorkerRole, telegramID int64) *models.Worker {
	now := time.Now()
	return &models.Worker{
		ID:           uuid.New(),
		AccountID:    uuid.New(),
		TelegramID:   telegramID,
		Role:         role,
		Verification: models.VerificationVerified,
		IsAvailable:  true,
		LastKnownLocation: &models.Location{
			Lat: -1.286, Lon: 36.817, Address: "CBD",
		},
		LocationAt: &now,
	}
}

func makeCustomer(telegramID int64) *models.Account {
	return &models.Account{
		ID:         uuid.New(),
		Email:      fmt.Sprintf("c%d@example.com", telegramID),
		Role:       models.AccountRoleCustomer,
		TelegramID: telegramID,
	}
}

func deliveryDraft() TaskDraft {
	return TaskDraft{
		Kind:    models.TaskKindDelivery,
		Pickup:  models.Location{Lat: -1.28, Lon: 36.81, Address: "Warehouse"},
		Dropoff: &models.Location{Lat: -1.30, Lon: 36.79, Address: "Estate"},
	}
}

func vehicle(v models.VehicleType) *models.VehicleType { return &v }

// seedAcceptedTask walks a task through creation, one offer, and acceptance.
func seedAcceptedTask(t *testing.T, f *fixture, customer *models.Account, worker *models.Worker) (*models.Task, *models.Offer) {
	t.Helper()
	ctx := context.Background()

	task, err := f.d.CreateTask(ctx, customer.ID, deliveryDraft())
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	offer, err := f.d.SubmitOffer(ctx, worker.ID, task.ID, 500, vehicle(models.VehicleMotorcycle))
	if err != nil {
		t.Fatalf("SubmitOffer: %v", err)
	}
	if _, err := f.d.AcceptOffer(ctx, customer.ID, offer.ID); err != nil {
		t.Fatalf("AcceptOffer: %v", err)
	}
	task, err = f.tasks.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("reload task: %v", err)
	}
	return task, offer
}

// =====================================================================
// Task creation and fan-out
// =====================================================================

func TestCreateTask_FansOutToCandidates(t *testing.T) {
	rider := makeWorker(models.WorkerRoleRider, 101)
	customer := makeCustomer(11)
	f := newFixture(newMockWorkerStore(rider), &mockAccountStore{accounts: map[uuid.UUID]*models.Account{customer.ID: customer}})
	f.search.candidates = []geo.Candidate{{Worker: rider, DistanceKm: 2.4}}

	task, err := f.d.CreateTask(context.Background(), customer.ID, deliveryDraft())
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	if task.Status != models.TaskStatusPending {
		t.Errorf("task status: got %s, want pending", task.Status)
	}
	if len(task.RefCode) != refCodeLen {
		t.Errorf("ref code length: got %d, want %d", len(task.RefCode), refCodeLen)
	}
	if len(f.notifies) != 1 {
		t.Fatalf("notify jobs enqueued: got %d, want 1", len(f.notifies))
	}
	if got := f.notifies[0].RecipientIDs; len(got) != 1 || got[0] != rider.TelegramID {
		t.Errorf("fan-out recipients: got %v, want [%d]", got, rider.TelegramID)
	}
	// No direct customer message when candidates were found.
	if msgs := f.gateway.sentTo(customer.TelegramID); len(msgs) != 0 {
		t.Errorf("unexpected customer messages: %v", msgs)
	}
}

func TestCreateTask_NoCandidatesStaysPending(t *testing.T) {
	customer := makeCustomer(12)
	f := newFixture(newMockWorkerStore(), &mockAccountStore{accounts: map[uuid.UUID]*models.Account{customer.ID: customer}})

	task, err := f.d.CreateTask(context.Background(), customer.ID, deliveryDraft())
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	if task.Status != models.TaskStatusPending {
		t.Errorf("task status: got %s, want pending (not auto-cancelled)", task.Status)
	}
	if len(f.notifies) != 0 {
		t.Errorf("notify jobs enqueued: got %d, want 0", len(f.notifies))
	}
	msgs := f.gateway.sentTo(customer.TelegramID)
	if len(msgs) != 1 || !strings.Contains(msgs[0], "No riders found") {
		t.Errorf("expected a no-riders notice, got %v", msgs)
	}
}

func TestCreateTask_DeliveryNeedsDropoff(t *testing.T) {
	customer := makeCustomer(13)
	f := newFixture(newMockWorkerStore(), &mockAccountStore{accounts: map[uuid.UUID]*models.Account{customer.ID: customer}})

	draft := deliveryDraft()
	draft.Dropoff = nil
	_, err := f.d.CreateTask(context.Background(), customer.ID, draft)
	var vErr *apperr.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

// =====================================================================
// Offer submission
// =====================================================================

func TestSubmitOffer_FlipsTaskToOffered(t *testing.T) {
	rider := makeWorker(models.WorkerRoleRider, 101)
	customer := makeCustomer(11)
	f := newFixture(newMockWorkerStore(rider), &mockAccountStore{accounts: map[uuid.UUID]*models.Account{customer.ID: customer}})

	ctx := context.Background()
	task, err := f.d.CreateTask(ctx, customer.ID, deliveryDraft())
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	offer, err := f.d.SubmitOffer(ctx, rider.ID, task.ID, 500, vehicle(models.VehicleMotorcycle))
	if err != nil {
		t.Fatalf("SubmitOffer: %v", err)
	}
	if offer.Status != models.OfferStatusPending {
		t.Errorf("offer status: got %s, want pending", offer.Status)
	}
	if got := f.tasks.status(task.ID); got != models.TaskStatusOffered {
		t.Errorf("task status after first offer: got %s, want offered", got)
	}

	// Customer is told about the offer exactly once.
	if msgs := f.gateway.sentTo(customer.TelegramID); len(msgs) != 1 {
		t.Errorf("customer offer notifications: got %d, want 1", len(msgs))
	}

	// Same worker bidding again on the same task is refused.
	_, err = f.d.SubmitOffer(ctx, rider.ID, task.ID, 450, vehicle(models.VehicleMotorcycle))
	var pErr *apperr.PreconditionError
	if !errors.As(err, &pErr) || !strings.Contains(pErr.Reason, "already bid") {
		t.Fatalf("expected already-bid PreconditionError, got %v", err)
	}
}

func TestSubmitOffer_Validation(t *testing.T) {
	rider := makeWorker(models.WorkerRoleRider, 101)
	unverified := makeWorker(models.WorkerRoleRider, 102)
	unverified.Verification = models.VerificationPending
	customer := makeCustomer(11)
	f := newFixture(newMockWorkerStore(rider, unverified), &mockAccountStore{accounts: map[uuid.UUID]*models.Account{customer.ID: customer}})

	ctx := context.Background()
	task, err := f.d.CreateTask(ctx, customer.ID, deliveryDraft())
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	var vErr *apperr.ValidationError
	var pErr *apperr.PreconditionError

	if _, err := f.d.SubmitOffer(ctx, rider.ID, task.ID, 0, vehicle(models.VehicleMotorcycle)); !errors.As(err, &vErr) {
		t.Errorf("zero price: expected ValidationError, got %v", err)
	}
	if _, err := f.d.SubmitOffer(ctx, rider.ID, task.ID, 500, nil); !errors.As(err, &vErr) {
		t.Errorf("delivery without vehicle: expected ValidationError, got %v", err)
	}
	if _, err := f.d.SubmitOffer(ctx, unverified.ID, task.ID, 500, vehicle(models.VehicleBicycle)); !errors.As(err, &pErr) {
		t.Errorf("unverified worker: expected PreconditionError, got %v", err)
	}
}

func TestSubmitOffer_ClosedTask(t *testing.T) {
	rider := makeWorker(models.WorkerRoleRider, 101)
	late := makeWorker(models.WorkerRoleRider, 103)
	customer := makeCustomer(11)
	f := newFixture(newMockWorkerStore(rider, late), &mockAccountStore{accounts: map[uuid.UUID]*models.Account{customer.ID: customer}})

	task, _ := seedAcceptedTask(t, f, customer, rider)

	_, err := f.d.SubmitOffer(context.Background(), late.ID, task.ID, 400, vehicle(models.VehicleCar))
	var pErr *apperr.PreconditionError
	if !errors.As(err, &pErr) || !strings.Contains(pErr.Reason, "no longer accepting") {
		t.Fatalf("expected no-longer-accepting PreconditionError, got %v", err)
	}
}

// =====================================================================
// Offer acceptance: the race and its side effects
// =====================================================================

func TestAcceptOffer_WinnerTakesAll(t *testing.T) {
	riderA := makeWorker(models.WorkerRoleRider, 101)
	riderB := makeWorker(models.WorkerRoleRider, 102)
	customer := makeCustomer(11)
	f := newFixture(newMockWorkerStore(riderA, riderB), &mockAccountStore{accounts: map[uuid.UUID]*models.Account{customer.ID: customer}})

	ctx := context.Background()
	task, err := f.d.CreateTask(ctx, customer.ID, deliveryDraft())
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	offerA, err := f.d.SubmitOffer(ctx, riderA.ID, task.ID, 500, vehicle(models.VehicleMotorcycle))
	if err != nil {
		t.Fatalf("SubmitOffer A: %v", err)
	}
	offerB, err := f.d.SubmitOffer(ctx, riderB.ID, task.ID, 450, vehicle(models.VehicleBicycle))
	if err != nil {
		t.Fatalf("SubmitOffer B: %v", err)
	}

	channel, err := f.d.AcceptOffer(ctx, customer.ID, offerA.ID)
	if err != nil {
		t.Fatalf("AcceptOffer: %v", err)
	}

	reloaded, _ := f.tasks.GetByID(ctx, task.ID)
	if reloaded.Status != models.TaskStatusAccepted {
		t.Errorf("task status: got %s, want accepted", reloaded.Status)
	}
	if reloaded.AssignedWorkerID == nil || *reloaded.AssignedWorkerID != riderA.ID {
		t.Error("task should be assigned to the winning worker")
	}
	if reloaded.ChannelID == nil || *reloaded.ChannelID != channel.ID {
		t.Error("task should reference the created channel")
	}
	if got := f.offers.status(offerA.ID); got != models.OfferStatusAccepted {
		t.Errorf("winning offer: got %s, want accepted", got)
	}
	if got := f.offers.status(offerB.ID); got != models.OfferStatusRejected {
		t.Errorf("losing offer: got %s, want rejected", got)
	}
	if f.staff.available(riderA.ID) {
		t.Error("winning worker should be unavailable")
	}
	if !f.staff.available(riderB.ID) {
		t.Error("losing worker should stay available")
	}

	// The channel holds exactly the customer and the winning worker.
	if len(f.gateway.createCalls) != 1 {
		t.Fatalf("channels created: got %d, want 1", len(f.gateway.createCalls))
	}
	participants := f.gateway.createCalls[0]
	if len(participants) != 2 || participants[0] != customer.TelegramID || participants[1] != riderA.TelegramID {
		t.Errorf("channel participants: got %v", participants)
	}

	// The loser hears the task went to someone else.
	lost := f.gateway.sentTo(riderB.TelegramID)
	found := false
	for _, msg := range lost {
		if strings.Contains(msg, "taken by another worker") {
			found = true
		}
	}
	if !found {
		t.Errorf("losing worker never told the task was taken: %v", lost)
	}

	// A second acceptance attempt on the already-rejected offer loses the race.
	_, err = f.d.AcceptOffer(ctx, customer.ID, offerB.ID)
	var cErr *apperr.ConflictError
	if !errors.As(err, &cErr) || !strings.Contains(cErr.Reason, "already resolved") {
		t.Fatalf("expected already-resolved ConflictError, got %v", err)
	}
}

func TestAcceptOffer_NotYourTask(t *testing.T) {
	rider := makeWorker(models.WorkerRoleRider, 101)
	customer := makeCustomer(11)
	stranger := makeCustomer(12)
	f := newFixture(newMockWorkerStore(rider), &mockAccountStore{accounts: map[uuid.UUID]*models.Account{
		customer.ID: customer, stranger.ID: stranger,
	}})

	ctx := context.Background()
	task, err := f.d.CreateTask(ctx, customer.ID, deliveryDraft())
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	offer, err := f.d.SubmitOffer(ctx, rider.ID, task.ID, 500, vehicle(models.VehicleMotorcycle))
	if err != nil {
		t.Fatalf("SubmitOffer: %v", err)
	}

	_, err = f.d.AcceptOffer(ctx, stranger.ID, offer.ID)
	var uErr *apperr.UnauthorizedError
	if !errors.As(err, &uErr) {
		t.Fatalf("expected UnauthorizedError, got %v", err)
	}
}

func TestAcceptOffer_ExpiredOffer(t *testing.T) {
	rider := makeWorker(models.WorkerRoleRider, 101)
	customer := makeCustomer(11)
	f := newFixture(newMockWorkerStore(rider), &mockAccountStore{accounts: map[uuid.UUID]*models.Account{customer.ID: customer}})
	f.d.OfferTTL = -time.Minute // every offer is born expired

	ctx := context.Background()
	task, err := f.d.CreateTask(ctx, customer.ID, deliveryDraft())
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	offer, err := f.d.SubmitOffer(ctx, rider.ID, task.ID, 500, vehicle(models.VehicleMotorcycle))
	if err != nil {
		t.Fatalf("SubmitOffer: %v", err)
	}

	_, err = f.d.AcceptOffer(ctx, customer.ID, offer.ID)
	var pErr *apperr.PreconditionError
	if !errors.As(err, &pErr) || !strings.Contains(pErr.Reason, "expired") {
		t.Fatalf("expected expired PreconditionError, got %v", err)
	}
}

func TestAcceptOffer_ChannelFailureAborts(t *testing.T) {
	rider := makeWorker(models.WorkerRoleRider, 101)
	customer := makeCustomer(11)
	f := newFixture(newMockWorkerStore(rider), &mockAccountStore{accounts: map[uuid.UUID]*models.Account{customer.ID: customer}})

	ctx := context.Background()
	task, err := f.d.CreateTask(ctx, customer.ID, deliveryDraft())
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	offer, err := f.d.SubmitOffer(ctx, rider.ID, task.ID, 500, vehicle(models.VehicleMotorcycle))
	if err != nil {
		t.Fatalf("SubmitOffer: %v", err)
	}

	f.gateway.createErr = apperr.External("telegram", errors.New("boom"))
	_, err = f.d.AcceptOffer(ctx, customer.ID, offer.ID)
	var xErr *apperr.ExternalError
	if !errors.As(err, &xErr) {
		t.Fatalf("expected ExternalError, got %v", err)
	}
	// The task row is never advanced past offered when channel creation fails.
	if got := f.tasks.status(task.ID); got != models.TaskStatusOffered {
		t.Errorf("task status after failed accept: got %s, want offered", got)
	}
	if len(f.channels.channels) != 0 {
		t.Error("no channel record should exist")
	}
}

// =====================================================================
// Progress, completion, cancellation
// =====================================================================

func TestConfirmInProgress(t *testing.T) {
	rider := makeWorker(models.WorkerRoleRider, 101)
	other := makeWorker(models.WorkerRoleRider, 102)
	customer := makeCustomer(11)
	f := newFixture(newMockWorkerStore(rider, other), &mockAccountStore{accounts: map[uuid.UUID]*models.Account{customer.ID: customer}})

	ctx := context.Background()

	// Premature: the task was never accepted.
	pending, err := f.d.CreateTask(ctx, customer.ID, deliveryDraft())
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	err = f.d.ConfirmInProgress(ctx, rider.ID, pending.ID)
	var pErr *apperr.PreconditionError
	if !errors.As(err, &pErr) {
		t.Fatalf("premature progress: expected PreconditionError, got %v", err)
	}

	task, _ := seedAcceptedTask(t, f, customer, rider)

	// Wrong worker.
	err = f.d.ConfirmInProgress(ctx, other.ID, task.ID)
	var uErr *apperr.UnauthorizedError
	if !errors.As(err, &uErr) {
		t.Fatalf("wrong worker: expected UnauthorizedError, got %v", err)
	}

	if err := f.d.ConfirmInProgress(ctx, rider.ID, task.ID); err != nil {
		t.Fatalf("ConfirmInProgress: %v", err)
	}
	if got := f.tasks.status(task.ID); got != models.TaskStatusInProgress {
		t.Errorf("task status: got %s, want in_progress", got)
	}
}

func TestMarkCompleted(t *testing.T) {
	rider := makeWorker(models.WorkerRoleRider, 101)
	customer := makeCustomer(11)
	f := newFixture(newMockWorkerStore(rider), &mockAccountStore{accounts: map[uuid.UUID]*models.Account{customer.ID: customer}})

	ctx := context.Background()
	task, _ := seedAcceptedTask(t, f, customer, rider)
	if err := f.d.ConfirmInProgress(ctx, rider.ID, task.ID); err != nil {
		t.Fatalf("ConfirmInProgress: %v", err)
	}

	before := time.Now()
	done, err := f.d.MarkCompleted(ctx, customer.ID, task.ID)
	if err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if done.Status != models.TaskStatusCompleted {
		t.Errorf("task status: got %s, want completed", done.Status)
	}
	if !f.staff.available(rider.ID) {
		t.Error("worker availability should be restored on completion")
	}

	// Teardown scheduled after the grace period against the task's channel.
	if len(f.teardowns) != 1 {
		t.Fatalf("teardowns scheduled: got %d, want 1", len(f.teardowns))
	}
	td := f.teardowns[0]
	if task.ChannelID == nil || td.args.ChannelID != *task.ChannelID {
		t.Error("teardown should target the task's channel")
	}
	if td.at.Before(before.Add(DefaultTeardownGrace - time.Second)) {
		t.Errorf("teardown scheduled too early: %v", td.at)
	}
}

func TestCancelTask(t *testing.T) {
	rider := makeWorker(models.WorkerRoleRider, 101)
	customer := makeCustomer(11)
	f := newFixture(newMockWorkerStore(rider), &mockAccountStore{accounts: map[uuid.UUID]*models.Account{customer.ID: customer}})

	ctx := context.Background()
	task, err := f.d.CreateTask(ctx, customer.ID, deliveryDraft())
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	offer, err := f.d.SubmitOffer(ctx, rider.ID, task.ID, 500, vehicle(models.VehicleMotorcycle))
	if err != nil {
		t.Fatalf("SubmitOffer: %v", err)
	}

	if err := f.d.CancelTask(ctx, customer.ID, task.ID); err != nil {
		t.Fatalf("CancelTask: %v", err)
	}
	if got := f.tasks.status(task.ID); got != models.TaskStatusCancelled {
		t.Errorf("task status: got %s, want cancelled", got)
	}
	if got := f.offers.status(offer.ID); got != models.OfferStatusRejected {
		t.Errorf("pending offer after cancel: got %s, want rejected", got)
	}

	// Cancellation is final.
	err = f.d.CancelTask(ctx, customer.ID, task.ID)
	var pErr *apperr.PreconditionError
	if !errors.As(err, &pErr) {
		t.Fatalf("double cancel: expected PreconditionError, got %v", err)
	}
}

// =====================================================================
// Disputes
// =====================================================================

func TestDisputeLifecycle(t *testing.T) {
	rider := makeWorker(models.WorkerRoleRider, 101)
	customer := makeCustomer(11)
	f := newFixture(newMockWorkerStore(rider), &mockAccountStore{accounts: map[uuid.UUID]*models.Account{customer.ID: customer}})

	ctx := context.Background()
	task, _ := seedAcceptedTask(t, f, customer, rider)
	if err := f.d.ConfirmInProgress(ctx, rider.ID, task.ID); err != nil {
		t.Fatalf("ConfirmInProgress: %v", err)
	}

	// A stranger cannot raise a dispute.
	err := f.d.RaiseDispute(ctx, uuid.New(), task.ID)
	var uErr *apperr.UnauthorizedError
	if !errors.As(err, &uErr) {
		t.Fatalf("stranger dispute: expected UnauthorizedError, got %v", err)
	}

	// The assigned worker can, through the worker's account.
	if err := f.d.RaiseDispute(ctx, rider.AccountID, task.ID); err != nil {
		t.Fatalf("RaiseDispute: %v", err)
	}
	if got := f.tasks.status(task.ID); got != models.TaskStatusDisputed {
		t.Errorf("task status: got %s, want disputed", got)
	}
	if f.staff.available(rider.ID) {
		t.Error("worker must stay unavailable while the dispute is open")
	}
	if len(f.teardowns) != 1 {
		t.Errorf("dispute should schedule channel teardown, got %d jobs", len(f.teardowns))
	}

	// Only completed or cancelled are valid outcomes.
	var vErr *apperr.ValidationError
	if err := f.d.ResolveDispute(ctx, task.ID, models.TaskStatusPending); !errors.As(err, &vErr) {
		t.Fatalf("bad outcome: expected ValidationError, got %v", err)
	}

	if err := f.d.ResolveDispute(ctx, task.ID, models.TaskStatusCompleted); err != nil {
		t.Fatalf("ResolveDispute: %v", err)
	}
	if got := f.tasks.status(task.ID); got != models.TaskStatusCompleted {
		t.Errorf("task status after resolution: got %s, want completed", got)
	}
	if !f.staff.available(rider.ID) {
		t.Error("worker availability should be restored on resolution")
	}

	// Resolving twice fails: the task is no longer disputed.
	var pErr *apperr.PreconditionError
	if err := f.d.ResolveDispute(ctx, task.ID, models.TaskStatusCancelled); !errors.As(err, &pErr) {
		t.Fatalf("double resolve: expected PreconditionError, got %v", err)
	}
}

func TestRaiseDispute_RequiresActiveTask(t *testing.T) {
	rider := makeWorker(models.WorkerRoleRider, 101)
	customer := makeCustomer(11)
	f := newFixture(newMockWorkerStore(rider), &mockAccountStore{accounts: map[uuid.UUID]*models.Account{customer.ID: customer}})

	ctx := context.Background()
	task, err := f.d.CreateTask(ctx, customer.ID, deliveryDraft())
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	err = f.d.RaiseDispute(ctx, customer.ID, task.ID)
	var pErr *apperr.PreconditionError
	if !errors.As(err, &pErr) {
		t.Fatalf("dispute on pending task: expected PreconditionError, got %v", err)
	}
}

// =====================================================================
// Ratings
// =====================================================================

func TestRate_OncePerTask(t *testing.T) {
	rider := makeWorker(models.WorkerRoleRider, 101)
	customer := makeCustomer(11)
	f := newFixture(newMockWorkerStore(rider), &mockAccountStore{accounts: map[uuid.UUID]*models.Account{customer.ID: customer}})

	ctx := context.Background()
	task, _ := seedAcceptedTask(t, f, customer, rider)
	if err := f.d.ConfirmInProgress(ctx, rider.ID, task.ID); err != nil {
		t.Fatalf("ConfirmInProgress: %v", err)
	}
	if _, err := f.d.MarkCompleted(ctx, customer.ID, task.ID); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	if err := f.d.Rate(ctx, customer.ID, task.ID, 4, "quick and careful"); err != nil {
		t.Fatalf("Rate: %v", err)
	}
	w, _ := f.staff.GetByID(ctx, rider.ID)
	if w.RatingSum != 4 || w.ReviewCount != 1 {
		t.Errorf("worker rating: got sum=%d count=%d, want 4/1", w.RatingSum, w.ReviewCount)
	}

	// Second rating for the same task hits the unique index.
	err := f.d.Rate(ctx, customer.ID, task.ID, 5, "")
	var pErr *apperr.PreconditionError
	if !errors.As(err, &pErr) || !strings.Contains(pErr.Reason, "already rated") {
		t.Fatalf("duplicate rating: expected already-rated PreconditionError, got %v", err)
	}
	w, _ = f.staff.GetByID(ctx, rider.ID)
	if w.RatingSum != 4 || w.ReviewCount != 1 {
		t.Error("duplicate rating must not change the running mean")
	}
}

func TestRate_Preconditions(t *testing.T) {
	rider := makeWorker(models.WorkerRoleRider, 101)
	customer := makeCustomer(11)
	f := newFixture(newMockWorkerStore(rider), &mockAccountStore{accounts: map[uuid.UUID]*models.Account{customer.ID: customer}})

	ctx := context.Background()
	task, _ := seedAcceptedTask(t, f, customer, rider)

	var vErr *apperr.ValidationError
	if err := f.d.Rate(ctx, customer.ID, task.ID, 0, ""); !errors.As(err, &vErr) {
		t.Errorf("zero stars: expected ValidationError, got %v", err)
	}
	if err := f.d.Rate(ctx, customer.ID, task.ID, 6, ""); !errors.As(err, &vErr) {
		t.Errorf("six stars: expected ValidationError, got %v", err)
	}

	// Accepted but not completed.
	var pErr *apperr.PreconditionError
	if err := f.d.Rate(ctx, customer.ID, task.ID, 5, ""); !errors.As(err, &pErr) {
		t.Errorf("rating an accepted task: expected PreconditionError, got %v", err)
	}
}
