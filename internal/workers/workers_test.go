package workers

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/errandly/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

// noopTx satisfies pgx.Tx for tests that thread a transaction through.
type noopTx struct{}

func (noopTx) Begin(ctx context.Context) (pgx.Tx, error) { return noopTx{}, nil }
func (noopTx) Commit(ctx context.Context) error          { return nil }
func (noopTx) Rollback(ctx context.Context) error        { return nil }
func (noopTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (noopTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (noopTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (noopTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (noopTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (noopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (noopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (noopTx) Conn() *pgx.Conn                                               { return nil }

type mockPool struct{}

func (mockPool) Begin(ctx context.Context) (pgx.Tx, error) { return noopTx{}, nil }

type mockChannelStore struct {
	channel *models.Channel
	deleted []uuid.UUID
}

func (m *mockChannelStore) GetByID(_ context.Context, id uuid.UUID) (*models.Channel, error) {
	if m.channel == nil || m.channel.ID != id {
		return nil, pgx.ErrNoRows
	}
	cp := *m.channel
	return &cp, nil
}

func (m *mockChannelStore) DeleteTx(_ context.Context, _ pgx.Tx, id uuid.UUID) error {
	m.deleted = append(m.deleted, id)
	return nil
}

type mockTaskStore struct {
	cleared []uuid.UUID
}

func (m *mockTaskStore) ClearChannelTx(_ context.Context, _ pgx.Tx, taskID uuid.UUID) error {
	m.cleared = append(m.cleared, taskID)
	return nil
}

type mockGateway struct {
	sent       map[int64][]string
	sendErrFor map[int64]error
	deleted    []int64
	deleteErr  error
}

func newMockGateway() *mockGateway {
	return &mockGateway{sent: make(map[int64][]string), sendErrFor: make(map[int64]error)}
}

func (m *mockGateway) SendMessage(_ context.Context, recipientID int64, text string) error {
	if err := m.sendErrFor[recipientID]; err != nil {
		return err
	}
	m.sent[recipientID] = append(m.sent[recipientID], text)
	return nil
}

func (m *mockGateway) CreateChannel(_ context.Context, _ string, _ []int64) (int64, error) {
	return 0, errors.New("not used")
}

func (m *mockGateway) DeleteChannel(_ context.Context, channelID int64) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, channelID)
	return nil
}

func (m *mockGateway) PromoteMember(_ context.Context, _, _ int64) error { return nil }

type mockSweeper struct {
	swept int
	err   error
}

func (m *mockSweeper) SweepExpired(context.Context) (int, error) { return m.swept, m.err }

type mockExpirer struct {
	expired int64
	err     error
	calls   int
}

func (m *mockExpirer) ExpireOverdue(context.Context, time.Time) (int64, error) {
	m.calls++
	return m.expired, m.err
}

// ==========================================================================
// Channel teardown
// ==========================================================================

func TestChannelTeardown_HappyPath(t *testing.T) {
	ch := &models.Channel{ID: uuid.New(), TaskID: uuid.New(), ExternalID: 42}
	channels := &mockChannelStore{channel: ch}
	tasks := &mockTaskStore{}
	gw := newMockGateway()

	w := &ChannelTeardownWorker{
		Pool: mockPool{}, Channels: channels, Tasks: tasks, Gateway: gw, Logger: slog.Default(),
	}
	job := &river.Job[ChannelTeardownArgs]{Args: ChannelTeardownArgs{ChannelID: ch.ID}}

	if err := w.Work(context.Background(), job); err != nil {
		t.Fatalf("Work: %v", err)
	}
	if len(gw.deleted) != 1 || gw.deleted[0] != 42 {
		t.Errorf("provider channel should be deleted: %v", gw.deleted)
	}
	if len(tasks.cleared) != 1 || tasks.cleared[0] != ch.TaskID {
		t.Errorf("task channel binding should be cleared: %v", tasks.cleared)
	}
	if len(channels.deleted) != 1 || channels.deleted[0] != ch.ID {
		t.Errorf("channel record should be deleted: %v", channels.deleted)
	}
}

func TestChannelTeardown_AlreadyGoneIsIdempotent(t *testing.T) {
	channels := &mockChannelStore{}
	gw := newMockGateway()
	w := &ChannelTeardownWorker{
		Pool: mockPool{}, Channels: channels, Tasks: &mockTaskStore{}, Gateway: gw, Logger: slog.Default(),
	}
	job := &river.Job[ChannelTeardownArgs]{Args: ChannelTeardownArgs{ChannelID: uuid.New()}}

	if err := w.Work(context.Background(), job); err != nil {
		t.Fatalf("missing channel should complete the job, got %v", err)
	}
	if len(gw.deleted) != 0 {
		t.Error("nothing should be deleted on the provider")
	}
}

func TestChannelTeardown_ProviderFailureRetries(t *testing.T) {
	ch := &models.Channel{ID: uuid.New(), TaskID: uuid.New(), ExternalID: 42}
	channels := &mockChannelStore{channel: ch}
	tasks := &mockTaskStore{}
	gw := newMockGateway()
	gw.deleteErr = errors.New("telegram: 502")

	w := &ChannelTeardownWorker{
		Pool: mockPool{}, Channels: channels, Tasks: tasks, Gateway: gw, Logger: slog.Default(),
	}
	job := &river.Job[ChannelTeardownArgs]{JobRow: &rivertype.JobRow{Attempt: 1}, Args: ChannelTeardownArgs{ChannelID: ch.ID}}

	if err := w.Work(context.Background(), job); err == nil {
		t.Fatal("provider failure must surface so the job retries")
	}
	if len(tasks.cleared) != 0 || len(channels.deleted) != 0 {
		t.Error("nothing should be persisted before the provider delete succeeds")
	}
}

// ==========================================================================
// Candidate fan-out
// ==========================================================================

func TestNotifyCandidates_FansOut(t *testing.T) {
	gw := newMockGateway()
	w := &NotifyCandidatesWorker{Gateway: gw, Logger: slog.Default()}
	job := &river.Job[NotifyCandidatesArgs]{Args: NotifyCandidatesArgs{
		TaskID:         uuid.New(),
		RefCode:        "REF12345",
		TaskKind:       models.TaskKindDelivery,
		PickupAddress:  "Moi Avenue",
		DropoffAddress: "Westlands",
		RecipientIDs:   []int64{11, 22, 33},
	}}

	if err := w.Work(context.Background(), job); err != nil {
		t.Fatalf("Work: %v", err)
	}
	if len(gw.sent) != 3 {
		t.Fatalf("recipients reached: got %d, want 3", len(gw.sent))
	}
	msg := gw.sent[11][0]
	if !strings.Contains(msg, "REF12345") || !strings.Contains(msg, "Moi Avenue") || !strings.Contains(msg, "Westlands") {
		t.Errorf("announcement should carry ref and both addresses: %q", msg)
	}
}

func TestNotifyCandidates_ErrandTextOmitsDropoff(t *testing.T) {
	gw := newMockGateway()
	w := &NotifyCandidatesWorker{Gateway: gw, Logger: slog.Default()}
	job := &river.Job[NotifyCandidatesArgs]{Args: NotifyCandidatesArgs{
		TaskID:        uuid.New(),
		RefCode:       "REF54321",
		TaskKind:      models.TaskKindErrand,
		PickupAddress: "Yaya Centre",
		RecipientIDs:  []int64{11},
	}}

	if err := w.Work(context.Background(), job); err != nil {
		t.Fatalf("Work: %v", err)
	}
	msg := gw.sent[11][0]
	if !strings.Contains(msg, "errand") || strings.Contains(msg, "dropoff") {
		t.Errorf("errand announcement: %q", msg)
	}
}

func TestNotifyCandidates_PartialFailureCompletes(t *testing.T) {
	gw := newMockGateway()
	gw.sendErrFor[22] = errors.New("blocked the bot")
	w := &NotifyCandidatesWorker{Gateway: gw, Logger: slog.Default()}
	job := &river.Job[NotifyCandidatesArgs]{Args: NotifyCandidatesArgs{
		TaskID:       uuid.New(),
		RefCode:      "REF12345",
		TaskKind:     models.TaskKindErrand,
		RecipientIDs: []int64{11, 22, 33},
	}}

	if err := w.Work(context.Background(), job); err != nil {
		t.Fatalf("one failed recipient must not fail the job: %v", err)
	}
	if len(gw.sent) != 2 {
		t.Errorf("remaining recipients should still be reached: %d", len(gw.sent))
	}
}

func TestNotifyCandidates_TotalFailureRetries(t *testing.T) {
	gw := newMockGateway()
	gw.sendErrFor[11] = errors.New("timeout")
	gw.sendErrFor[22] = errors.New("timeout")
	w := &NotifyCandidatesWorker{Gateway: gw, Logger: slog.Default()}
	job := &river.Job[NotifyCandidatesArgs]{Args: NotifyCandidatesArgs{
		TaskID:       uuid.New(),
		RefCode:      "REF12345",
		TaskKind:     models.TaskKindErrand,
		RecipientIDs: []int64{11, 22},
	}}

	if err := w.Work(context.Background(), job); err == nil {
		t.Fatal("losing every recipient should fail the job for retry")
	}
}

// ==========================================================================
// Maintenance sweep
// ==========================================================================

func TestMaintenance_RunsAllSweeps(t *testing.T) {
	sessions := &mockSweeper{swept: 2}
	tasks := &mockExpirer{expired: 1}
	offers := &mockExpirer{expired: 3}
	w := &MaintenanceWorker{Sessions: sessions, Tasks: tasks, Offers: offers, Logger: slog.Default()}

	if err := w.Work(context.Background(), &river.Job[MaintenanceArgs]{}); err != nil {
		t.Fatalf("Work: %v", err)
	}
	if tasks.calls != 1 || offers.calls != 1 {
		t.Errorf("both expirers should run once: tasks=%d offers=%d", tasks.calls, offers.calls)
	}
}

func TestMaintenance_SweepFailureSurfaces(t *testing.T) {
	sessions := &mockSweeper{err: errors.New("redis: connection refused")}
	tasks := &mockExpirer{}
	offers := &mockExpirer{}
	w := &MaintenanceWorker{Sessions: sessions, Tasks: tasks, Offers: offers, Logger: slog.Default()}

	if err := w.Work(context.Background(), &river.Job[MaintenanceArgs]{}); err == nil {
		t.Fatal("sweep failure should surface for retry")
	}
	if tasks.calls != 0 {
		t.Error("later sweeps should not run after a failure")
	}
}
