package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/errandly/backend/internal/models"
)

type TaskRepo struct {
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

const taskCols = `id, customer_id, kind, ref_code, pickup_lat, pickup_lon, pickup_address, dropoff_lat, dropoff_lon, dropoff_address, instructions, status, assigned_worker_id, channel_id, created_at, updated_at, expires_at`

func scanTask(row pgx.Row) (*models.Task, error) {
	var t models.Task
	var dLat, dLon *float64
	var dAddr *string
	err := row.Scan(&t.ID, &t.CustomerID, &t.Kind, &t.RefCode,
		&t.Pickup.Lat, &t.Pickup.Lon, &t.Pickup.Address,
		&dLat, &dLon, &dAddr,
		&t.Instructions, &t.Status, &t.AssignedWorkerID, &t.ChannelID,
		&t.CreatedAt, &t.UpdatedAt, &t.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if dLat != nil && dLon != nil {
		t.Dropoff = &models.Location{Lat: *dLat, Lon: *dLon}
		if dAddr != nil {
			t.Dropoff.Address = *dAddr
		}
	}
	return &t, nil
}

func taskDropoffArgs(t *models.Task) (dLat, dLon *float64, dAddr *string) {
	if t.Dropoff != nil {
		dLat, dLon, dAddr = &t.Dropoff.Lat, &t.Dropoff.Lon, &t.Dropoff.Address
	}
	return
}

func (r *TaskRepo) CreateTx(ctx context.Context, tx pgx.Tx, t *models.Task) error {
	dLat, dLon, dAddr := taskDropoffArgs(t)
	return tx.QueryRow(ctx, `
		INSERT INTO tasks (id, customer_id, kind, ref_code, pickup_lat, pickup_lon, pickup_address, dropoff_lat, dropoff_lon, dropoff_address, instructions, status, assigned_worker_id, channel_id, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at
	`, t.ID, t.CustomerID, t.Kind, t.RefCode,
		t.Pickup.Lat, t.Pickup.Lon, t.Pickup.Address,
		dLat, dLon, dAddr,
		t.Instructions, t.Status, t.AssignedWorkerID, t.ChannelID, t.ExpiresAt).
		Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *TaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return getTask(ctx, r.pool, id, "")
}

// GetByIDForUpdate locks the task row. Call within a transaction; this is
// the serialization point for offer acceptance.
func (r *TaskRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Task, error) {
	return getTask(ctx, tx, id, " FOR UPDATE")
}

func getTask(ctx context.Context, q querier, id uuid.UUID, suffix string) (*models.Task, error) {
	return scanTask(q.QueryRow(ctx, `SELECT `+taskCols+` FROM tasks WHERE id = $1`+suffix, id))
}

func (r *TaskRepo) UpdateTx(ctx context.Context, tx pgx.Tx, t *models.Task) error {
	return updateTask(ctx, tx, t)
}

func (r *TaskRepo) Update(ctx context.Context, t *models.Task) error {
	return updateTask(ctx, r.pool, t)
}

func updateTask(ctx context.Context, q querier, t *models.Task) error {
	dLat, dLon, dAddr := taskDropoffArgs(t)
	_, err := q.Exec(ctx, `
		UPDATE tasks SET kind = $2, ref_code = $3, pickup_lat = $4, pickup_lon = $5, pickup_address = $6, dropoff_lat = $7, dropoff_lon = $8, dropoff_address = $9, instructions = $10, status = $11, assigned_worker_id = $12, channel_id = $13, expires_at = $14, updated_at = now()
		WHERE id = $1
	`, t.ID, t.Kind, t.RefCode,
		t.Pickup.Lat, t.Pickup.Lon, t.Pickup.Address,
		dLat, dLon, dAddr,
		t.Instructions, t.Status, t.AssignedWorkerID, t.ChannelID, t.ExpiresAt)
	return err
}

// ClearChannelTx nulls the task's channel binding once the channel is gone.
func (r *TaskRepo) ClearChannelTx(ctx context.Context, tx pgx.Tx, taskID uuid.UUID) error {
	_, err := tx.Exec(ctx, `UPDATE tasks SET channel_id = NULL, updated_at = now() WHERE id = $1`, taskID)
	return err
}

func (r *TaskRepo) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]*models.Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskCols+` FROM tasks WHERE customer_id = $1 ORDER BY created_at DESC
	`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// ExpireOverdue marks unmatched tasks past their expiry as expired and
// returns how many were affected.
func (r *TaskRepo) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tasks SET status = $1, updated_at = now()
		WHERE status IN ($2, $3) AND expires_at < $4
	`, models.TaskStatusExpired, models.TaskStatusPending, models.TaskStatusOffered, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
