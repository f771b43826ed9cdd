package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/errandly/backend/internal/models"
)

type OfferRepo struct {
	pool *pgxpool.Pool
}

func NewOfferRepo(pool *pgxpool.Pool) *OfferRepo {
	return &OfferRepo{pool: pool}
}

const offerCols = `id, task_id, worker_id, price, vehicle_type, status, created_at, expires_at`

func scanOffer(row pgx.Row) (*models.Offer, error) {
	var o models.Offer
	err := row.Scan(&o.ID, &o.TaskID, &o.WorkerID, &o.Price, &o.VehicleType, &o.Status, &o.CreatedAt, &o.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OfferRepo) CreateTx(ctx context.Context, tx pgx.Tx, o *models.Offer) error {
	return tx.QueryRow(ctx, `
		INSERT INTO offers (id, task_id, worker_id, price, vehicle_type, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, o.ID, o.TaskID, o.WorkerID, o.Price, o.VehicleType, o.Status, o.ExpiresAt).Scan(&o.CreatedAt)
}

func (r *OfferRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	return scanOffer(r.pool.QueryRow(ctx, `SELECT `+offerCols+` FROM offers WHERE id = $1`, id))
}

// GetByIDForUpdate locks the offer row. Acquire the task lock first; see
// Dispatcher.AcceptOffer for the lock ordering.
func (r *OfferRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Offer, error) {
	return scanOffer(tx.QueryRow(ctx, `SELECT `+offerCols+` FROM offers WHERE id = $1 FOR UPDATE`, id))
}

func (r *OfferRepo) UpdateStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status models.OfferStatus) error {
	_, err := tx.Exec(ctx, `UPDATE offers SET status = $2 WHERE id = $1`, id, status)
	return err
}

// HasPendingTx reports whether the worker already holds a pending offer on
// the task. Checked under the task lock so a duplicate cannot slip in.
func (r *OfferRepo) HasPendingTx(ctx context.Context, tx pgx.Tx, taskID, workerID uuid.UUID) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM offers WHERE task_id = $1 AND worker_id = $2 AND status = $3)
	`, taskID, workerID, models.OfferStatusPending).Scan(&exists)
	return exists, err
}

// RejectOtherPendingTx flips every pending offer on the task except the
// given one to rejected, returning the affected offers so their workers can
// be notified after commit. Pass uuid.Nil to reject all pending offers.
func (r *OfferRepo) RejectOtherPendingTx(ctx context.Context, tx pgx.Tx, taskID, exceptOfferID uuid.UUID) ([]*models.Offer, error) {
	rows, err := tx.Query(ctx, `
		UPDATE offers SET status = $3
		WHERE task_id = $1 AND id <> $2 AND status = $4
		RETURNING `+offerCols+`
	`, taskID, exceptOfferID, models.OfferStatusRejected, models.OfferStatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, o)
	}
	return list, rows.Err()
}

func (r *OfferRepo) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*models.Offer, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+offerCols+` FROM offers WHERE task_id = $1 ORDER BY created_at
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, o)
	}
	return list, rows.Err()
}

// ExpireOverdue marks pending offers past their expiry as expired.
func (r *OfferRepo) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE offers SET status = $1 WHERE status = $2 AND expires_at < $3
	`, models.OfferStatusExpired, models.OfferStatusPending, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
