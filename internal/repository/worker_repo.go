package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/errandly/backend/internal/models"
)

type WorkerRepo struct {
	pool *pgxpool.Pool
}

func NewWorkerRepo(pool *pgxpool.Pool) *WorkerRepo {
	return &WorkerRepo{pool: pool}
}

const workerCols = `id, account_id, telegram_id, role, verification, verify_reason, is_available, last_lat, last_lon, last_address, location_at, rating_sum, review_count, created_at, updated_at`

func scanWorker(row pgx.Row) (*models.Worker, error) {
	var w models.Worker
	var lat, lon *float64
	var addr *string
	err := row.Scan(&w.ID, &w.AccountID, &w.TelegramID, &w.Role, &w.Verification, &w.VerifyReason,
		&w.IsAvailable, &lat, &lon, &addr, &w.LocationAt, &w.RatingSum, &w.ReviewCount,
		&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lat != nil && lon != nil {
		w.LastKnownLocation = &models.Location{Lat: *lat, Lon: *lon}
		if addr != nil {
			w.LastKnownLocation.Address = *addr
		}
	}
	return &w, nil
}

func workerLocationArgs(w *models.Worker) (lat, lon *float64, addr *string) {
	if w.LastKnownLocation != nil {
		lat, lon, addr = &w.LastKnownLocation.Lat, &w.LastKnownLocation.Lon, &w.LastKnownLocation.Address
	}
	return
}

func (r *WorkerRepo) Create(ctx context.Context, w *models.Worker) error {
	lat, lon, addr := workerLocationArgs(w)
	return r.pool.QueryRow(ctx, `
		INSERT INTO workers (id, account_id, telegram_id, role, verification, verify_reason, is_available, last_lat, last_lon, last_address, location_at, rating_sum, review_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`, w.ID, w.AccountID, w.TelegramID, w.Role, w.Verification, w.VerifyReason,
		w.IsAvailable, lat, lon, addr, w.LocationAt, w.RatingSum, w.ReviewCount).
		Scan(&w.CreatedAt, &w.UpdatedAt)
}

func (r *WorkerRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Worker, error) {
	return scanWorker(r.pool.QueryRow(ctx, `SELECT `+workerCols+` FROM workers WHERE id = $1`, id))
}

func (r *WorkerRepo) GetByAccountID(ctx context.Context, accountID uuid.UUID) (*models.Worker, error) {
	return scanWorker(r.pool.QueryRow(ctx, `SELECT `+workerCols+` FROM workers WHERE account_id = $1`, accountID))
}

func (r *WorkerRepo) Update(ctx context.Context, w *models.Worker) error {
	lat, lon, addr := workerLocationArgs(w)
	_, err := r.pool.Exec(ctx, `
		UPDATE workers SET telegram_id = $2, role = $3, verification = $4, verify_reason = $5, is_available = $6, last_lat = $7, last_lon = $8, last_address = $9, location_at = $10, rating_sum = $11, review_count = $12, updated_at = now()
		WHERE id = $1
	`, w.ID, w.TelegramID, w.Role, w.Verification, w.VerifyReason,
		w.IsAvailable, lat, lon, addr, w.LocationAt, w.RatingSum, w.ReviewCount)
	return err
}

// UpdateLocation records a fresh worker position.
func (r *WorkerRepo) UpdateLocation(ctx context.Context, id uuid.UUID, loc models.Location, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE workers SET last_lat = $2, last_lon = $3, last_address = $4, location_at = $5, updated_at = now()
		WHERE id = $1
	`, id, loc.Lat, loc.Lon, loc.Address, at)
	return err
}

// SetAvailabilityTx flips the worker's availability inside the acceptance or
// completion transaction.
func (r *WorkerRepo) SetAvailabilityTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, available bool) error {
	_, err := tx.Exec(ctx, `UPDATE workers SET is_available = $2, updated_at = now() WHERE id = $1`, id, available)
	return err
}

// ApplyRatingTx adds one rating contribution to the running aggregate.
func (r *WorkerRepo) ApplyRatingTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, stars int) error {
	_, err := tx.Exec(ctx, `
		UPDATE workers SET rating_sum = rating_sum + $2, review_count = review_count + 1, updated_at = now()
		WHERE id = $1
	`, id, stars)
	return err
}

// FindAvailable returns verified, available workers of the role whose
// location was reported after freshSince, for the candidate search.
func (r *WorkerRepo) FindAvailable(ctx context.Context, role models.WorkerRole, freshSince time.Time) ([]*models.Worker, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+workerCols+` FROM workers
		WHERE role = $1 AND verification = $2 AND is_available = TRUE
		  AND location_at IS NOT NULL AND location_at > $3
		ORDER BY created_at
	`, role, models.VerificationVerified, freshSince)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, w)
	}
	return list, rows.Err()
}
