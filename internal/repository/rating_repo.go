package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/errandly/backend/internal/models"
)

type RatingRepo struct {
	pool *pgxpool.Pool
}

func NewRatingRepo(pool *pgxpool.Pool) *RatingRepo {
	return &RatingRepo{pool: pool}
}

// CreateTx inserts the rating. A unique index on (task_id, worker_id) makes
// a second rating for the same pair fail with SQLSTATE 23505.
func (r *RatingRepo) CreateTx(ctx context.Context, tx pgx.Tx, rt *models.Rating) error {
	return tx.QueryRow(ctx, `
		INSERT INTO ratings (id, task_id, worker_id, customer_id, stars, comment)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, rt.ID, rt.TaskID, rt.WorkerID, rt.CustomerID, rt.Stars, rt.Comment).Scan(&rt.CreatedAt)
}

func (r *RatingRepo) ListByWorker(ctx context.Context, workerID uuid.UUID) ([]*models.Rating, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, task_id, worker_id, customer_id, stars, comment, created_at
		FROM ratings WHERE worker_id = $1 ORDER BY created_at DESC
	`, workerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Rating
	for rows.Next() {
		var rt models.Rating
		if err := rows.Scan(&rt.ID, &rt.TaskID, &rt.WorkerID, &rt.CustomerID, &rt.Stars, &rt.Comment, &rt.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &rt)
	}
	return list, rows.Err()
}
