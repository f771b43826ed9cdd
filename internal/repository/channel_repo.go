package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/errandly/backend/internal/models"
)

type ChannelRepo struct {
	pool *pgxpool.Pool
}

func NewChannelRepo(pool *pgxpool.Pool) *ChannelRepo {
	return &ChannelRepo{pool: pool}
}

const channelCols = `id, task_id, customer_id, worker_id, external_id, created_at`

func scanChannel(row pgx.Row) (*models.Channel, error) {
	var c models.Channel
	err := row.Scan(&c.ID, &c.TaskID, &c.CustomerID, &c.WorkerID, &c.ExternalID, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ChannelRepo) CreateTx(ctx context.Context, tx pgx.Tx, c *models.Channel) error {
	return tx.QueryRow(ctx, `
		INSERT INTO channels (id, task_id, customer_id, worker_id, external_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, c.ID, c.TaskID, c.CustomerID, c.WorkerID, c.ExternalID).Scan(&c.CreatedAt)
}

func (r *ChannelRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Channel, error) {
	return scanChannel(r.pool.QueryRow(ctx, `SELECT `+channelCols+` FROM channels WHERE id = $1`, id))
}

func (r *ChannelRepo) GetByTask(ctx context.Context, taskID uuid.UUID) (*models.Channel, error) {
	return scanChannel(r.pool.QueryRow(ctx, `SELECT `+channelCols+` FROM channels WHERE task_id = $1`, taskID))
}

func (r *ChannelRepo) DeleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	_, err := tx.Exec(ctx, `DELETE FROM channels WHERE id = $1`, id)
	return err
}
