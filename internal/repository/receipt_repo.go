package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"attendance-backend/internal/models"
)

// ReceiptRepo tracks delivery of attendance receipt emails.
type ReceiptRepo struct {
	pool *pgxpool.Pool
}

func NewReceiptRepo(pool *pgxpool.Pool) *ReceiptRepo {
	return &ReceiptRepo{pool: pool}
}

func (r *ReceiptRepo) Create(ctx context.Context, j *models.ReceiptJob) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	j.Status = models.ReceiptPending
	j.RetryCount = 0

	_, err := r.pool.Exec(ctx,
		`INSERT INTO receipts (id, record_id, action, recipient, status, retry_count)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		j.ID, j.RecordID, j.Action, j.To, j.Status, j.RetryCount,
	)
	return err
}

func (r *ReceiptRepo) UpdateStatus(ctx context.Context, id string, status string) error {
	if status == models.ReceiptSent || status == models.ReceiptFailed {
		_, err := r.pool.Exec(ctx,
			"UPDATE receipts SET status = $1, completed_at = $2 WHERE id = $3", status, time.Now(), id)
		return err
	}
	_, err := r.pool.Exec(ctx, "UPDATE receipts SET status = $1 WHERE id = $2", status, id)
	return err
}

func (r *ReceiptRepo) UpdateError(ctx context.Context, id string, errMsg string, retryCount int) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE receipts SET error_message = $1, retry_count = $2 WHERE id = $3",
		errMsg, retryCount, id,
	)
	return err
}
