package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"attendance-backend/internal/models"
)

type StudentRepo struct {
	pool *pgxpool.Pool
}

func NewStudentRepo(pool *pgxpool.Pool) *StudentRepo {
	return &StudentRepo{pool: pool}
}

func (r *StudentRepo) GetByID(ctx context.Context, id string) (*models.Student, error) {
	s := &models.Student{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, full_name, created_at, updated_at FROM students WHERE id = $1`, id,
	).Scan(&s.ID, &s.Email, &s.FullName, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

func (r *StudentRepo) Upsert(ctx context.Context, s *models.Student) error {
	query := `
		INSERT INTO students (id, email, full_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, full_name = EXCLUDED.full_name, updated_at = NOW()
		RETURNING created_at, updated_at`

	return r.pool.QueryRow(ctx, query, s.ID, s.Email, s.FullName).Scan(&s.CreatedAt, &s.UpdatedAt)
}
