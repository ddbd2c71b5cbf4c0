package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"attendance-backend/internal/models"
)

type EventRepo struct {
	pool *pgxpool.Pool
}

func NewEventRepo(pool *pgxpool.Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

const eventColumns = `id, name, description, location, organizer_id, session_token, status,
	start_time, end_time, created_at, updated_at`

func scanEvent(row pgx.Row) (*models.Event, error) {
	e := &models.Event{}
	err := row.Scan(
		&e.ID, &e.Name, &e.Description, &e.Location, &e.OrganizerID, &e.SessionToken, &e.Status,
		&e.StartTime, &e.EndTime, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

func (r *EventRepo) Create(ctx context.Context, e *models.Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	query := `INSERT INTO events (id, name, description, location, organizer_id, session_token, status, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		e.ID, e.Name, e.Description, e.Location, e.OrganizerID, e.SessionToken, e.Status, e.StartTime, e.EndTime,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
}

func (r *EventRepo) GetByID(ctx context.Context, id string) (*models.Event, error) {
	return scanEvent(r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
}

func (r *EventRepo) ListByOrganizer(ctx context.Context, organizerID string) ([]*models.Event, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM events WHERE organizer_id = $1 ORDER BY start_time DESC`, organizerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *EventRepo) UpdateStatus(ctx context.Context, id string, status models.EventStatus) error {
	tag, err := r.pool.Exec(ctx,
		"UPDATE events SET status = $1, updated_at = NOW() WHERE id = $2", status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Reopen re-creates an event session: new token, new admission window,
// status active. QR codes printed for the previous session stop admitting.
func (r *EventRepo) Reopen(ctx context.Context, id, token string, start, end time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE events
		SET session_token = $1, start_time = $2, end_time = $3, status = 'active', updated_at = NOW()
		WHERE id = $4`, token, start, end, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CloseExpired marks active events whose end time is before cutoff as ended.
func (r *EventRepo) CloseExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE events SET status = 'ended', updated_at = NOW()
		WHERE status = 'active' AND end_time < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
