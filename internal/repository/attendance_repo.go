package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"attendance-backend/internal/models"
)

type AttendanceRepo struct {
	pool *pgxpool.Pool
}

func NewAttendanceRepo(pool *pgxpool.Pool) *AttendanceRepo {
	return &AttendanceRepo{pool: pool}
}

const attendanceColumns = `id, event_id, event_name, attendee_id, attendee_name, attendee_email, device_info,
	time_in, time_out, total_duration_minutes, status, created_at, updated_at`

func scanAttendance(row pgx.Row) (*models.AttendanceRecord, error) {
	a := &models.AttendanceRecord{}
	err := row.Scan(
		&a.ID, &a.EventID, &a.EventName, &a.AttendeeID, &a.AttendeeName, &a.AttendeeEmail, &a.DeviceInfo,
		&a.TimeIn, &a.TimeOut, &a.TotalDurationMinutes, &a.Status, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

func (r *AttendanceRepo) FindByEventAndAttendee(ctx context.Context, eventID, attendeeID string) (*models.AttendanceRecord, error) {
	return scanAttendance(r.pool.QueryRow(ctx,
		`SELECT `+attendanceColumns+` FROM attendance WHERE event_id = $1 AND attendee_id = $2`,
		eventID, attendeeID))
}

func (r *AttendanceRepo) GetByID(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	return scanAttendance(r.pool.QueryRow(ctx, `SELECT `+attendanceColumns+` FROM attendance WHERE id = $1`, id))
}

// CreateIfAbsent inserts a time-in record unless one already exists for the
// same (event, attendee). It reports whether this call created the row.
func (r *AttendanceRepo) CreateIfAbsent(ctx context.Context, a *models.AttendanceRecord) (bool, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	query := `
		INSERT INTO attendance (id, event_id, event_name, attendee_id, attendee_name, attendee_email, device_info,
			time_in, time_out, total_duration_minutes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL, NULL, $9)
		ON CONFLICT (event_id, attendee_id) DO NOTHING
		RETURNING created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		a.ID, a.EventID, a.EventName, a.AttendeeID, a.AttendeeName, a.AttendeeEmail, a.DeviceInfo,
		a.TimeIn, a.Status,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CloseIfOpen sets the time-out of a record that has none yet. It reports
// whether this call closed the record.
func (r *AttendanceRepo) CloseIfOpen(ctx context.Context, id string, timeOut time.Time, durationMinutes int) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE attendance
		SET time_out = $1, total_duration_minutes = $2, updated_at = NOW()
		WHERE id = $3 AND time_out IS NULL`, timeOut, durationMinutes, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *AttendanceRepo) ListByEvent(ctx context.Context, eventID string) ([]*models.AttendanceRecord, error) {
	return r.list(ctx,
		`SELECT `+attendanceColumns+` FROM attendance WHERE event_id = $1 ORDER BY time_in ASC`, eventID)
}

func (r *AttendanceRepo) ListByAttendee(ctx context.Context, attendeeID string) ([]*models.AttendanceRecord, error) {
	return r.list(ctx,
		`SELECT `+attendanceColumns+` FROM attendance WHERE attendee_id = $1 ORDER BY time_in DESC`, attendeeID)
}

func (r *AttendanceRepo) list(ctx context.Context, query string, arg string) ([]*models.AttendanceRecord, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.AttendanceRecord
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, a)
	}
	return records, rows.Err()
}
