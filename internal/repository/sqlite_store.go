package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"attendance-backend/internal/models"
)

// SQLiteStore serves the same repositories as the Postgres ones from an
// embedded database, for single-node deployments and tests.
type SQLiteStore struct {
	pool *sqlitex.Pool
}

func NewSQLiteStore(pool *sqlitex.Pool) *SQLiteStore {
	return &SQLiteStore{pool: pool}
}

func (s *SQLiteStore) Events() *SQLiteEventRepo { return &SQLiteEventRepo{s} }
func (s *SQLiteStore) Attendance() *SQLiteAttendanceRepo { return &SQLiteAttendanceRepo{s} }
func (s *SQLiteStore) Students() *SQLiteStudentRepo { return &SQLiteStudentRepo{s} }
func (s *SQLiteStore) Receipts() *SQLiteReceiptRepo { return &SQLiteReceiptRepo{s} }
func (s *SQLiteStore) Close() error { return s.pool.Close() }

// exec runs one statement on a pooled connection and reports the number of
// rows it changed.
func (s *SQLiteStore) exec(ctx context.Context, query string, args []any, fn func(*sqlite.Stmt) error) (int, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("sqlite take: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args, ResultFunc: fn})
	if err != nil {
		return 0, err
	}
	return conn.Changes(), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(stmt *sqlite.Stmt, col int) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, stmt.ColumnText(col))
	if err != nil {
		return time.Time{}, fmt.Errorf("column %d: %w", col, err)
	}
	return t, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

type SQLiteEventRepo struct{ s *SQLiteStore }

func readEvent(stmt *sqlite.Stmt) (*models.Event, error) {
	e := &models.Event{
		ID:           stmt.ColumnText(0),
		Name:         stmt.ColumnText(1),
		Description:  stmt.ColumnText(2),
		Location:     stmt.ColumnText(3),
		OrganizerID:  stmt.ColumnText(4),
		SessionToken: stmt.ColumnText(5),
		Status:       models.EventStatus(stmt.ColumnText(6)),
	}
	var err error
	if e.StartTime, err = parseTime(stmt, 7); err != nil {
		return nil, err
	}
	if e.EndTime, err = parseTime(stmt, 8); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = parseTime(stmt, 9); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseTime(stmt, 10); err != nil {
		return nil, err
	}
	return e, nil
}

func (r *SQLiteEventRepo) Create(ctx context.Context, e *models.Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now

	_, err := r.s.exec(ctx,
		`INSERT INTO events (id, name, description, location, organizer_id, session_token, status,
			start_time, end_time, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		[]any{e.ID, e.Name, e.Description, e.Location, e.OrganizerID, e.SessionToken, string(e.Status),
			formatTime(e.StartTime), formatTime(e.EndTime), formatTime(now), formatTime(now)},
		nil)
	return err
}

func (r *SQLiteEventRepo) GetByID(ctx context.Context, id string) (*models.Event, error) {
	var found *models.Event
	_, err := r.s.exec(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, []any{id},
		func(stmt *sqlite.Stmt) error {
			e, err := readEvent(stmt)
			found = e
			return err
		})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (r *SQLiteEventRepo) ListByOrganizer(ctx context.Context, organizerID string) ([]*models.Event, error) {
	var events []*models.Event
	_, err := r.s.exec(ctx,
		`SELECT `+eventColumns+` FROM events WHERE organizer_id = ? ORDER BY start_time DESC`,
		[]any{organizerID},
		func(stmt *sqlite.Stmt) error {
			e, err := readEvent(stmt)
			if err != nil {
				return err
			}
			events = append(events, e)
			return nil
		})
	return events, err
}

func (r *SQLiteEventRepo) UpdateStatus(ctx context.Context, id string, status models.EventStatus) error {
	n, err := r.s.exec(ctx, `UPDATE events SET status = ?, updated_at = ? WHERE id = ?`,
		[]any{string(status), formatTime(time.Now()), id}, nil)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteEventRepo) Reopen(ctx context.Context, id, token string, start, end time.Time) error {
	n, err := r.s.exec(ctx, `
		UPDATE events
		SET session_token = ?, start_time = ?, end_time = ?, status = 'active', updated_at = ?
		WHERE id = ?`,
		[]any{token, formatTime(start), formatTime(end), formatTime(time.Now()), id}, nil)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteEventRepo) CloseExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	// RFC3339Nano trims trailing zeros, so the text does not sort; compare as julian days.
	n, err := r.s.exec(ctx, `
		UPDATE events SET status = 'ended', updated_at = ?
		WHERE status = 'active' AND julianday(end_time) < julianday(?)`,
		[]any{formatTime(time.Now()), formatTime(cutoff)}, nil)
	return int64(n), err
}

type SQLiteAttendanceRepo struct{ s *SQLiteStore }

func readAttendance(stmt *sqlite.Stmt) (*models.AttendanceRecord, error) {
	a := &models.AttendanceRecord{
		ID:            stmt.ColumnText(0),
		EventID:       stmt.ColumnText(1),
		EventName:     stmt.ColumnText(2),
		AttendeeID:    stmt.ColumnText(3),
		AttendeeName:  stmt.ColumnText(4),
		AttendeeEmail: stmt.ColumnText(5),
		DeviceInfo:    stmt.ColumnText(6),
		Status:        models.AttendanceStatus(stmt.ColumnText(10)),
	}
	var err error
	if a.TimeIn, err = parseTime(stmt, 7); err != nil {
		return nil, err
	}
	if !stmt.ColumnIsNull(8) {
		out, err := parseTime(stmt, 8)
		if err != nil {
			return nil, err
		}
		a.TimeOut = &out
	}
	if !stmt.ColumnIsNull(9) {
		d := int(stmt.ColumnInt64(9))
		a.TotalDurationMinutes = &d
	}
	if a.CreatedAt, err = parseTime(stmt, 11); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(stmt, 12); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *SQLiteAttendanceRepo) one(ctx context.Context, query string, args ...any) (*models.AttendanceRecord, error) {
	var found *models.AttendanceRecord
	_, err := r.s.exec(ctx, query, args, func(stmt *sqlite.Stmt) error {
		a, err := readAttendance(stmt)
		found = a
		return err
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (r *SQLiteAttendanceRepo) many(ctx context.Context, query string, args ...any) ([]*models.AttendanceRecord, error) {
	var records []*models.AttendanceRecord
	_, err := r.s.exec(ctx, query, args, func(stmt *sqlite.Stmt) error {
		a, err := readAttendance(stmt)
		if err != nil {
			return err
		}
		records = append(records, a)
		return nil
	})
	return records, err
}

func (r *SQLiteAttendanceRepo) FindByEventAndAttendee(ctx context.Context, eventID, attendeeID string) (*models.AttendanceRecord, error) {
	return r.one(ctx, `SELECT `+attendanceColumns+` FROM attendance WHERE event_id = ? AND attendee_id = ?`,
		eventID, attendeeID)
}

func (r *SQLiteAttendanceRepo) GetByID(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	return r.one(ctx, `SELECT `+attendanceColumns+` FROM attendance WHERE id = ?`, id)
}

func (r *SQLiteAttendanceRepo) CreateIfAbsent(ctx context.Context, a *models.AttendanceRecord) (bool, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	n, err := r.s.exec(ctx, `
		INSERT INTO attendance (id, event_id, event_name, attendee_id, attendee_name, attendee_email, device_info,
			time_in, time_out, total_duration_minutes, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL, ?, ?, ?)
		ON CONFLICT (event_id, attendee_id) DO NOTHING`,
		[]any{a.ID, a.EventID, a.EventName, a.AttendeeID, a.AttendeeName, a.AttendeeEmail, a.DeviceInfo,
			formatTime(a.TimeIn), string(a.Status), formatTime(now), formatTime(now)},
		nil)
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	a.CreatedAt, a.UpdatedAt = now, now
	return true, nil
}

func (r *SQLiteAttendanceRepo) CloseIfOpen(ctx context.Context, id string, timeOut time.Time, durationMinutes int) (bool, error) {
	n, err := r.s.exec(ctx, `
		UPDATE attendance
		SET time_out = ?, total_duration_minutes = ?, updated_at = ?
		WHERE id = ? AND time_out IS NULL`,
		[]any{formatTime(timeOut), int64(durationMinutes), formatTime(time.Now()), id}, nil)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *SQLiteAttendanceRepo) ListByEvent(ctx context.Context, eventID string) ([]*models.AttendanceRecord, error) {
	return r.many(ctx, `SELECT `+attendanceColumns+` FROM attendance WHERE event_id = ? ORDER BY julianday(time_in) ASC`, eventID)
}

func (r *SQLiteAttendanceRepo) ListByAttendee(ctx context.Context, attendeeID string) ([]*models.AttendanceRecord, error) {
	return r.many(ctx, `SELECT `+attendanceColumns+` FROM attendance WHERE attendee_id = ? ORDER BY julianday(time_in) DESC`, attendeeID)
}

type SQLiteStudentRepo struct{ s *SQLiteStore }

func (r *SQLiteStudentRepo) GetByID(ctx context.Context, id string) (*models.Student, error) {
	var found *models.Student
	_, err := r.s.exec(ctx, `SELECT id, email, full_name, created_at, updated_at FROM students WHERE id = ?`,
		[]any{id},
		func(stmt *sqlite.Stmt) error {
			st := &models.Student{ID: stmt.ColumnText(0), Email: stmt.ColumnText(1), FullName: stmt.ColumnText(2)}
			var err error
			if st.CreatedAt, err = parseTime(stmt, 3); err != nil {
				return err
			}
			if st.UpdatedAt, err = parseTime(stmt, 4); err != nil {
				return err
			}
			found = st
			return nil
		})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (r *SQLiteStudentRepo) Upsert(ctx context.Context, st *models.Student) error {
	now := formatTime(time.Now())
	_, err := r.s.exec(ctx, `
		INSERT INTO students (id, email, full_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET email = excluded.email, full_name = excluded.full_name, updated_at = excluded.updated_at`,
		[]any{st.ID, st.Email, st.FullName, now, now}, nil)
	if err != nil {
		return err
	}
	saved, err := r.GetByID(ctx, st.ID)
	if err != nil {
		return err
	}
	st.CreatedAt, st.UpdatedAt = saved.CreatedAt, saved.UpdatedAt
	return nil
}

type SQLiteReceiptRepo struct{ s *SQLiteStore }

func (r *SQLiteReceiptRepo) Create(ctx context.Context, j *models.ReceiptJob) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	j.Status = models.ReceiptPending
	j.RetryCount = 0
	_, err := r.s.exec(ctx,
		`INSERT INTO receipts (id, record_id, action, recipient, status, retry_count, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)`,
		[]any{j.ID, j.RecordID, j.Action, j.To, j.Status, formatTime(time.Now())}, nil)
	return err
}

func (r *SQLiteReceiptRepo) UpdateStatus(ctx context.Context, id string, status string) error {
	var completed any
	if status == models.ReceiptSent || status == models.ReceiptFailed {
		completed = formatTime(time.Now())
	}
	_, err := r.s.exec(ctx, `UPDATE receipts SET status = ?, completed_at = COALESCE(?, completed_at) WHERE id = ?`,
		[]any{status, completed, id}, nil)
	return err
}

func (r *SQLiteReceiptRepo) UpdateError(ctx context.Context, id string, errMsg string, retryCount int) error {
	_, err := r.s.exec(ctx, `UPDATE receipts SET error_message = ?, retry_count = ? WHERE id = ?`,
		[]any{errMsg, int64(retryCount), id}, nil)
	return err
}

// ReceiptStatus reads back the delivery state of one receipt.
func (r *SQLiteReceiptRepo) ReceiptStatus(ctx context.Context, id string) (status string, retries int, err error) {
	found := false
	_, err = r.s.exec(ctx, `SELECT status, retry_count FROM receipts WHERE id = ?`, []any{id},
		func(stmt *sqlite.Stmt) error {
			found = true
			status = stmt.ColumnText(0)
			retries = int(stmt.ColumnInt64(1))
			return nil
		})
	if err == nil && !found {
		err = ErrNotFound
	}
	return status, retries, err
}
