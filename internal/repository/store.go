package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"attendance-backend/internal/models"
)

// EventRepository is implemented by EventRepo and SQLiteEventRepo.
type EventRepository interface {
	Create(ctx context.Context, e *models.Event) error
	GetByID(ctx context.Context, id string) (*models.Event, error)
	ListByOrganizer(ctx context.Context, organizerID string) ([]*models.Event, error)
	UpdateStatus(ctx context.Context, id string, status models.EventStatus) error
	Reopen(ctx context.Context, id, token string, start, end time.Time) error
	CloseExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

type AttendanceRepository interface {
	FindByEventAndAttendee(ctx context.Context, eventID, attendeeID string) (*models.AttendanceRecord, error)
	GetByID(ctx context.Context, id string) (*models.AttendanceRecord, error)
	CreateIfAbsent(ctx context.Context, a *models.AttendanceRecord) (bool, error)
	CloseIfOpen(ctx context.Context, id string, timeOut time.Time, durationMinutes int) (bool, error)
	ListByEvent(ctx context.Context, eventID string) ([]*models.AttendanceRecord, error)
	ListByAttendee(ctx context.Context, attendeeID string) ([]*models.AttendanceRecord, error)
}

type StudentRepository interface {
	GetByID(ctx context.Context, id string) (*models.Student, error)
	Upsert(ctx context.Context, s *models.Student) error
}

type ReceiptLog interface {
	Create(ctx context.Context, j *models.ReceiptJob) error
	UpdateStatus(ctx context.Context, id string, status string) error
	UpdateError(ctx context.Context, id string, errMsg string, retryCount int) error
}

// Store bundles the repositories of one backend.
type Store struct {
	Events     EventRepository
	Attendance AttendanceRepository
	Students   StudentRepository
	Receipts   ReceiptLog
}

func NewPostgresStore(pool *pgxpool.Pool) Store {
	return Store{
		Events:     NewEventRepo(pool),
		Attendance: NewAttendanceRepo(pool),
		Students:   NewStudentRepo(pool),
		Receipts:   NewReceiptRepo(pool),
	}
}

func (s *SQLiteStore) Store() Store {
	return Store{
		Events:     s.Events(),
		Attendance: s.Attendance(),
		Students:   s.Students(),
		Receipts:   s.Receipts(),
	}
}
