package attendance

import (
	"context"
	"time"

	"attendance-backend/internal/models"
)

// EventStore and the other store reads report repository.ErrNotFound when
// no row matches. Any other error means the store could not answer.
type EventStore interface {
	GetByID(ctx context.Context, id string) (*models.Event, error)
}

type AttendanceStore interface {
	FindByEventAndAttendee(ctx context.Context, eventID, attendeeID string) (*models.AttendanceRecord, error)
	// CreateIfAbsent inserts the record unless (event, attendee) already has one.
	CreateIfAbsent(ctx context.Context, rec *models.AttendanceRecord) (bool, error)
	// CloseIfOpen sets time-out and duration only on a record that has no time-out.
	CloseIfOpen(ctx context.Context, id string, timeOut time.Time, durationMinutes int) (bool, error)
}

type ProfileStore interface {
	GetByID(ctx context.Context, id string) (*models.Student, error)
}

// Publisher fans accepted scans out to live listeners of an event.
type Publisher interface {
	PublishAttendance(ctx context.Context, update models.AttendanceUpdate) error
}

// ReceiptQueue schedules a confirmation to the attendee.
type ReceiptQueue interface {
	EnqueueReceipt(ctx context.Context, job *models.ReceiptJob) error
}

// Observer records scan outcomes for metrics.
type Observer interface {
	ObserveScan(mode string, code string, elapsed time.Duration)
}
