package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"attendance-backend/internal/clock"
	"attendance-backend/internal/models"
	"attendance-backend/internal/qrpayload"
	"attendance-backend/internal/repository"
)

const DefaultEventDuration = 2 * time.Hour

// EventService is the organizer side: opening sessions, rotating their QR
// tokens and reading who attended.
type EventService struct {
	events   repository.EventRepository
	records  repository.AttendanceRepository
	clock    clock.Clock
	duration time.Duration
}

func NewEventService(events repository.EventRepository, records repository.AttendanceRepository, duration time.Duration, clk clock.Clock) *EventService {
	if duration <= 0 {
		duration = DefaultEventDuration
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &EventService{events: events, records: records, clock: clk, duration: duration}
}

func (s *EventService) Create(ctx context.Context, organizer *models.Identity, req models.CreateEventRequest) (*models.Event, error) {
	fieldErrors := make(map[string]string)
	if strings.TrimSpace(req.Name) == "" {
		fieldErrors["name"] = "Event name is required"
	}
	if req.StartTime.IsZero() {
		fieldErrors["start_time"] = "Start time is required"
	}
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Fields: fieldErrors}
	}

	token, err := qrpayload.NewSessionToken()
	if err != nil {
		return nil, err
	}

	event := &models.Event{
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
		Location:     req.Location,
		OrganizerID:  organizer.AttendeeID,
		SessionToken: token,
		Status:       models.EventActive,
		StartTime:    req.StartTime.UTC(),
		EndTime:      req.StartTime.UTC().Add(s.duration),
	}
	if err := s.events.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}
	return event, nil
}

// Get returns the event if caller organizes it. Admins see every event.
func (s *EventService) Get(ctx context.Context, caller *models.Identity, id string) (*models.Event, error) {
	event, err := s.events.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &NotFoundError{Message: "Event not found"}
	}
	if err != nil {
		return nil, err
	}
	if event.OrganizerID != caller.AttendeeID && caller.Role != models.RoleAdmin {
		return nil, &ForbiddenError{Message: "You do not organize this event"}
	}
	return event, nil
}

func (s *EventService) List(ctx context.Context, caller *models.Identity) ([]*models.Event, error) {
	events, err := s.events.ListByOrganizer(ctx, caller.AttendeeID)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []*models.Event{}
	}
	return events, nil
}

func (s *EventService) UpdateStatus(ctx context.Context, caller *models.Identity, id string, status models.EventStatus) (*models.Event, error) {
	if !status.Valid() {
		return nil, &ValidationError{Fields: map[string]string{"status": "Status must be active, inactive or ended"}}
	}
	if _, err := s.Get(ctx, caller, id); err != nil {
		return nil, err
	}
	if err := s.events.UpdateStatus(ctx, id, status); err != nil {
		return nil, err
	}
	return s.Get(ctx, caller, id)
}

// RotateToken re-opens the event with a fresh session token so previously
// printed QR codes stop admitting. A zero start keeps the current window.
func (s *EventService) RotateToken(ctx context.Context, caller *models.Identity, id string, start time.Time) (*models.Event, error) {
	event, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	token, err := qrpayload.NewSessionToken()
	if err != nil {
		return nil, err
	}

	if start.IsZero() {
		start = event.StartTime
	}
	start = start.UTC()
	if err := s.events.Reopen(ctx, id, token, start, start.Add(s.duration)); err != nil {
		return nil, err
	}
	return s.Get(ctx, caller, id)
}

// QRCode renders the event's current payload as a PNG.
func (s *EventService) QRCode(ctx context.Context, caller *models.Identity, id string, size int) ([]byte, error) {
	event, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	payload, err := qrpayload.Encode(event.ID, event.SessionToken)
	if err != nil {
		return nil, &ConflictError{Message: "Event id or token cannot be encoded in a QR code"}
	}
	return qrpayload.RenderPNG(payload, size)
}

type EventAttendance struct {
	Event   *models.Event              `json:"event"`
	Records []*models.AttendanceRecord `json:"records"`
	Stats   models.AttendanceStats     `json:"stats"`
	// Watchers counts live feed connections to this instance.
	Watchers int `json:"watchers"`
}

func (s *EventService) Attendance(ctx context.Context, caller *models.Identity, id string) (*EventAttendance, error) {
	event, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	records, err := s.records.ListByEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []*models.AttendanceRecord{}
	}
	return &EventAttendance{Event: event, Records: records, Stats: models.ComputeAttendanceStats(records)}, nil
}

// CloseExpired ends active events whose admission window, end time plus
// grace, has passed.
func (s *EventService) CloseExpired(ctx context.Context, grace time.Duration) (int64, error) {
	return s.events.CloseExpired(ctx, s.clock.Now().Add(-grace))
}
