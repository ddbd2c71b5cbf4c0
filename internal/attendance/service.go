package attendance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"attendance-backend/internal/clock"
	"attendance-backend/internal/models"
	"attendance-backend/internal/qrpayload"
	"attendance-backend/internal/repository"
	"attendance-backend/internal/scanner"
)

type Config struct {
	GracePeriod         time.Duration
	RequireSessionToken bool
}

func DefaultConfig() Config {
	return Config{GracePeriod: DefaultGracePeriod}
}

// Deps are the collaborators of a Service. Publisher, Receipts, Observer,
// Clock and Logger are optional.
type Deps struct {
	Events    EventStore
	Records   AttendanceStore
	Profiles  ProfileStore
	Publisher Publisher
	Receipts  ReceiptQueue
	Observer  Observer
	Clock     clock.Clock
	Logger    *slog.Logger
}

// Service turns scan attempts into attendance outcomes.
type Service struct {
	gate      *Gate
	recorder  *Recorder
	profiles  ProfileStore
	publisher Publisher
	receipts  ReceiptQueue
	observer  Observer
	clock     clock.Clock
	logger    *slog.Logger
}

func NewService(cfg Config, deps Deps) *Service {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		gate:      NewGate(deps.Events, cfg.GracePeriod, cfg.RequireSessionToken, deps.Clock, deps.Logger),
		recorder:  NewRecorder(deps.Records, deps.Clock, deps.Logger),
		profiles:  deps.Profiles,
		publisher: deps.Publisher,
		receipts:  deps.Receipts,
		observer:  deps.Observer,
		clock:     deps.Clock,
		logger:    deps.Logger,
	}
}

// Submit runs one scan attempt through decode, admission, profile lookup
// and the attendance lifecycle. Every failure is reported as an Outcome.
func (s *Service) Submit(ctx context.Context, who *models.Identity, attempt scanner.ScanAttempt) Outcome {
	out := s.submit(ctx, who, attempt)
	s.observe(attempt, out)
	return out
}

func (s *Service) submit(ctx context.Context, who *models.Identity, attempt scanner.ScanAttempt) Outcome {
	if who == nil || who.AttendeeID == "" {
		return failure(CodeNotAuthenticated, nil)
	}

	payload, err := qrpayload.Decode(attempt.Raw)
	if err != nil {
		return failure(CodeInvalidPayload, err)
	}

	event, err := s.gate.Admit(ctx, payload)
	if err != nil {
		return outcomeFromError(err)
	}

	profile, err := s.profiles.GetByID(ctx, who.AttendeeID)
	if errors.Is(err, repository.ErrNotFound) {
		return failure(CodeProfileNotFound, err)
	}
	if err != nil {
		return failure(CodeStoreUnavailable, err)
	}

	email := profile.Email
	if email == "" {
		email = who.Email
	}
	result, err := s.recorder.RecordScan(ctx, event, Attendee{
		ID:         who.AttendeeID,
		Name:       profile.FullName,
		Email:      email,
		DeviceInfo: who.DeviceInfo,
	})
	if err != nil {
		return outcomeFromError(err)
	}

	out := Outcome{Event: event, Record: result.Record}
	switch result.Action {
	case ActionTimeIn:
		out.Code = CodeTimeIn
		punctuality := "on time"
		if result.Record.Status == models.AttendanceLate {
			punctuality = "late"
		}
		out.Message = fmt.Sprintf("Time in recorded for %s (%s)", event.Name, punctuality)
	case ActionTimeOut:
		out.Code = CodeTimeOut
		out.Message = fmt.Sprintf("Time out recorded. Duration: %d minutes", *result.Record.TotalDurationMinutes)
	default:
		out.Code = CodeAlreadyComplete
		out.Message = CodeAlreadyComplete.DefaultMessage()
		return out
	}

	if result.Written {
		s.announce(ctx, result)
	}
	return out
}

// announce publishes the change to live listeners and queues a receipt.
// Failures here do not change the outcome; the record is already stored.
func (s *Service) announce(ctx context.Context, result Result) {
	rec := result.Record
	if s.publisher != nil {
		update := models.AttendanceUpdate{EventID: rec.EventID, Action: result.Action.String(), Record: rec}
		if err := s.publisher.PublishAttendance(ctx, update); err != nil {
			s.logger.Warn("publish attendance update failed", "record_id", rec.ID, "error", err)
		}
	}
	if s.receipts != nil && rec.AttendeeEmail != "" {
		job := &models.ReceiptJob{
			RecordID:   rec.ID,
			Action:     result.Action.String(),
			To:         rec.AttendeeEmail,
			Name:       rec.AttendeeName,
			EventName:  rec.EventName,
			OccurredAt: rec.TimeIn,
			Attendance: string(rec.Status),
			Duration:   rec.TotalDurationMinutes,
		}
		if result.Action == ActionTimeOut && rec.TimeOut != nil {
			job.OccurredAt = *rec.TimeOut
		}
		if err := s.receipts.EnqueueReceipt(ctx, job); err != nil {
			s.logger.Warn("enqueue receipt failed", "record_id", rec.ID, "error", err)
		}
	}
}

func (s *Service) observe(attempt scanner.ScanAttempt, out Outcome) {
	if s.observer == nil {
		return
	}
	var elapsed time.Duration
	if !attempt.CapturedAt.IsZero() {
		elapsed = s.clock.Now().Sub(attempt.CapturedAt)
	}
	s.observer.ObserveScan(attempt.Mode.String(), string(out.Code), elapsed)
}

// RunCamera submits each new payload from the session. Unreadable payloads
// are reported and capture continues; any other outcome ends the run and is
// returned. The error is non-nil only when capture itself stops, for
// example on cancellation.
func (s *Service) RunCamera(ctx context.Context, who *models.Identity, session *scanner.CaptureSession, report func(Outcome)) (Outcome, error) {
	for {
		attempt, err := session.Next(ctx)
		if err != nil {
			if out, ok := FromScanError(err); ok {
				s.observe(scanner.ScanAttempt{Mode: scanner.ModeCamera}, out)
				return out, nil
			}
			return Outcome{}, err
		}

		out := s.Submit(ctx, who, attempt)
		if out.Code == CodeInvalidPayload {
			if report != nil {
				report(out)
			}
			continue
		}
		return out, nil
	}
}

// FromScanError maps capture errors that have a user-facing outcome.
func FromScanError(err error) (Outcome, bool) {
	switch {
	case errors.Is(err, scanner.ErrNoPayload):
		return failure(CodeNoPayloadFound, err), true
	case errors.Is(err, scanner.ErrPermissionDenied):
		return failure(CodePermissionDenied, err), true
	case errors.Is(err, scanner.ErrDeviceNotFound):
		return failure(CodeDeviceNotFound, err), true
	case errors.Is(err, scanner.ErrAttachTimeout):
		return failure(CodeDeviceAttachTimeout, err), true
	}
	return Outcome{}, false
}

func outcomeFromError(err error) Outcome {
	var ae *Error
	if errors.As(err, &ae) {
		return failure(ae.Code, err)
	}
	return failure(CodeStoreUnavailable, err)
}
