package attendance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"attendance-backend/internal/clock"
	"attendance-backend/internal/models"
	"attendance-backend/internal/repository"
)

type Action int

const (
	ActionNone Action = iota
	ActionTimeIn
	ActionTimeOut
)

func (a Action) String() string {
	switch a {
	case ActionTimeIn:
		return "time_in"
	case ActionTimeOut:
		return "time_out"
	}
	return "none"
}

// Attendee is the profile data copied onto a new attendance record.
type Attendee struct {
	ID         string
	Name       string
	Email      string
	DeviceInfo string
}

// Result describes what one scan did to the attendee's record. Action is
// ActionNone when the record was already complete. Written is false when
// another device made the write this scan would have made.
type Result struct {
	Action  Action
	Record  *models.AttendanceRecord
	Written bool
}

// Recorder advances the per-(event, attendee) lifecycle:
// absent -> open (time-in) -> closed (time-out). A closed record is final.
type Recorder struct {
	records AttendanceStore
	clock   clock.Clock
	logger  *slog.Logger
}

func NewRecorder(records AttendanceStore, clk clock.Clock, logger *slog.Logger) *Recorder {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Recorder{records: records, clock: clk, logger: logger}
}

// RecordScan applies one admitted scan. Store failures come back as *Error
// with CodeLookupUncertain or CodeStoreUnavailable; an uncertain lookup
// never falls through to a fresh time-in.
func (r *Recorder) RecordScan(ctx context.Context, event *models.Event, who Attendee) (Result, error) {
	existing, err := r.records.FindByEventAndAttendee(ctx, event.ID, who.ID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return r.timeIn(ctx, event, who)
	case err != nil:
		r.logger.Warn("attendance lookup failed", "event_id", event.ID, "attendee_id", who.ID, "error", err)
		return Result{}, newError(CodeLookupUncertain, err)
	case existing.Closed():
		return Result{Action: ActionNone, Record: existing}, nil
	default:
		return r.timeOut(ctx, existing)
	}
}

func (r *Recorder) timeIn(ctx context.Context, event *models.Event, who Attendee) (Result, error) {
	now := r.clock.Now()
	status := models.AttendancePresent
	if now.After(event.StartTime) {
		status = models.AttendanceLate
	}

	rec := &models.AttendanceRecord{
		EventID:       event.ID,
		EventName:     event.Name,
		AttendeeID:    who.ID,
		AttendeeName:  who.Name,
		AttendeeEmail: who.Email,
		DeviceInfo:    who.DeviceInfo,
		TimeIn:        now,
		Status:        status,
	}
	created, err := r.records.CreateIfAbsent(ctx, rec)
	if err != nil {
		return Result{}, newError(CodeStoreUnavailable, fmt.Errorf("create attendance: %w", err))
	}
	if created {
		r.logger.Info("time in recorded", "event_id", event.ID, "attendee_id", who.ID, "status", status)
		return Result{Action: ActionTimeIn, Record: rec, Written: true}, nil
	}

	// Another device won the insert; report its record.
	winner, err := r.records.FindByEventAndAttendee(ctx, event.ID, who.ID)
	if err != nil {
		return Result{}, newError(CodeLookupUncertain, err)
	}
	return Result{Action: ActionTimeIn, Record: winner}, nil
}

func (r *Recorder) timeOut(ctx context.Context, rec *models.AttendanceRecord) (Result, error) {
	now := r.clock.Now()
	minutes := durationMinutes(rec.TimeIn, now)

	closed, err := r.records.CloseIfOpen(ctx, rec.ID, now, minutes)
	if err != nil {
		return Result{}, newError(CodeStoreUnavailable, fmt.Errorf("close attendance: %w", err))
	}
	if !closed {
		// Another device closed it first; report the stored time-out.
		current, err := r.records.FindByEventAndAttendee(ctx, rec.EventID, rec.AttendeeID)
		if err != nil || current == nil {
			r.logger.Warn("re-read after lost close failed", "record_id", rec.ID, "error", err)
			return Result{Action: ActionNone, Record: rec}, nil
		}
		return Result{Action: ActionNone, Record: current}, nil
	}

	out := now
	rec.TimeOut = &out
	rec.TotalDurationMinutes = &minutes
	r.logger.Info("time out recorded", "event_id", rec.EventID, "attendee_id", rec.AttendeeID, "minutes", minutes)
	return Result{Action: ActionTimeOut, Record: rec, Written: true}, nil
}

// durationMinutes rounds the elapsed time to whole minutes. Clock skew
// between devices can put timeOut before timeIn; that counts as zero.
func durationMinutes(timeIn, timeOut time.Time) int {
	m := int(math.Round(timeOut.Sub(timeIn).Minutes()))
	if m < 0 {
		return 0
	}
	return m
}
