package attendance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"attendance-backend/internal/clock"
	"attendance-backend/internal/models"
	"attendance-backend/internal/qrpayload"
	"attendance-backend/internal/repository"
)

// DefaultGracePeriod is how long after an event's end time scans are still admitted.
const DefaultGracePeriod = time.Hour

// Gate decides whether a decoded payload refers to an event that currently
// accepts attendance.
type Gate struct {
	events       EventStore
	clock        clock.Clock
	logger       *slog.Logger
	grace        time.Duration
	requireToken bool
}

func NewGate(events EventStore, grace time.Duration, requireToken bool, clk clock.Clock, logger *slog.Logger) *Gate {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if grace < 0 {
		grace = 0
	}
	return &Gate{events: events, clock: clk, logger: logger, grace: grace, requireToken: requireToken}
}

// Admit returns the event named by the payload or an *Error carrying the
// admission code. Checks run in order: existence, status, token, window.
// An event whose status is ended reports EventEnded, not EventClosed.
func (g *Gate) Admit(ctx context.Context, p qrpayload.Payload) (*models.Event, error) {
	event, err := g.events.GetByID(ctx, p.EventID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(CodeEventNotFound, err)
	}
	if err != nil {
		g.logger.Warn("event lookup failed", "event_id", p.EventID, "error", err)
		return nil, newError(CodeStoreUnavailable, err)
	}

	switch event.Status {
	case models.EventActive:
	case models.EventEnded:
		// Ended by the organizer or by the expiry sweep.
		return nil, newError(CodeEventEnded, nil)
	default:
		return nil, newError(CodeEventClosed, nil)
	}

	if p.HasToken() {
		if event.SessionToken != "" && p.SessionToken != event.SessionToken {
			return nil, newError(CodeInvalidToken, nil)
		}
	} else if g.requireToken {
		return nil, newError(CodeInvalidToken, errors.New("payload carries no session token"))
	}

	if g.clock.Now().After(event.EndTime.Add(g.grace)) {
		return nil, newError(CodeEventEnded, nil)
	}
	return event, nil
}
