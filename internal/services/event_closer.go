package services

import (
	"context"
	"log"
	"time"

	"attendance-backend/internal/metrics"
)

const defaultCloserInterval = time.Minute

type expiredEventCloser interface {
	CloseExpired(ctx context.Context, grace time.Duration) (int64, error)
}

// EventCloser periodically marks events past their admission window as
// ended, so organizer listings match what the gate already enforces.
type EventCloser struct {
	events   expiredEventCloser
	grace    time.Duration
	interval time.Duration
	stopChan chan struct{}
}

func NewEventCloser(events expiredEventCloser, grace, interval time.Duration) *EventCloser {
	if interval <= 0 {
		interval = defaultCloserInterval
	}
	return &EventCloser{
		events:   events,
		grace:    grace,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

func (s *EventCloser) Start() {
	if s.events == nil {
		return
	}
	go s.loop()
	log.Printf("Event closer started (every %s)", s.interval)
}

func (s *EventCloser) Stop() {
	select {
	case <-s.stopChan:
		return
	default:
		close(s.stopChan)
	}
}

func (s *EventCloser) loop() {
	// Run on startup as well as by interval.
	s.runOnce(context.Background())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.runOnce(context.Background())
		}
	}
}

func (s *EventCloser) runOnce(ctx context.Context) int64 {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	n, err := s.events.CloseExpired(ctx, s.grace)
	if err != nil {
		log.Printf("event closer: failed to close expired events: %v", err)
		return 0
	}
	if n > 0 {
		metrics.EventsClosedTotal.Add(float64(n))
		log.Printf("event closer: ended %d expired events", n)
	}
	return n
}
