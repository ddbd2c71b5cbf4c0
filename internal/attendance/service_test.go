package attendance

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"attendance-backend/internal/clock"
	"attendance-backend/internal/models"
	"attendance-backend/internal/scanner"
)

type harness struct {
	svc       *Service
	store     *memStore
	clock     *clock.Fake
	publisher *recordingPublisher
	receipts  *recordingQueue
	observer  *recordingObserver
}

func newHarness(now time.Time) *harness {
	h := &harness{
		store:     newMemStore(),
		clock:     clock.NewFake(now),
		publisher: &recordingPublisher{},
		receipts:  &recordingQueue{},
		observer:  &recordingObserver{},
	}
	seedE1(h.store, models.EventActive)
	for _, id := range []string{"A", "B", "C"} {
		h.store.profiles[id] = &models.Student{ID: id, Email: id + "@example.com", FullName: "Student " + id}
	}
	h.svc = NewService(DefaultConfig(), Deps{
		Events:    h.store,
		Records:   h.store,
		Profiles:  profileView{h.store},
		Publisher: h.publisher,
		Receipts:  h.receipts,
		Observer:  h.observer,
		Clock:     h.clock,
	})
	return h
}

func (h *harness) scan(who, raw string, at time.Time) Outcome {
	h.clock.Set(at)
	attempt := scanner.ScanAttempt{Raw: raw, CapturedAt: at, Mode: scanner.ModeManual}
	return h.svc.Submit(context.Background(), &models.Identity{AttendeeID: who}, attempt)
}

func clockAt(hour, min int) time.Time {
	return time.Date(2026, 3, 2, hour, min, 0, 0, time.UTC)
}

func TestSubmitEndToEnd(t *testing.T) {
	h := newHarness(clockAt(9, 58))

	// A arrives before the start.
	out := h.scan("A", "E1:abc123", clockAt(9, 58))
	if out.Code != CodeTimeIn || out.Record.Status != models.AttendancePresent {
		t.Fatalf("scenario 1: got %s/%v", out.Code, out.Record)
	}
	if out.Message != "Time in recorded for Physics 101 (on time)" {
		t.Errorf("scenario 1 message = %q", out.Message)
	}

	// A leaves.
	out = h.scan("A", "E1:abc123", clockAt(10, 30))
	if out.Code != CodeTimeOut {
		t.Fatalf("scenario 2: got %s", out.Code)
	}
	if *out.Record.TotalDurationMinutes != 32 {
		t.Errorf("scenario 2 duration = %d, want 32", *out.Record.TotalDurationMinutes)
	}
	if out.Message != "Time out recorded. Duration: 32 minutes" {
		t.Errorf("scenario 2 message = %q", out.Message)
	}

	// A scans a third time.
	before := h.store.record("E1", "A")
	out = h.scan("A", "E1:abc123", clockAt(10, 45))
	if out.Code != CodeAlreadyComplete || !out.OK() {
		t.Fatalf("scenario 3: got %s", out.Code)
	}
	after := h.store.record("E1", "A")
	if *after != *before {
		t.Errorf("scenario 3 mutated record: %+v -> %+v", before, after)
	}

	// B presents a stale QR.
	out = h.scan("B", "E1:wrong-token", clockAt(10, 0))
	if out.Code != CodeInvalidToken {
		t.Fatalf("scenario 4: got %s", out.Code)
	}
	if h.store.record("E1", "B") != nil {
		t.Error("scenario 4 created a record")
	}

	// C arrives after the grace period.
	out = h.scan("C", "E1:abc123", clockAt(13, 5))
	if out.Code != CodeEventEnded {
		t.Fatalf("scenario 5: got %s", out.Code)
	}
	if h.store.record("E1", "C") != nil {
		t.Error("scenario 5 created a record")
	}

	if len(h.publisher.updates) != 2 {
		t.Errorf("published %d updates, want 2", len(h.publisher.updates))
	}
	if len(h.receipts.jobs) != 2 {
		t.Fatalf("queued %d receipts, want 2", len(h.receipts.jobs))
	}
	if job := h.receipts.jobs[1]; job.Action != "time_out" || job.To != "A@example.com" || *job.Duration != 32 {
		t.Errorf("unexpected time-out receipt: %+v", job)
	}
	if len(h.observer.seen) != 5 {
		t.Errorf("observed %d scans, want 5", len(h.observer.seen))
	}
}

func TestSubmitPreconditions(t *testing.T) {
	h := newHarness(clockAt(10, 0))

	out := h.svc.Submit(context.Background(), nil, scanner.ScanAttempt{Raw: "E1:abc123"})
	if out.Code != CodeNotAuthenticated {
		t.Errorf("nil identity: got %s", out.Code)
	}

	out = h.scan("nobody", "E1:abc123", clockAt(10, 0))
	if out.Code != CodeProfileNotFound {
		t.Errorf("missing profile: got %s", out.Code)
	}

	out = h.scan("A", "   ", clockAt(10, 0))
	if out.Code != CodeInvalidPayload || out.Code.Category() != CategoryInput {
		t.Errorf("blank payload: got %s", out.Code)
	}
}

func TestSubmitInactiveEventIgnoresToken(t *testing.T) {
	h := newHarness(clockAt(10, 0))
	h.store.events["E1"].Status = models.EventInactive

	for _, raw := range []string{"E1:abc123", "E1:wrong", "E1"} {
		if out := h.scan("A", raw, clockAt(10, 0)); out.Code != CodeEventClosed {
			t.Errorf("%q: got %s, want %s", raw, out.Code, CodeEventClosed)
		}
	}
}

func TestSubmitStoreFailuresAreRetryable(t *testing.T) {
	h := newHarness(clockAt(10, 0))
	h.store.createErr = errors.New("write timeout")

	out := h.scan("A", "E1:abc123", clockAt(10, 0))
	if out.Code != CodeStoreUnavailable || !out.Retryable() {
		t.Fatalf("got %s retryable=%v", out.Code, out.Retryable())
	}
	if len(h.publisher.updates) != 0 || len(h.receipts.jobs) != 0 {
		t.Error("side effects ran for a failed scan")
	}
}

func TestSubmitPublishFailureKeepsOutcome(t *testing.T) {
	h := newHarness(clockAt(10, 0))
	h.publisher.err = errors.New("redis down")

	if out := h.scan("A", "E1:abc123", clockAt(10, 0)); out.Code != CodeTimeIn {
		t.Fatalf("got %s, want %s", out.Code, CodeTimeIn)
	}
}

func TestRunCameraSubmitsRepeatedFrameOnce(t *testing.T) {
	h := newHarness(clockAt(10, 0))
	device := &frameDevice{frames: []image.Image{
		frame(":no-event-id"), frame(":no-event-id"),
		frame("E1:abc123"),
	}}
	src := scanner.NewSource(labelDecoder{}, scanner.DefaultConfig(), h.clock, nil)
	session, err := src.OpenCamera(device)
	if err != nil {
		t.Fatalf("OpenCamera: %v", err)
	}
	defer session.Close()

	var reported []Outcome
	out, err := h.svc.RunCamera(context.Background(), &models.Identity{AttendeeID: "A"}, session,
		func(o Outcome) { reported = append(reported, o) })
	if err != nil {
		t.Fatalf("RunCamera: %v", err)
	}
	if out.Code != CodeTimeIn {
		t.Errorf("final outcome = %s, want %s", out.Code, CodeTimeIn)
	}
	if len(reported) != 1 || reported[0].Code != CodeInvalidPayload {
		t.Errorf("reported %v, want one invalid payload", reported)
	}
	if len(h.observer.seen) != 2 {
		t.Errorf("submitted %d times, want 2 (repeated frame suppressed)", len(h.observer.seen))
	}
	for _, o := range h.observer.seen {
		if o.mode != "camera" {
			t.Errorf("observed mode %q, want camera", o.mode)
		}
	}
	if device.released == 0 {
		t.Error("device never released")
	}
}

func TestRunCameraDeviceErrors(t *testing.T) {
	tests := []struct {
		err  error
		want OutcomeCode
	}{
		{scanner.ErrPermissionDenied, CodePermissionDenied},
		{scanner.ErrDeviceNotFound, CodeDeviceNotFound},
	}
	for _, tt := range tests {
		h := newHarness(clockAt(10, 0))
		src := scanner.NewSource(labelDecoder{}, scanner.DefaultConfig(), h.clock, nil)
		session, err := src.OpenCamera(&frameDevice{err: tt.err})
		if err != nil {
			t.Fatalf("OpenCamera: %v", err)
		}
		out, err := h.svc.RunCamera(context.Background(), &models.Identity{AttendeeID: "A"}, session, nil)
		session.Close()
		if err != nil {
			t.Fatalf("RunCamera(%v): %v", tt.err, err)
		}
		if out.Code != tt.want {
			t.Errorf("RunCamera(%v) = %s, want %s", tt.err, out.Code, tt.want)
		}
	}
}

func TestRunCameraCancelled(t *testing.T) {
	h := newHarness(clockAt(10, 0))
	src := scanner.NewSource(labelDecoder{}, scanner.DefaultConfig(), h.clock, nil)
	session, _ := src.OpenCamera(&frameDevice{})
	defer session.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.svc.RunCamera(ctx, &models.Identity{AttendeeID: "A"}, session, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestFromScanError(t *testing.T) {
	out, ok := FromScanError(scanner.ErrNoPayload)
	if !ok || out.Code != CodeNoPayloadFound {
		t.Errorf("ErrNoPayload -> %s, %v", out.Code, ok)
	}
	if _, ok := FromScanError(errors.New("other")); ok {
		t.Error("unexpected mapping for unknown error")
	}
}

func TestOutcomeCodeTable(t *testing.T) {
	for code := range codes {
		if code.DefaultMessage() == "" {
			t.Errorf("%s has no message", code)
		}
		if code.HTTPStatus() < 200 {
			t.Errorf("%s has status %d", code, code.HTTPStatus())
		}
	}
	if OutcomeCode("BOGUS").HTTPStatus() != 500 {
		t.Error("unknown code should map to 500")
	}
}

func TestSubmitLostCreateSkipsSideEffects(t *testing.T) {
	h := newHarness(clockAt(10, 0))
	h.store.beforeCreate = func() {
		h.store.records[pairKey("E1", "A")] = &models.AttendanceRecord{
			ID: "other-device", EventID: "E1", AttendeeID: "A",
			TimeIn: clockAt(9, 59), Status: models.AttendancePresent,
		}
	}

	out := h.scan("A", "E1:abc123", clockAt(10, 0))
	if out.Code != CodeTimeIn {
		t.Fatalf("got %s, want %s", out.Code, CodeTimeIn)
	}
	if len(h.publisher.updates) != 0 || len(h.receipts.jobs) != 0 {
		t.Errorf("updates = %d, receipts = %d, want none for the losing device",
			len(h.publisher.updates), len(h.receipts.jobs))
	}
}
