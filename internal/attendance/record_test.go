package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"attendance-backend/internal/clock"
	"attendance-backend/internal/models"
)

var alice = Attendee{ID: "A", Name: "Alice", Email: "alice@example.com", DeviceInfo: "test-agent"}

func newTestRecorder(now time.Time) (*Recorder, *memStore, *clock.Fake, *models.Event) {
	store := newMemStore()
	seedE1(store, models.EventActive)
	clk := clock.NewFake(now)
	return NewRecorder(store, clk, nil), store, clk, store.events["E1"]
}

func TestRecordScanLateness(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want models.AttendanceStatus
	}{
		{"one second early", eventStart.Add(-time.Second), models.AttendancePresent},
		{"exactly at start", eventStart, models.AttendancePresent},
		{"one second late", eventStart.Add(time.Second), models.AttendanceLate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, _, event := newTestRecorder(tt.now)
			res, err := r.RecordScan(context.Background(), event, alice)
			if err != nil {
				t.Fatalf("RecordScan: %v", err)
			}
			if res.Action != ActionTimeIn || res.Record.Status != tt.want {
				t.Errorf("got %s/%s, want time_in/%s", res.Action, res.Record.Status, tt.want)
			}
		})
	}
}

func TestRecordScanLifecycle(t *testing.T) {
	r, store, clk, event := newTestRecorder(eventStart.Add(5 * time.Minute))
	ctx := context.Background()

	in, err := r.RecordScan(ctx, event, alice)
	if err != nil || in.Action != ActionTimeIn {
		t.Fatalf("first scan = %v, %v", in.Action, err)
	}
	if in.Record.AttendeeName != "Alice" || in.Record.DeviceInfo != "test-agent" || in.Record.EventName != "Physics 101" {
		t.Errorf("record not populated from attendee and event: %+v", in.Record)
	}

	clk.Advance(40*time.Minute + 29*time.Second)
	out, err := r.RecordScan(ctx, event, alice)
	if err != nil || out.Action != ActionTimeOut {
		t.Fatalf("second scan = %v, %v", out.Action, err)
	}
	if got := *out.Record.TotalDurationMinutes; got != 40 {
		t.Errorf("duration = %d, want 40", got)
	}
	if out.Record.Status != models.AttendanceLate {
		t.Errorf("status rewritten to %s", out.Record.Status)
	}

	clk.Advance(time.Hour)
	before := store.record("E1", "A")
	again, err := r.RecordScan(ctx, event, alice)
	if err != nil || again.Action != ActionNone {
		t.Fatalf("third scan = %v, %v", again.Action, err)
	}
	after := store.record("E1", "A")
	if !after.TimeOut.Equal(*before.TimeOut) || *after.TotalDurationMinutes != *before.TotalDurationMinutes {
		t.Errorf("complete record mutated: before %+v after %+v", before, after)
	}
	if store.count() != 1 {
		t.Errorf("records = %d, want 1", store.count())
	}
}

func TestRecordScanLookupUncertain(t *testing.T) {
	r, store, _, event := newTestRecorder(eventStart)
	store.findErr = errors.New("deadline exceeded")

	_, err := r.RecordScan(context.Background(), event, alice)
	var ae *Error
	if !errors.As(err, &ae) || ae.Code != CodeLookupUncertain {
		t.Fatalf("err = %v, want LookupUncertain", err)
	}
	if !ae.Code.Retryable() {
		t.Error("LookupUncertain should be retryable")
	}
	if store.count() != 0 {
		t.Error("an uncertain lookup created a record")
	}
}

func TestRecordScanCreateRace(t *testing.T) {
	r, store, _, event := newTestRecorder(eventStart.Add(-time.Minute))
	winner := &models.AttendanceRecord{ID: "winner", EventID: "E1", AttendeeID: "A", TimeIn: eventStart.Add(-2 * time.Minute), Status: models.AttendancePresent}
	store.beforeCreate = func() {
		store.records[pairKey("E1", "A")] = winner
	}

	res, err := r.RecordScan(context.Background(), event, alice)
	if err != nil {
		t.Fatalf("RecordScan: %v", err)
	}
	if res.Action != ActionTimeIn || res.Record.ID != "winner" {
		t.Errorf("got %s on %s, want time_in on winner", res.Action, res.Record.ID)
	}
	if res.Written {
		t.Error("lost create reported as written")
	}
	if store.count() != 1 {
		t.Errorf("records = %d, want 1", store.count())
	}
}

func TestRecordScanCloseRace(t *testing.T) {
	r, store, clk, event := newTestRecorder(eventStart)
	ctx := context.Background()
	if _, err := r.RecordScan(ctx, event, alice); err != nil {
		t.Fatalf("time in: %v", err)
	}

	other := eventStart.Add(10 * time.Minute)
	store.beforeClose = func() {
		rec := store.records[pairKey("E1", "A")]
		d := 10
		rec.TimeOut, rec.TotalDurationMinutes = &other, &d
	}
	clk.Advance(20 * time.Minute)

	res, err := r.RecordScan(ctx, event, alice)
	if err != nil {
		t.Fatalf("RecordScan: %v", err)
	}
	if res.Action != ActionNone || res.Written {
		t.Errorf("action = %s written = %v, want none unwritten", res.Action, res.Written)
	}
	if res.Record.TimeOut == nil || !res.Record.TimeOut.Equal(other) {
		t.Errorf("result time out = %v, want the winning close at %v", res.Record.TimeOut, other)
	}
	if res.Record.TotalDurationMinutes == nil || *res.Record.TotalDurationMinutes != 10 {
		t.Errorf("result duration = %v, want 10", res.Record.TotalDurationMinutes)
	}
	if got := *store.record("E1", "A").TotalDurationMinutes; got != 10 {
		t.Errorf("duration = %d, first close should win", got)
	}
}

func TestDurationMinutes(t *testing.T) {
	tests := []struct {
		elapsed time.Duration
		want    int
	}{
		{0, 0},
		{29 * time.Second, 0},
		{30 * time.Second, 1},
		{32 * time.Minute, 32},
		{-5 * time.Minute, 0},
	}
	for _, tt := range tests {
		if got := durationMinutes(eventStart, eventStart.Add(tt.elapsed)); got != tt.want {
			t.Errorf("durationMinutes(%v) = %d, want %d", tt.elapsed, got, tt.want)
		}
	}
}
