package clock

import (
	"testing"
	"time"
)

func TestFakeAfterAdvancesAndRecords(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	f := NewFake(start)

	fired := <-f.After(250 * time.Millisecond)
	if !fired.Equal(start.Add(250 * time.Millisecond)) {
		t.Fatalf("expected fire time %v, got %v", start.Add(250*time.Millisecond), fired)
	}

	<-f.After(0)
	if !f.Now().Equal(start.Add(250 * time.Millisecond)) {
		t.Fatalf("zero wait should not move the clock, now=%v", f.Now())
	}

	waits := f.Waits()
	if len(waits) != 2 || waits[0] != 250*time.Millisecond || waits[1] != 0 {
		t.Fatalf("unexpected recorded waits: %v", waits)
	}
}

func TestFakeSetAndAdvance(t *testing.T) {
	f := NewFake(time.Time{})
	at := time.Date(2026, 3, 2, 9, 58, 0, 0, time.UTC)

	f.Set(at)
	f.Advance(32 * time.Minute)

	if want := at.Add(32 * time.Minute); !f.Now().Equal(want) {
		t.Fatalf("expected %v, got %v", want, f.Now())
	}
}
