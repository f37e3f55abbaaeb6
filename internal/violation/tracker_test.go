package violation

import (
	"sync"
	"testing"
	"time"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

const week = 7 * 24 * time.Hour

func TestRecordViolation_Increments(t *testing.T) {
	tr := NewTracker()

	if got := tr.RecordViolation(1, 10, base, week); got != 1 {
		t.Errorf("first violation count = %d, want 1", got)
	}
	if got := tr.RecordViolation(1, 10, base.Add(time.Minute), week); got != 2 {
		t.Errorf("second violation count = %d, want 2", got)
	}

	// Different user and different chat are independent keys.
	if got := tr.RecordViolation(1, 11, base, week); got != 1 {
		t.Errorf("other user count = %d, want 1", got)
	}
	if got := tr.RecordViolation(2, 10, base, week); got != 1 {
		t.Errorf("other chat count = %d, want 1", got)
	}
}

func TestRecordViolation_LazyReset(t *testing.T) {
	tr := NewTracker()

	tr.RecordViolation(1, 10, base, week)
	tr.RecordViolation(1, 10, base.Add(time.Hour), week)
	tr.RecordWarning(1, 10)

	// Past the reset window: treated as violation #1 again, warnings
	// cleared too.
	got := tr.RecordViolation(1, 10, base.Add(week+time.Hour+time.Second), week)
	if got != 1 {
		t.Errorf("post-window violation count = %d, want 1", got)
	}
	rec, ok := tr.Get(1, 10)
	if !ok {
		t.Fatal("record missing")
	}
	if rec.WarningCount != 0 {
		t.Errorf("warning count after reset = %d, want 0", rec.WarningCount)
	}
}

func TestRecordViolation_WithinWindowKeepsCount(t *testing.T) {
	tr := NewTracker()

	tr.RecordViolation(1, 10, base, week)
	// Just inside the window.
	if got := tr.RecordViolation(1, 10, base.Add(week-time.Second), week); got != 2 {
		t.Errorf("count = %d, want 2", got)
	}
}

func TestReset(t *testing.T) {
	tr := NewTracker()

	tr.RecordViolation(1, 10, base, week)
	tr.RecordViolation(1, 10, base, week)
	tr.Reset(1, 10)

	if _, ok := tr.Get(1, 10); ok {
		t.Fatal("record survived Reset")
	}
	// After a ban-and-reset, a re-added user starts fresh.
	if got := tr.RecordViolation(1, 10, base.Add(time.Hour), week); got != 1 {
		t.Errorf("post-reset count = %d, want 1", got)
	}
}

func TestRecordWarning(t *testing.T) {
	tr := NewTracker()

	for i := 1; i <= 3; i++ {
		if got := tr.RecordWarning(1, 10); got != i {
			t.Errorf("warning #%d count = %d", i, got)
		}
	}
}

func TestRecordViolation_Concurrent(t *testing.T) {
	tr := NewTracker()

	const goroutines = 32
	const perGoroutine = 25

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				tr.RecordViolation(1, 10, base, week)
			}
		}()
	}
	wg.Wait()

	rec, ok := tr.Get(1, 10)
	if !ok {
		t.Fatal("record missing")
	}
	if rec.ViolationCount != goroutines*perGoroutine {
		t.Errorf("count = %d, want %d (lost or doubled updates)",
			rec.ViolationCount, goroutines*perGoroutine)
	}
}
