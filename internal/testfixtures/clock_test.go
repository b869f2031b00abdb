package testfixtures

import (
	"testing"
	"time"
)

func TestClock(t *testing.T) {
	t.Run("defaults to the reference time", func(t *testing.T) {
		clock := NewClock(time.Time{})
		if !clock.Now().Equal(ReferenceTime()) {
			t.Fatalf("expected ReferenceTime, got %v", clock.Now())
		}
	})

	t.Run("advance and set move the injected func", func(t *testing.T) {
		start := time.Date(2026, time.May, 4, 8, 30, 0, 0, time.UTC)
		clock := NewClock(start)
		now := clock.NowFunc()

		if got := clock.Advance(90 * time.Minute); !got.Equal(start.Add(90 * time.Minute)) {
			t.Fatalf("advance returned %v", got)
		}
		if got := now(); !got.Equal(start.Add(90 * time.Minute)) {
			t.Fatalf("expected NowFunc to follow Advance, got %v", got)
		}

		clock.Set(start)
		if got := now(); !got.Equal(start) {
			t.Fatalf("expected %v after Set, got %v", start, got)
		}
	})

	t.Run("nil clock uses wall time", func(t *testing.T) {
		var clock *Clock
		if clock.NowFunc()().IsZero() {
			t.Fatalf("expected wall clock time")
		}
	})
}
