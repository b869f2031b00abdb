package application

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestHoldingCallService_Create(t *testing.T) {
	t.Run("keeps at most one active call", func(t *testing.T) {
		env := newTestEnv(t)
		env.createCalendar("CAL-1", "f1", nil, nil)

		first, err := env.holding.Create(env.ctx, "CAL-1", env.now.Add(time.Hour), env.now.Add(2*time.Hour))
		if err != nil {
			t.Fatalf("first Create returned error: %v", err)
		}
		second, err := env.holding.Create(env.ctx, "cal-1", env.now.Add(3*time.Hour), env.now.Add(4*time.Hour))
		if err != nil {
			t.Fatalf("second Create returned error: %v", err)
		}

		cal, err := env.calendars.Get(env.ctx, "CAL-1")
		if err != nil {
			t.Fatalf("Get returned error: %v", err)
		}
		if len(cal.HoldingCalls) != 2 {
			t.Fatalf("expected two holding calls, got %d", len(cal.HoldingCalls))
		}
		active := 0
		for _, call := range cal.HoldingCalls {
			if !call.IsExpired {
				active++
			}
		}
		if active != 1 {
			t.Fatalf("expected exactly one active call, got %d", active)
		}
		if idx := cal.ActiveHoldingCall(); idx < 0 || cal.HoldingCalls[idx].MeetingID != second.MeetingID {
			t.Fatalf("expected the newest call to be active")
		}
		if env.dir.HasMeeting(first.MeetingID) {
			t.Fatalf("expected previous meeting deleted")
		}
		if !env.dir.HasMeeting(second.MeetingID) {
			t.Fatalf("expected new meeting to exist")
		}
	})

	t.Run("posts the join link to the meeting chat", func(t *testing.T) {
		env := newTestEnv(t)
		env.createCalendar("CAL-1", "f1", nil, nil)

		call, err := env.holding.Create(env.ctx, "CAL-1", env.now.Add(time.Hour), env.now.Add(2*time.Hour))
		if err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
		if call.JoinInfo == "" || call.ThreadID == "" {
			t.Fatalf("expected join info and thread, got %+v", call)
		}
		messages := env.dir.Messages(call.ThreadID)
		if len(messages) != 1 || !strings.Contains(messages[0], call.JoinInfo) {
			t.Fatalf("expected join message, got %v", messages)
		}
	})

	t.Run("expires the previous call when its meeting deletion fails", func(t *testing.T) {
		env := newTestEnv(t)
		env.createCalendar("CAL-1", "f1", nil, nil)

		first, err := env.holding.Create(env.ctx, "CAL-1", env.now.Add(time.Hour), env.now.Add(2*time.Hour))
		if err != nil {
			t.Fatalf("first Create returned error: %v", err)
		}
		env.dir.FailMeetingDelete(first.MeetingID, errors.New("boom"))

		if _, err := env.holding.Create(env.ctx, "CAL-1", env.now.Add(time.Hour), env.now.Add(2*time.Hour)); err != nil {
			t.Fatalf("second Create returned error: %v", err)
		}
		cal, err := env.calendars.Get(env.ctx, "CAL-1")
		if err != nil {
			t.Fatalf("Get returned error: %v", err)
		}
		if !cal.HoldingCalls[0].IsExpired {
			t.Fatalf("expected first call expired despite deletion failure")
		}
	})

	t.Run("rejects start in the past", func(t *testing.T) {
		env := newTestEnv(t)
		env.createCalendar("CAL-1", "f1", nil, nil)

		_, err := env.holding.Create(env.ctx, "CAL-1", env.now.Add(-time.Minute), env.now.Add(time.Hour))
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if _, ok := vErr.FieldErrors["startTime"]; !ok {
			t.Fatalf("expected startTime error, got %v", vErr.FieldErrors)
		}
		if env.dir.Calls("CreateOrGetMeeting") != 0 {
			t.Fatalf("no meeting should be created")
		}
	})

	t.Run("rejects end before start", func(t *testing.T) {
		env := newTestEnv(t)
		env.createCalendar("CAL-1", "f1", nil, nil)

		_, err := env.holding.Create(env.ctx, "CAL-1", env.now.Add(2*time.Hour), env.now.Add(time.Hour))
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if _, ok := vErr.FieldErrors["endTime"]; !ok {
			t.Fatalf("expected endTime error, got %v", vErr.FieldErrors)
		}
	})

	t.Run("unknown calendar is not found", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.holding.Create(env.ctx, "missing", env.now.Add(time.Hour), env.now.Add(2*time.Hour))
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestHoldingCallService_ExpireActive(t *testing.T) {
	t.Run("expires the active call", func(t *testing.T) {
		env := newTestEnv(t)
		env.createCalendar("CAL-1", "f1", nil, nil)
		call, err := env.holding.Create(env.ctx, "CAL-1", env.now.Add(time.Hour), env.now.Add(2*time.Hour))
		if err != nil {
			t.Fatalf("Create returned error: %v", err)
		}

		cal, err := env.holding.ExpireActive(env.ctx, "CAL-1")
		if err != nil {
			t.Fatalf("ExpireActive returned error: %v", err)
		}
		if cal.ActiveHoldingCall() != -1 {
			t.Fatalf("expected no active call")
		}
		if env.dir.HasMeeting(call.MeetingID) {
			t.Fatalf("expected meeting deleted")
		}
	})

	t.Run("is a no-op without an active call", func(t *testing.T) {
		env := newTestEnv(t)
		env.createCalendar("CAL-1", "f1", nil, nil)

		if _, err := env.holding.ExpireActive(env.ctx, "CAL-1"); err != nil {
			t.Fatalf("ExpireActive returned error: %v", err)
		}
		if env.dir.Calls("DeleteMeeting") != 0 {
			t.Fatalf("no meeting should be deleted")
		}
	})

	t.Run("unknown calendar is not found", func(t *testing.T) {
		env := newTestEnv(t)
		if _, err := env.holding.ExpireActive(env.ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}
