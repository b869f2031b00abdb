package application

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/example/hearing-scheduler/internal/directory"
)

// HoldingCallService keeps at most one active holding call per calendar.
type HoldingCallService struct {
	calendars   CalendarRepository
	meetings    MeetingDirectory
	organizerID string
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewHoldingCallService constructs a holding call service.
func NewHoldingCallService(calendars CalendarRepository, meetings MeetingDirectory, organizerID string, idGenerator func() string, now func() time.Time) *HoldingCallService {
	return NewHoldingCallServiceWithLogger(calendars, meetings, organizerID, idGenerator, now, nil)
}

// NewHoldingCallServiceWithLogger constructs a holding call service with a specified logger.
func NewHoldingCallServiceWithLogger(calendars CalendarRepository, meetings MeetingDirectory, organizerID string, idGenerator func() string, now func() time.Time, logger *slog.Logger) *HoldingCallService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &HoldingCallService{
		calendars:   calendars,
		meetings:    meetings,
		organizerID: organizerID,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *HoldingCallService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "HoldingCallService", operation, attrs...)
}

// Create starts a holding call on the calendar with the given external id.
func (s *HoldingCallService) Create(ctx context.Context, externalCalendarID string, start, end time.Time) (HoldingCall, error) {
	calendar, err := s.calendars.GetCalendarByExternalID(ctx, externalCalendarID)
	if err != nil {
		return HoldingCall{}, calendarLookupError(err, externalCalendarID)
	}
	_, call, err := s.CreateHoldingCall(ctx, calendar, start, end)
	return call, err
}

// ExpireActive expires the active holding call of the calendar with the given external id.
func (s *HoldingCallService) ExpireActive(ctx context.Context, externalCalendarID string) (Calendar, error) {
	calendar, err := s.calendars.GetCalendarByExternalID(ctx, externalCalendarID)
	if err != nil {
		return Calendar{}, calendarLookupError(err, externalCalendarID)
	}
	return s.ExpireActiveHoldingCalls(ctx, calendar)
}

// CreateHoldingCall creates a meeting, expires every previous active call and
// appends the new one. Expiry never fails the call: meeting deletion is best
// effort and the old call is marked expired regardless.
func (s *HoldingCallService) CreateHoldingCall(ctx context.Context, calendar Calendar, start, end time.Time) (updated Calendar, call HoldingCall, err error) {
	if s == nil {
		err = fmt.Errorf("HoldingCallService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateHoldingCall",
		"calendar_id", calendar.ID,
		"external_calendar_id", calendar.ExternalCalendarID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create holding call", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("meeting_id", call.MeetingID).InfoContext(ctx, "holding call created")
	}()

	vErr := &ValidationError{}
	if start.Before(s.now()) {
		vErr.add("startTime", "start time must not be in the past")
	}
	if end.Before(start) {
		vErr.add("endTime", "end time must not be before start time")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var meeting directory.Meeting
	meeting, err = s.meetings.CreateOrGetMeeting(ctx, directory.MeetingRequest{
		OrganizerID: s.organizerID,
		ExternalID:  s.idGenerator(),
		Start:       start,
		End:         end,
		Subject:     "Holding call " + calendar.ExternalCalendarID,
	})
	if err != nil {
		err = fmt.Errorf("create holding call meeting: %w", err)
		return
	}
	if !meeting.Start.IsZero() && (!meeting.Start.Equal(start) || !meeting.End.Equal(end)) {
		if uerr := s.meetings.UpdateMeeting(ctx, s.organizerID, meeting.ID, start, end); uerr != nil {
			logger.WarnContext(ctx, "failed to align meeting times", "meeting_id", meeting.ID, "error", uerr)
		}
	}

	updated = calendar
	s.expireActive(ctx, logger, &updated)

	call = HoldingCall{
		StartTime: start,
		EndTime:   end,
		MeetingID: meeting.ID,
		ThreadID:  meeting.ThreadID,
		JoinInfo:  meeting.JoinURL,
	}
	updated.HoldingCalls = append(updated.HoldingCalls, call)
	updated.UpdatedAt = s.now()

	updated, err = s.calendars.UpsertCalendar(ctx, updated)
	if err != nil {
		err = mapRepoError(err)
		return
	}

	if meeting.ThreadID != "" && meeting.JoinURL != "" {
		msg := fmt.Sprintf(`Holding call is open. <a href="%s">Join</a>`, html.EscapeString(meeting.JoinURL))
		if merr := s.meetings.CreateChatMessage(ctx, meeting.ThreadID, msg); merr != nil {
			logger.WarnContext(ctx, "failed to post join message", "meeting_id", meeting.ID, "error", merr)
		}
	}
	return
}

// ExpireActiveHoldingCalls expires every active holding call without
// creating a replacement.
func (s *HoldingCallService) ExpireActiveHoldingCalls(ctx context.Context, calendar Calendar) (updated Calendar, err error) {
	if s == nil {
		err = fmt.Errorf("HoldingCallService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ExpireActiveHoldingCalls",
		"calendar_id", calendar.ID,
		"external_calendar_id", calendar.ExternalCalendarID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to expire holding calls", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	updated = calendar
	expired := s.expireActive(ctx, logger, &updated)
	if expired == 0 {
		return
	}
	updated.UpdatedAt = s.now()
	updated, err = s.calendars.UpsertCalendar(ctx, updated)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	logger.InfoContext(ctx, "holding calls expired", "count", expired)
	return
}

// expireActive deletes the meeting of every non-expired call and marks it
// expired whatever the deletion outcome. It returns how many calls expired.
func (s *HoldingCallService) expireActive(ctx context.Context, logger *slog.Logger, calendar *Calendar) int {
	calls := make([]HoldingCall, len(calendar.HoldingCalls))
	copy(calls, calendar.HoldingCalls)

	var failures *multierror.Error
	expired := 0
	for i := range calls {
		if calls[i].IsExpired {
			continue
		}
		if calls[i].MeetingID != "" {
			if err := s.meetings.DeleteMeeting(ctx, s.organizerID, calls[i].MeetingID); err != nil {
				logger.WarnContext(ctx, "failed to delete holding call meeting", "meeting_id", calls[i].MeetingID, "error", err)
				failures = multierror.Append(failures, err)
			}
		}
		calls[i].IsExpired = true
		expired++
	}
	if failures != nil {
		logger.WarnContext(ctx, "holding call meetings left behind", "failures", len(failures.Errors))
	}
	calendar.HoldingCalls = calls
	return expired
}

func calendarLookupError(err error, externalID string) error {
	mapped := mapRepoError(err)
	if mapped == ErrNotFound {
		return notFound("calendar", externalID)
	}
	return mapped
}
