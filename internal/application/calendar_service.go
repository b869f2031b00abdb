package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

// membershipReconciler is the reconciliation surface the calendar service drives.
type membershipReconciler interface {
	AssignToTeamAndChannels(ctx context.Context, identities []Identity, facility Facility)
	UnassignFromTeamAndChannels(ctx context.Context, emails []string, facility Facility, excludingCalendarID string)
}

// identityResolver resolves calendar email lists.
type identityResolver interface {
	Recorders(ctx context.Context, emails []string) ([]Identity, error)
	FocusUsers(ctx context.Context, emails []string) ([]Identity, error)
	Lookup(ctx context.Context, emails []string) []Identity
}

// facilityReader loads facilities.
type facilityReader interface {
	GetFacility(ctx context.Context, id string) (Facility, error)
}

// CalendarDependencies groups the collaborators of CalendarService.
type CalendarDependencies struct {
	Calendars    CalendarRepository
	Events       EventRepository
	Facilities   facilityReader
	Departments  DepartmentRepository
	Identities   identityResolver
	Reconciler   membershipReconciler
	HoldingCalls *HoldingCallService
	Meetings     MeetingDirectory
	OrganizerID  string
}

// CalendarService orchestrates calendar writes and the team membership they imply.
type CalendarService struct {
	deps        CalendarDependencies
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// maxParallelMeetingDeletes bounds concurrent meeting deletions on calendar delete.
const maxParallelMeetingDeletes = 4

// NewCalendarService constructs a calendar service.
func NewCalendarService(deps CalendarDependencies, idGenerator func() string, now func() time.Time) *CalendarService {
	return NewCalendarServiceWithLogger(deps, idGenerator, now, nil)
}

// NewCalendarServiceWithLogger constructs a calendar service with a specified logger.
func NewCalendarServiceWithLogger(deps CalendarDependencies, idGenerator func() string, now func() time.Time, logger *slog.Logger) *CalendarService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &CalendarService{deps: deps, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

func (s *CalendarService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "CalendarService", operation, attrs...)
}

// Create validates every reference, assigns the initial identities to the
// facility team and persists the calendar.
func (s *CalendarService) Create(ctx context.Context, input CalendarInput) (calendar Calendar, err error) {
	if s == nil {
		err = fmt.Errorf("CalendarService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Create",
		"external_calendar_id", input.ExternalCalendarID,
		"facility_id", input.FacilityID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create calendar", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("calendar_id", calendar.ID).InfoContext(ctx, "calendar created")
	}()

	vErr := validateCalendarInput(input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var facility Facility
	facility, err = s.facility(ctx, input.FacilityID)
	if err != nil {
		return
	}
	if err = s.department(ctx, input.DepartmentID); err != nil {
		return
	}

	var recorders, focusUsers []Identity
	recorders, err = s.deps.Identities.Recorders(ctx, input.Recorders)
	if err != nil {
		return
	}
	focusUsers, err = s.deps.Identities.FocusUsers(ctx, input.FocusUsers)
	if err != nil {
		return
	}

	if _, lookupErr := s.deps.Calendars.GetCalendarByExternalID(ctx, input.ExternalCalendarID); lookupErr == nil {
		err = fmt.Errorf("calendar %q: %w", input.ExternalCalendarID, ErrConflict)
		return
	} else if !isNotFound(lookupErr) {
		err = lookupErr
		return
	}

	s.deps.Reconciler.AssignToTeamAndChannels(ctx, append(recorders, focusUsers...), facility)

	now := s.now()
	calendar = Calendar{
		ID:                 s.idGenerator(),
		ExternalCalendarID: strings.ToLower(strings.TrimSpace(input.ExternalCalendarID)),
		FacilityID:         facility.ID,
		DepartmentID:       input.DepartmentID,
		FocusUsers:         normalizeEmails(input.FocusUsers),
		Recorders:          normalizeEmails(input.Recorders),
		HoldingCalls:       []HoldingCall{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	calendar, err = s.deps.Calendars.CreateCalendar(ctx, calendar)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	return
}

// Get loads a calendar by external id, ignoring case.
func (s *CalendarService) Get(ctx context.Context, externalID string) (Calendar, error) {
	calendar, err := s.deps.Calendars.GetCalendarByExternalID(ctx, externalID)
	if err != nil {
		return Calendar{}, calendarLookupError(err, externalID)
	}
	return calendar, nil
}

// List returns the calendars of a facility, or all calendars, ordered by external id.
func (s *CalendarService) List(ctx context.Context, facilityID string) ([]Calendar, error) {
	calendars, err := s.deps.Calendars.ListCalendars(ctx, facilityID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	out := make([]Calendar, len(calendars))
	copy(out, calendars)
	sort.Slice(out, func(i, j int) bool {
		return out[i].ExternalCalendarID < out[j].ExternalCalendarID
	})
	return out, nil
}

// Update applies the patch, then reconciles team membership against the
// identities added and removed. A facility change moves unchanged identities
// from the old team to the new one and re-points the calendar's events.
func (s *CalendarService) Update(ctx context.Context, externalID string, patch CalendarPatch) (calendar Calendar, err error) {
	if s == nil {
		err = fmt.Errorf("CalendarService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Update", "external_calendar_id", externalID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update calendar", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("calendar_id", calendar.ID).InfoContext(ctx, "calendar updated")
	}()

	var existing Calendar
	existing, err = s.Get(ctx, externalID)
	if err != nil {
		return
	}

	vErr := validateCalendarPatch(patch)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	next := existing
	if patch.FacilityID != nil {
		next.FacilityID = strings.TrimSpace(*patch.FacilityID)
	}
	if patch.DepartmentID != nil {
		next.DepartmentID = strings.TrimSpace(*patch.DepartmentID)
	}
	if patch.FocusUsers != nil {
		next.FocusUsers = normalizeEmails(*patch.FocusUsers)
	}
	if patch.Recorders != nil {
		next.Recorders = normalizeEmails(*patch.Recorders)
	}
	facilityChanged := next.FacilityID != existing.FacilityID

	var newFacility Facility
	newFacility, err = s.facility(ctx, next.FacilityID)
	if err != nil {
		return
	}
	oldFacility := newFacility
	oldFacilityKnown := true
	if facilityChanged {
		if oldFacility, err = s.deps.Facilities.GetFacility(ctx, existing.FacilityID); err != nil {
			if !isNotFound(err) {
				return
			}
			logger.WarnContext(ctx, "previous facility not found; skipping its cleanup", "previous_facility_id", existing.FacilityID)
			oldFacilityKnown = false
			err = nil
		}
	}
	if next.DepartmentID != existing.DepartmentID {
		if err = s.department(ctx, next.DepartmentID); err != nil {
			return
		}
	}

	addedRecorders := difference(next.Recorders, existing.Recorders)
	addedFocus := difference(next.FocusUsers, existing.FocusUsers)
	var toAssign []Identity
	var resolved []Identity
	if resolved, err = s.deps.Identities.Recorders(ctx, addedRecorders); err != nil {
		return
	}
	toAssign = append(toAssign, resolved...)
	if resolved, err = s.deps.Identities.FocusUsers(ctx, addedFocus); err != nil {
		return
	}
	toAssign = append(toAssign, resolved...)

	// On a facility change every previous identity leaves the old team unless
	// another calendar there still links it.
	var toUnassign []string
	if facilityChanged {
		toUnassign = normalizeEmails(append(append([]string{}, existing.FocusUsers...), existing.Recorders...))
		unchanged := normalizeEmails(append(intersection(existing.FocusUsers, next.FocusUsers), intersection(existing.Recorders, next.Recorders)...))
		for _, identity := range s.deps.Identities.Lookup(ctx, unchanged) {
			if containsEmail(next.Recorders, identity.Email) {
				identity.Kind = IdentityRecorder
			}
			toAssign = append(toAssign, identity)
		}
	} else {
		stillReferenced := append(append([]string{}, next.FocusUsers...), next.Recorders...)
		toUnassign = difference(
			normalizeEmails(append(difference(existing.Recorders, next.Recorders), difference(existing.FocusUsers, next.FocusUsers)...)),
			stillReferenced,
		)
	}

	next.UpdatedAt = s.now()
	calendar, err = s.deps.Calendars.UpsertCalendar(ctx, next)
	if err != nil {
		err = mapRepoError(err)
		return
	}

	s.deps.Reconciler.AssignToTeamAndChannels(ctx, toAssign, newFacility)
	if oldFacilityKnown {
		s.deps.Reconciler.UnassignFromTeamAndChannels(ctx, toUnassign, oldFacility, calendar.ID)
	}

	if facilityChanged {
		s.repointEvents(ctx, logger, calendar)
	}
	return
}

func (s *CalendarService) repointEvents(ctx context.Context, logger *slog.Logger, calendar Calendar) {
	events, err := s.deps.Events.ListEventsByCalendar(ctx, calendar.ID)
	if err != nil {
		logger.WarnContext(ctx, "failed to list calendar events", "error", err)
		return
	}
	var failures *multierror.Error
	for _, event := range events {
		if event.FacilityID == calendar.FacilityID {
			continue
		}
		event.FacilityID = calendar.FacilityID
		if _, err := s.deps.Events.UpsertEvent(ctx, event); err != nil {
			logger.WarnContext(ctx, "failed to move event", "event_id", event.ID, "error", err)
			failures = multierror.Append(failures, err)
		}
	}
	if failures != nil {
		logger.WarnContext(ctx, "events left on previous facility", "failures", len(failures.Errors))
	}
}

// Delete unassigns the calendar's identities, expires its holding calls,
// cancels its future events and removes the calendar. Directory cleanup is
// best effort.
func (s *CalendarService) Delete(ctx context.Context, externalID string) (err error) {
	if s == nil {
		return fmt.Errorf("CalendarService is nil")
	}

	logger := s.loggerWith(ctx, "Delete", "external_calendar_id", externalID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete calendar", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "calendar deleted")
	}()

	var calendar Calendar
	calendar, err = s.Get(ctx, externalID)
	if err != nil {
		return
	}
	logger = logger.With("calendar_id", calendar.ID)

	facility, ferr := s.deps.Facilities.GetFacility(ctx, calendar.FacilityID)
	switch {
	case ferr == nil:
		s.deps.Reconciler.UnassignFromTeamAndChannels(ctx, append(append([]string{}, calendar.FocusUsers...), calendar.Recorders...), facility, calendar.ID)
	case isNotFound(ferr):
		logger.WarnContext(ctx, "facility not found; skipping team cleanup", "facility_id", calendar.FacilityID)
	default:
		logger.WarnContext(ctx, "failed to load facility; skipping team cleanup", "facility_id", calendar.FacilityID, "error", ferr)
	}

	if s.deps.HoldingCalls != nil {
		s.deps.HoldingCalls.expireActive(ctx, logger, &calendar)
	}

	s.cancelFutureEvents(ctx, logger, calendar)

	if err = s.deps.Calendars.DeleteCalendar(ctx, calendar.ID); err != nil {
		err = mapRepoError(err)
		return
	}
	return
}

func (s *CalendarService) cancelFutureEvents(ctx context.Context, logger *slog.Logger, calendar Calendar) {
	events, err := s.deps.Events.ListEventsByCalendar(ctx, calendar.ID)
	if err != nil {
		logger.WarnContext(ctx, "failed to list calendar events", "error", err)
		return
	}

	now := s.now()
	var meetings []Event
	for _, event := range events {
		if event.Status == EventDeleted || !event.End.After(now) {
			continue
		}
		event.Status = EventDeleted
		if _, err := s.deps.Events.UpsertEvent(ctx, event); err != nil {
			logger.WarnContext(ctx, "failed to mark event deleted", "event_id", event.ID, "error", err)
			continue
		}
		if event.MeetingID != "" {
			meetings = append(meetings, event)
		}
	}
	if len(meetings) == 0 || s.deps.Meetings == nil {
		return
	}

	var (
		mu       sync.Mutex
		failures *multierror.Error
		group    errgroup.Group
	)
	group.SetLimit(maxParallelMeetingDeletes)
	for _, event := range meetings {
		group.Go(func() error {
			organizer := event.OrganizerID
			if organizer == "" {
				organizer = s.deps.OrganizerID
			}
			if err := s.deps.Meetings.DeleteMeeting(ctx, organizer, event.MeetingID); err != nil {
				logger.WarnContext(ctx, "failed to delete event meeting", "event_id", event.ID, "meeting_id", event.MeetingID, "error", err)
				mu.Lock()
				failures = multierror.Append(failures, err)
				mu.Unlock()
				return err
			}
			return nil
		})
	}
	_ = group.Wait()
	if failures != nil {
		logger.WarnContext(ctx, "event meetings left behind", "failures", len(failures.Errors))
	}
}

// facility loads a facility that calendars may be attached to. Only facilities
// whose team finished provisioning qualify.
func (s *CalendarService) facility(ctx context.Context, id string) (Facility, error) {
	facility, err := s.deps.Facilities.GetFacility(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return Facility{}, notFound("facility", id)
		}
		return Facility{}, err
	}
	if facility.State != ProvisioningActive {
		return Facility{}, fmt.Errorf("%w: facility %s is %s", ErrConflict, id, facility.State)
	}
	return facility, nil
}

func (s *CalendarService) department(ctx context.Context, id string) error {
	if _, err := s.deps.Departments.GetDepartment(ctx, id); err != nil {
		if isNotFound(err) {
			return notFound("department", id)
		}
		return err
	}
	return nil
}

func validateCalendarInput(input CalendarInput) *ValidationError {
	vErr := &ValidationError{}
	if strings.TrimSpace(input.ExternalCalendarID) == "" {
		vErr.add("externalCalendarId", "externalCalendarId is required")
	}
	if strings.TrimSpace(input.FacilityID) == "" {
		vErr.add("facilityId", "facilityId is required")
	}
	if strings.TrimSpace(input.DepartmentID) == "" {
		vErr.add("departmentId", "departmentId is required")
	}
	return vErr
}

func validateCalendarPatch(patch CalendarPatch) *ValidationError {
	vErr := &ValidationError{}
	if patch.FacilityID != nil && strings.TrimSpace(*patch.FacilityID) == "" {
		vErr.add("facilityId", "facilityId must not be empty")
	}
	if patch.DepartmentID != nil && strings.TrimSpace(*patch.DepartmentID) == "" {
		vErr.add("departmentId", "departmentId must not be empty")
	}
	return vErr
}
