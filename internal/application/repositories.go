package application

import (
	"context"
	"errors"

	"github.com/example/hearing-scheduler/internal/persistence"
)

// FacilityRepository persists facilities.
type FacilityRepository interface {
	CreateFacility(ctx context.Context, facility Facility) (Facility, error)
	GetFacility(ctx context.Context, id string) (Facility, error)
	UpdateFacility(ctx context.Context, facility Facility) (Facility, error)
	DeleteFacility(ctx context.Context, id string) error
	ListFacilities(ctx context.Context) ([]Facility, error)
}

// CalendarRepository persists calendars. External ids compare case-insensitively.
type CalendarRepository interface {
	CalendarLister
	CreateCalendar(ctx context.Context, calendar Calendar) (Calendar, error)
	GetCalendarByExternalID(ctx context.Context, externalID string) (Calendar, error)
	UpsertCalendar(ctx context.Context, calendar Calendar) (Calendar, error)
	DeleteCalendar(ctx context.Context, id string) error
}

// EventRepository persists hearing events.
type EventRepository interface {
	ListEventsByCalendar(ctx context.Context, calendarID string) ([]Event, error)
	UpsertEvent(ctx context.Context, event Event) (Event, error)
}

// DepartmentRepository loads departments.
type DepartmentRepository interface {
	GetDepartment(ctx context.Context, id string) (Department, error)
}

// DocumentRepositories implements every repository on a document store.
type DocumentRepositories struct {
	store persistence.Store
}

// NewDocumentRepositories wraps a document store.
func NewDocumentRepositories(store persistence.Store) *DocumentRepositories {
	return &DocumentRepositories{store: store}
}

func facilityRecord(f Facility) (persistence.Record, error) {
	return persistence.Encode(f.ID, f.ID, "", map[string]string{"provisioningState": string(f.State)}, f)
}

// CreateFacility stores a new facility.
func (r *DocumentRepositories) CreateFacility(ctx context.Context, facility Facility) (Facility, error) {
	record, err := facilityRecord(facility)
	if err != nil {
		return Facility{}, err
	}
	if err := r.store.Create(ctx, persistence.ContainerFacilities, record); err != nil {
		return Facility{}, err
	}
	return facility, nil
}

// GetFacility loads a facility by id.
func (r *DocumentRepositories) GetFacility(ctx context.Context, id string) (Facility, error) {
	return persistence.GetAs[Facility](ctx, r.store, persistence.ContainerFacilities, id, "")
}

// UpdateFacility replaces a facility.
func (r *DocumentRepositories) UpdateFacility(ctx context.Context, facility Facility) (Facility, error) {
	record, err := facilityRecord(facility)
	if err != nil {
		return Facility{}, err
	}
	if err := r.store.Upsert(ctx, persistence.ContainerFacilities, record); err != nil {
		return Facility{}, err
	}
	return facility, nil
}

// DeleteFacility removes a facility.
func (r *DocumentRepositories) DeleteFacility(ctx context.Context, id string) error {
	return r.store.Delete(ctx, persistence.ContainerFacilities, id, "")
}

// ListFacilities returns every facility ordered by id.
func (r *DocumentRepositories) ListFacilities(ctx context.Context) ([]Facility, error) {
	return persistence.ListAs[Facility](ctx, r.store, persistence.ContainerFacilities, nil)
}

func calendarRecord(c Calendar) (persistence.Record, error) {
	external := persistence.NormalizeUniqueKey(c.ExternalCalendarID)
	return persistence.Encode(c.ID, c.FacilityID, external, map[string]string{
		"facilityId":         c.FacilityID,
		"externalCalendarId": external,
	}, c)
}

// CreateCalendar stores a new calendar. A taken external id yields persistence.ErrDuplicate.
func (r *DocumentRepositories) CreateCalendar(ctx context.Context, calendar Calendar) (Calendar, error) {
	record, err := calendarRecord(calendar)
	if err != nil {
		return Calendar{}, err
	}
	if err := r.store.Create(ctx, persistence.ContainerCalendars, record); err != nil {
		return Calendar{}, err
	}
	return calendar, nil
}

// GetCalendarByExternalID loads a calendar by its external id, ignoring case.
func (r *DocumentRepositories) GetCalendarByExternalID(ctx context.Context, externalID string) (Calendar, error) {
	calendars, err := persistence.ListAs[Calendar](ctx, r.store, persistence.ContainerCalendars, persistence.Filter{
		"externalCalendarId": persistence.NormalizeUniqueKey(externalID),
	})
	if err != nil {
		return Calendar{}, err
	}
	if len(calendars) == 0 {
		return Calendar{}, persistence.ErrNotFound
	}
	return calendars[0], nil
}

// UpsertCalendar replaces a calendar. The last write wins.
func (r *DocumentRepositories) UpsertCalendar(ctx context.Context, calendar Calendar) (Calendar, error) {
	record, err := calendarRecord(calendar)
	if err != nil {
		return Calendar{}, err
	}
	if err := r.store.Upsert(ctx, persistence.ContainerCalendars, record); err != nil {
		return Calendar{}, err
	}
	return calendar, nil
}

// DeleteCalendar removes a calendar.
func (r *DocumentRepositories) DeleteCalendar(ctx context.Context, id string) error {
	return r.store.Delete(ctx, persistence.ContainerCalendars, id, "")
}

// ListCalendars returns the calendars of a facility, or every calendar when
// facilityID is empty.
func (r *DocumentRepositories) ListCalendars(ctx context.Context, facilityID string) ([]Calendar, error) {
	var filter persistence.Filter
	if facilityID != "" {
		filter = persistence.Filter{"facilityId": facilityID}
	}
	return persistence.ListAs[Calendar](ctx, r.store, persistence.ContainerCalendars, filter)
}

// ListEventsByCalendar returns the events of a calendar.
func (r *DocumentRepositories) ListEventsByCalendar(ctx context.Context, calendarID string) ([]Event, error) {
	return persistence.ListAs[Event](ctx, r.store, persistence.ContainerEvents, persistence.Filter{"calendarId": calendarID})
}

// UpsertEvent replaces an event.
func (r *DocumentRepositories) UpsertEvent(ctx context.Context, event Event) (Event, error) {
	record, err := persistence.Encode(event.ID, event.CalendarID, "", map[string]string{
		"calendarId": event.CalendarID,
		"facilityId": event.FacilityID,
		"status":     string(event.Status),
	}, event)
	if err != nil {
		return Event{}, err
	}
	if err := r.store.Upsert(ctx, persistence.ContainerEvents, record); err != nil {
		return Event{}, err
	}
	return event, nil
}

// GetUser loads a focus user by email.
func (r *DocumentRepositories) GetUser(ctx context.Context, email string) (User, error) {
	return persistence.GetAs[User](ctx, r.store, persistence.ContainerUsers, normalizeEmail(email), "")
}

// SaveUser stores a focus user keyed by lowercased email.
func (r *DocumentRepositories) SaveUser(ctx context.Context, user User) error {
	return r.upsertKeyed(ctx, persistence.ContainerUsers, normalizeEmail(user.Email), user)
}

// GetRecorder loads a recorder by email.
func (r *DocumentRepositories) GetRecorder(ctx context.Context, email string) (Recorder, error) {
	return persistence.GetAs[Recorder](ctx, r.store, persistence.ContainerRecorders, normalizeEmail(email), "")
}

// SaveRecorder stores a recorder keyed by lowercased email.
func (r *DocumentRepositories) SaveRecorder(ctx context.Context, recorder Recorder) error {
	return r.upsertKeyed(ctx, persistence.ContainerRecorders, normalizeEmail(recorder.Email), recorder)
}

// GetDepartment loads a department.
func (r *DocumentRepositories) GetDepartment(ctx context.Context, id string) (Department, error) {
	return persistence.GetAs[Department](ctx, r.store, persistence.ContainerDepartments, id, "")
}

// SaveDepartment stores a department.
func (r *DocumentRepositories) SaveDepartment(ctx context.Context, department Department) error {
	return r.upsertKeyed(ctx, persistence.ContainerDepartments, department.ID, department)
}

func (r *DocumentRepositories) upsertKeyed(ctx context.Context, container, id string, v any) error {
	record, err := persistence.Encode(id, id, "", nil, v)
	if err != nil {
		return err
	}
	return r.store.Upsert(ctx, container, record)
}

// mapRepoError converts persistence failures into application errors.
func mapRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		return ErrConflict
	}
	if errors.Is(err, persistence.ErrConstraintViolation) {
		vErr := &ValidationError{}
		vErr.add("id", "id is required")
		return vErr
	}
	return err
}
