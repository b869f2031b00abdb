package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/hearing-scheduler/internal/application"
)

type calendarService interface {
	Create(ctx context.Context, input application.CalendarInput) (application.Calendar, error)
	Get(ctx context.Context, externalID string) (application.Calendar, error)
	List(ctx context.Context, facilityID string) ([]application.Calendar, error)
	Update(ctx context.Context, externalID string, patch application.CalendarPatch) (application.Calendar, error)
	Delete(ctx context.Context, externalID string) error
}

type CalendarHandler struct {
	service   calendarService
	responder responder
	logger    *slog.Logger
}

func NewCalendarHandler(service calendarService, logger *slog.Logger) *CalendarHandler {
	base := defaultLogger(logger)
	return &CalendarHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *CalendarHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "CalendarHandler", operation, attrs...)
}

func (h *CalendarHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req application.CalendarInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode calendar request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create", "external_calendar_id", req.ExternalCalendarID)
	calendar, err := h.service.Create(r.Context(), req)
	if err != nil {
		logger.ErrorContext(r.Context(), "calendar creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("calendar_id", calendar.ID).InfoContext(r.Context(), "calendar created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, calendarResponse{Calendar: toCalendarDTO(calendar)})
}

func (h *CalendarHandler) Get(w http.ResponseWriter, r *http.Request) {
	externalID, ok := h.pathID(w, r, "Get")
	if !ok {
		return
	}

	calendar, err := h.service.Get(r.Context(), externalID)
	if err != nil {
		h.log(r.Context(), "Get", "external_calendar_id", externalID).ErrorContext(r.Context(), "calendar lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, calendarResponse{Calendar: toCalendarDTO(calendar)})
}

func (h *CalendarHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	facilityID := strings.TrimSpace(r.URL.Query().Get("facilityId"))
	logger := h.log(r.Context(), "List", "facility_id", facilityID)
	calendars, err := h.service.List(r.Context(), facilityID)
	if err != nil {
		logger.ErrorContext(r.Context(), "calendar list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("result_count", len(calendars)).InfoContext(r.Context(), "calendars listed")
	out := make([]calendarDTO, 0, len(calendars))
	for _, calendar := range calendars {
		out = append(out, toCalendarDTO(calendar))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listCalendarsResponse{Calendars: out})
}

func (h *CalendarHandler) Update(w http.ResponseWriter, r *http.Request) {
	externalID, ok := h.pathID(w, r, "Update")
	if !ok {
		return
	}

	var patch application.CalendarPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.log(r.Context(), "Update", "external_calendar_id", externalID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode calendar update", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Update", "external_calendar_id", externalID)
	calendar, err := h.service.Update(r.Context(), externalID, patch)
	if err != nil {
		logger.ErrorContext(r.Context(), "calendar update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "calendar updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, calendarResponse{Calendar: toCalendarDTO(calendar)})
}

func (h *CalendarHandler) Delete(w http.ResponseWriter, r *http.Request) {
	externalID, ok := h.pathID(w, r, "Delete")
	if !ok {
		return
	}

	logger := h.log(r.Context(), "Delete", "external_calendar_id", externalID)
	if err := h.service.Delete(r.Context(), externalID); err != nil {
		logger.ErrorContext(r.Context(), "calendar delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "calendar deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *CalendarHandler) pathID(w http.ResponseWriter, r *http.Request, operation string) (string, bool) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return "", false
	}
	id, ok := PathIDFromContext(r.Context())
	if !ok || strings.TrimSpace(id) == "" {
		h.log(r.Context(), operation, "error_kind", "bad_request").ErrorContext(r.Context(), "missing calendar id")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingPathID)
		return "", false
	}
	return id, true
}

type calendarResponse struct {
	Calendar calendarDTO `json:"calendar"`
}

type listCalendarsResponse struct {
	Calendars []calendarDTO `json:"calendars"`
}

type calendarDTO struct {
	ID                 string           `json:"id"`
	ExternalCalendarID string           `json:"externalCalendarId"`
	FacilityID         string           `json:"facilityId"`
	DepartmentID       string           `json:"departmentId"`
	FocusUsers         []string         `json:"focusUsers"`
	Recorders          []string         `json:"recorders"`
	HoldingCalls       []holdingCallDTO `json:"holdingCalls"`
	CreatedAt          string           `json:"createdAt"`
	UpdatedAt          string           `json:"updatedAt"`
}

type holdingCallDTO struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	IsExpired bool   `json:"isExpired"`
	MeetingID string `json:"meetingId"`
	ThreadID  string `json:"threadId"`
	JoinInfo  string `json:"joinInfo"`
}

func toCalendarDTO(c application.Calendar) calendarDTO {
	calls := make([]holdingCallDTO, 0, len(c.HoldingCalls))
	for _, call := range c.HoldingCalls {
		calls = append(calls, toHoldingCallDTO(call))
	}
	return calendarDTO{
		ID:                 c.ID,
		ExternalCalendarID: c.ExternalCalendarID,
		FacilityID:         c.FacilityID,
		DepartmentID:       c.DepartmentID,
		FocusUsers:         nonNil(c.FocusUsers),
		Recorders:          nonNil(c.Recorders),
		HoldingCalls:       calls,
		CreatedAt:          formatTime(c.CreatedAt),
		UpdatedAt:          formatTime(c.UpdatedAt),
	}
}

func toHoldingCallDTO(call application.HoldingCall) holdingCallDTO {
	return holdingCallDTO{
		StartTime: formatTime(call.StartTime),
		EndTime:   formatTime(call.EndTime),
		IsExpired: call.IsExpired,
		MeetingID: call.MeetingID,
		ThreadID:  call.ThreadID,
		JoinInfo:  call.JoinInfo,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
