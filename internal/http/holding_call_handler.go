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

type holdingCallService interface {
	Create(ctx context.Context, externalCalendarID string, start, end time.Time) (application.HoldingCall, error)
	ExpireActive(ctx context.Context, externalCalendarID string) (application.Calendar, error)
}

type HoldingCallHandler struct {
	service   holdingCallService
	responder responder
	logger    *slog.Logger
}

func NewHoldingCallHandler(service holdingCallService, logger *slog.Logger) *HoldingCallHandler {
	base := defaultLogger(logger)
	return &HoldingCallHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *HoldingCallHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "HoldingCallHandler", operation, attrs...)
}

// Create opens a holding call, expiring the active one.
func (h *HoldingCallHandler) Create(w http.ResponseWriter, r *http.Request) {
	externalID, ok := h.pathID(w, r, "Create")
	if !ok {
		return
	}

	var req holdingCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "external_calendar_id", externalID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode holding call request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	start, end, vErr := req.times()
	if vErr != nil {
		h.responder.handleServiceError(r.Context(), w, vErr)
		return
	}

	logger := h.log(r.Context(), "Create", "external_calendar_id", externalID)
	call, err := h.service.Create(r.Context(), externalID, start, end)
	if err != nil {
		logger.ErrorContext(r.Context(), "holding call creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("meeting_id", call.MeetingID).InfoContext(r.Context(), "holding call created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, holdingCallResponse{HoldingCall: toHoldingCallDTO(call)})
}

// Delete expires the active holding call.
func (h *HoldingCallHandler) Delete(w http.ResponseWriter, r *http.Request) {
	externalID, ok := h.pathID(w, r, "Delete")
	if !ok {
		return
	}

	logger := h.log(r.Context(), "Delete", "external_calendar_id", externalID)
	if _, err := h.service.ExpireActive(r.Context(), externalID); err != nil {
		logger.ErrorContext(r.Context(), "holding call expiry failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "holding calls expired")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *HoldingCallHandler) pathID(w http.ResponseWriter, r *http.Request, operation string) (string, bool) {
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

type holdingCallRequest struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

func (r holdingCallRequest) times() (time.Time, time.Time, *application.ValidationError) {
	vErr := &application.ValidationError{FieldErrors: map[string]string{}}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(r.StartTime))
	if err != nil {
		vErr.FieldErrors["startTime"] = "startTime must be an RFC 3339 timestamp"
	}
	end, err := time.Parse(time.RFC3339, strings.TrimSpace(r.EndTime))
	if err != nil {
		vErr.FieldErrors["endTime"] = "endTime must be an RFC 3339 timestamp"
	}
	if vErr.HasErrors() {
		return time.Time{}, time.Time{}, vErr
	}
	return start, end, nil
}

type holdingCallResponse struct {
	HoldingCall holdingCallDTO `json:"holdingCall"`
}
