package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/hearing-scheduler/internal/application"
)

type facilityService interface {
	Create(ctx context.Context, input application.FacilityInput) (application.Facility, error)
	Get(ctx context.Context, id string) (application.Facility, error)
	List(ctx context.Context) ([]application.Facility, error)
	Update(ctx context.Context, id string, patch application.FacilityPatch) (application.Facility, error)
	Delete(ctx context.Context, id string) error
}

type FacilityHandler struct {
	service   facilityService
	responder responder
	logger    *slog.Logger
}

func NewFacilityHandler(service facilityService, logger *slog.Logger) *FacilityHandler {
	base := defaultLogger(logger)
	return &FacilityHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *FacilityHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "FacilityHandler", operation, attrs...)
}

func (h *FacilityHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req application.FacilityInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode facility request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create", "display_name", req.DisplayName)
	facility, err := h.service.Create(r.Context(), req)
	if err != nil {
		logger.ErrorContext(r.Context(), "facility creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("facility_id", facility.ID).InfoContext(r.Context(), "facility created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, facilityResponse{Facility: facility})
}

func (h *FacilityHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "Get")
	if !ok {
		return
	}

	facility, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.log(r.Context(), "Get", "facility_id", id).ErrorContext(r.Context(), "facility lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, facilityResponse{Facility: facility})
}

func (h *FacilityHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	facilities, err := h.service.List(r.Context())
	if err != nil {
		h.log(r.Context(), "List").ErrorContext(r.Context(), "facility list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	if facilities == nil {
		facilities = []application.Facility{}
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listFacilitiesResponse{Facilities: facilities})
}

func (h *FacilityHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "Update")
	if !ok {
		return
	}

	var patch application.FacilityPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.log(r.Context(), "Update", "facility_id", id, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode facility update", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Update", "facility_id", id)
	facility, err := h.service.Update(r.Context(), id, patch)
	if err != nil {
		logger.ErrorContext(r.Context(), "facility update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "facility updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, facilityResponse{Facility: facility})
}

func (h *FacilityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "Delete")
	if !ok {
		return
	}

	logger := h.log(r.Context(), "Delete", "facility_id", id)
	if err := h.service.Delete(r.Context(), id); err != nil {
		logger.ErrorContext(r.Context(), "facility delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "facility deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *FacilityHandler) pathID(w http.ResponseWriter, r *http.Request, operation string) (string, bool) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return "", false
	}
	id, ok := PathIDFromContext(r.Context())
	if !ok || strings.TrimSpace(id) == "" {
		h.log(r.Context(), operation, "error_kind", "bad_request").ErrorContext(r.Context(), "missing facility id")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingPathID)
		return "", false
	}
	return id, true
}

type facilityResponse struct {
	Facility application.Facility `json:"facility"`
}

type listFacilitiesResponse struct {
	Facilities []application.Facility `json:"facilities"`
}
