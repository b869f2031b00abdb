package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/hearing-scheduler/internal/testfixtures"
)

const testAPIKey = "s3cret-key"

var cheapParams = Argon2idParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}

func newTestAuthorizer(t *testing.T) *APIKeyAuthorizer {
	t.Helper()
	hash, err := HashAPIKey(testAPIKey, cheapParams)
	if err != nil {
		t.Fatalf("failed to hash key: %v", err)
	}
	authorizer, err := NewAPIKeyAuthorizer(hash)
	if err != nil {
		t.Fatalf("failed to build authorizer: %v", err)
	}
	return authorizer
}

func newTestServer(t *testing.T) (*testfixtures.Harness, http.Handler) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := testfixtures.NewHarness(t, testfixtures.WithLogger(logger))
	router := NewRouter(RouterConfig{
		Calendars:    NewCalendarHandler(h.Calendars, logger),
		HoldingCalls: NewHoldingCallHandler(h.HoldingCalls, logger),
		Facilities:   NewFacilityHandler(h.Facilities, logger),
		Middleware: []func(http.Handler) http.Handler{
			RequestLogger(logger),
			RequireAuthorization(newTestAuthorizer(t), logger),
		},
	})
	return h, router
}

func do(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func calendarBody(externalID string) map[string]any {
	return map[string]any{
		"externalCalendarId": externalID,
		"facilityId":         testfixtures.FacilityOneID,
		"departmentId":       testfixtures.DepartmentID,
		"focusUsers":         []string{testfixtures.JudgeEmail},
		"recorders":          []string{testfixtures.RecorderEmail},
	}
}

func TestCalendarHandlers(t *testing.T) {
	t.Run("create returns 201 with the lowercased id", func(t *testing.T) {
		_, router := newTestServer(t)

		rec := do(t, router, http.MethodPost, "/calendars", calendarBody("CAL-100"))
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		got := decode[calendarResponse](t, rec)
		if got.Calendar.ExternalCalendarID != "cal-100" {
			t.Fatalf("unexpected external id %q", got.Calendar.ExternalCalendarID)
		}
		if rec.Header().Get("X-Request-ID") == "" {
			t.Fatalf("expected request id header")
		}
	})

	t.Run("duplicate differing by case returns 409", func(t *testing.T) {
		_, router := newTestServer(t)
		do(t, router, http.MethodPost, "/calendars", calendarBody("CAL-100"))

		rec := do(t, router, http.MethodPost, "/calendars", calendarBody("cal-100"))
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
	})

	t.Run("unknown focus user returns 400 with field errors", func(t *testing.T) {
		_, router := newTestServer(t)
		body := calendarBody("CAL-100")
		body["focusUsers"] = []string{"ghost@example.com"}

		rec := do(t, router, http.MethodPost, "/calendars", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if _, ok := decode[errorResponse](t, rec).Errors["focusUsers"]; !ok {
			t.Fatalf("expected focusUsers error, got %s", rec.Body.String())
		}
	})

	t.Run("unknown recorder returns 404", func(t *testing.T) {
		_, router := newTestServer(t)
		body := calendarBody("CAL-100")
		body["recorders"] = []string{testfixtures.InactiveRecorderEmail}

		rec := do(t, router, http.MethodPost, "/calendars", body)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("malformed body returns 400", func(t *testing.T) {
		_, router := newTestServer(t)
		req := httptest.NewRequest(http.MethodPost, "/calendars", bytes.NewBufferString("{"))
		req.Header.Set("X-API-Key", testAPIKey)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("get, list, patch and delete", func(t *testing.T) {
		h, router := newTestServer(t)
		do(t, router, http.MethodPost, "/calendars", calendarBody("CAL-100"))

		if rec := do(t, router, http.MethodGet, "/calendars/Cal-100", nil); rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if rec := do(t, router, http.MethodGet, "/calendars/missing", nil); rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}

		rec := do(t, router, http.MethodGet, "/calendars?facilityId="+testfixtures.FacilityOneID, nil)
		if rec.Code != http.StatusOK || len(decode[listCalendarsResponse](t, rec).Calendars) != 1 {
			t.Fatalf("unexpected list response %d: %s", rec.Code, rec.Body.String())
		}

		rec = do(t, router, http.MethodPatch, "/calendars/cal-100", map[string]any{"facilityId": testfixtures.FacilityTwoID})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if got := decode[calendarResponse](t, rec).Calendar.FacilityID; got != testfixtures.FacilityTwoID {
			t.Fatalf("expected facility %s, got %s", testfixtures.FacilityTwoID, got)
		}
		members := h.Directory.TeamMembers(testfixtures.TeamID(testfixtures.FacilityTwoID))
		if len(members) != 2 {
			t.Fatalf("expected identities moved to the new team, got %v", members)
		}

		if rec := do(t, router, http.MethodDelete, "/calendars/CAL-100", nil); rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rec.Code)
		}
		if rec := do(t, router, http.MethodGet, "/calendars/CAL-100", nil); rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404 after delete, got %d", rec.Code)
		}
	})

	t.Run("unsupported method returns 405", func(t *testing.T) {
		_, router := newTestServer(t)
		rec := do(t, router, http.MethodPut, "/calendars/cal-100", nil)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected 405, got %d", rec.Code)
		}
	})
}

func TestHoldingCallHandlers(t *testing.T) {
	h, router := newTestServer(t)
	do(t, router, http.MethodPost, "/calendars", calendarBody("CAL-100"))
	start := h.Clock.Now().Add(time.Hour)

	rec := do(t, router, http.MethodPost, "/holdingCall/CAL-100", map[string]string{
		"startTime": start.Format(time.RFC3339),
		"endTime":   start.Add(time.Hour).Format(time.RFC3339),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	call := decode[holdingCallResponse](t, rec).HoldingCall
	if call.MeetingID == "" || call.IsExpired {
		t.Fatalf("unexpected holding call %+v", call)
	}

	rec = do(t, router, http.MethodPost, "/holdingCall/CAL-100", map[string]string{
		"startTime": h.Clock.Now().Add(-time.Hour).Format(time.RFC3339),
		"endTime":   start.Format(time.RFC3339),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for past start, got %d", rec.Code)
	}

	rec = do(t, router, http.MethodPost, "/holdingCall/CAL-100", map[string]string{"startTime": "soon"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unparsable times, got %d", rec.Code)
	}

	if rec := do(t, router, http.MethodDelete, "/holdingCall/CAL-100", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if h.Directory.HasMeeting(call.MeetingID) {
		t.Fatalf("expected meeting deleted")
	}
	if rec := do(t, router, http.MethodDelete, "/holdingCall/missing", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestFacilityHandlers(t *testing.T) {
	t.Run("create provisions a team", func(t *testing.T) {
		_, router := newTestServer(t)

		rec := do(t, router, http.MethodPost, "/facilities", map[string]any{"displayName": "Court 7"})
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		facility := decode[facilityResponse](t, rec).Facility
		if facility.Team.MSTeamID == "" || facility.State != "Active" {
			t.Fatalf("unexpected facility %+v", facility)
		}

		rec = do(t, router, http.MethodGet, "/facilities", nil)
		if rec.Code != http.StatusOK || len(decode[listFacilitiesResponse](t, rec).Facilities) != 3 {
			t.Fatalf("unexpected list response %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("delete of a referenced facility returns 409", func(t *testing.T) {
		_, router := newTestServer(t)
		do(t, router, http.MethodPost, "/calendars", calendarBody("CAL-100"))

		rec := do(t, router, http.MethodDelete, "/facilities/"+testfixtures.FacilityOneID, nil)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		if rec := do(t, router, http.MethodDelete, "/facilities/"+testfixtures.FacilityTwoID, nil); rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rec.Code)
		}
	})

	t.Run("patch renames and get returns the facility", func(t *testing.T) {
		_, router := newTestServer(t)

		rec := do(t, router, http.MethodPatch, "/facilities/"+testfixtures.FacilityOneID, map[string]any{"displayName": "Court One"})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		rec = do(t, router, http.MethodGet, "/facilities/"+testfixtures.FacilityOneID, nil)
		if got := decode[facilityResponse](t, rec).Facility.DisplayName; got != "Court One" {
			t.Fatalf("expected renamed facility, got %q", got)
		}
	})
}
