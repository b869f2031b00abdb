package http

import (
	"net/http"
	"strings"
)

type RouterConfig struct {
	Calendars    *CalendarHandler
	HoldingCalls *HoldingCallHandler
	Facilities   *FacilityHandler
	Middleware   []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	if cfg.Calendars != nil {
		mux.HandleFunc("/calendars", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Calendars.List(w, r)
			case http.MethodPost:
				cfg.Calendars.Create(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		})
		mux.HandleFunc("/calendars/", func(w http.ResponseWriter, r *http.Request) {
			id, ok := pathID(r, "/calendars/")
			if !ok {
				http.NotFound(w, r)
				return
			}
			r = r.WithContext(ContextWithPathID(r.Context(), id))
			switch r.Method {
			case http.MethodGet:
				cfg.Calendars.Get(w, r)
			case http.MethodPatch:
				cfg.Calendars.Update(w, r)
			case http.MethodDelete:
				cfg.Calendars.Delete(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPatch, http.MethodDelete)
			}
		})
	}

	if cfg.HoldingCalls != nil {
		mux.HandleFunc("/holdingCall/", func(w http.ResponseWriter, r *http.Request) {
			id, ok := pathID(r, "/holdingCall/")
			if !ok {
				http.NotFound(w, r)
				return
			}
			r = r.WithContext(ContextWithPathID(r.Context(), id))
			switch r.Method {
			case http.MethodPost:
				cfg.HoldingCalls.Create(w, r)
			case http.MethodDelete:
				cfg.HoldingCalls.Delete(w, r)
			default:
				methodNotAllowed(w, http.MethodPost, http.MethodDelete)
			}
		})
	}

	if cfg.Facilities != nil {
		mux.HandleFunc("/facilities", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Facilities.List(w, r)
			case http.MethodPost:
				cfg.Facilities.Create(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		})
		mux.HandleFunc("/facilities/", func(w http.ResponseWriter, r *http.Request) {
			id, ok := pathID(r, "/facilities/")
			if !ok {
				http.NotFound(w, r)
				return
			}
			r = r.WithContext(ContextWithPathID(r.Context(), id))
			switch r.Method {
			case http.MethodGet:
				cfg.Facilities.Get(w, r)
			case http.MethodPatch:
				cfg.Facilities.Update(w, r)
			case http.MethodDelete:
				cfg.Facilities.Delete(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPatch, http.MethodDelete)
			}
		})
	}

	var handler http.Handler = mux
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}
	return handler
}

// pathID returns the single segment following prefix.
func pathID(r *http.Request, prefix string) (string, bool) {
	id := strings.TrimPrefix(r.URL.Path, prefix)
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
