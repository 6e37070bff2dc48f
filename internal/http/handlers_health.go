package httpx

import (
	"net/http"
	"strings"
	"time"

	"github.com/splax/athlink/internal/service/health"
)

func (r *Router) handleHealthIngest(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload health.SampleInput
	if !decodeJSON(w, req, &payload) {
		return
	}
	result, err := r.health.Ingest(req.Context(), mustUser(req), payload)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// handleHealthViews serves the read endpoints under /health/.
func (r *Router) handleHealthViews(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	userID := mustUser(req)
	switch strings.Trim(strings.TrimPrefix(req.URL.Path, "/health/"), "/") {
	case "current":
		snap, err := r.health.Current(req.Context(), userID)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	case "history":
		q := health.HistoryQuery{
			Page:  queryInt(req, "page", 1),
			Limit: queryInt(req, "limit", 20),
		}
		var ok bool
		if q.From, ok = parseDateParam(w, req, "from"); !ok {
			return
		}
		if q.To, ok = parseDateParam(w, req, "to"); !ok {
			return
		}
		page, err := r.health.History(req.Context(), userID, q)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	case "stats":
		stats, err := r.health.Stats(req.Context(), userID, req.URL.Query().Get("period"))
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	case "alerts":
		alerts, err := r.health.Alerts(req.Context(), userID, queryInt(req, "limit", 20))
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
	default:
		r.notFound(w)
	}
}

// parseDateParam accepts RFC 3339 timestamps or plain dates.
func parseDateParam(w http.ResponseWriter, req *http.Request, key string) (time.Time, bool) {
	raw := strings.TrimSpace(req.URL.Query().Get(key))
	if raw == "" {
		return time.Time{}, true
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	writeError(w, http.StatusBadRequest, "invalid "+key+" date")
	return time.Time{}, false
}
