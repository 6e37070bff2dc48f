package httpx

import (
	"net/http"
	"strings"

	"github.com/splax/athlink/internal/domain"
)

func (r *Router) handleOwnProfile(w http.ResponseWriter, req *http.Request) {
	userID := mustUser(req)
	switch req.Method {
	case http.MethodGet:
		p, err := r.profiles.Get(req.Context(), userID)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	case http.MethodPatch, http.MethodPut:
		var update domain.ProfileUpdate
		if !decodeJSON(w, req, &update) {
			return
		}
		p, err := r.profiles.Update(req.Context(), userID, update)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	case http.MethodDelete:
		if err := r.profiles.Delete(req.Context(), userID); err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "User deleted successfully"})
	default:
		r.methodNotAllowed(w)
	}
}

// handleProfiles serves /profiles/{id} and /profiles/{id}/follow.
func (r *Router) handleProfiles(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(req.URL.Path, "/profiles/"), "/")
	parts := strings.Split(trimmed, "/")
	if trimmed == "" || len(parts) > 2 {
		r.notFound(w)
		return
	}
	targetID := parts[0]
	if len(parts) == 1 {
		if req.Method != http.MethodGet {
			r.methodNotAllowed(w)
			return
		}
		p, err := r.profiles.Get(req.Context(), targetID)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
		return
	}
	if parts[1] != "follow" {
		r.notFound(w)
		return
	}
	userID := mustUser(req)
	switch req.Method {
	case http.MethodPost:
		if err := r.profiles.Follow(req.Context(), userID, targetID); err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "following"})
	case http.MethodDelete:
		if err := r.profiles.Unfollow(req.Context(), userID, targetID); err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "unfollowed"})
	default:
		r.methodNotAllowed(w)
	}
}
