package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/splax/athlink/internal/gate"
	"github.com/splax/athlink/internal/repository"
	"github.com/splax/athlink/internal/service/auth"
	"github.com/splax/athlink/internal/service/health"
	"github.com/splax/athlink/internal/service/post"
	"github.com/splax/athlink/internal/service/profile"
)

const maxBodyBytes = 1 << 20

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError sends an error message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads a bounded JSON body into dst, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, req *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(req.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, gate.ErrAuthentication), errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, post.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, post.ErrLikeRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, repository.ErrConflict),
		errors.Is(err, auth.ErrIdentityExists),
		errors.Is(err, post.ErrAlreadyLiked),
		errors.Is(err, post.ErrNotLiked):
		return http.StatusConflict
	case errors.Is(err, auth.ErrInvalidInput),
		errors.Is(err, profile.ErrInvalidUpdate),
		errors.Is(err, profile.ErrSelfFollow),
		errors.Is(err, post.ErrInvalidPost),
		errors.Is(err, health.ErrInvalidSample):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError reports err with the mapped status. Internal failures
// are logged and hidden from the client.
func (r *Router) writeServiceError(w http.ResponseWriter, req *http.Request, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusInternalServerError:
		r.logger.Error("request failed", "path", req.URL.Path, "error", err)
		writeError(w, status, "internal server error")
	case http.StatusServiceUnavailable:
		r.logger.Error("store unavailable", "path", req.URL.Path, "error", err)
		writeError(w, status, "service temporarily unavailable")
	case http.StatusNotFound:
		writeError(w, status, "not found")
	default:
		writeError(w, status, publicMessage(err))
	}
}

// publicMessage strips the package prefix from a sentinel error chain.
func publicMessage(err error) string {
	msg := err.Error()
	if idx := strings.Index(msg, ": "); idx > 0 && !strings.Contains(msg[:idx], " ") {
		return msg[idx+2:]
	}
	return msg
}

func queryInt(req *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(req.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
