package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/splax/athlink/internal/gate"
	"github.com/splax/athlink/internal/repository"
)

type authContextKey string

type authInfo struct {
	UserID string
}

const contextKeyAuth authContextKey = "athlink-auth-info"

type contextSetter interface {
	SetContext(context.Context)
}

// requireAuth ensures the request has a valid bearer token before invoking the handler.
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, _, ok := r.ensureAuth(w, req)
		if !ok {
			return
		}
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx))
	}
}

// ensureAuth validates the Authorization header through the gate and
// enriches the context.
func (r *Router) ensureAuth(w http.ResponseWriter, req *http.Request) (context.Context, authInfo, bool) {
	token, err := gate.BearerToken(req.Header.Get("Authorization"))
	if err != nil {
		r.logger.Warn("authorization header invalid", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, "authentication required")
		return req.Context(), authInfo{}, false
	}
	userID, err := r.gate.Admit(req.Context(), token)
	if err != nil {
		r.rejectAuth(w, req, err)
		return req.Context(), authInfo{}, false
	}
	info := authInfo{UserID: userID}
	return withAuthInfo(req.Context(), info), info, true
}

func withAuthInfo(ctx context.Context, info authInfo) context.Context {
	return context.WithValue(ctx, contextKeyAuth, info)
}

func (r *Router) rejectAuth(w http.ResponseWriter, req *http.Request, err error) {
	if errors.Is(err, repository.ErrUnavailable) {
		r.logger.Error("credential check unavailable", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusServiceUnavailable, "authentication temporarily unavailable")
		return
	}
	r.logger.Warn("token validation failed", "error", err, "path", req.URL.Path)
	writeError(w, http.StatusUnauthorized, "authentication failed")
}

// authInfoFromContext extracts auth metadata from context.
func authInfoFromContext(ctx context.Context) (authInfo, bool) {
	value := ctx.Value(contextKeyAuth)
	if value == nil {
		return authInfo{}, false
	}
	info, ok := value.(authInfo)
	return info, ok
}

func mustUser(req *http.Request) string {
	info, _ := authInfoFromContext(req.Context())
	return info.UserID
}
