package httpx

import (
	"net/http"

	"github.com/splax/athlink/internal/service/auth"
)

func (r *Router) handleSignup(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload auth.SignupInput
	if !decodeJSON(w, req, &payload) {
		return
	}
	session, err := r.auth.Signup(req.Context(), payload)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, req, &payload) {
		return
	}
	session, err := r.auth.Login(req.Context(), payload.Email, payload.Password)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}
