package handler

import (
	"net/http"

	"go-identity-gate/internal/middleware"
	"go-identity-gate/internal/service"
	"go-identity-gate/internal/session"
)

type ProfileHandler struct {
	service  *service.AuthService
	sessions *session.Manager
}

func NewProfileHandler(service *service.AuthService, sessions *session.Manager) *ProfileHandler {
	return &ProfileHandler{service: service, sessions: sessions}
}

// Get never fails: an anonymous caller gets {"authenticated": false}.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	current, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		current = h.sessions.Load(r)
	}

	writeJSON(w, http.StatusOK, h.service.Profile(r.Context(), current))
}
