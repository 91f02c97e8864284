package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"go-identity-gate/internal/middleware"
	"go-identity-gate/internal/model"
	"go-identity-gate/internal/service"
	"go-identity-gate/internal/session"
	"go-identity-gate/pkg/apierror"
)

type AuthHandler struct {
	service  *service.AuthService
	sessions *session.Manager
}

func NewAuthHandler(service *service.AuthService, sessions *session.Manager) *AuthHandler {
	return &AuthHandler{service: service, sessions: sessions}
}

// Submit is the single form-style entry point: the action field picks
// register, login or logout.
func (h *AuthHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var payload model.AuthRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	switch strings.ToLower(strings.TrimSpace(payload.Action)) {
	case model.ActionRegister:
		h.register(w, r, payload)
	case model.ActionLogin:
		h.login(w, r, payload)
	case model.ActionLogout:
		h.logout(w, r)
	default:
		writeError(w, apierror.Wrap(model.ErrInvalidInput, "BAD_REQUEST", "Invalid action", http.StatusBadRequest).WithDetails(payload.Action))
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload model.AuthRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}
	h.register(w, r, payload)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload model.AuthRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}
	h.login(w, r, payload)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.logout(w, r)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, model.ErrUnauthenticated)
		return
	}

	writeSuccess(w, http.StatusOK, "", nil, identity)
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request, payload model.AuthRequest) {
	user, err := h.service.Register(r.Context(), payload.Email, payload.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.sessions.Establish(r.Context(), w, h.currentSession(r), service.AmbientFor(user, model.ProviderEmail)); err != nil {
		writeError(w, err)
		return
	}

	public := user.Public()
	writeSuccess(w, http.StatusCreated, "User registered successfully", &public, nil)
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request, payload model.AuthRequest) {
	result, err := h.service.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		slog.Warn("login failed", "client_ip", clientIP(r))
		writeError(w, err)
		return
	}

	if _, err := h.sessions.Establish(r.Context(), w, h.currentSession(r), service.AmbientFor(result.User, model.ProviderEmail)); err != nil {
		writeError(w, err)
		return
	}

	public := result.User.Public()
	writeSuccess(w, http.StatusOK, "Login successful", &public, result.Tokens)
}

func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	current := h.currentSession(r)
	token, _ := middleware.ExtractCredentials(r)

	h.service.Logout(r.Context(), token, actorID(r))
	if err := h.sessions.Destroy(r.Context(), w, current); err != nil {
		slog.Warn("failed to destroy ambient session", "error", err)
	}

	writeSuccess(w, http.StatusOK, "Logged out", nil, nil)
}

func (h *AuthHandler) currentSession(r *http.Request) model.SessionContext {
	if current, ok := middleware.SessionFromContext(r.Context()); ok {
		return current
	}
	return h.sessions.Load(r)
}
