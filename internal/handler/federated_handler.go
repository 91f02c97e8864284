package handler

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"go-identity-gate/internal/middleware"
	"go-identity-gate/internal/model"
	"go-identity-gate/internal/service"
	"go-identity-gate/internal/session"
	"go-identity-gate/pkg/apierror"
)

type FederatedHandler struct {
	service  *service.FederatedService
	sessions *session.Manager
}

// NewFederatedHandler accepts a nil service; the routes then answer 404.
func NewFederatedHandler(service *service.FederatedService, sessions *session.Manager) *FederatedHandler {
	return &FederatedHandler{service: service, sessions: sessions}
}

func (h *FederatedHandler) Start(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeError(w, notConfigured())
		return
	}

	state, err := h.service.StateToken()
	if err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.sessions.Establish(r.Context(), w, h.currentSession(r), model.AmbientSession{OAuthState: state}); err != nil {
		writeError(w, err)
		return
	}

	http.Redirect(w, r, h.service.AuthURL(state), http.StatusFound)
}

func (h *FederatedHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeError(w, notConfigured())
		return
	}

	query := r.URL.Query()
	if providerErr := query.Get("error"); providerErr != "" {
		writeError(w, apierror.Wrap(model.ErrUnauthenticated, "FEDERATED_LOGIN_FAILED", "Provider rejected the login", http.StatusUnauthorized).WithDetails(providerErr))
		return
	}

	current := h.currentSession(r)
	expected := current.Data.OAuthState
	got := query.Get("state")
	if !current.Present || expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(got)) != 1 {
		slog.Warn("federated callback with unknown state", "client_ip", clientIP(r))
		writeError(w, apierror.Wrap(model.ErrUnauthenticated, "INVALID_STATE", "Invalid OAuth state", http.StatusBadRequest))
		return
	}

	user, err := h.service.Complete(r.Context(), query.Get("code"))
	if err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.sessions.Establish(r.Context(), w, current, service.AmbientFor(user, model.ProviderFederated)); err != nil {
		writeError(w, err)
		return
	}

	public := user.Public()
	writeSuccess(w, http.StatusOK, "Login successful", &public, nil)
}

func (h *FederatedHandler) currentSession(r *http.Request) model.SessionContext {
	if current, ok := middleware.SessionFromContext(r.Context()); ok {
		return current
	}
	return h.sessions.Load(r)
}

func notConfigured() error {
	return apierror.New("NOT_FOUND", "Federated login is not configured", "", http.StatusNotFound)
}
