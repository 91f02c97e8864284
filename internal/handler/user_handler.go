package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-identity-gate/internal/middleware"
	"go-identity-gate/internal/model"
	"go-identity-gate/internal/service"
	"go-identity-gate/internal/session"
	"go-identity-gate/pkg/apierror"
)

type UserHandler struct {
	registry *service.RegistryService
	auth     *service.AuthService
	sessions *session.Manager
}

func NewUserHandler(registry *service.RegistryService, auth *service.AuthService, sessions *session.Manager) *UserHandler {
	return &UserHandler{registry: registry, auth: auth, sessions: sessions}
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.registry.ListUsers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "", nil, model.UserList{Users: users})
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		writeError(w, apierror.New("BAD_REQUEST", "user id is required", "id", http.StatusBadRequest))
		return
	}

	user, err := h.registry.GetUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	public := user.Public()
	writeSuccess(w, http.StatusOK, "", &public, nil)
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		writeError(w, apierror.New("BAD_REQUEST", "user id is required", "id", http.StatusBadRequest))
		return
	}

	var payload model.UpdateUserRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}
	if payload.Name == nil && payload.Role == nil {
		writeError(w, apierror.New("BAD_REQUEST", "nothing to update", "name, role", http.StatusBadRequest))
		return
	}

	user, err := h.auth.UpdateUser(r.Context(), actorID(r), userID, payload.Name, payload.Role)
	if err != nil {
		writeError(w, err)
		return
	}

	h.refreshOwnSession(r, user)

	public := user.Public()
	writeSuccess(w, http.StatusOK, "User updated", &public, nil)
}

// refreshOwnSession rewrites the caller's ambient session when the updated
// account is the one it belongs to.
func (h *UserHandler) refreshOwnSession(r *http.Request, user model.UserRecord) {
	current, ok := middleware.SessionFromContext(r.Context())
	if !ok || !current.Authenticated() {
		return
	}

	refreshed := service.AmbientFor(user, current.Data.AuthProvider)
	if refreshed.UserID != current.Data.UserID {
		return
	}
	if err := h.sessions.Update(r.Context(), current, refreshed); err != nil {
		slog.Warn("failed to refresh ambient session", "user_id", user.ID, "error", err)
	}
}
