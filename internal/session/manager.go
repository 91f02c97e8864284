package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"go-identity-gate/internal/model"
)

// Manager binds a Store to the session cookie.
type Manager struct {
	store      Store
	cookieName string
	ttl        time.Duration
	secure     bool
}

func NewManager(store Store, cookieName string, ttl time.Duration, secure bool) *Manager {
	return &Manager{store: store, cookieName: cookieName, ttl: ttl, secure: secure}
}

// Load returns the ambient session referenced by the request cookie. A missing
// cookie or unknown id yields an empty, not-present context. Store failures are
// logged and treated the same way.
func (m *Manager) Load(r *http.Request) model.SessionContext {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return model.SessionContext{}
	}

	data, err := m.store.Load(r.Context(), cookie.Value)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("ambient session lookup failed", "error", err)
		}
		return model.SessionContext{ID: cookie.Value}
	}

	return model.SessionContext{ID: cookie.Value, Data: data, Present: true}
}

// Establish stores data under a fresh id and sets the cookie. Any previous
// session referenced by current is removed so ids never survive a login.
func (m *Manager) Establish(ctx context.Context, w http.ResponseWriter, current model.SessionContext, data model.AmbientSession) (model.SessionContext, error) {
	if current.ID != "" {
		if err := m.store.Delete(ctx, current.ID); err != nil {
			slog.Warn("failed to drop previous ambient session", "error", err)
		}
	}

	id := uuid.NewString()
	if err := m.store.Save(ctx, id, data, m.ttl); err != nil {
		return model.SessionContext{}, fmt.Errorf("establish session: %w", err)
	}

	http.SetCookie(w, m.cookie(id, int(m.ttl.Seconds())))
	return model.SessionContext{ID: id, Data: data, Present: true}, nil
}

// Update rewrites the data of an existing session without rotating its id.
func (m *Manager) Update(ctx context.Context, current model.SessionContext, data model.AmbientSession) error {
	if current.ID == "" {
		return ErrNotFound
	}
	return m.store.Save(ctx, current.ID, data, m.ttl)
}

func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, current model.SessionContext) error {
	http.SetCookie(w, m.cookie("", -1))
	if current.ID == "" {
		return nil
	}
	return m.store.Delete(ctx, current.ID)
}

func (m *Manager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     m.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
