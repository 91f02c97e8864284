package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"go-identity-gate/internal/model"
	"go-identity-gate/internal/service"
)

type identityResolver interface {
	Resolve(ctx context.Context, creds service.Credentials) service.Resolution
}

type sessionLoader interface {
	Load(r *http.Request) model.SessionContext
}

type contextKey string

const (
	identityContextKey contextKey = "identity"
	sessionContextKey  contextKey = "ambient_session"
)

const msgAuthRequired = "Unauthorized: Authentication required"

type AuthMiddleware struct {
	resolver        identityResolver
	sessions        sessionLoader
	forbiddenStatus int
}

// NewAuthMiddleware builds the role gate. forbiddenStatus is the status sent
// on a role mismatch; anything other than 403 falls back to 401.
func NewAuthMiddleware(resolver identityResolver, sessions sessionLoader, forbiddenStatus int) *AuthMiddleware {
	if forbiddenStatus != http.StatusForbidden {
		forbiddenStatus = http.StatusUnauthorized
	}
	return &AuthMiddleware{resolver: resolver, sessions: sessions, forbiddenStatus: forbiddenStatus}
}

// ExtractCredentials reads the bearer token from the Authorization header,
// falling back to the token query parameter.
func ExtractCredentials(r *http.Request) (string, service.TokenSource) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		if token := strings.TrimSpace(header[7:]); token != "" {
			return token, service.SourceHeader
		}
	}

	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token, service.SourceQuery
	}

	return "", service.SourceNone
}

// Session loads the ambient session once per request and keeps it in the
// request context for the handlers and gates further down the chain.
func (m *AuthMiddleware) Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := SessionFromContext(r.Context()); ok || m.sessions == nil {
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), sessionContextKey, m.sessions.Load(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r, ok := m.authenticate(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole admits only identities holding role. It resolves the request
// itself when no earlier gate has done so.
func (m *AuthMiddleware) RequireRole(role model.Role) func(http.Handler) http.Handler {
	message := "Unauthorized: " + titleCase(string(role)) + " access required"

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, ok := m.authenticate(w, r)
			if !ok {
				return
			}

			identity, _ := IdentityFromContext(r.Context())
			if identity.Role != role {
				slog.Warn("role gate rejected request", "user_id", identity.ID, "role", identity.Role, "required", role)
				writeJSON(w, m.forbiddenStatus, model.APIResponse{Status: model.StatusError, Code: "FORBIDDEN", Message: message})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (m *AuthMiddleware) authenticate(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
	if _, ok := IdentityFromContext(r.Context()); ok {
		return r, true
	}

	session, ok := SessionFromContext(r.Context())
	if !ok && m.sessions != nil {
		session = m.sessions.Load(r)
	}

	token, source := ExtractCredentials(r)
	res := m.resolver.Resolve(r.Context(), service.Credentials{Token: token, Source: source, Session: session})

	if res.State != service.StateResolved {
		if res.Err != nil && !errors.Is(res.Err, model.ErrUnauthenticated) {
			slog.Warn("credential resolution aborted", "error", res.Err)
			writeJSON(w, http.StatusServiceUnavailable, model.APIResponse{
				Status: model.StatusError, Code: "UNAVAILABLE", Message: "Authentication unavailable",
			})
			return r, false
		}
		writeJSON(w, http.StatusUnauthorized, model.APIResponse{Status: model.StatusError, Code: "UNAUTHORIZED", Message: msgAuthRequired})
		return r, false
	}

	ctx := context.WithValue(r.Context(), identityContextKey, res.Identity)
	ctx = context.WithValue(ctx, sessionContextKey, session)
	return r.WithContext(ctx), true
}

func IdentityFromContext(ctx context.Context) (model.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(model.Identity)
	return identity, ok
}

func SessionFromContext(ctx context.Context) (model.SessionContext, bool) {
	session, ok := ctx.Value(sessionContextKey).(model.SessionContext)
	return session, ok
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
