package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-identity-gate/internal/model"
	"go-identity-gate/internal/service"
)

type stubResolver struct {
	calls    int
	last     service.Credentials
	identity *model.Identity
	err      error
}

func (s *stubResolver) Resolve(_ context.Context, creds service.Credentials) service.Resolution {
	s.calls++
	s.last = creds
	if s.identity != nil {
		return service.Resolution{State: service.StateResolved, Identity: *s.identity}
	}
	err := s.err
	if err == nil {
		err = model.ErrUnauthenticated
	}
	return service.Resolution{State: service.StateRejected, Err: err}
}

type stubSessions struct {
	session model.SessionContext
}

func (s stubSessions) Load(*http.Request) model.SessionContext { return s.session }

func identityEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		_ = json.NewEncoder(w).Encode(identity)
	})
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) model.APIResponse {
	t.Helper()
	var body model.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestExtractCredentials(t *testing.T) {
	cases := []struct {
		name   string
		header string
		target string
		token  string
		source service.TokenSource
	}{
		{"bearer header", "Bearer abc", "/", "abc", service.SourceHeader},
		{"lowercase scheme", "bearer abc", "/", "abc", service.SourceHeader},
		{"uppercase scheme", "BEARER  abc ", "/", "abc", service.SourceHeader},
		{"header wins over query", "Bearer abc", "/?token=xyz", "abc", service.SourceHeader},
		{"query fallback", "", "/?token=xyz", "xyz", service.SourceQuery},
		{"basic scheme ignored", "Basic abc", "/?token=xyz", "xyz", service.SourceQuery},
		{"empty bearer", "Bearer ", "/", "", service.SourceNone},
		{"nothing", "", "/", "", service.SourceNone},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			token, source := ExtractCredentials(req)
			assert.Equal(t, tc.token, token)
			assert.Equal(t, tc.source, source)
		})
	}
}

func TestRequireAuthenticated(t *testing.T) {
	t.Run("rejects without identity", func(t *testing.T) {
		mw := NewAuthMiddleware(&stubResolver{}, stubSessions{}, 0)

		rec := httptest.NewRecorder()
		mw.RequireAuthenticated(identityEcho()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		body := decodeEnvelope(t, rec)
		assert.Equal(t, model.StatusError, body.Status)
		assert.Equal(t, "Unauthorized: Authentication required", body.Message)
	})

	t.Run("passes identity and session to the resolver chain", func(t *testing.T) {
		session := model.SessionContext{ID: "sid", Present: true, Data: model.AmbientSession{IsAuthenticated: true}}
		resolver := &stubResolver{identity: &model.Identity{ID: "u-1", Role: model.RoleUser, AuthProvider: model.ProviderJWT}}
		mw := NewAuthMiddleware(resolver, stubSessions{session: session}, 0)

		req := httptest.NewRequest(http.MethodGet, "/api/auth/me?token=q", nil)
		req.Header.Set("Authorization", "Bearer h")
		rec := httptest.NewRecorder()
		mw.RequireAuthenticated(identityEcho()).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "h", resolver.last.Token)
		assert.Equal(t, service.SourceHeader, resolver.last.Source)
		assert.Equal(t, session, resolver.last.Session)

		var identity model.Identity
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &identity))
		assert.Equal(t, "u-1", identity.ID)
	})

	t.Run("aborted resolution", func(t *testing.T) {
		mw := NewAuthMiddleware(&stubResolver{err: context.Canceled}, stubSessions{}, 0)

		rec := httptest.NewRecorder()
		mw.RequireAuthenticated(identityEcho()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestRequireRole(t *testing.T) {
	user := &model.Identity{ID: "u-1", Role: model.RoleUser}
	admin := &model.Identity{ID: "u-2", Role: model.RoleAdmin}

	serve := func(mw *AuthMiddleware) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		mw.RequireRole(model.RoleAdmin)(identityEcho()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users", nil))
		return rec
	}

	t.Run("mismatch keeps 401 by default", func(t *testing.T) {
		rec := serve(NewAuthMiddleware(&stubResolver{identity: user}, stubSessions{}, 0))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Unauthorized: Admin access required", decodeEnvelope(t, rec).Message)
	})

	t.Run("mismatch with 403 configured", func(t *testing.T) {
		rec := serve(NewAuthMiddleware(&stubResolver{identity: user}, stubSessions{}, http.StatusForbidden))
		require.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "Unauthorized: Admin access required", decodeEnvelope(t, rec).Message)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		rec := serve(NewAuthMiddleware(&stubResolver{}, stubSessions{}, http.StatusForbidden))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Unauthorized: Authentication required", decodeEnvelope(t, rec).Message)
	})

	t.Run("admin passes", func(t *testing.T) {
		rec := serve(NewAuthMiddleware(&stubResolver{identity: admin}, stubSessions{}, 0))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("resolves once when chained", func(t *testing.T) {
		resolver := &stubResolver{identity: admin}
		mw := NewAuthMiddleware(resolver, stubSessions{}, 0)

		rec := httptest.NewRecorder()
		chain := mw.RequireAuthenticated(mw.RequireRole(model.RoleAdmin)(identityEcho()))
		chain.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, resolver.calls)
	})
}

func TestSessionMiddleware(t *testing.T) {
	session := model.SessionContext{ID: "sid", Present: true}
	mw := NewAuthMiddleware(&stubResolver{}, stubSessions{session: session}, 0)

	var seen model.SessionContext
	handler := mw.Session(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = SessionFromContext(r.Context())
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, session, seen)
}
