package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go-identity-gate/internal/model"
)

func TestManagerLifecycle(t *testing.T) {
	store := NewMemoryStore()
	manager := NewManager(store, "sid", time.Hour, true)
	ctx := context.Background()

	t.Run("no cookie means no session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		sc := manager.Load(req)
		require.False(t, sc.Present)
		require.False(t, sc.Authenticated())
	})

	t.Run("unknown cookie is not present", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "sid", Value: "ghost"})
		sc := manager.Load(req)
		require.False(t, sc.Present)
		require.Equal(t, "ghost", sc.ID)
	})

	t.Run("establish rotates id and sets cookie", func(t *testing.T) {
		rec := httptest.NewRecorder()
		first, err := manager.Establish(ctx, rec, model.SessionContext{}, model.AmbientSession{OAuthState: "s"})
		require.NoError(t, err)

		rec = httptest.NewRecorder()
		second, err := manager.Establish(ctx, rec, first, sample)
		require.NoError(t, err)
		require.NotEqual(t, first.ID, second.ID)

		_, err = store.Load(ctx, first.ID)
		require.ErrorIs(t, err, ErrNotFound)

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		require.Equal(t, "sid", cookies[0].Name)
		require.Equal(t, second.ID, cookies[0].Value)
		require.True(t, cookies[0].HttpOnly)
		require.True(t, cookies[0].Secure)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(cookies[0])
		loaded := manager.Load(req)
		require.True(t, loaded.Authenticated())
		require.Equal(t, sample, loaded.Data)

		require.NoError(t, manager.Update(ctx, loaded, model.AmbientSession{}))
		require.False(t, manager.Load(req).Authenticated())

		rec = httptest.NewRecorder()
		require.NoError(t, manager.Destroy(ctx, rec, loaded))
		require.False(t, manager.Load(req).Present)
		cleared := rec.Result().Cookies()
		require.Len(t, cleared, 1)
		require.Equal(t, -1, cleared[0].MaxAge)
	})
}
