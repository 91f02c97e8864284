package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"go-identity-gate/internal/model"
)

func newRecord(email string) model.UserRecord {
	return model.UserRecord{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: "hash",
		DisplayName:  model.DisplayNameFromEmail(email),
		Role:         model.RoleUser,
		AuthProvider: model.ProviderEmail,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestFileUserRepository(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("starts empty when file is missing", func(t *testing.T) {
		repo, err := NewFileUserRepository(filepath.Join(t.TempDir(), "nested", "users.json"))
		require.NoError(t, err)

		users, err := repo.List(ctx)
		require.NoError(t, err)
		require.Empty(t, users)
	})

	t.Run("persists records across reloads", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "users.json")
		repo, err := NewFileUserRepository(path)
		require.NoError(t, err)

		rec := newRecord("a@x.com")
		rec.ExternalID = "ext-1"
		require.NoError(t, repo.Create(ctx, rec))

		reloaded, err := NewFileUserRepository(path)
		require.NoError(t, err)

		byEmail, err := reloaded.FindByEmail(ctx, "a@x.com")
		require.NoError(t, err)
		require.Equal(t, rec.ID, byEmail.ID)

		byID, err := reloaded.FindByID(ctx, rec.ID)
		require.NoError(t, err)
		require.Equal(t, "a", byID.DisplayName)

		byExt, err := reloaded.FindByExternalID(ctx, "ext-1")
		require.NoError(t, err)
		require.Equal(t, rec.ID, byExt.ID)

		info, err := os.Stat(path)
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})

	t.Run("email lookups are case sensitive", func(t *testing.T) {
		repo, err := NewFileUserRepository(filepath.Join(t.TempDir(), "users.json"))
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, newRecord("a@x.com")))

		_, err = repo.FindByEmail(ctx, "A@x.com")
		require.ErrorIs(t, err, model.ErrUserNotFound)
		require.NoError(t, repo.Create(ctx, newRecord("A@x.com")))
	})

	t.Run("rejects duplicate email", func(t *testing.T) {
		repo, err := NewFileUserRepository(filepath.Join(t.TempDir(), "users.json"))
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, newRecord("a@x.com")))
		require.ErrorIs(t, repo.Create(ctx, newRecord("a@x.com")), model.ErrDuplicateUser)
	})

	t.Run("update keeps immutable fields", func(t *testing.T) {
		repo, err := NewFileUserRepository(filepath.Join(t.TempDir(), "users.json"))
		require.NoError(t, err)
		rec := newRecord("a@x.com")
		require.NoError(t, repo.Create(ctx, rec))

		changed := rec
		changed.Email = "other@x.com"
		changed.DisplayName = "Alice"
		changed.Role = model.RoleAdmin
		changed.PasswordHash = ""
		require.NoError(t, repo.Update(ctx, changed))

		got, err := repo.FindByID(ctx, rec.ID)
		require.NoError(t, err)
		require.Equal(t, "a@x.com", got.Email)
		require.Equal(t, "Alice", got.DisplayName)
		require.Equal(t, model.RoleAdmin, got.Role)
		require.Equal(t, "hash", got.PasswordHash)

		missing := newRecord("b@x.com")
		require.ErrorIs(t, repo.Update(ctx, missing), model.ErrUserNotFound)
	})

	t.Run("concurrent registrations of one email yield a single record", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "users.json")
		repo, err := NewFileUserRepository(path)
		require.NoError(t, err)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
		)
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := repo.Create(ctx, newRecord("same@x.com")); err == nil {
					mu.Lock()
					successes++
					mu.Unlock()
				}
			}()
		}
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_ = repo.Create(ctx, newRecord(fmt.Sprintf("u%d@x.com", i)))
			}(i)
		}
		wg.Wait()

		require.Equal(t, 1, successes)

		reloaded, err := NewFileUserRepository(path)
		require.NoError(t, err)
		users, err := reloaded.List(ctx)
		require.NoError(t, err)
		require.Len(t, users, 9)
	})

	t.Run("rejects corrupt file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "users.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

		_, err := NewFileUserRepository(path)
		require.Error(t, err)
	})
}

func TestMemorySessionRepository(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	repo := NewMemorySessionRepository()
	require.NoError(t, repo.Create(ctx, model.SessionRecord{Token: "live", UserID: "u1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, repo.Create(ctx, model.SessionRecord{Token: "dead", UserID: "u1", CreatedAt: now, ExpiresAt: now}))
	require.NoError(t, repo.Create(ctx, model.SessionRecord{Token: "other", UserID: "u2", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}))

	got, err := repo.FindActive(ctx, "live", now)
	require.NoError(t, err)
	require.Equal(t, "u1", got.UserID)

	_, err = repo.FindActive(ctx, "dead", now)
	require.ErrorIs(t, err, model.ErrSessionNotFound)

	removed, err := repo.CleanExpired(ctx, now)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	require.NoError(t, repo.RevokeAllForUser(ctx, "u1"))
	_, err = repo.FindActive(ctx, "live", now)
	require.ErrorIs(t, err, model.ErrSessionNotFound)

	_, err = repo.FindActive(ctx, "other", now)
	require.NoError(t, err)
	require.NoError(t, repo.Revoke(ctx, "other"))
	_, err = repo.FindActive(ctx, "other", now)
	require.ErrorIs(t, err, model.ErrSessionNotFound)
}
