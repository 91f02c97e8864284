package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"go-identity-gate/internal/model"
	"go-identity-gate/internal/repository"
)

type fixture struct {
	clock    *time.Time
	users    *repository.FileUserRepository
	sessions *repository.MemorySessionRepository
	registry *RegistryService
	tokens   *TokenService
	resolver *Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := baseTime
	users, err := repository.NewFileUserRepository(filepath.Join(t.TempDir(), "users.json"))
	require.NoError(t, err)

	registry, err := NewRegistryService(users, bcrypt.MinCost)
	require.NoError(t, err)
	registry.now = func() time.Time { return clock }

	tokens := newTestTokenService(t, &clock)
	sessions := repository.NewMemorySessionRepository()

	resolver := NewResolver(tokens, users, sessions)
	resolver.now = func() time.Time { return clock }

	return &fixture{
		clock:    &clock,
		users:    users,
		sessions: sessions,
		registry: registry,
		tokens:   tokens,
		resolver: resolver,
	}
}

func (f *fixture) register(t *testing.T, email string, role model.Role) model.UserRecord {
	t.Helper()

	user, err := f.registry.Register(context.Background(), email, "password123")
	require.NoError(t, err)

	if role != model.RoleUser {
		r := string(role)
		user, err = f.registry.UpdateProfile(context.Background(), user.ID, nil, &r)
		require.NoError(t, err)
	}
	return user
}

type mockUserStore struct {
	mock.Mock
}

func (m *mockUserStore) FindByEmail(ctx context.Context, email string) (model.UserRecord, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(model.UserRecord), args.Error(1)
}

func (m *mockUserStore) FindByID(ctx context.Context, id string) (model.UserRecord, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.UserRecord), args.Error(1)
}

func (m *mockUserStore) FindByExternalID(ctx context.Context, externalID string) (model.UserRecord, error) {
	args := m.Called(ctx, externalID)
	return args.Get(0).(model.UserRecord), args.Error(1)
}

func (m *mockUserStore) Create(ctx context.Context, u model.UserRecord) error {
	return m.Called(ctx, u).Error(0)
}

func (m *mockUserStore) Update(ctx context.Context, u model.UserRecord) error {
	return m.Called(ctx, u).Error(0)
}

func (m *mockUserStore) List(ctx context.Context) ([]model.UserRecord, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.UserRecord), args.Error(1)
}
