package repository

import (
	"context"
	"time"

	"go-identity-gate/internal/model"
)

// UserStore is implemented by the file-backed and the PostgreSQL registries.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (model.UserRecord, error)
	FindByID(ctx context.Context, id string) (model.UserRecord, error)
	FindByExternalID(ctx context.Context, externalID string) (model.UserRecord, error)
	Create(ctx context.Context, u model.UserRecord) error
	Update(ctx context.Context, u model.UserRecord) error
	List(ctx context.Context) ([]model.UserRecord, error)
}

// SessionStore holds server-side session tokens.
type SessionStore interface {
	Create(ctx context.Context, s model.SessionRecord) error
	FindActive(ctx context.Context, token string, now time.Time) (model.SessionRecord, error)
	Revoke(ctx context.Context, token string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	CleanExpired(ctx context.Context, now time.Time) (int64, error)
}

var (
	_ UserStore    = (*FileUserRepository)(nil)
	_ UserStore    = (*UserRepository)(nil)
	_ SessionStore = (*MemorySessionRepository)(nil)
	_ SessionStore = (*SessionRepository)(nil)
)
