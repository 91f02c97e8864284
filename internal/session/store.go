// Package session keeps ambient per-browser state behind an opaque cookie.
package session

import (
	"context"
	"errors"
	"time"

	"go-identity-gate/internal/model"
)

var ErrNotFound = errors.New("ambient session not found")

// Store persists ambient sessions by id. Implementations must treat an
// expired entry as missing.
type Store interface {
	Load(ctx context.Context, id string) (model.AmbientSession, error)
	Save(ctx context.Context, id string, data model.AmbientSession, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}
