package repository

import (
	"context"
	"sync"
	"time"

	"go-identity-gate/internal/model"
)

// MemorySessionRepository holds session tokens in process. Used when no
// database is configured.
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]model.SessionRecord
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{sessions: map[string]model.SessionRecord{}}
}

func (r *MemorySessionRepository) Create(_ context.Context, s model.SessionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.Token] = s
	return nil
}

func (r *MemorySessionRepository) FindActive(_ context.Context, token string, now time.Time) (model.SessionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[token]
	if !ok || s.ExpiredAt(now) {
		return model.SessionRecord{}, model.ErrSessionNotFound
	}
	return s, nil
}

func (r *MemorySessionRepository) Revoke(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, token)
	return nil
}

func (r *MemorySessionRepository) RevokeAllForUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for token, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, token)
		}
	}
	return nil
}

func (r *MemorySessionRepository) CleanExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for token, s := range r.sessions {
		if s.ExpiredAt(now) {
			delete(r.sessions, token)
			removed++
		}
	}
	return removed, nil
}
