package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go-identity-gate/internal/model"
)

// FileUserRepository keeps the registry as a JSON array on disk. Every write
// rewrites the whole file through a temp file and rename, under one lock.
type FileUserRepository struct {
	path string

	mu         sync.RWMutex
	users      []model.UserRecord
	byEmail    map[string]int
	byID       map[string]int
	byExternal map[string]int
}

func NewFileUserRepository(path string) (*FileUserRepository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("users file path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create users dir: %w", err)
	}

	r := &FileUserRepository{path: path}
	if err := r.load(); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *FileUserRepository) FindByEmail(_ context.Context, email string) (model.UserRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.byEmail[email]
	if !ok {
		return model.UserRecord{}, model.ErrUserNotFound
	}
	return r.users[idx], nil
}

func (r *FileUserRepository) FindByID(_ context.Context, id string) (model.UserRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.byID[id]
	if !ok {
		return model.UserRecord{}, model.ErrUserNotFound
	}
	return r.users[idx], nil
}

func (r *FileUserRepository) FindByExternalID(_ context.Context, externalID string) (model.UserRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.byExternal[externalID]
	if externalID == "" || !ok {
		return model.UserRecord{}, model.ErrUserNotFound
	}
	return r.users[idx], nil
}

func (r *FileUserRepository) Create(_ context.Context, u model.UserRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[u.Email]; exists {
		return model.ErrDuplicateUser
	}
	if _, exists := r.byID[u.ID]; exists {
		return model.ErrDuplicateUser
	}
	if u.ExternalID != "" {
		if _, exists := r.byExternal[u.ExternalID]; exists {
			return model.ErrDuplicateUser
		}
	}

	next := append(append(make([]model.UserRecord, 0, len(r.users)+1), r.users...), u)
	if err := r.persistLocked(next); err != nil {
		return err
	}

	r.users = next
	r.reindexLocked()
	return nil
}

// Update replaces the mutable fields of an existing record. Email, id and
// created_at are kept from the stored copy.
func (r *FileUserRepository) Update(_ context.Context, u model.UserRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.byID[u.ID]
	if !ok {
		return model.ErrUserNotFound
	}
	if u.ExternalID != "" {
		if other, exists := r.byExternal[u.ExternalID]; exists && other != idx {
			return model.ErrDuplicateUser
		}
	}

	next := make([]model.UserRecord, len(r.users))
	copy(next, r.users)
	stored := next[idx]
	stored.DisplayName = u.DisplayName
	stored.Role = u.Role
	stored.ExternalID = u.ExternalID
	if u.PasswordHash != "" {
		stored.PasswordHash = u.PasswordHash
	}
	next[idx] = stored

	if err := r.persistLocked(next); err != nil {
		return err
	}

	r.users = next
	r.reindexLocked()
	return nil
}

func (r *FileUserRepository) List(_ context.Context) ([]model.UserRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.UserRecord, len(r.users))
	copy(out, r.users)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *FileUserRepository) load() error {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		r.mu.Lock()
		r.users = nil
		r.reindexLocked()
		r.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("read users file: %w", err)
	}

	var users []model.UserRecord
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, &users); err != nil {
			return fmt.Errorf("decode users file: %w", err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = users
	r.reindexLocked()

	if len(r.byEmail) != len(r.users) {
		return fmt.Errorf("users file %s contains duplicate emails", r.path)
	}
	return nil
}

func (r *FileUserRepository) reindexLocked() {
	r.byEmail = make(map[string]int, len(r.users))
	r.byID = make(map[string]int, len(r.users))
	r.byExternal = map[string]int{}
	for i, u := range r.users {
		r.byEmail[u.Email] = i
		r.byID[u.ID] = i
		if u.ExternalID != "" {
			r.byExternal[u.ExternalID] = i
		}
	}
}

func (r *FileUserRepository) persistLocked(users []model.UserRecord) error {
	if users == nil {
		users = []model.UserRecord{}
	}

	data, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return fmt.Errorf("encode users: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".users-*.json")
	if err != nil {
		return fmt.Errorf("create temp users file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp users file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync temp users file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp users file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod temp users file: %w", err)
	}

	if err := os.Rename(tmpName, r.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace users file: %w", err)
	}
	return nil
}
