package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go-identity-gate/internal/event"
	"go-identity-gate/internal/model"
)

type sessionTokenStore interface {
	Create(ctx context.Context, s model.SessionRecord) error
	FindActive(ctx context.Context, token string, now time.Time) (model.SessionRecord, error)
	Revoke(ctx context.Context, token string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	CleanExpired(ctx context.Context, now time.Time) (int64, error)
}

// LoginResult is what a successful email login hands back to the caller.
type LoginResult struct {
	User   model.UserRecord
	Tokens model.TokenBundle
}

// AuthService ties the registry, the token verifier and the session-token
// store together for the HTTP entry points.
type AuthService struct {
	registry   *RegistryService
	tokens     *TokenService
	sessions   sessionTokenStore
	sessionTTL time.Duration
	bus        event.Bus
	now        func() time.Time
}

func NewAuthService(registry *RegistryService, tokens *TokenService, sessions sessionTokenStore, sessionTTL time.Duration, bus event.Bus) *AuthService {
	return &AuthService{
		registry:   registry,
		tokens:     tokens,
		sessions:   sessions,
		sessionTTL: sessionTTL,
		bus:        bus,
		now:        time.Now,
	}
}

func (s *AuthService) Register(ctx context.Context, email string, password string) (model.UserRecord, error) {
	user, err := s.registry.Register(ctx, email, password)
	if err != nil {
		return model.UserRecord{}, err
	}

	s.publish(event.TypeUserRegistered, user.ID, map[string]any{"provider": string(user.AuthProvider)})
	return user, nil
}

func (s *AuthService) Login(ctx context.Context, email string, password string) (LoginResult, error) {
	user, err := s.registry.Login(ctx, email, password)
	if err != nil {
		s.publish(event.TypeLoginFailed, "", nil)
		return LoginResult{}, err
	}

	tokens, err := s.IssueTokens(ctx, user)
	if err != nil {
		return LoginResult{}, err
	}

	s.publish(event.TypeUserLoggedIn, user.ID, map[string]any{"provider": string(model.ProviderEmail)})
	return LoginResult{User: user, Tokens: tokens}, nil
}

// IssueTokens mints a signed token and a server-side session token for user.
func (s *AuthService) IssueTokens(ctx context.Context, user model.UserRecord) (model.TokenBundle, error) {
	signed, _, err := s.tokens.Issue(model.ClaimData{
		ID:    user.ID,
		Role:  user.Role,
		Email: user.Email,
		Name:  user.DisplayName,
	})
	if err != nil {
		return model.TokenBundle{}, err
	}

	bundle := model.TokenBundle{
		Token:     signed,
		TokenType: "Bearer",
		ExpiresIn: int64(s.tokens.TTL().Seconds()),
	}

	if s.sessions == nil {
		return bundle, nil
	}

	sessionToken, err := newSessionToken()
	if err != nil {
		return model.TokenBundle{}, err
	}

	now := s.now().UTC()
	if err := s.sessions.Create(ctx, model.SessionRecord{
		Token:     sessionToken,
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}); err != nil {
		return model.TokenBundle{}, fmt.Errorf("store session token: %w", err)
	}

	bundle.SessionToken = sessionToken
	return bundle, nil
}

// Logout revokes the presented session token, if any. Unknown tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, sessionToken string, actorID string) {
	if sessionToken != "" && s.sessions != nil {
		if err := s.sessions.Revoke(ctx, sessionToken); err != nil {
			slog.Warn("failed to revoke session token", "error", err)
		}
	}
	s.publish(event.TypeUserLoggedOut, actorID, nil)
}

// RevokeAll drops every session token of a user, used after a role change.
func (s *AuthService) RevokeAll(ctx context.Context, userID string) error {
	if s.sessions == nil {
		return nil
	}
	return s.sessions.RevokeAllForUser(ctx, userID)
}

// UpdateUser applies an administrative change. A role change revokes the
// user's session tokens so the new role is not shadowed by old sessions.
func (s *AuthService) UpdateUser(ctx context.Context, actorID string, id string, name *string, role *string) (model.UserRecord, error) {
	before, err := s.registry.GetUser(ctx, id)
	if err != nil {
		return model.UserRecord{}, err
	}

	user, err := s.registry.UpdateProfile(ctx, id, name, role)
	if err != nil {
		return model.UserRecord{}, err
	}

	if user.Role != before.Role {
		if err := s.RevokeAll(ctx, user.ID); err != nil {
			slog.Warn("failed to revoke sessions after role change", "user_id", user.ID, "error", err)
		}
	}

	s.publish(event.TypeUserUpdated, actorID, map[string]any{
		"user_id":  user.ID,
		"role":     string(user.Role),
		"previous": string(before.Role),
	})
	return user, nil
}

// Profile reports the ambient session joined with the registry. When the
// registry cannot be read the session data alone is returned.
func (s *AuthService) Profile(ctx context.Context, sc model.SessionContext) model.ProfileResponse {
	if !sc.Authenticated() {
		return model.ProfileResponse{Authenticated: false}
	}

	data := sc.Data
	resp := model.ProfileResponse{Authenticated: true, Provider: data.AuthProvider}

	var (
		user model.UserRecord
		err  error
	)
	if data.AuthProvider == model.ProviderFederated {
		user, err = s.registry.FindByExternalID(ctx, data.UserID)
	} else {
		user, err = s.registry.FindByID(ctx, data.UserID)
	}

	if err == nil {
		public := user.Public()
		resp.User = &public
		return resp
	}

	if !errors.Is(err, model.ErrUserNotFound) {
		slog.Warn("profile lookup failed; serving session data", "error", err)
		resp.Degraded = true
	}

	email := data.UserEmail
	if data.AuthProvider == model.ProviderFederated {
		email = PlaceholderEmail(data.UserName, data.UserID)
	}
	resp.User = &model.PublicUser{
		ID:           data.UserID,
		Email:        email,
		Name:         data.UserName,
		Role:         model.RoleUser,
		AuthProvider: data.AuthProvider,
	}
	return resp
}

// StartSessionCleanup purges expired session tokens until ctx is cancelled.
func (s *AuthService) StartSessionCleanup(ctx context.Context, interval time.Duration) {
	if s.sessions == nil || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.sessions.CleanExpired(ctx, s.now().UTC())
			if err != nil {
				slog.Warn("session cleanup failed", "error", err)
				continue
			}
			if removed > 0 {
				slog.Info("expired sessions removed", "count", removed)
			}
		}
	}
}

// AmbientFor is the ambient session state recorded after a successful login.
func AmbientFor(user model.UserRecord, provider model.AuthProvider) model.AmbientSession {
	userID := user.ID
	if provider == model.ProviderFederated {
		userID = user.ExternalID
	}
	return model.AmbientSession{
		IsAuthenticated: true,
		AuthProvider:    provider,
		UserID:          userID,
		UserEmail:       user.Email,
		UserName:        user.DisplayName,
	}
}

func (s *AuthService) publish(t event.Type, actorID string, payload map[string]any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event.Event{Type: t, ActorID: actorID, Payload: payload})
}

func newSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
