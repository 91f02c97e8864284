package model

import "time"

// SessionRecord is a server-side session token bound to a registry user.
type SessionRecord struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s SessionRecord) ExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// AmbientSession is the per-browser state kept behind the session cookie.
type AmbientSession struct {
	IsAuthenticated bool         `json:"isAuthenticated"`
	AuthProvider    AuthProvider `json:"authProvider,omitempty"`
	UserID          string       `json:"userId,omitempty"`
	UserEmail       string       `json:"userEmail,omitempty"`
	UserName        string       `json:"userName,omitempty"`
	OAuthState      string       `json:"oauthState,omitempty"`
}

// SessionContext is the ambient session as seen by a single request.
type SessionContext struct {
	ID      string
	Data    AmbientSession
	Present bool
}

func (c SessionContext) Authenticated() bool {
	return c.Present && c.Data.IsAuthenticated
}
