package model

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleUser:
		return RoleUser, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

// AuthProvider tags how an account was created or how a request was authenticated.
type AuthProvider string

const (
	ProviderEmail     AuthProvider = "email"
	ProviderFederated AuthProvider = "external-federated"
	ProviderJWT       AuthProvider = "jwt"
	ProviderSession   AuthProvider = "session"
)

type UserRecord struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	PasswordHash string       `json:"password_hash"`
	DisplayName  string       `json:"name"`
	Role         Role         `json:"role"`
	AuthProvider AuthProvider `json:"auth_provider"`
	ExternalID   string       `json:"external_id,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// PublicUser is the wire projection of a UserRecord; it never carries the hash.
type PublicUser struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	Name         string       `json:"name"`
	Role         Role         `json:"role"`
	AuthProvider AuthProvider `json:"authProvider"`
	CreatedAt    *time.Time   `json:"createdAt,omitempty"`
}

func (u UserRecord) Public() PublicUser {
	created := u.CreatedAt
	return PublicUser{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.DisplayName,
		Role:         u.Role,
		AuthProvider: u.AuthProvider,
		CreatedAt:    &created,
	}
}

// DisplayNameFromEmail returns the local part of an address.
func DisplayNameFromEmail(email string) string {
	if at := strings.Index(email, "@"); at >= 0 {
		return email[:at]
	}
	return email
}

type UserList struct {
	Users []PublicUser `json:"users"`
}

// FederatedProfile is what an external identity provider reports about a user.
type FederatedProfile struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}
