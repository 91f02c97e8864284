package model

import "time"

// ClaimData is the identity payload embedded in a signed token.
type ClaimData struct {
	ID    string `json:"id"`
	Role  Role   `json:"role,omitempty"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

type Claim struct {
	Issuer    string
	Audience  []string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Data      ClaimData
}

type TokenBundle struct {
	Token        string `json:"token"`
	SessionToken string `json:"sessionToken,omitempty"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
}
