package model

// Identity is the request-scoped result of credential resolution.
type Identity struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	Name         string       `json:"name"`
	Role         Role         `json:"role"`
	AuthProvider AuthProvider `json:"authProvider"`
}

func IdentityFromUser(u UserRecord, provider AuthProvider) Identity {
	return Identity{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.DisplayName,
		Role:         u.Role,
		AuthProvider: provider,
	}.Normalized()
}

// Normalized fills the role default.
func (i Identity) Normalized() Identity {
	if i.Role == "" {
		i.Role = RoleUser
	}
	return i
}
