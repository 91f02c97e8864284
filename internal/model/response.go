package model

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Code    string      `json:"code,omitempty"`
	Details string      `json:"details,omitempty"`
	User    *PublicUser `json:"user,omitempty"`
	Data    any         `json:"data,omitempty"`
}

type ProfileResponse struct {
	Authenticated bool         `json:"authenticated"`
	Provider      AuthProvider `json:"provider,omitempty"`
	User          *PublicUser  `json:"user,omitempty"`
	Degraded      bool         `json:"degraded,omitempty"`
}
