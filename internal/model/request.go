package model

const (
	ActionRegister = "register"
	ActionLogin    = "login"
	ActionLogout   = "logout"
)

type AuthRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Action   string `json:"action"`
}

type UpdateUserRequest struct {
	Name *string `json:"name"`
	Role *string `json:"role"`
}
