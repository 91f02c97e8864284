package event

type Type string

const (
	TypeUserRegistered  Type = "user.registered"
	TypeUserLoggedIn    Type = "user.logged_in"
	TypeUserLoggedOut   Type = "user.logged_out"
	TypeUserUpdated     Type = "user.updated"
	TypeFederatedLinked Type = "user.federated_linked"
	TypeLoginFailed     Type = "auth.login_failed"
)

type Event struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp string         `json:"timestamp"`
	ActorID   string         `json:"actor_id,omitempty"`
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func())
}
