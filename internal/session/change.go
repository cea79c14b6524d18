package session

import "time"

// Event names what caused a session change.
type Event string

const (
	EventSignup        Event = "signup"
	EventLogin         Event = "login"
	EventProviderLogin Event = "provider_login"
	EventRefresh       Event = "refresh"
	EventLogout        Event = "logout"
)

// Change is one push notification from the auth gateway. Session is nil after a logout.
type Change struct {
	Event      Event
	Session    *Session
	OccurredAt time.Time
	// NewAccount is set when the identity provider created the account during this change.
	NewAccount bool
}
