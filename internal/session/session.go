// Package session defines the authenticated principal and threads it through context.Context.
package session

import (
	"context"
	"strings"
	"time"
)

const anonymousName = "Anonymous"

// Session is the currently authenticated principal.
type Session struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	TokenID     string    `json:"-"`
	ExpiresAt   time.Time `json:"-"`
}

// AuthorName is the name recorded on content the principal creates: the display name,
// else the local part of the email, else "Anonymous".
func (s Session) AuthorName() string {
	if name := strings.TrimSpace(s.DisplayName); name != "" {
		return name
	}
	email := strings.TrimSpace(s.Email)
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	if email != "" {
		return email
	}
	return anonymousName
}

type contextKey struct{}

// WithSession returns a context carrying s.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session carried by ctx, if any.
func FromContext(ctx context.Context) (Session, bool) {
	if ctx == nil {
		return Session{}, false
	}
	s, ok := ctx.Value(contextKey{}).(Session)
	if !ok || s.UserID == "" {
		return Session{}, false
	}
	return s, true
}

// Pointer returns the session carried by ctx or nil when absent.
func Pointer(ctx context.Context) *Session {
	s, ok := FromContext(ctx)
	if !ok {
		return nil
	}
	return &s
}
