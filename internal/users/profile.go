package users

import (
	"context"
	"strings"
	"time"
)

// Profile is the document kept per signed-in user in the users collection.
type Profile struct {
	UserID           string    `json:"user_id"`
	Email            string    `json:"email"`
	DisplayName      string    `json:"display_name"`
	CreatedAt        time.Time `json:"created_at"`
	LastLogin        time.Time `json:"last_login"`
	IsEduAccount     bool      `json:"is_edu_account"`
	ChatMessageCount int       `json:"chat_message_count"`
}

// Store persists profiles. Implementations must apply IncrementChatMessages atomically.
type Store interface {
	GetProfile(ctx context.Context, userID string) (Profile, bool, error)
	// PutProfile writes the complete profile document, replacing any existing one.
	PutProfile(ctx context.Context, profile Profile) error
	// MergeLastLogin updates lastLogin of an existing profile and reports whether it existed.
	MergeLastLogin(ctx context.Context, userID string, at time.Time) (bool, error)
	IncrementChatMessages(ctx context.Context, userID string) error
}

// IsEduEmail reports whether email belongs to an educational domain.
func IsEduEmail(email string) bool {
	return strings.HasSuffix(strings.ToLower(normalize(email)), ".edu")
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
