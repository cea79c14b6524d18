package firebasestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Clement3205902/Clement/internal/users"
)

type profileDocument struct {
	Email            string    `firestore:"email"`
	DisplayName      string    `firestore:"displayName"`
	CreatedAt        time.Time `firestore:"createdAt"`
	LastLogin        time.Time `firestore:"lastLogin"`
	IsEduAccount     bool      `firestore:"isEduAccount"`
	ChatMessageCount int       `firestore:"chatMessageCount"`
}

// ProfileStore reads and writes the users collection.
type ProfileStore struct {
	client *firestore.Client
}

// NewProfileStore constructs a ProfileStore.
func NewProfileStore(client *firestore.Client) (*ProfileStore, error) {
	if client == nil {
		return nil, fmt.Errorf("firebasestore: client is required")
	}
	return &ProfileStore{client: client}, nil
}

func (s *ProfileStore) doc(userID string) *firestore.DocumentRef {
	return s.client.Collection(usersCollection).Doc(userID)
}

// GetProfile loads the profile document for userID.
func (s *ProfileStore) GetProfile(ctx context.Context, userID string) (users.Profile, bool, error) {
	snapshot, err := s.doc(userID).Get(ctx)
	if isNotFound(err) {
		return users.Profile{}, false, nil
	}
	if err != nil {
		return users.Profile{}, false, err
	}
	var document profileDocument
	if err := snapshot.DataTo(&document); err != nil {
		return users.Profile{}, false, err
	}
	return users.Profile{
		UserID:           userID,
		Email:            document.Email,
		DisplayName:      document.DisplayName,
		CreatedAt:        document.CreatedAt.UTC(),
		LastLogin:        document.LastLogin.UTC(),
		IsEduAccount:     document.IsEduAccount,
		ChatMessageCount: document.ChatMessageCount,
	}, true, nil
}

// PutProfile overwrites the profile document.
func (s *ProfileStore) PutProfile(ctx context.Context, profile users.Profile) error {
	_, err := s.doc(profile.UserID).Set(ctx, profileDocument{
		Email:            profile.Email,
		DisplayName:      profile.DisplayName,
		CreatedAt:        profile.CreatedAt,
		LastLogin:        profile.LastLogin,
		IsEduAccount:     profile.IsEduAccount,
		ChatMessageCount: profile.ChatMessageCount,
	})
	return err
}

// MergeLastLogin updates lastLogin on an existing document.
func (s *ProfileStore) MergeLastLogin(ctx context.Context, userID string, at time.Time) (bool, error) {
	_, err := s.doc(userID).Update(ctx, []firestore.Update{{Path: "lastLogin", Value: at}})
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// IncrementChatMessages bumps chatMessageCount with a server-side increment.
func (s *ProfileStore) IncrementChatMessages(ctx context.Context, userID string) error {
	_, err := s.doc(userID).Update(ctx, []firestore.Update{{Path: "chatMessageCount", Value: firestore.Increment(1)}})
	if isNotFound(err) {
		return users.ErrProfileNotFound
	}
	return err
}
