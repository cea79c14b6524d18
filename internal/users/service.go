package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Clement3205902/Clement/internal/session"
	"go.uber.org/zap"
)

var (
	// ErrInvalidIdentity indicates a session without a usable user id.
	ErrInvalidIdentity = errors.New("users: invalid identity")
	// ErrProfileNotFound indicates a lookup for a user without a profile document.
	ErrProfileNotFound = errors.New("users: profile not found")
)

// ServiceConfig describes the dependencies required for profile bookkeeping.
type ServiceConfig struct {
	Store  Store
	Clock  func() time.Time
	Logger *zap.Logger
}

// Service maintains profile documents in response to session changes and chat usage.
type Service struct {
	store  Store
	now    func() time.Time
	logger *zap.Logger
}

// NewService constructs the profile service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("users: profile store required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  cfg.Store,
		now:    clock,
		logger: logger,
	}, nil
}

// RecordSignup writes a fresh profile for a newly created account.
func (s *Service) RecordSignup(ctx context.Context, sess session.Session) error {
	userID := normalize(sess.UserID)
	if userID == "" {
		return ErrInvalidIdentity
	}
	now := s.now().UTC()
	return s.store.PutProfile(ctx, Profile{
		UserID:           userID,
		Email:            normalize(sess.Email),
		DisplayName:      normalize(sess.DisplayName),
		CreatedAt:        now,
		LastLogin:        now,
		IsEduAccount:     IsEduEmail(sess.Email),
		ChatMessageCount: 0,
	})
}

// RecordProviderLogin creates the profile on first federated sign-in and otherwise only
// refreshes lastLogin.
func (s *Service) RecordProviderLogin(ctx context.Context, sess session.Session) error {
	userID := normalize(sess.UserID)
	if userID == "" {
		return ErrInvalidIdentity
	}
	found, err := s.store.MergeLastLogin(ctx, userID, s.now().UTC())
	if err != nil {
		return err
	}
	if found {
		return nil
	}
	return s.RecordSignup(ctx, sess)
}

// RecordSessionEstablished refreshes lastLogin when a profile exists. Sessions without a
// profile are left alone.
func (s *Service) RecordSessionEstablished(ctx context.Context, sess session.Session) error {
	userID := normalize(sess.UserID)
	if userID == "" {
		return ErrInvalidIdentity
	}
	_, err := s.store.MergeLastLogin(ctx, userID, s.now().UTC())
	return err
}

// RecordChatMessage increments the user's chat message counter.
func (s *Service) RecordChatMessage(ctx context.Context, userID string) error {
	userID = normalize(userID)
	if userID == "" {
		return ErrInvalidIdentity
	}
	return s.store.IncrementChatMessages(ctx, userID)
}

// Profile returns the stored profile for userID.
func (s *Service) Profile(ctx context.Context, userID string) (Profile, error) {
	profile, found, err := s.store.GetProfile(ctx, normalize(userID))
	if err != nil {
		return Profile{}, err
	}
	if !found {
		return Profile{}, ErrProfileNotFound
	}
	return profile, nil
}

// Track applies session changes until ctx is done or changes is closed.
func (s *Service) Track(ctx context.Context, changes <-chan session.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			s.apply(ctx, change)
		}
	}
}

func (s *Service) apply(ctx context.Context, change session.Change) {
	if change.Session == nil {
		return
	}
	var err error
	switch {
	case change.Event == session.EventSignup:
		err = s.RecordSignup(ctx, *change.Session)
	case change.Event == session.EventProviderLogin:
		err = s.RecordProviderLogin(ctx, *change.Session)
	case change.Event == session.EventLogin, change.Event == session.EventRefresh:
		err = s.RecordSessionEstablished(ctx, *change.Session)
	default:
		return
	}
	if err != nil {
		s.logger.Warn("profile update failed",
			zap.String("event", string(change.Event)),
			zap.String("user_id", change.Session.UserID),
			zap.Error(err))
	}
}
