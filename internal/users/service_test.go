package users

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Clement3205902/Clement/internal/session"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type memoryStore struct {
	mu       sync.Mutex
	profiles map[string]Profile
	mergeErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{profiles: make(map[string]Profile)}
}

func (m *memoryStore) GetProfile(_ context.Context, userID string) (Profile, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	profile, ok := m.profiles[userID]
	return profile, ok, nil
}

func (m *memoryStore) PutProfile(_ context.Context, profile Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[profile.UserID] = profile
	return nil
}

func (m *memoryStore) MergeLastLogin(_ context.Context, userID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mergeErr != nil {
		return false, m.mergeErr
	}
	profile, ok := m.profiles[userID]
	if !ok {
		return false, nil
	}
	profile.LastLogin = at
	m.profiles[userID] = profile
	return true, nil
}

func (m *memoryStore) IncrementChatMessages(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	profile, ok := m.profiles[userID]
	if !ok {
		return ErrProfileNotFound
	}
	profile.ChatMessageCount++
	m.profiles[userID] = profile
	return nil
}

func newTestService(t *testing.T, store Store, clock func() time.Time, logger *zap.Logger) *Service {
	t.Helper()
	service, err := NewService(ServiceConfig{Store: store, Clock: clock, Logger: logger})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func TestNewServiceRequiresStore(t *testing.T) {
	if _, err := NewService(ServiceConfig{}); err == nil {
		t.Fatal("expected error without store")
	}
}

func TestRecordSignupWritesFullProfile(t *testing.T) {
	store := newMemoryStore()
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	service := newTestService(t, store, func() time.Time { return fixed }, nil)

	err := service.RecordSignup(context.Background(), session.Session{
		UserID:      "uid-1",
		Email:       "ada@cs.stanford.EDU",
		DisplayName: "Ada",
	})
	if err != nil {
		t.Fatalf("unexpected signup error: %v", err)
	}

	profile, err := service.Profile(context.Background(), "uid-1")
	if err != nil {
		t.Fatalf("unexpected profile error: %v", err)
	}
	if !profile.IsEduAccount {
		t.Fatal("expected .edu address to mark an educational account")
	}
	if profile.ChatMessageCount != 0 {
		t.Fatalf("expected zero chat messages, got %d", profile.ChatMessageCount)
	}
	if !profile.CreatedAt.Equal(fixed) || !profile.LastLogin.Equal(fixed) {
		t.Fatalf("expected timestamps %v, got created=%v last=%v", fixed, profile.CreatedAt, profile.LastLogin)
	}
}

func TestRecordProviderLoginCreatesMissingProfileOnce(t *testing.T) {
	store := newMemoryStore()
	current := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	service := newTestService(t, store, func() time.Time { return current }, nil)
	sess := session.Session{UserID: "uid-2", Email: "grace@example.com"}

	if err := service.RecordProviderLogin(context.Background(), sess); err != nil {
		t.Fatalf("unexpected provider login error: %v", err)
	}
	if err := service.RecordChatMessage(context.Background(), "uid-2"); err != nil {
		t.Fatalf("unexpected chat increment error: %v", err)
	}

	current = current.Add(time.Hour)
	if err := service.RecordProviderLogin(context.Background(), sess); err != nil {
		t.Fatalf("unexpected second provider login error: %v", err)
	}

	profile, err := service.Profile(context.Background(), "uid-2")
	if err != nil {
		t.Fatalf("unexpected profile error: %v", err)
	}
	if profile.ChatMessageCount != 1 {
		t.Fatalf("expected existing profile to be kept, got count %d", profile.ChatMessageCount)
	}
	if !profile.LastLogin.Equal(current) {
		t.Fatalf("expected lastLogin %v, got %v", current, profile.LastLogin)
	}
	if profile.IsEduAccount {
		t.Fatal("expected non-edu account")
	}
}

func TestRecordSessionEstablishedSkipsMissingProfile(t *testing.T) {
	store := newMemoryStore()
	service := newTestService(t, store, nil, nil)

	if err := service.RecordSessionEstablished(context.Background(), session.Session{UserID: "ghost"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.Profile(context.Background(), "ghost"); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected no profile to be created, got %v", err)
	}
}

func TestRecordRejectsBlankIdentity(t *testing.T) {
	service := newTestService(t, newMemoryStore(), nil, nil)
	if err := service.RecordSignup(context.Background(), session.Session{UserID: "  "}); !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("expected invalid identity, got %v", err)
	}
	if err := service.RecordChatMessage(context.Background(), ""); !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("expected invalid identity, got %v", err)
	}
}

func TestTrackAppliesChangesAndLogsFailures(t *testing.T) {
	store := newMemoryStore()
	core, logs := observer.New(zap.WarnLevel)
	service := newTestService(t, store, nil, zap.New(core))

	changes := make(chan session.Change, 4)
	changes <- session.Change{Event: session.EventSignup, Session: &session.Session{UserID: "uid-3", Email: "x@y.edu"}}
	changes <- session.Change{Event: session.EventLogout}
	close(changes)

	service.Track(context.Background(), changes)

	if _, err := service.Profile(context.Background(), "uid-3"); err != nil {
		t.Fatalf("expected signup change to create a profile, got %v", err)
	}

	store.mergeErr = errors.New("store offline")
	failing := make(chan session.Change, 1)
	failing <- session.Change{Event: session.EventRefresh, Session: &session.Session{UserID: "uid-3"}}
	close(failing)
	service.Track(context.Background(), failing)

	if logs.FilterMessage("profile update failed").Len() != 1 {
		t.Fatalf("expected one warning, got %d", logs.Len())
	}
}
