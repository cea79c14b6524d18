package comments

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeStore is an in-memory Store that pushes the full collection to every watcher after
// each mutation, in insertion order.
type fakeStore struct {
	mu          sync.Mutex
	comments    []Comment
	watchers    map[int]SnapshotHandler
	nextWatcher int
	nextID      int
	now         time.Time
	watchErr    error
	mutateErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		watchers: make(map[int]SnapshotHandler),
		now:      time.Unix(1700000000, 0).UTC(),
	}
}

func (s *fakeStore) Watch(_ context.Context, handler SnapshotHandler) (func(), error) {
	s.mu.Lock()
	if s.watchErr != nil {
		err := s.watchErr
		s.mu.Unlock()
		return nil, err
	}
	s.nextWatcher++
	id := s.nextWatcher
	s.watchers[id] = handler
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	handler(snapshot, nil)
	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}, nil
}

func (s *fakeStore) Create(_ context.Context, draft Draft) (string, error) {
	s.mu.Lock()
	if s.mutateErr != nil {
		err := s.mutateErr
		s.mu.Unlock()
		return "", err
	}
	s.nextID++
	s.now = s.now.Add(time.Second)
	id := fmt.Sprintf("comment-%d", s.nextID)
	s.comments = append(s.comments, Comment{
		ID:                id,
		AuthorID:          draft.AuthorID,
		AuthorDisplayName: draft.AuthorDisplayName,
		AuthorEmail:       draft.AuthorEmail,
		Body:              draft.Body,
		CreatedAt:         s.now,
		LikedBy:           []string{},
	})
	s.mu.Unlock()
	s.emit()
	return id, nil
}

func (s *fakeStore) AddLike(_ context.Context, commentID, userID string) error {
	return s.mutateLike(commentID, func(comment *Comment) {
		if containsUser(comment.LikedBy, userID) {
			return
		}
		comment.LikedBy = append(comment.LikedBy, userID)
		comment.LikeCount++
	})
}

func (s *fakeStore) RemoveLike(_ context.Context, commentID, userID string) error {
	return s.mutateLike(commentID, func(comment *Comment) {
		if !containsUser(comment.LikedBy, userID) {
			return
		}
		comment.LikedBy = removeUser(comment.LikedBy, userID)
		comment.LikeCount--
	})
}

func (s *fakeStore) mutateLike(commentID string, apply func(*Comment)) error {
	s.mu.Lock()
	if s.mutateErr != nil {
		err := s.mutateErr
		s.mu.Unlock()
		return err
	}
	for index := range s.comments {
		if s.comments[index].ID == commentID {
			apply(&s.comments[index])
			s.mu.Unlock()
			s.emit()
			return nil
		}
	}
	s.mu.Unlock()
	return ErrCommentNotFound
}

// seed inserts a comment directly, bypassing validation, and notifies watchers.
func (s *fakeStore) seed(comment Comment) {
	s.mu.Lock()
	s.comments = append(s.comments, comment)
	s.mu.Unlock()
	s.emit()
}

// breakWatches ends every open watch with err.
func (s *fakeStore) breakWatches(err error) {
	s.mu.Lock()
	handlers := make([]SnapshotHandler, 0, len(s.watchers))
	for id, handler := range s.watchers {
		handlers = append(handlers, handler)
		delete(s.watchers, id)
	}
	s.mu.Unlock()
	for _, handler := range handlers {
		handler(nil, err)
	}
}

func (s *fakeStore) watcherCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

func (s *fakeStore) comment(id string) Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, comment := range s.comments {
		if comment.ID == id {
			return cloneComment(comment)
		}
	}
	return Comment{}
}

func (s *fakeStore) emit() {
	s.mu.Lock()
	handlers := make([]SnapshotHandler, 0, len(s.watchers))
	for _, handler := range s.watchers {
		handlers = append(handlers, handler)
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	for _, handler := range handlers {
		handler(snapshot, nil)
	}
}

func (s *fakeStore) snapshotLocked() []Comment {
	out := make([]Comment, 0, len(s.comments))
	for _, comment := range s.comments {
		out = append(out, cloneComment(comment))
	}
	return out
}

func nextUpdate(t *testing.T, sub *Subscription) Update {
	t.Helper()
	select {
	case update, ok := <-sub.Updates():
		if !ok {
			t.Fatal("subscription closed before an update arrived")
		}
		return update
	case <-time.After(time.Second):
		t.Fatal("expected feed update within deadline")
	}
	return Update{}
}

func newTestEngine(t *testing.T, store Store) *Engine {
	t.Helper()
	engine, err := NewEngine(EngineConfig{Store: store})
	if err != nil {
		t.Fatalf("failed to construct engine: %v", err)
	}
	return engine
}
