package comments

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Clement3205902/Clement/internal/apperr"
	"github.com/Clement3205902/Clement/internal/session"
)

const (
	opViewToggle = "comments.view.toggle_like"

	defaultPendingTimeout = 10 * time.Second
)

// View is one client's replica of the feed with optimistic like predictions.
//
// Every Apply replaces the replica wholesale, discarding all predictions. A toggle stays
// pending until an emission shows the predicted membership for the view's user, the
// comment disappears, or the pending timeout passes. While pending, further toggles on the
// same comment are refused with ErrTogglePending so a double click cannot issue two
// mutations from one stale liker set.
type View struct {
	mu             sync.Mutex
	userID         string
	comments       []Comment
	pending        map[string]pendingToggle
	pendingTimeout time.Duration
	now            func() time.Time
}

type pendingToggle struct {
	liked    bool
	shown    bool
	previous Comment
	since    time.Time
}

// NewView constructs an empty replica for userID. userID may be empty for anonymous readers.
func NewView(userID string) *View {
	return &View{
		userID:         userID,
		pending:        make(map[string]pendingToggle),
		pendingTimeout: defaultPendingTimeout,
		now:            time.Now,
	}
}

// Apply overwrites the replica with an authoritative emission and settles the pending
// toggles it confirms.
func (v *View) Apply(snapshot []Comment) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.comments = make([]Comment, 0, len(snapshot))
	byID := make(map[string]Comment, len(snapshot))
	for _, comment := range snapshot {
		cloned := cloneComment(comment)
		v.comments = append(v.comments, cloned)
		byID[cloned.ID] = cloned
	}
	now := v.now()
	for commentID, toggle := range v.pending {
		comment, ok := byID[commentID]
		switch {
		case !ok:
			delete(v.pending, commentID)
		case comment.LikedByUser(v.userID) == toggle.liked:
			delete(v.pending, commentID)
		case now.Sub(toggle.since) >= v.pendingTimeout:
			delete(v.pending, commentID)
		default:
			toggle.shown = false
			v.pending[commentID] = toggle
		}
	}
}

// Comments returns a copy of the replica including predictions.
func (v *View) Comments() []Comment {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Comment, 0, len(v.comments))
	for _, comment := range v.comments {
		out = append(out, cloneComment(comment))
	}
	return out
}

// Pending reports whether a toggle on commentID awaits confirmation.
func (v *View) Pending(commentID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.pending[commentID]
	return ok
}

// beginToggle predicts the toggle locally and returns the liker set observed before the
// prediction.
func (v *View) beginToggle(commentID string) ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if toggle, ok := v.pending[commentID]; ok {
		if v.now().Sub(toggle.since) < v.pendingTimeout {
			return nil, ErrTogglePending
		}
		delete(v.pending, commentID)
	}
	for index := range v.comments {
		comment := &v.comments[index]
		if comment.ID != commentID {
			continue
		}
		previous := cloneComment(*comment)
		liked := !containsUser(comment.LikedBy, v.userID)
		if liked {
			comment.LikedBy = append(comment.LikedBy, v.userID)
		} else {
			comment.LikedBy = removeUser(comment.LikedBy, v.userID)
		}
		comment.LikeCount = len(comment.LikedBy)
		v.pending[commentID] = pendingToggle{liked: liked, shown: true, previous: previous, since: v.now()}
		return previous.LikedBy, nil
	}
	return nil, ErrCommentNotFound
}

// revert settles a failed mutation. The prediction is rolled back only while it is still
// displayed; an emission that arrived meanwhile already holds the authoritative comment.
func (v *View) revert(commentID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	toggle, ok := v.pending[commentID]
	if !ok {
		return
	}
	delete(v.pending, commentID)
	if !toggle.shown {
		return
	}
	for index := range v.comments {
		if v.comments[index].ID == commentID {
			v.comments[index] = toggle.previous
			return
		}
	}
}

// ToggleLikeInView applies an optimistic toggle to view and issues the store mutation using
// the liker set the view held before the prediction. A failed mutation rolls the prediction
// back.
func (e *Engine) ToggleLikeInView(ctx context.Context, sess *session.Session, view *View, commentID string) (bool, error) {
	if sess == nil || sess.UserID == "" {
		return false, apperr.Auth(opViewToggle, ErrMissingSession)
	}
	if view.userID != sess.UserID {
		return false, apperr.Auth(opViewToggle, ErrMissingSession)
	}
	likedBy, err := view.beginToggle(commentID)
	if err != nil {
		if errors.Is(err, ErrTogglePending) {
			return false, apperr.Validation(opViewToggle, err)
		}
		return false, apperr.NotFound(opViewToggle, err)
	}
	liked, err := e.ToggleLike(ctx, sess, commentID, likedBy)
	if err != nil {
		view.revert(commentID)
		return false, err
	}
	return liked, nil
}

func removeUser(likedBy []string, userID string) []string {
	out := make([]string, 0, len(likedBy))
	for _, candidate := range likedBy {
		if candidate != userID {
			out = append(out, candidate)
		}
	}
	return out
}
