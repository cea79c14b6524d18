package comments

import (
	"context"
	"errors"
	"sort"
	"time"
)

const maxBodyLength = 2000

var (
	// ErrEmptyBody indicates a comment body that is empty after trimming.
	ErrEmptyBody = errors.New("comments: body is required")
	// ErrBodyTooLong indicates a comment body longer than maxBodyLength characters.
	ErrBodyTooLong = errors.New("comments: body too long")
	// ErrMissingSession indicates a mutation attempted without a session.
	ErrMissingSession = errors.New("comments: sign in required")
	// ErrInvalidCommentID indicates an empty comment identifier.
	ErrInvalidCommentID = errors.New("comments: invalid comment id")
	// ErrCommentNotFound is returned by stores when a comment document does not exist.
	ErrCommentNotFound = errors.New("comments: comment not found")
	// ErrFeedUnavailable marks a feed that could not be opened or failed mid-stream.
	ErrFeedUnavailable = errors.New("comments: feed unavailable")
	// ErrTogglePending indicates a like toggle still awaiting confirmation from the feed.
	ErrTogglePending = errors.New("comments: like toggle pending")
)

// Comment is one user-authored remark.
//
// AuthorDisplayName and AuthorEmail are copied from the session at post time and are not
// updated when the author later changes their profile.
type Comment struct {
	ID                string    `json:"id"`
	AuthorID          string    `json:"authorId"`
	AuthorDisplayName string    `json:"authorDisplayName"`
	AuthorEmail       string    `json:"authorEmail"`
	Body              string    `json:"body"`
	CreatedAt         time.Time `json:"createdAt"`
	LikedBy           []string  `json:"likedBy"`
	LikeCount         int       `json:"likeCount"`
}

// LikedByUser reports whether userID is in the comment's liker set.
func (c Comment) LikedByUser(userID string) bool {
	return containsUser(c.LikedBy, userID)
}

// Draft is the author-supplied part of a new comment. The store assigns the id and createdAt.
type Draft struct {
	AuthorID          string
	AuthorDisplayName string
	AuthorEmail       string
	Body              string
}

// SnapshotHandler receives the full comment collection on every store-side change, or the
// error that ended the watch. Stores call it from a single goroutine per watch and never
// again after an error.
type SnapshotHandler func(snapshot []Comment, err error)

// Store is the document store boundary for the comments collection.
type Store interface {
	// Watch opens a push subscription on the collection. stop releases it and is safe to
	// call from within the handler.
	Watch(ctx context.Context, handler SnapshotHandler) (stop func(), err error)
	Create(ctx context.Context, draft Draft) (string, error)
	// AddLike adds userID to likedBy and increments likeCount by one in a single atomic
	// document update; it is a no-op when userID is already a member.
	AddLike(ctx context.Context, commentID, userID string) error
	// RemoveLike removes userID from likedBy and decrements likeCount by one in a single
	// atomic document update; it is a no-op when userID is not a member.
	RemoveLike(ctx context.Context, commentID, userID string) error
}

// orderNewestFirst returns a copy sorted by CreatedAt descending. Equal timestamps keep
// the order in which the store delivered them.
func orderNewestFirst(snapshot []Comment) []Comment {
	ordered := make([]Comment, len(snapshot))
	copy(ordered, snapshot)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
	})
	return ordered
}

// reconcileLikes de-duplicates likedBy and pins likeCount to its size. It reports whether
// the comment diverged.
func reconcileLikes(comment *Comment) bool {
	seen := make(map[string]struct{}, len(comment.LikedBy))
	unique := make([]string, 0, len(comment.LikedBy))
	for _, userID := range comment.LikedBy {
		if userID == "" {
			continue
		}
		if _, ok := seen[userID]; ok {
			continue
		}
		seen[userID] = struct{}{}
		unique = append(unique, userID)
	}
	diverged := len(unique) != len(comment.LikedBy) || comment.LikeCount != len(unique)
	comment.LikedBy = unique
	comment.LikeCount = len(unique)
	return diverged
}

func containsUser(likedBy []string, userID string) bool {
	if userID == "" {
		return false
	}
	for _, candidate := range likedBy {
		if candidate == userID {
			return true
		}
	}
	return false
}

func cloneComment(comment Comment) Comment {
	clone := comment
	clone.LikedBy = append([]string(nil), comment.LikedBy...)
	if clone.LikedBy == nil {
		clone.LikedBy = []string{}
	}
	return clone
}
