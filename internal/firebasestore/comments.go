package firebasestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Clement3205902/Clement/internal/comments"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
)

type commentDocument struct {
	AuthorID          string    `firestore:"authorId"`
	AuthorDisplayName string    `firestore:"authorDisplayName"`
	AuthorEmail       string    `firestore:"authorEmail"`
	Body              string    `firestore:"body"`
	CreatedAt         time.Time `firestore:"createdAt"`
	LikedBy           []string  `firestore:"likedBy"`
	LikeCount         int       `firestore:"likeCount"`
}

func (d commentDocument) toComment(id string) comments.Comment {
	likedBy := d.LikedBy
	if likedBy == nil {
		likedBy = []string{}
	}
	return comments.Comment{
		ID:                id,
		AuthorID:          d.AuthorID,
		AuthorDisplayName: d.AuthorDisplayName,
		AuthorEmail:       d.AuthorEmail,
		Body:              d.Body,
		CreatedAt:         d.CreatedAt.UTC(),
		LikedBy:           likedBy,
		LikeCount:         d.LikeCount,
	}
}

// CommentStore reads and writes the comments collection.
type CommentStore struct {
	client *firestore.Client
	logger *zap.Logger
}

// NewCommentStore constructs a CommentStore.
func NewCommentStore(client *firestore.Client, logger *zap.Logger) (*CommentStore, error) {
	if client == nil {
		return nil, fmt.Errorf("firebasestore: client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommentStore{client: client, logger: logger}, nil
}

// Watch listens to the collection ordered by createdAt descending and hands every query
// snapshot to handler.
func (s *CommentStore) Watch(ctx context.Context, handler comments.SnapshotHandler) (func(), error) {
	if handler == nil {
		return nil, fmt.Errorf("firebasestore: snapshot handler required")
	}
	watchCtx, cancel := context.WithCancel(ctx)
	snapshots := s.client.Collection(commentsCollection).
		OrderBy("createdAt", firestore.Desc).
		Snapshots(watchCtx)

	stop := func() {
		cancel()
		snapshots.Stop()
	}

	go func() {
		for {
			snapshot, err := snapshots.Next()
			if err != nil {
				if watchCtx.Err() != nil || errors.Is(err, iterator.Done) || isCanceled(err) {
					return
				}
				s.logger.Warn("comment listener failed", zap.Error(err))
				handler(nil, err)
				return
			}
			documents, err := snapshot.Documents.GetAll()
			if err != nil {
				handler(nil, err)
				return
			}
			list := make([]comments.Comment, 0, len(documents))
			for _, document := range documents {
				var decoded commentDocument
				if err := document.DataTo(&decoded); err != nil {
					s.logger.Warn("skipping malformed comment", zap.String("comment_id", document.Ref.ID), zap.Error(err))
					continue
				}
				list = append(list, decoded.toComment(document.Ref.ID))
			}
			handler(list, nil)
		}
	}()

	return stop, nil
}

// Create adds a comment document stamped with the server time.
func (s *CommentStore) Create(ctx context.Context, draft comments.Draft) (string, error) {
	ref, _, err := s.client.Collection(commentsCollection).Add(ctx, map[string]interface{}{
		"authorId":          draft.AuthorID,
		"authorDisplayName": draft.AuthorDisplayName,
		"authorEmail":       draft.AuthorEmail,
		"body":              draft.Body,
		"createdAt":         firestore.ServerTimestamp,
		"likedBy":           []string{},
		"likeCount":         0,
	})
	if err != nil {
		return "", err
	}
	return ref.ID, nil
}

// AddLike applies ArrayUnion and Increment(1) in a transaction that first checks membership.
func (s *CommentStore) AddLike(ctx context.Context, commentID, userID string) error {
	return s.toggle(ctx, commentID, userID, true)
}

// RemoveLike applies ArrayRemove and Increment(-1) in a transaction that first checks membership.
func (s *CommentStore) RemoveLike(ctx context.Context, commentID, userID string) error {
	return s.toggle(ctx, commentID, userID, false)
}

func (s *CommentStore) toggle(ctx context.Context, commentID, userID string, like bool) error {
	ref := s.client.Collection(commentsCollection).Doc(commentID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		document, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var current commentDocument
		if err := document.DataTo(&current); err != nil {
			return err
		}
		member := false
		for _, candidate := range current.LikedBy {
			if candidate == userID {
				member = true
				break
			}
		}
		if member == like {
			return nil
		}
		if like {
			return tx.Update(ref, []firestore.Update{
				{Path: "likedBy", Value: firestore.ArrayUnion(userID)},
				{Path: "likeCount", Value: firestore.Increment(1)},
			})
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "likedBy", Value: firestore.ArrayRemove(userID)},
			{Path: "likeCount", Value: firestore.Increment(-1)},
		})
	})
	if isNotFound(err) {
		return comments.ErrCommentNotFound
	}
	return err
}
