package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Clement3205902/Clement/internal/comments"
	"github.com/Clement3205902/Clement/internal/pubsub"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type commentRecord struct {
	CommentID         string `gorm:"column:comment_id;primaryKey;size:64"`
	AuthorID          string `gorm:"column:author_id;size:190;not null;index"`
	AuthorDisplayName string `gorm:"column:author_display_name;not null"`
	AuthorEmail       string `gorm:"column:author_email;not null"`
	Body              string `gorm:"column:body;type:text;not null"`
	CreatedAtNanos    int64  `gorm:"column:created_at_ns;not null;index"`
	LikeCount         int    `gorm:"column:like_count;not null;default:0"`
}

func (commentRecord) TableName() string {
	return "comments"
}

type likeRecord struct {
	CommentID    string `gorm:"column:comment_id;primaryKey;size:64"`
	UserID       string `gorm:"column:user_id;primaryKey;size:190"`
	LikedAtNanos int64  `gorm:"column:liked_at_ns;not null"`
}

func (likeRecord) TableName() string {
	return "comment_likes"
}

// CommentStoreConfig describes the dependencies of the SQLite comment store.
type CommentStoreConfig struct {
	Database   *gorm.DB
	IDProvider IDProvider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// CommentStore keeps comments in SQLite and pushes the full collection to watchers after
// every committed change made through it.
type CommentStore struct {
	db      *gorm.DB
	ids     IDProvider
	now     func() time.Time
	logger  *zap.Logger
	changes *pubsub.Registry[struct{}]
}

// NewCommentStore constructs a CommentStore.
func NewCommentStore(cfg CommentStoreConfig) (*CommentStore, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("database: comment store requires a database")
	}
	ids := cfg.IDProvider
	if ids == nil {
		ids = NewUUIDProvider()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommentStore{
		db:      cfg.Database,
		ids:     ids,
		now:     clock,
		logger:  logger,
		changes: pubsub.NewRegistry[struct{}](1),
	}, nil
}

// Watch emits the current collection and then a fresh copy after each change. A failed
// reload is reported once and ends the watch.
func (s *CommentStore) Watch(ctx context.Context, handler comments.SnapshotHandler) (func(), error) {
	if handler == nil {
		return nil, fmt.Errorf("database: snapshot handler required")
	}
	watchCtx, cancel := context.WithCancel(ctx)
	notifications, unsubscribe := s.changes.Subscribe(watchCtx)

	initial, err := s.list(watchCtx)
	if err != nil {
		unsubscribe()
		cancel()
		return nil, err
	}

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			unsubscribe()
		})
	}

	go func() {
		handler(initial, nil)
		for {
			select {
			case <-watchCtx.Done():
				return
			case _, ok := <-notifications:
				if !ok {
					return
				}
				snapshot, err := s.list(watchCtx)
				if err != nil {
					if watchCtx.Err() != nil {
						return
					}
					s.logger.Warn("comment watch reload failed", zap.Error(err))
					handler(nil, err)
					stop()
					return
				}
				handler(snapshot, nil)
			}
		}
	}()

	return stop, nil
}

// Create inserts a comment with a server-assigned id and timestamp.
func (s *CommentStore) Create(ctx context.Context, draft comments.Draft) (string, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return "", err
	}
	record := commentRecord{
		CommentID:         id,
		AuthorID:          draft.AuthorID,
		AuthorDisplayName: draft.AuthorDisplayName,
		AuthorEmail:       draft.AuthorEmail,
		Body:              draft.Body,
		CreatedAtNanos:    s.now().UTC().UnixNano(),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return "", err
	}
	s.notify()
	return id, nil
}

// AddLike inserts the like row and bumps like_count in one transaction. Repeated calls for
// the same user leave the comment unchanged.
func (s *CommentStore) AddLike(ctx context.Context, commentID, userID string) error {
	changed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureComment(tx, commentID); err != nil {
			return err
		}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&likeRecord{
			CommentID:    commentID,
			UserID:       userID,
			LikedAtNanos: s.now().UTC().UnixNano(),
		})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		changed = true
		return tx.Model(&commentRecord{}).
			Where("comment_id = ?", commentID).
			Update("like_count", gorm.Expr("like_count + 1")).Error
	})
	if err != nil {
		return err
	}
	if changed {
		s.notify()
	}
	return nil
}

// RemoveLike deletes the like row and decrements like_count in one transaction.
func (s *CommentStore) RemoveLike(ctx context.Context, commentID, userID string) error {
	changed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureComment(tx, commentID); err != nil {
			return err
		}
		result := tx.Where("comment_id = ? AND user_id = ?", commentID, userID).Delete(&likeRecord{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		changed = true
		return tx.Model(&commentRecord{}).
			Where("comment_id = ?", commentID).
			Update("like_count", gorm.Expr("like_count - 1")).Error
	})
	if err != nil {
		return err
	}
	if changed {
		s.notify()
	}
	return nil
}

func (s *CommentStore) notify() {
	s.changes.Publish(struct{}{})
}

func (s *CommentStore) list(ctx context.Context) ([]comments.Comment, error) {
	var records []commentRecord
	var likes []likeRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Order("created_at_ns DESC").Order("comment_id DESC").Find(&records).Error; err != nil {
			return err
		}
		return tx.Order("liked_at_ns ASC").Order("user_id ASC").Find(&likes).Error
	})
	if err != nil {
		return nil, err
	}

	likers := make(map[string][]string, len(records))
	for _, like := range likes {
		likers[like.CommentID] = append(likers[like.CommentID], like.UserID)
	}

	snapshot := make([]comments.Comment, 0, len(records))
	for _, record := range records {
		likedBy := likers[record.CommentID]
		if likedBy == nil {
			likedBy = []string{}
		}
		snapshot = append(snapshot, comments.Comment{
			ID:                record.CommentID,
			AuthorID:          record.AuthorID,
			AuthorDisplayName: record.AuthorDisplayName,
			AuthorEmail:       record.AuthorEmail,
			Body:              record.Body,
			CreatedAt:         time.Unix(0, record.CreatedAtNanos).UTC(),
			LikedBy:           likedBy,
			LikeCount:         record.LikeCount,
		})
	}
	return snapshot, nil
}

func ensureComment(tx *gorm.DB, commentID string) error {
	var record commentRecord
	err := tx.Select("comment_id").Where("comment_id = ?", commentID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return comments.ErrCommentNotFound
	}
	return err
}
