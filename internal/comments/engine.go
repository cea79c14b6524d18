// Package comments maintains the live, newest-first comment feed and applies like toggles.
package comments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/Clement3205902/Clement/internal/apperr"
	"github.com/Clement3205902/Clement/internal/session"
	"go.uber.org/zap"
)

const (
	opNewEngine  = "comments.engine.new"
	opSubscribe  = "comments.subscribe"
	opSnapshot   = "comments.snapshot"
	opPost       = "comments.post"
	opToggleLike = "comments.toggle_like"
)

var errMissingStore = errors.New("comments: store is required")

// Metrics receives feed and mutation counters. A nil Metrics disables recording.
type Metrics interface {
	RecordFeedEmission(comments int)
	RecordFeedError()
	RecordCommentPosted()
	RecordLikeToggled(liked bool)
}

// EngineConfig describes the engine's collaborators.
type EngineConfig struct {
	Store     Store
	Sanitizer Sanitizer
	Metrics   Metrics
	Logger    *zap.Logger
}

// Engine is the comment feed engine. The document store is the only source of truth; the
// engine holds no comment state beyond its subscription registry.
type Engine struct {
	store     Store
	sanitizer Sanitizer
	metrics   Metrics
	logger    *zap.Logger

	mu            sync.Mutex
	subscriptions map[int64]*Subscription
	nextID        int64
}

// NewEngine validates the configuration and constructs an Engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Store == nil {
		return nil, apperr.Unavailable(opNewEngine, errMissingStore)
	}
	sanitizer := cfg.Sanitizer
	if sanitizer == nil {
		sanitizer = NewPlainTextSanitizer()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:         cfg.Store,
		sanitizer:     sanitizer,
		metrics:       cfg.Metrics,
		logger:        logger,
		subscriptions: make(map[int64]*Subscription),
	}, nil
}

// Subscribe opens a feed. Every store-side change emits the complete collection ordered by
// createdAt descending. A store failure emits a single error update wrapping
// ErrFeedUnavailable and closes the subscription; callers retry by subscribing again.
func (e *Engine) Subscribe(ctx context.Context) (*Subscription, error) {
	watchCtx, cancel := context.WithCancel(ctx)

	e.mu.Lock()
	e.nextID++
	sub := newSubscription(e.nextID, cancel, e.unregister)
	e.subscriptions[sub.id] = sub
	e.mu.Unlock()

	stop, err := e.store.Watch(watchCtx, func(snapshot []Comment, watchErr error) {
		if watchErr != nil {
			e.logError(opSubscribe, "watch_failed", watchErr, zap.Int64("subscription_id", sub.id))
			e.recordFeedError()
			sub.fail(apperr.Unavailable(opSubscribe, fmt.Errorf("%w: %v", ErrFeedUnavailable, watchErr)))
			return
		}
		ordered := e.prepare(snapshot)
		if e.metrics != nil {
			e.metrics.RecordFeedEmission(len(ordered))
		}
		sub.deliver(Update{Comments: ordered})
	})
	if err != nil {
		sub.Close()
		e.logError(opSubscribe, "watch_open_failed", err)
		e.recordFeedError()
		return nil, apperr.Unavailable(opSubscribe, fmt.Errorf("%w: %v", ErrFeedUnavailable, err))
	}
	sub.attach(stop)

	go func() {
		select {
		case <-watchCtx.Done():
			sub.Close()
		case <-sub.Done():
		}
	}()

	return sub, nil
}

// Snapshot returns the first emission of a fresh subscription.
func (e *Engine) Snapshot(ctx context.Context) ([]Comment, error) {
	sub, err := e.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	defer sub.Close()

	select {
	case update, ok := <-sub.Updates():
		if !ok {
			return nil, apperr.Unavailable(opSnapshot, ErrFeedUnavailable)
		}
		if update.Err != nil {
			return nil, update.Err
		}
		return update.Comments, nil
	case <-ctx.Done():
		return nil, apperr.Unavailable(opSnapshot, ctx.Err())
	}
}

// ActiveSubscriptions reports the number of open subscriptions.
func (e *Engine) ActiveSubscriptions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subscriptions)
}

// PostComment appends a new comment authored by sess. A blank body is rejected before the
// session is checked. The comment shows up on the next feed emission; nothing is inserted
// into any local view.
func (e *Engine) PostComment(ctx context.Context, sess *session.Session, body string) (string, error) {
	if strings.TrimSpace(body) == "" {
		return "", apperr.Validation(opPost, ErrEmptyBody)
	}
	if sess == nil || sess.UserID == "" {
		return "", apperr.Auth(opPost, ErrMissingSession)
	}
	text := e.sanitizer.Sanitize(body)
	if text == "" {
		return "", apperr.Validation(opPost, ErrEmptyBody)
	}
	if utf8.RuneCountInString(text) > maxBodyLength {
		return "", apperr.Validation(opPost, fmt.Errorf("%w: exceeds %d characters", ErrBodyTooLong, maxBodyLength))
	}

	id, err := e.store.Create(ctx, Draft{
		AuthorID:          sess.UserID,
		AuthorDisplayName: sess.AuthorName(),
		AuthorEmail:       strings.TrimSpace(sess.Email),
		Body:              text,
	})
	if err != nil {
		e.logError(opPost, "create_failed", err, zap.String("user_id", sess.UserID))
		return "", apperr.Unavailable(opPost, err)
	}
	if e.metrics != nil {
		e.metrics.RecordCommentPosted()
	}
	e.logger.Info("comment posted", zap.String("comment_id", id), zap.String("user_id", sess.UserID))
	return id, nil
}

// ToggleLike flips sess's like on commentID. Whether to add or remove is decided from
// currentLikedBy, the caller's last known liker set, not from the store's latest state. It
// returns the predicted liked state.
func (e *Engine) ToggleLike(ctx context.Context, sess *session.Session, commentID string, currentLikedBy []string) (bool, error) {
	if sess == nil || sess.UserID == "" {
		return false, apperr.Auth(opToggleLike, ErrMissingSession)
	}
	commentID = strings.TrimSpace(commentID)
	if commentID == "" {
		return false, apperr.Validation(opToggleLike, ErrInvalidCommentID)
	}

	wasLiked := containsUser(currentLikedBy, sess.UserID)
	var err error
	if wasLiked {
		err = e.store.RemoveLike(ctx, commentID, sess.UserID)
	} else {
		err = e.store.AddLike(ctx, commentID, sess.UserID)
	}
	if err != nil {
		fields := []zap.Field{zap.String("comment_id", commentID), zap.String("user_id", sess.UserID)}
		if errors.Is(err, ErrCommentNotFound) {
			e.logger.Info("like toggle on missing comment", fields...)
			return false, apperr.NotFound(opToggleLike, err)
		}
		e.logError(opToggleLike, "mutation_failed", err, fields...)
		return false, apperr.Unavailable(opToggleLike, err)
	}
	if e.metrics != nil {
		e.metrics.RecordLikeToggled(!wasLiked)
	}
	return !wasLiked, nil
}

func (e *Engine) prepare(snapshot []Comment) []Comment {
	prepared := make([]Comment, 0, len(snapshot))
	for _, comment := range snapshot {
		clone := cloneComment(comment)
		if reconcileLikes(&clone) {
			e.logger.Warn("comment like count diverged from liker set",
				zap.String("comment_id", clone.ID),
				zap.Int("stored_like_count", comment.LikeCount),
				zap.Int("liked_by_size", clone.LikeCount))
		}
		prepared = append(prepared, clone)
	}
	return orderNewestFirst(prepared)
}

func (e *Engine) unregister(id int64) {
	e.mu.Lock()
	delete(e.subscriptions, id)
	e.mu.Unlock()
}

func (e *Engine) recordFeedError() {
	if e.metrics != nil {
		e.metrics.RecordFeedError()
	}
}

func (e *Engine) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	e.logger.Error("comments engine error", attrs...)
}
