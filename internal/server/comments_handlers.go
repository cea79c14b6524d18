package server

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/Clement3205902/Clement/internal/apperr"
	"github.com/Clement3205902/Clement/internal/comments"
	"github.com/Clement3205902/Clement/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	feedEventComments  = "comments"
	feedEventError     = "feed-error"
	feedEventHeartbeat = "heartbeat"
	feedEventLike      = "like-result"
	socketCommandLike  = "toggle-like"

	snapshotTimeout   = 10 * time.Second
	heartbeatInterval = 25 * time.Second
	socketWriteWait   = 10 * time.Second
	socketPongWait    = 60 * time.Second
)

type postCommentPayload struct {
	Body string `json:"body"`
}

type toggleLikePayload struct {
	LikedBy []string `json:"liked_by"`
}

func (h *httpHandler) handleCommentsSnapshot(c *gin.Context) {
	if h.comments == nil {
		writeDisabled(c)
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), snapshotTimeout)
	defer cancel()

	snapshot, err := h.comments.Snapshot(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": snapshot})
}

func (h *httpHandler) handlePostComment(c *gin.Context) {
	if h.comments == nil {
		writeDisabled(c)
		return
	}
	var request postCommentPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	id, err := h.comments.PostComment(c.Request.Context(), session.Pointer(c.Request.Context()), request.Body)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *httpHandler) handleToggleLike(c *gin.Context) {
	if h.comments == nil {
		writeDisabled(c)
		return
	}
	var request toggleLikePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	liked, err := h.comments.ToggleLike(c.Request.Context(), session.Pointer(c.Request.Context()), c.Param("id"), request.LikedBy)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"liked": liked})
}

// handleCommentsStream serves the feed as server-sent events. Each emission is a complete
// list; a feed failure sends one feed-error event and ends the stream.
func (h *httpHandler) handleCommentsStream(c *gin.Context) {
	if h.comments == nil {
		writeDisabled(c)
		return
	}
	sub, err := h.comments.Subscribe(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	defer sub.Close()
	h.streamOpened()
	defer h.streamClosed()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case update, ok := <-sub.Updates():
			if !ok {
				return false
			}
			if update.Err != nil {
				c.SSEvent(feedEventError, gin.H{"error": string(apperr.KindOf(update.Err))})
				return false
			}
			c.SSEvent(feedEventComments, gin.H{"comments": update.Comments})
			return true
		case <-heartbeat.C:
			c.SSEvent(feedEventHeartbeat, gin.H{"at": time.Now().UTC()})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

type socketCommand struct {
	Type      string `json:"type"`
	CommentID string `json:"comment_id"`
}

type socketFrame struct {
	Type      string             `json:"type"`
	Comments  []comments.Comment `json:"comments,omitempty"`
	CommentID string             `json:"comment_id,omitempty"`
	Liked     *bool              `json:"liked,omitempty"`
	Error     string             `json:"error,omitempty"`
}

type feedSocket struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *feedSocket) send(frame socketFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(socketWriteWait)); err != nil {
		return err
	}
	return s.conn.WriteJSON(frame)
}

func (s *feedSocket) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(socketWriteWait))
}

// handleCommentsSocket serves the feed over a websocket with a per-connection replica.
// Clients send {"type":"toggle-like","comment_id":...} and get a like-result frame followed
// by the replica, which carries the prediction until the next emission replaces it.
func (h *httpHandler) handleCommentsSocket(c *gin.Context) {
	if h.comments == nil {
		writeDisabled(c)
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	socket := &feedSocket{conn: conn}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sub, err := h.comments.Subscribe(ctx)
	if err != nil {
		_ = socket.send(socketFrame{Type: feedEventError, Error: string(apperr.KindOf(err))})
		return
	}
	defer sub.Close()
	h.streamOpened()
	defer h.streamClosed()

	sess := session.Pointer(c.Request.Context())
	userID := ""
	if sess != nil {
		userID = sess.UserID
	}
	view := comments.NewView(userID)

	go h.readSocketCommands(ctx, cancel, socket, sess, view)

	pinger := time.NewTicker(heartbeatInterval)
	defer pinger.Stop()
	for {
		select {
		case update, ok := <-sub.Updates():
			if !ok {
				return
			}
			if update.Err != nil {
				_ = socket.send(socketFrame{Type: feedEventError, Error: string(apperr.KindOf(update.Err))})
				return
			}
			view.Apply(update.Comments)
			if err := socket.send(socketFrame{Type: feedEventComments, Comments: view.Comments()}); err != nil {
				return
			}
		case <-pinger.C:
			if err := socket.ping(); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (h *httpHandler) readSocketCommands(ctx context.Context, cancel context.CancelFunc, socket *feedSocket, sess *session.Session, view *comments.View) {
	defer cancel()
	conn := socket.conn
	_ = conn.SetReadDeadline(time.Now().Add(socketPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(socketPongWait))
	})
	for {
		var command socketCommand
		if err := conn.ReadJSON(&command); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket closed", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(socketPongWait))
		if command.Type != socketCommandLike {
			_ = socket.send(socketFrame{Type: feedEventError, Error: "unknown_command"})
			continue
		}
		liked, err := h.comments.ToggleLikeInView(ctx, sess, view, command.CommentID)
		if err != nil {
			_ = socket.send(socketFrame{Type: feedEventLike, CommentID: command.CommentID, Error: string(apperr.KindOf(err))})
			_ = socket.send(socketFrame{Type: feedEventComments, Comments: view.Comments()})
			continue
		}
		_ = socket.send(socketFrame{Type: feedEventLike, CommentID: command.CommentID, Liked: &liked})
		_ = socket.send(socketFrame{Type: feedEventComments, Comments: view.Comments()})
	}
}

func (h *httpHandler) streamOpened() {
	if h.metrics != nil {
		h.metrics.StreamOpened()
	}
}

func (h *httpHandler) streamClosed() {
	if h.metrics != nil {
		h.metrics.StreamClosed()
	}
}
