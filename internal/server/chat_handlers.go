package server

import (
	"context"
	"net/http"
	"time"

	"github.com/Clement3205902/Clement/internal/apperr"
	"github.com/Clement3205902/Clement/internal/chat"
	"github.com/Clement3205902/Clement/internal/session"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	chatErrorMissingMessages = "Messages are required and must be an array"
	chatErrorGeneration      = "Failed to generate response"
	chatActivityTimeout      = 5 * time.Second
)

type chatRequestPayload struct {
	Messages []chat.Turn `json:"messages"`
}

func (h *httpHandler) handleChat(c *gin.Context) {
	var request chatRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": chatErrorMissingMessages})
		return
	}
	reply, err := h.chat.GenerateReply(c.Request.Context(), request.Messages)
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindInvalidInput:
			c.JSON(http.StatusBadRequest, gin.H{"error": chatErrorMissingMessages})
		case apperr.KindServiceUnavailable:
			writeDisabled(c)
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": chatErrorGeneration})
		}
		return
	}
	if sess, ok := session.FromContext(c.Request.Context()); ok {
		h.recordChatActivity(sess.UserID)
	}
	c.JSON(http.StatusOK, gin.H{"message": reply})
}

func (h *httpHandler) handleGreeting(c *gin.Context) {
	name := ""
	if sess, ok := session.FromContext(c.Request.Context()); ok {
		name = sess.DisplayName
	}
	c.JSON(http.StatusOK, gin.H{"message": h.chat.Greeting(name)})
}

// recordChatActivity is best effort; a missing profile or store outage never fails the reply.
func (h *httpHandler) recordChatActivity(userID string) {
	if h.chatActivity == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), chatActivityTimeout)
	defer cancel()
	if err := h.chatActivity.RecordChatMessage(ctx, userID); err != nil {
		h.logger.Warn("chat activity not recorded", zap.String("user_id", userID), zap.Error(err))
	}
}
