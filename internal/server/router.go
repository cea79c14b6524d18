// Package server exposes the comment feed, chat proxy and auth gateway over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Clement3205902/Clement/internal/auth"
	"github.com/Clement3205902/Clement/internal/chat"
	"github.com/Clement3205902/Clement/internal/comments"
	"github.com/Clement3205902/Clement/internal/metrics"
	"github.com/Clement3205902/Clement/internal/session"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const defaultCookieName = "portfolio_session"

var (
	errMissingGateway   = errors.New("auth gateway dependency required")
	errMissingChatProxy = errors.New("chat proxy dependency required")
)

// AuthGateway signs users in and resolves the session carried by a request.
type AuthGateway interface {
	Enabled() bool
	Authenticate(r *http.Request) (session.Session, error)
	Login(ctx context.Context, email, password string) (auth.IssuedSession, error)
	Signup(ctx context.Context, email, password, displayName string) (auth.IssuedSession, error)
	LoginWithProvider(ctx context.Context, providerID, providerToken string) (auth.IssuedSession, error)
	Refresh(ctx context.Context, sess session.Session) (auth.IssuedSession, error)
	Logout(ctx context.Context, sess session.Session) error
}

// ChatActivityRecorder counts chat messages sent by signed-in users.
type ChatActivityRecorder interface {
	RecordChatMessage(ctx context.Context, userID string) error
}

// Dependencies wires the HTTP handler. A nil Comments engine disables the comment routes
// with 503 responses; a disabled gateway or chat proxy does the same for theirs.
type Dependencies struct {
	Gateway        AuthGateway
	Comments       *comments.Engine
	Chat           *chat.Proxy
	ChatActivity   ChatActivityRecorder
	Metrics        *metrics.Collector
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
	CookieName     string
	CookieSecure   bool
	Logger         *zap.Logger
}

// NewHTTPHandler builds the gin engine serving every route.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Gateway == nil {
		return nil, errMissingGateway
	}
	if deps.Chat == nil {
		return nil, errMissingChatProxy
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cookieName := strings.TrimSpace(deps.CookieName)
	if cookieName == "" {
		cookieName = defaultCookieName
	}

	handler := &httpHandler{
		gateway:      deps.Gateway,
		comments:     deps.Comments,
		chat:         deps.Chat,
		chatActivity: deps.ChatActivity,
		metrics:      deps.Metrics,
		cookieName:   cookieName,
		cookieSecure: deps.CookieSecure,
		logger:       logger,
	}
	handler.upgrader = websocket.Upgrader{
		CheckOrigin: originChecker(deps.AllowedOrigins),
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))
	router.Use(handler.accessLog)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/status", handler.handleStatus)
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler(deps.Gatherer)))
	}

	router.POST("/auth/signup", handler.handleSignup)
	router.POST("/auth/login", handler.handleLogin)
	router.POST("/auth/provider", handler.handleProviderLogin)
	router.GET("/auth/session", handler.optionalSession, handler.handleSession)

	router.GET("/comments", handler.handleCommentsSnapshot)
	router.GET("/comments/stream", handler.handleCommentsStream)
	router.GET("/comments/ws", handler.optionalSession, handler.handleCommentsSocket)

	router.POST("/chat", handler.optionalSession, handler.handleChat)
	router.GET("/chat/greeting", handler.optionalSession, handler.handleGreeting)

	protected := router.Group("/")
	protected.Use(handler.requireSession)
	protected.POST("/auth/refresh", handler.handleRefresh)
	protected.POST("/auth/logout", handler.handleLogout)
	protected.POST("/comments", handler.handlePostComment)
	protected.POST("/comments/:id/like", handler.handleToggleLike)

	return router, nil
}

type httpHandler struct {
	gateway      AuthGateway
	comments     *comments.Engine
	chat         *chat.Proxy
	chatActivity ChatActivityRecorder
	metrics      *metrics.Collector
	upgrader     websocket.Upgrader
	cookieName   string
	cookieSecure bool
	logger       *zap.Logger
}

func (h *httpHandler) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"auth":     h.gateway.Enabled(),
		"comments": h.comments != nil,
		"chat":     h.chat.Enabled(),
	})
}

func (h *httpHandler) accessLog(c *gin.Context) {
	started := time.Now()
	c.Next()

	elapsed := time.Since(started)
	status := c.Writer.Status()
	route := c.FullPath()
	if h.metrics != nil {
		h.metrics.RecordHTTPRequest(route, status, elapsed)
	}
	fields := []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("route", route),
		zap.Int("status", status),
		zap.Duration("duration", elapsed),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Warn("http request", fields...)
		return
	}
	h.logger.Debug("http request", fields...)
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 || containsWildcard(allowedOrigins) {
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = allowedOrigins
	}
	return cors.New(cfg)
}

func originChecker(allowedOrigins []string) func(*http.Request) bool {
	if len(allowedOrigins) == 0 || containsWildcard(allowedOrigins) {
		return func(*http.Request) bool { return true }
	}
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[strings.TrimRight(origin, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[strings.TrimRight(origin, "/")]
		return ok
	}
}

func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}
