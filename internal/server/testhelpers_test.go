package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Clement3205902/Clement/internal/auth"
	"github.com/Clement3205902/Clement/internal/chat"
	"github.com/Clement3205902/Clement/internal/comments"
	"github.com/Clement3205902/Clement/internal/database"
	"github.com/Clement3205902/Clement/internal/session"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type stubGateway struct {
	mu        sync.Mutex
	enabled   bool
	sessions  map[string]session.Session
	loginErr  error
	loggedOut []string
}

func newStubGateway() *stubGateway {
	return &stubGateway{
		enabled:  true,
		sessions: map[string]session.Session{
			"token-ada":   {UserID: "uid-ada", DisplayName: "Ada", Email: "ada@example.edu", TokenID: "jti-ada"},
			"token-grace": {UserID: "uid-grace", DisplayName: "Grace", Email: "grace@example.com", TokenID: "jti-grace"},
		},
	}
}

func (g *stubGateway) Enabled() bool {
	return g.enabled
}

func (g *stubGateway) Authenticate(r *http.Request) (session.Session, error) {
	token := ""
	if header := r.Header.Get("Authorization"); header != "" {
		token = strings.TrimPrefix(header, "Bearer ")
	} else if cookie, err := r.Cookie(defaultCookieName); err == nil {
		token = cookie.Value
	}
	if token == "" {
		return session.Session{}, auth.ErrMissingSessionToken
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	sess, ok := g.sessions[token]
	if !ok {
		return session.Session{}, auth.ErrInvalidSessionToken
	}
	return sess, nil
}

func (g *stubGateway) Login(_ context.Context, email, _ string) (auth.IssuedSession, error) {
	if g.loginErr != nil {
		return auth.IssuedSession{}, g.loginErr
	}
	return auth.IssuedSession{
		Token:     "token-ada",
		Session:   session.Session{UserID: "uid-ada", DisplayName: "Ada", Email: email},
		ExpiresIn: 3600,
	}, nil
}

func (g *stubGateway) Signup(ctx context.Context, email, password, _ string) (auth.IssuedSession, error) {
	return g.Login(ctx, email, password)
}

func (g *stubGateway) LoginWithProvider(ctx context.Context, _, token string) (auth.IssuedSession, error) {
	return g.Login(ctx, "provider@example.com", token)
}

func (g *stubGateway) Refresh(_ context.Context, sess session.Session) (auth.IssuedSession, error) {
	return auth.IssuedSession{Token: "token-refreshed", Session: sess, ExpiresIn: 3600}, nil
}

func (g *stubGateway) Logout(_ context.Context, sess session.Session) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.loggedOut = append(g.loggedOut, sess.UserID)
	return nil
}

type stubCompleter struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests [][]chat.Turn
}

func (s *stubCompleter) Complete(_ context.Context, messages []chat.Turn) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, messages)
	return s.reply, s.err
}

type recordingActivity struct {
	mu      sync.Mutex
	userIDs []string
}

func (r *recordingActivity) RecordChatMessage(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userIDs = append(r.userIDs, userID)
	return nil
}

func (r *recordingActivity) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.userIDs...)
}

func newTestEngine(t *testing.T) *comments.Engine {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "server.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close(db)
	})
	store, err := database.NewCommentStore(database.CommentStoreConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct comment store: %v", err)
	}
	engine, err := comments.NewEngine(comments.EngineConfig{Store: store})
	if err != nil {
		t.Fatalf("failed to construct engine: %v", err)
	}
	return engine
}

func newTestHandler(t *testing.T, deps Dependencies) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if deps.Gateway == nil {
		deps.Gateway = newStubGateway()
	}
	if deps.Chat == nil {
		deps.Chat = chat.NewProxy(chat.ProxyConfig{})
	}
	handler, err := NewHTTPHandler(deps)
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	return handler
}

func perform(handler http.Handler, method, target, body, token string) *httptest.ResponseRecorder {
	var request *http.Request
	if body == "" {
		request = httptest.NewRequest(method, target, http.NoBody)
	} else {
		request = httptest.NewRequest(method, target, strings.NewReader(body))
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}
