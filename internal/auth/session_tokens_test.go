package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Clement3205902/Clement/internal/session"
)

const testSessionSigningSecret = "secret"

func newTestSessionTokens(t *testing.T, clock func() time.Time) *SessionTokens {
	t.Helper()
	tokens, err := NewSessionTokens(SessionTokenConfig{
		SigningSecret: []byte(testSessionSigningSecret),
		CookieName:    "app_session",
		TTL:           time.Hour,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("failed to construct session tokens: %v", err)
	}
	return tokens
}

func TestSessionTokensRoundTrip(t *testing.T) {
	clockNow := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	tokens := newTestSessionTokens(t, func() time.Time { return clockNow })

	signed, issued, err := tokens.Issue(session.Session{UserID: "user-123", Email: "user@example.com", DisplayName: "User"})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	if issued.TokenID == "" || !issued.ExpiresAt.Equal(clockNow.Add(time.Hour)) {
		t.Fatalf("expected token id and expiry to be stamped, got %+v", issued)
	}

	validated, err := tokens.Validate(signed)
	if err != nil {
		t.Fatalf("unexpected validation failure: %v", err)
	}
	if validated.UserID != "user-123" || validated.Email != "user@example.com" || validated.DisplayName != "User" {
		t.Fatalf("unexpected session %+v", validated)
	}
	if validated.TokenID != issued.TokenID {
		t.Fatalf("expected token id %s, got %s", issued.TokenID, validated.TokenID)
	}
}

func TestSessionTokensRejectExpiredAndRevoked(t *testing.T) {
	clockNow := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	tokens := newTestSessionTokens(t, func() time.Time { return clockNow })

	signed, issued, err := tokens.Issue(session.Session{UserID: "user-123"})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	tokens.Revoke(issued)
	if _, err := tokens.Validate(signed); !errors.Is(err, ErrRevokedSessionToken) {
		t.Fatalf("expected revoked token error, got %v", err)
	}

	other, _, err := tokens.Issue(session.Session{UserID: "user-456"})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	clockNow = clockNow.Add(2 * time.Hour)
	if _, err := tokens.Validate(other); !errors.Is(err, ErrExpiredSessionToken) {
		t.Fatalf("expected expired token error, got %v", err)
	}
}

func TestSessionTokensRejectForeignSignature(t *testing.T) {
	tokens := newTestSessionTokens(t, nil)
	foreign, err := NewSessionTokens(SessionTokenConfig{SigningSecret: []byte("other")})
	if err != nil {
		t.Fatalf("failed to construct foreign tokens: %v", err)
	}
	signed, _, err := foreign.Issue(session.Session{UserID: "user-123"})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	if _, err := tokens.Validate(signed); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
}

func TestSessionTokensValidateRequest(t *testing.T) {
	tokens := newTestSessionTokens(t, nil)
	signed, _, err := tokens.Issue(session.Session{UserID: "user-123"})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	bearer := httptest.NewRequest(http.MethodGet, "/", nil)
	bearer.Header.Set("Authorization", "Bearer "+signed)
	if sess, err := tokens.ValidateRequest(bearer); err != nil || sess.UserID != "user-123" {
		t.Fatalf("expected bearer token to validate, got %+v %v", sess, err)
	}

	cookie := httptest.NewRequest(http.MethodGet, "/", nil)
	cookie.AddCookie(&http.Cookie{Name: tokens.CookieName(), Value: signed})
	if sess, err := tokens.ValidateRequest(cookie); err != nil || sess.UserID != "user-123" {
		t.Fatalf("expected cookie token to validate, got %+v %v", sess, err)
	}

	basic := httptest.NewRequest(http.MethodGet, "/", nil)
	basic.Header.Set("Authorization", "Basic abc")
	if _, err := tokens.ValidateRequest(basic); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected invalid scheme to be rejected, got %v", err)
	}

	if _, err := tokens.ValidateRequest(httptest.NewRequest(http.MethodGet, "/", nil)); !errors.Is(err, ErrMissingSessionToken) {
		t.Fatalf("expected missing token, got %v", err)
	}
}

func TestNewSessionTokensRequiresSecret(t *testing.T) {
	if _, err := NewSessionTokens(SessionTokenConfig{}); !errors.Is(err, ErrMissingSessionSigningKey) {
		t.Fatalf("expected missing signing key error, got %v", err)
	}
}
