package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Clement3205902/Clement/internal/session"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultSessionTTL        = 60 * time.Minute
	defaultSessionIssuer     = "portfolio-api"
	defaultSessionCookieName = "portfolio_session"
)

var (
	ErrMissingSessionSigningKey = errors.New("session tokens: signing key required")
	ErrMissingSessionToken      = errors.New("session tokens: token required")
	ErrInvalidSessionToken      = errors.New("session tokens: invalid token")
	ErrExpiredSessionToken      = errors.New("session tokens: token expired")
	ErrRevokedSessionToken      = errors.New("session tokens: token revoked")
	ErrMissingSessionSubject    = errors.New("session tokens: subject required")
)

// SessionClaims is the payload of a backend session token.
type SessionClaims struct {
	UserID          string `json:"user_id"`
	UserEmail       string `json:"user_email"`
	UserDisplayName string `json:"user_display_name"`
	jwt.RegisteredClaims
}

// SessionTokenConfig describes how backend session tokens are signed.
type SessionTokenConfig struct {
	SigningSecret []byte
	Issuer        string
	CookieName    string
	TTL           time.Duration
	Clock         func() time.Time
}

// SessionTokens issues and validates HS256 session tokens and tracks revoked token ids.
type SessionTokens struct {
	signingSecret []byte
	issuer        string
	cookieName    string
	ttl           time.Duration
	clock         func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time
}

// NewSessionTokens constructs SessionTokens with the provided configuration.
func NewSessionTokens(cfg SessionTokenConfig) (*SessionTokens, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSessionSigningKey
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = defaultSessionIssuer
	}
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		cookieName = defaultSessionCookieName
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SessionTokens{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		cookieName:    cookieName,
		ttl:           ttl,
		clock:         clock,
		revoked:       make(map[string]time.Time),
	}, nil
}

// CookieName returns the cookie carrying the session token.
func (t *SessionTokens) CookieName() string {
	return t.cookieName
}

// TTL returns the lifetime of issued tokens.
func (t *SessionTokens) TTL() time.Duration {
	return t.ttl
}

// Issue signs a token for sess and returns it with the session stamped with token id and expiry.
func (t *SessionTokens) Issue(sess session.Session) (string, session.Session, error) {
	userID := strings.TrimSpace(sess.UserID)
	if userID == "" {
		return "", session.Session{}, ErrMissingSessionSubject
	}
	tokenID, err := uuid.NewV7()
	if err != nil {
		return "", session.Session{}, err
	}

	now := t.clock().UTC()
	expiresAt := now.Add(t.ttl)
	claims := SessionClaims{
		UserID:          userID,
		UserEmail:       sess.Email,
		UserDisplayName: sess.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID.String(),
			Issuer:    t.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.signingSecret)
	if err != nil {
		return "", session.Session{}, err
	}

	issued := sess
	issued.UserID = userID
	issued.TokenID = claims.ID
	issued.ExpiresAt = expiresAt
	return signed, issued, nil
}

// Validate parses tokenString and returns the session it carries.
func (t *SessionTokens) Validate(tokenString string) (session.Session, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return session.Session{}, ErrMissingSessionToken
	}

	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(*jwt.Token) (interface{}, error) {
			return t.signingSecret, nil
		},
		jwt.WithTimeFunc(t.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return session.Session{}, ErrExpiredSessionToken
		}
		return session.Session{}, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return session.Session{}, ErrInvalidSessionToken
	}
	if strings.TrimSpace(claims.Subject) == "" || strings.TrimSpace(claims.UserID) == "" {
		return session.Session{}, ErrMissingSessionSubject
	}
	if t.isRevoked(claims.ID) {
		return session.Session{}, ErrRevokedSessionToken
	}

	sess := session.Session{
		UserID:      claims.UserID,
		DisplayName: claims.UserDisplayName,
		Email:       claims.UserEmail,
		TokenID:     claims.ID,
	}
	if claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Time
	}
	return sess, nil
}

// ValidateRequest reads the token from the Authorization header, falling back to the cookie.
func (t *SessionTokens) ValidateRequest(r *http.Request) (session.Session, error) {
	if r == nil {
		return session.Session{}, ErrMissingSessionToken
	}
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			return session.Session{}, ErrInvalidSessionToken
		}
		return t.Validate(token)
	}
	cookie, err := r.Cookie(t.cookieName)
	if err != nil || cookie == nil {
		return session.Session{}, ErrMissingSessionToken
	}
	return t.Validate(cookie.Value)
}

// Revoke rejects sess's token until it would have expired anyway.
func (t *SessionTokens) Revoke(sess session.Session) {
	if sess.TokenID == "" {
		return
	}
	expiresAt := sess.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = t.clock().Add(t.ttl)
	}
	now := t.clock()

	t.mu.Lock()
	defer t.mu.Unlock()
	for tokenID, expiry := range t.revoked {
		if now.After(expiry) {
			delete(t.revoked, tokenID)
		}
	}
	t.revoked[sess.TokenID] = expiresAt
}

func (t *SessionTokens) isRevoked(tokenID string) bool {
	if tokenID == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, revoked := t.revoked[tokenID]
	return revoked
}
