// Package auth fronts the identity provider: it signs users in through Firebase, issues
// backend session tokens and broadcasts session changes.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Clement3205902/Clement/internal/apperr"
	"github.com/Clement3205902/Clement/internal/pubsub"
	"github.com/Clement3205902/Clement/internal/session"
	"go.uber.org/zap"
)

const (
	opLogin             = "auth.login"
	opSignup            = "auth.signup"
	opLoginWithProvider = "auth.login_with_provider"
	opRefresh           = "auth.refresh"
	opLogout            = "auth.logout"
	opAuthenticate      = "auth.authenticate"

	sessionChangeBuffer = 16
)

// ErrGatewayDisabled is returned by every operation of a gateway without an identity provider.
var ErrGatewayDisabled = errors.New("auth: identity provider not configured")

// IdentityProvider is the account backend the gateway signs users in with.
type IdentityProvider interface {
	SignInWithPassword(ctx context.Context, email, password string) (IdentityResult, error)
	SignUp(ctx context.Context, email, password string) (IdentityResult, error)
	UpdateDisplayName(ctx context.Context, idToken, displayName string) error
	SignInWithIdp(ctx context.Context, providerID, providerToken string) (IdentityResult, error)
}

// IDTokenVerifier checks an ID token minted by the identity provider.
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (FirebaseClaims, error)
}

// GatewayConfig describes the gateway's collaborators. A nil Identity, Verifier or Tokens
// yields a disabled gateway.
type GatewayConfig struct {
	Identity IdentityProvider
	Verifier IDTokenVerifier
	Tokens   *SessionTokens
	Logger   *zap.Logger
	Clock    func() time.Time
}

// IssuedSession is a freshly signed session token together with the session it encodes.
type IssuedSession struct {
	Token     string
	Session   session.Session
	ExpiresIn int64
}

// Gateway implements login, signup, provider login, refresh and logout.
type Gateway struct {
	identity IdentityProvider
	verifier IDTokenVerifier
	tokens   *SessionTokens
	logger   *zap.Logger
	now      func() time.Time
	changes  *pubsub.Registry[session.Change]
}

// NewGateway constructs a Gateway.
func NewGateway(cfg GatewayConfig) *Gateway {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	gateway := &Gateway{
		identity: cfg.Identity,
		verifier: cfg.Verifier,
		tokens:   cfg.Tokens,
		logger:   logger,
		now:      clock,
		changes:  pubsub.NewRegistry[session.Change](sessionChangeBuffer),
	}
	if !gateway.Enabled() {
		logger.Warn("auth gateway disabled", zap.Error(ErrGatewayDisabled))
	}
	return gateway
}

// Enabled reports whether the gateway can sign users in.
func (g *Gateway) Enabled() bool {
	return g.identity != nil && g.verifier != nil && g.tokens != nil
}

// Tokens exposes the session token codec, or nil when disabled.
func (g *Gateway) Tokens() *SessionTokens {
	return g.tokens
}

// CurrentSession returns the session threaded through ctx.
func (g *Gateway) CurrentSession(ctx context.Context) (session.Session, bool) {
	return session.FromContext(ctx)
}

// OnSessionChange registers a listener for session changes. The returned cancel function
// is synchronous and idempotent; a new listener may be registered at any time.
func (g *Gateway) OnSessionChange(ctx context.Context) (<-chan session.Change, func()) {
	return g.changes.Subscribe(ctx)
}

// Authenticate resolves the session carried by r.
func (g *Gateway) Authenticate(r *http.Request) (session.Session, error) {
	if g.tokens == nil {
		return session.Session{}, apperr.Unavailable(opAuthenticate, ErrGatewayDisabled)
	}
	sess, err := g.tokens.ValidateRequest(r)
	if err != nil {
		return session.Session{}, apperr.Auth(opAuthenticate, err)
	}
	return sess, nil
}

// Login signs in with email and password.
func (g *Gateway) Login(ctx context.Context, email, password string) (IssuedSession, error) {
	if !g.Enabled() {
		return IssuedSession{}, apperr.Unavailable(opLogin, ErrGatewayDisabled)
	}
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return IssuedSession{}, translate(opLogin, &Failure{Code: FailureInvalidCredentials, Reason: "email and password required"})
	}
	result, err := g.identity.SignInWithPassword(ctx, email, password)
	if err != nil {
		g.logFailure(opLogin, err)
		return IssuedSession{}, translate(opLogin, err)
	}
	return g.establish(ctx, opLogin, session.EventLogin, result, "")
}

// Signup creates an account, sets its display name and signs it in.
func (g *Gateway) Signup(ctx context.Context, email, password, displayName string) (IssuedSession, error) {
	if !g.Enabled() {
		return IssuedSession{}, apperr.Unavailable(opSignup, ErrGatewayDisabled)
	}
	email = strings.TrimSpace(email)
	displayName = strings.TrimSpace(displayName)
	if email == "" || password == "" {
		return IssuedSession{}, translate(opSignup, &Failure{Code: FailureInvalidCredentials, Reason: "email and password required"})
	}
	result, err := g.identity.SignUp(ctx, email, password)
	if err != nil {
		g.logFailure(opSignup, err)
		return IssuedSession{}, translate(opSignup, err)
	}
	if displayName != "" {
		if err := g.identity.UpdateDisplayName(ctx, result.IDToken, displayName); err != nil {
			g.logger.Warn("display name update failed",
				zap.String("operation", opSignup),
				zap.String("user_id", result.UserID),
				zap.Error(err))
		}
	}
	result.NewUser = true
	return g.establish(ctx, opSignup, session.EventSignup, result, displayName)
}

// LoginWithProvider signs in with a federated provider's ID token.
func (g *Gateway) LoginWithProvider(ctx context.Context, providerID, providerToken string) (IssuedSession, error) {
	if !g.Enabled() {
		return IssuedSession{}, apperr.Unavailable(opLoginWithProvider, ErrGatewayDisabled)
	}
	if strings.TrimSpace(providerToken) == "" {
		return IssuedSession{}, translate(opLoginWithProvider, &Failure{Code: FailureProviderCancelled, Reason: "empty provider token"})
	}
	result, err := g.identity.SignInWithIdp(ctx, providerID, providerToken)
	if err != nil {
		g.logFailure(opLoginWithProvider, err)
		return IssuedSession{}, translate(opLoginWithProvider, err)
	}
	return g.establish(ctx, opLoginWithProvider, session.EventProviderLogin, result, "")
}

// Refresh replaces sess's token with a new one. The old token is revoked.
func (g *Gateway) Refresh(_ context.Context, sess session.Session) (IssuedSession, error) {
	if g.tokens == nil {
		return IssuedSession{}, apperr.Unavailable(opRefresh, ErrGatewayDisabled)
	}
	if strings.TrimSpace(sess.UserID) == "" {
		return IssuedSession{}, apperr.Auth(opRefresh, ErrMissingSessionSubject)
	}
	issued, err := g.issue(opRefresh, sess)
	if err != nil {
		return IssuedSession{}, err
	}
	g.tokens.Revoke(sess)
	g.publish(session.EventRefresh, &issued.Session, false)
	return issued, nil
}

// Logout revokes sess's token.
func (g *Gateway) Logout(_ context.Context, sess session.Session) error {
	if g.tokens == nil {
		return apperr.Unavailable(opLogout, ErrGatewayDisabled)
	}
	if strings.TrimSpace(sess.UserID) == "" {
		return apperr.Auth(opLogout, ErrMissingSessionSubject)
	}
	g.tokens.Revoke(sess)
	g.publish(session.EventLogout, nil, false)
	g.logger.Info("session ended", zap.String("user_id", sess.UserID))
	return nil
}

func (g *Gateway) establish(ctx context.Context, op string, event session.Event, result IdentityResult, displayName string) (IssuedSession, error) {
	claims, err := g.verifier.Verify(ctx, result.IDToken)
	if err != nil {
		code := FailureInvalidCredentials
		if errors.Is(err, errKeysUnavailable) {
			code = FailureServiceUnavailable
		}
		g.logFailure(op, err)
		return IssuedSession{}, translate(op, &Failure{Code: code, Reason: "id token rejected", Err: err})
	}
	if result.UserID != "" && claims.UserID != result.UserID {
		g.logFailure(op, errors.New("id token subject mismatch"))
		return IssuedSession{}, translate(op, &Failure{Code: FailureInvalidCredentials, Reason: "id token subject mismatch"})
	}

	sess := session.Session{
		UserID:      claims.UserID,
		DisplayName: firstNonEmpty(displayName, claims.DisplayName, result.DisplayName),
		Email:       firstNonEmpty(claims.Email, result.Email),
	}
	issued, err := g.issue(op, sess)
	if err != nil {
		return IssuedSession{}, err
	}
	g.publish(event, &issued.Session, result.NewUser)
	g.logger.Info("session established",
		zap.String("operation", op),
		zap.String("user_id", issued.Session.UserID),
		zap.Bool("new_account", result.NewUser))
	return issued, nil
}

func (g *Gateway) issue(op string, sess session.Session) (IssuedSession, error) {
	token, issuedSession, err := g.tokens.Issue(sess)
	if err != nil {
		g.logFailure(op, err)
		return IssuedSession{}, translate(op, &Failure{Code: FailureUnknown, Reason: "issue session token", Err: err})
	}
	return IssuedSession{
		Token:     token,
		Session:   issuedSession,
		ExpiresIn: int64(g.tokens.TTL().Seconds()),
	}, nil
}

func (g *Gateway) publish(event session.Event, sess *session.Session, newAccount bool) {
	var snapshot *session.Session
	if sess != nil {
		copied := *sess
		snapshot = &copied
	}
	g.changes.Publish(session.Change{
		Event:      event,
		Session:    snapshot,
		OccurredAt: g.now().UTC(),
		NewAccount: newAccount,
	})
}

func (g *Gateway) logFailure(op string, err error) {
	g.logger.Warn("auth operation failed",
		zap.String("operation", op),
		zap.String("code", string(FailureCodeOf(err))),
		zap.Error(err))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
