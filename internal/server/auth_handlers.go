package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Clement3205902/Clement/internal/apperr"
	"github.com/Clement3205902/Clement/internal/auth"
	"github.com/Clement3205902/Clement/internal/session"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const accessTokenQueryParam = "access_token"

type credentialsPayload struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type providerPayload struct {
	ProviderID string `json:"provider_id"`
	IDToken    string `json:"id_token"`
}

type tokenResponsePayload struct {
	AccessToken string          `json:"access_token"`
	ExpiresIn   int64           `json:"expires_in"`
	TokenType   string          `json:"token_type"`
	Session     session.Session `json:"session"`
}

func (h *httpHandler) handleSignup(c *gin.Context) {
	var request credentialsPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	issued, err := h.gateway.Signup(c.Request.Context(), request.Email, request.Password, request.DisplayName)
	h.respondIssued(c, issued, err)
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request credentialsPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	issued, err := h.gateway.Login(c.Request.Context(), request.Email, request.Password)
	h.respondIssued(c, issued, err)
}

func (h *httpHandler) handleProviderLogin(c *gin.Context) {
	var request providerPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	issued, err := h.gateway.LoginWithProvider(c.Request.Context(), request.ProviderID, request.IDToken)
	h.respondIssued(c, issued, err)
}

func (h *httpHandler) handleRefresh(c *gin.Context) {
	sess, _ := session.FromContext(c.Request.Context())
	issued, err := h.gateway.Refresh(c.Request.Context(), sess)
	h.respondIssued(c, issued, err)
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	sess, _ := session.FromContext(c.Request.Context())
	if err := h.gateway.Logout(c.Request.Context(), sess); err != nil {
		writeError(c, err)
		return
	}
	h.clearCookie(c)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleSession(c *gin.Context) {
	sess, ok := session.FromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusOK, gin.H{"session": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

func (h *httpHandler) respondIssued(c *gin.Context, issued auth.IssuedSession, err error) {
	if err != nil {
		var failure *auth.Failure
		if errors.As(err, &failure) || apperr.Is(err, apperr.KindServiceUnavailable) {
			writeAuthError(c, err)
			return
		}
		writeError(c, err)
		return
	}
	h.setCookie(c, issued)
	c.JSON(http.StatusOK, tokenResponsePayload{
		AccessToken: issued.Token,
		ExpiresIn:   issued.ExpiresIn,
		TokenType:   "Bearer",
		Session:     issued.Session,
	})
}

func (h *httpHandler) setCookie(c *gin.Context, issued auth.IssuedSession) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, issued.Token, int(issued.ExpiresIn), "/", "", h.cookieSecure, true)
}

func (h *httpHandler) clearCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, "", -1, "/", "", h.cookieSecure, true)
}

// optionalSession attaches the caller's session when a valid token is present and lets
// anonymous requests through.
func (h *httpHandler) optionalSession(c *gin.Context) {
	if !h.gateway.Enabled() {
		c.Next()
		return
	}
	promoteQueryToken(c)
	sess, err := h.gateway.Authenticate(c.Request)
	if err == nil {
		c.Request = c.Request.WithContext(session.WithSession(c.Request.Context(), sess))
	} else if !errors.Is(err, auth.ErrMissingSessionToken) {
		h.logger.Debug("ignoring invalid session token", zap.Error(err))
	}
	c.Next()
}

func (h *httpHandler) requireSession(c *gin.Context) {
	if !h.gateway.Enabled() {
		writeDisabled(c)
		return
	}
	promoteQueryToken(c)
	sess, err := h.gateway.Authenticate(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, auth.ErrMissingSessionToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Request = c.Request.WithContext(session.WithSession(c.Request.Context(), sess))
	c.Next()
}

// promoteQueryToken lets EventSource and websocket clients, which cannot set headers,
// pass the session token as a query parameter.
func promoteQueryToken(c *gin.Context) {
	if c.GetHeader("Authorization") != "" {
		return
	}
	if token := strings.TrimSpace(c.Query(accessTokenQueryParam)); token != "" {
		c.Request.Header.Set("Authorization", "Bearer "+token)
	}
}
