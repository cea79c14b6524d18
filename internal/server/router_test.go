package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Clement3205902/Clement/internal/apperr"
	"github.com/Clement3205902/Clement/internal/auth"
	"github.com/Clement3205902/Clement/internal/chat"
	"github.com/Clement3205902/Clement/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewHTTPHandlerRequiresDependencies(t *testing.T) {
	if _, err := NewHTTPHandler(Dependencies{Chat: chat.NewProxy(chat.ProxyConfig{})}); err == nil {
		t.Fatal("expected missing gateway to be rejected")
	}
	if _, err := NewHTTPHandler(Dependencies{Gateway: newStubGateway()}); err == nil {
		t.Fatal("expected missing chat proxy to be rejected")
	}
}

func TestHealthAndStatus(t *testing.T) {
	gateway := newStubGateway()
	gateway.enabled = false
	handler := newTestHandler(t, Dependencies{Gateway: gateway, Comments: newTestEngine(t)})

	if recorder := perform(handler, http.MethodGet, "/healthz", "", ""); recorder.Code != http.StatusOK {
		t.Fatalf("unexpected health status %d", recorder.Code)
	}

	recorder := perform(handler, http.MethodGet, "/status", "", "")
	var status map[string]bool
	if err := json.Unmarshal(recorder.Body.Bytes(), &status); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	if status["auth"] || !status["comments"] || status["chat"] {
		t.Fatalf("unexpected availability %v", status)
	}
}

func TestLoginReturnsTokenAndCookie(t *testing.T) {
	handler := newTestHandler(t, Dependencies{})

	recorder := perform(handler, http.MethodPost, "/auth/login", `{"email":"ada@example.edu","password":"pw"}`, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", recorder.Code, recorder.Body.String())
	}
	var payload tokenResponsePayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode token response: %v", err)
	}
	if payload.AccessToken != "token-ada" || payload.TokenType != "Bearer" || payload.ExpiresIn != 3600 {
		t.Fatalf("unexpected token response %+v", payload)
	}
	if payload.Session.UserID != "uid-ada" {
		t.Fatalf("expected session in token response, got %+v", payload.Session)
	}
	cookie := recorder.Header().Get("Set-Cookie")
	if !strings.Contains(cookie, defaultCookieName+"=token-ada") || !strings.Contains(cookie, "HttpOnly") {
		t.Fatalf("expected session cookie, got %q", cookie)
	}
}

func TestAuthFailuresMapToStatus(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "account not found", err: apperr.Auth("auth.login", &auth.Failure{Code: auth.FailureAccountNotFound}), status: http.StatusNotFound, code: "account_not_found"},
		{name: "invalid credentials", err: apperr.Auth("auth.login", &auth.Failure{Code: auth.FailureInvalidCredentials}), status: http.StatusUnauthorized, code: "invalid_credentials"},
		{name: "provider cancelled", err: apperr.Auth("auth.login", &auth.Failure{Code: auth.FailureProviderCancelled}), status: http.StatusBadRequest, code: "provider_cancelled"},
		{name: "disabled", err: apperr.Unavailable("auth.login", auth.ErrGatewayDisabled), status: http.StatusServiceUnavailable, code: "service_unavailable"},
		{name: "unknown", err: apperr.New(apperr.KindUnknown, "auth.login", &auth.Failure{Code: auth.FailureUnknown}), status: http.StatusBadGateway, code: "unknown"},
	}
	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			gateway := newStubGateway()
			gateway.loginErr = testCase.err
			handler := newTestHandler(t, Dependencies{Gateway: gateway})

			recorder := perform(handler, http.MethodPost, "/auth/login", `{"email":"a@b.c","password":"pw"}`, "")
			if recorder.Code != testCase.status {
				t.Fatalf("expected status %d, got %d", testCase.status, recorder.Code)
			}
			if !strings.Contains(recorder.Body.String(), testCase.code) {
				t.Fatalf("expected error code %q, got %s", testCase.code, recorder.Body.String())
			}
		})
	}
}

func TestRequireSessionRejectsAndLogs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	handler := newTestHandler(t, Dependencies{Comments: newTestEngine(t), Logger: zap.New(core)})

	recorder := perform(handler, http.MethodPost, "/comments", `{"body":"hi"}`, "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", recorder.Code)
	}
	missing := logs.FilterMessage("token validation failed").All()
	if len(missing) != 1 || missing[0].Level != zapcore.InfoLevel {
		t.Fatalf("expected one info entry for a missing token, got %+v", missing)
	}

	recorder = perform(handler, http.MethodPost, "/comments", `{"body":"hi"}`, "forged")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for forged token, got %d", recorder.Code)
	}
	entries := logs.FilterMessage("token validation failed").All()
	if len(entries) != 2 || entries[1].Level != zapcore.WarnLevel {
		t.Fatalf("expected a warn entry for a forged token, got %+v", entries)
	}
}

func TestRequireSessionWithDisabledGateway(t *testing.T) {
	gateway := newStubGateway()
	gateway.enabled = false
	handler := newTestHandler(t, Dependencies{Gateway: gateway, Comments: newTestEngine(t)})

	recorder := perform(handler, http.MethodPost, "/comments", `{"body":"hi"}`, "token-ada")
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when sign-in is unavailable, got %d", recorder.Code)
	}
}

func TestSessionRefreshAndLogout(t *testing.T) {
	gateway := newStubGateway()
	handler := newTestHandler(t, Dependencies{Gateway: gateway})

	recorder := perform(handler, http.MethodGet, "/auth/session", "", "")
	if strings.TrimSpace(recorder.Body.String()) != `{"session":null}` {
		t.Fatalf("expected null session, got %s", recorder.Body.String())
	}
	recorder = perform(handler, http.MethodGet, "/auth/session?access_token=token-grace", "", "")
	if !strings.Contains(recorder.Body.String(), `"user_id":"uid-grace"`) {
		t.Fatalf("expected query token to resolve a session, got %s", recorder.Body.String())
	}

	recorder = perform(handler, http.MethodPost, "/auth/refresh", "", "token-ada")
	if recorder.Code != http.StatusOK || !strings.Contains(recorder.Body.String(), "token-refreshed") {
		t.Fatalf("unexpected refresh response %d %s", recorder.Code, recorder.Body.String())
	}

	recorder = perform(handler, http.MethodPost, "/auth/logout", "", "token-ada")
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", recorder.Code)
	}
	if cookie := recorder.Header().Get("Set-Cookie"); !strings.Contains(cookie, "Max-Age=0") {
		t.Fatalf("expected cookie to be cleared, got %q", cookie)
	}
	if len(gateway.loggedOut) != 1 || gateway.loggedOut[0] != "uid-ada" {
		t.Fatalf("expected logout for uid-ada, got %v", gateway.loggedOut)
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := newTestHandler(t, Dependencies{AllowedOrigins: []string{"https://portfolio.example.com"}})

	request := httptest.NewRequest(http.MethodOptions, "/comments", http.NoBody)
	request.Header.Set("Origin", "https://portfolio.example.com")
	request.Header.Set("Access-Control-Request-Method", http.MethodPost)
	request.Header.Set("Access-Control-Request-Headers", "Authorization")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, recorder.Code)
	}
	if recorder.Header().Get("Access-Control-Allow-Origin") != "https://portfolio.example.com" {
		t.Fatalf("unexpected allow origin %q", recorder.Header().Get("Access-Control-Allow-Origin"))
	}
	if recorder.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatal("expected credentials to be enabled")
	}
	if !strings.Contains(strings.ToLower(recorder.Header().Get("Access-Control-Allow-Headers")), "authorization") {
		t.Fatalf("expected Authorization to be allowed, got %q", recorder.Header().Get("Access-Control-Allow-Headers"))
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://portfolio.example.com/"})
	request := httptest.NewRequest(http.MethodGet, "/comments/ws", http.NoBody)
	if !check(request) {
		t.Fatal("expected requests without an Origin to pass")
	}
	request.Header.Set("Origin", "https://portfolio.example.com")
	if !check(request) {
		t.Fatal("expected configured origin to pass")
	}
	request.Header.Set("Origin", "https://evil.example.com")
	if check(request) {
		t.Fatal("expected foreign origin to be rejected")
	}
	if !originChecker([]string{"*"})(request) {
		t.Fatal("expected wildcard to accept any origin")
	}
}

func TestMetricsEndpointRecordsRoutes(t *testing.T) {
	registry := prometheus.NewRegistry()
	handler := newTestHandler(t, Dependencies{
		Metrics:  metrics.NewCollector(registry),
		Gatherer: registry,
	})

	perform(handler, http.MethodGet, "/healthz", "", "")
	recorder := perform(handler, http.MethodGet, "/metrics", "", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected metrics status %d", recorder.Code)
	}
	body := recorder.Body.String()
	if !strings.Contains(body, `portfolio_http_requests_total{route="/healthz",status_code="200"} 1`) {
		t.Fatalf("expected healthz request to be counted, got:\n%s", body)
	}
}
