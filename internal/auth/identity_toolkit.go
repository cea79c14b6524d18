package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultIdentityToolkitURL = "https://identitytoolkit.googleapis.com/v1"
	defaultProviderRequestURI = "http://localhost"
	defaultProviderID         = "google.com"
)

var errMissingAPIKey = errors.New("identity toolkit api key required")

// IdentityResult is the account returned by a successful Identity Toolkit call.
type IdentityResult struct {
	UserID       string
	Email        string
	DisplayName  string
	IDToken      string
	RefreshToken string
	NewUser      bool
}

// IdentityToolkitConfig configures the Identity Toolkit REST client.
type IdentityToolkitConfig struct {
	APIKey     string
	BaseURL    string
	RequestURI string
	HTTPClient *http.Client
}

// IdentityToolkit calls the Firebase Auth REST API.
type IdentityToolkit struct {
	apiKey     string
	baseURL    string
	requestURI string
	httpClient *http.Client
}

// NewIdentityToolkit constructs an IdentityToolkit client.
func NewIdentityToolkit(cfg IdentityToolkitConfig) (*IdentityToolkit, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errMissingAPIKey
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultIdentityToolkitURL
	}
	requestURI := strings.TrimSpace(cfg.RequestURI)
	if requestURI == "" {
		requestURI = defaultProviderRequestURI
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &IdentityToolkit{
		apiKey:     apiKey,
		baseURL:    baseURL,
		requestURI: requestURI,
		httpClient: httpClient,
	}, nil
}

type identityResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	IsNewUser    bool   `json:"isNewUser"`
}

func (r identityResponse) result() IdentityResult {
	return IdentityResult{
		UserID:       r.LocalID,
		Email:        r.Email,
		DisplayName:  r.DisplayName,
		IDToken:      r.IDToken,
		RefreshToken: r.RefreshToken,
		NewUser:      r.IsNewUser,
	}
}

type identityErrorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SignInWithPassword exchanges an email and password for an ID token.
func (c *IdentityToolkit) SignInWithPassword(ctx context.Context, email, password string) (IdentityResult, error) {
	var response identityResponse
	err := c.call(ctx, "accounts:signInWithPassword", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &response)
	if err != nil {
		return IdentityResult{}, err
	}
	return response.result(), nil
}

// SignUp creates an email/password account.
func (c *IdentityToolkit) SignUp(ctx context.Context, email, password string) (IdentityResult, error) {
	var response identityResponse
	err := c.call(ctx, "accounts:signUp", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &response)
	if err != nil {
		return IdentityResult{}, err
	}
	result := response.result()
	result.NewUser = true
	return result, nil
}

// UpdateDisplayName sets the display name of the account owning idToken.
func (c *IdentityToolkit) UpdateDisplayName(ctx context.Context, idToken, displayName string) error {
	return c.call(ctx, "accounts:update", map[string]any{
		"idToken":           idToken,
		"displayName":       displayName,
		"returnSecureToken": false,
	}, nil)
}

// SignInWithIdp exchanges a federated provider's ID token for a Firebase ID token.
func (c *IdentityToolkit) SignInWithIdp(ctx context.Context, providerID, providerToken string) (IdentityResult, error) {
	if strings.TrimSpace(providerToken) == "" {
		return IdentityResult{}, &Failure{Code: FailureProviderCancelled, Reason: "empty provider token"}
	}
	if strings.TrimSpace(providerID) == "" {
		providerID = defaultProviderID
	}
	postBody := url.Values{}
	postBody.Set("id_token", providerToken)
	postBody.Set("providerId", providerID)

	var response identityResponse
	err := c.call(ctx, "accounts:signInWithIdp", map[string]any{
		"postBody":            postBody.Encode(),
		"requestUri":          c.requestURI,
		"returnIdpCredential": true,
		"returnSecureToken":   true,
	}, &response)
	if err != nil {
		return IdentityResult{}, err
	}
	return response.result(), nil
}

func (c *IdentityToolkit) call(ctx context.Context, method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &Failure{Code: FailureUnknown, Reason: "encode request", Err: err}
	}
	endpoint := fmt.Sprintf("%s/%s?key=%s", c.baseURL, method, url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return &Failure{Code: FailureUnknown, Reason: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(req)
	if err != nil {
		return &Failure{Code: FailureServiceUnavailable, Reason: method, Err: err}
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return &Failure{Code: FailureServiceUnavailable, Reason: method, Err: err}
	}
	if response.StatusCode >= http.StatusInternalServerError {
		return &Failure{Code: FailureServiceUnavailable, Reason: fmt.Sprintf("%s returned status %d", method, response.StatusCode)}
	}
	if response.StatusCode != http.StatusOK {
		var envelope identityErrorEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Error.Message == "" {
			return &Failure{Code: FailureUnknown, Reason: fmt.Sprintf("%s returned status %d", method, response.StatusCode)}
		}
		return &Failure{Code: classifyProviderMessage(envelope.Error.Message), Reason: envelope.Error.Message}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Failure{Code: FailureUnknown, Reason: "decode response", Err: err}
	}
	return nil
}
