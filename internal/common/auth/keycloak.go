// internal/common/auth/keycloak.go
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// expiryLeeway refreshes tokens slightly before the server considers them expired.
const expiryLeeway = 30 * time.Second

// TokenSource supplies bearer tokens for requests to the statistics backend.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource returning a fixed token.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	return string(s), nil
}

// TokenResponse holds the response from Keycloak's token endpoint.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
}

// KeycloakTokenSource obtains tokens with the client credentials flow and
// caches them until shortly before expiry. Safe for concurrent use.
type KeycloakTokenSource struct {
	baseURL      string
	realm        string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	now          func() time.Time

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewKeycloakTokenSource creates a new instance of KeycloakTokenSource.
func NewKeycloakTokenSource(baseURL, realm, clientID, clientSecret string) *KeycloakTokenSource {
	return &KeycloakTokenSource{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		realm:        realm,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		now:          time.Now,
	}
}

// Token returns a cached access token, fetching a new one when needed.
func (k *KeycloakTokenSource) Token(ctx context.Context) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.accessToken != "" && k.tokenExpiry.After(k.now()) {
		return k.accessToken, nil
	}

	tokenResp, err := k.fetchToken(ctx)
	if err != nil {
		return "", err
	}

	k.accessToken = tokenResp.AccessToken
	k.tokenExpiry = k.now().Add(tokenLifetime(tokenResp.ExpiresIn))

	return k.accessToken, nil
}

// tokenLifetime is how long a token is reused. The leeway never exceeds half
// of the lifetime, so short-lived tokens are still cached.
func tokenLifetime(expiresIn int) time.Duration {
	lifetime := time.Duration(expiresIn) * time.Second
	if lifetime <= 0 {
		return 0
	}
	leeway := expiryLeeway
	if half := lifetime / 2; half < leeway {
		leeway = half
	}
	return lifetime - leeway
}

func (k *KeycloakTokenSource) fetchToken(ctx context.Context) (*TokenResponse, error) {
	tokenURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", k.baseURL, url.PathEscape(k.realm))

	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", k.clientID)
	data.Set("client_secret", k.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("keycloak token request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("keycloak token response has no access_token")
	}

	return &tokenResp, nil
}
