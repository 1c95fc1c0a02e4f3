package submit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// tokenEarlyExpiry is subtracted from the token lifetime so a token is
// never used in its final minutes.
const tokenEarlyExpiry = 5 * time.Minute

// SecretSource resolves named credentials at refresh time.
type SecretSource interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// TokenConfig configures the OAuth 2.0 refresh-token flow.
type TokenConfig struct {
	// TokenURL is the OAuth token endpoint.
	TokenURL string

	// ClientIDSecret, ClientSecretSecret and RefreshTokenSecret name the
	// credentials in the secret store.
	ClientIDSecret     string
	ClientSecretSecret string
	RefreshTokenSecret string
}

// TokenStore caches a short-lived access token and refreshes it through a
// single-flight lock: concurrent callers await the in-flight refresh
// instead of stampeding the token endpoint. Tokens are never logged.
type TokenStore struct {
	config  TokenConfig
	secrets SecretSource
	client  *http.Client
	logger  *slog.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	inflight  chan struct{} // non-nil while a refresh is running
}

// NewTokenStore creates the token store.
func NewTokenStore(config TokenConfig, secrets SecretSource) *TokenStore {
	return &TokenStore{
		config:  config,
		secrets: secrets,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  slog.Default().With("component", "submit.token"),
	}
}

// Token returns a valid access token, refreshing if the cached one is
// absent or inside the early-expiry window.
func (t *TokenStore) Token(ctx context.Context) (string, error) {
	for {
		t.mu.Lock()
		if t.token != "" && time.Now().Before(t.expiresAt) {
			token := t.token
			t.mu.Unlock()
			return token, nil
		}

		if t.inflight != nil {
			// Another caller is refreshing; await it.
			wait := t.inflight
			t.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		done := make(chan struct{})
		t.inflight = done
		t.mu.Unlock()

		token, expiresAt, err := t.refresh(ctx)

		t.mu.Lock()
		t.inflight = nil
		close(done)
		if err != nil {
			t.mu.Unlock()
			return "", err
		}
		t.token = token
		t.expiresAt = expiresAt
		t.mu.Unlock()
		return token, nil
	}
}

// Invalidate drops the cached token after the API rejected it.
func (t *TokenStore) Invalidate() {
	t.mu.Lock()
	t.token = ""
	t.expiresAt = time.Time{}
	t.mu.Unlock()
}

// refresh performs the refresh-token grant.
func (t *TokenStore) refresh(ctx context.Context) (string, time.Time, error) {
	clientID, err := t.secrets.GetSecret(ctx, t.config.ClientIDSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to load client id: %w", err)
	}
	clientSecret, err := t.secrets.GetSecret(ctx, t.config.ClientSecretSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to load client secret: %w", err)
	}
	refreshToken, err := t.secrets.GetSecret(ctx, t.config.RefreshTokenSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to load refresh token: %w", err)
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", clientID)
	form.Set("client_secret", clientSecret)
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.config.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", time.Time{}, &TransientError{Message: "token refresh request failed", Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", time.Time{}, &TransientError{Message: "token refresh read failed", Cause: err}
	}
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 500 {
			return "", time.Time{}, &TransientError{Message: "token endpoint error", StatusCode: resp.StatusCode}
		}
		return "", time.Time{}, &AuthError{Message: fmt.Sprintf("token endpoint returned %d", resp.StatusCode)}
	}

	var grant struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &grant); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to decode token response: %w", err)
	}
	if grant.AccessToken == "" {
		return "", time.Time{}, &AuthError{Message: "token endpoint returned no access token"}
	}

	lifetime := time.Duration(grant.ExpiresIn) * time.Second
	expiresAt := time.Now().Add(lifetime - tokenEarlyExpiry)
	if lifetime <= tokenEarlyExpiry {
		expiresAt = time.Now().Add(lifetime / 2)
	}

	t.logger.Debug("access token refreshed", "expires_in", grant.ExpiresIn)
	return grant.AccessToken, expiresAt, nil
}
