package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTokenURL is the production OAuth token endpoint.
const DefaultTokenURL = "https://www.strava.com/oauth/token"

// expiryBuffer refreshes tokens slightly before they lapse so an in-flight
// sync never races expiry.
const expiryBuffer = 5 * time.Minute

// Tokens is the persisted token file format.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

// Authenticator is a TokenSource backed by a refresh token on disk. It
// cannot run the interactive grant; the token file must be seeded once with
// a refresh token obtained out of band.
type Authenticator struct {
	clientID     string
	clientSecret string
	tokenURL     string
	tokenPath    string
	httpClient   *http.Client
	logger       zerolog.Logger

	mu  sync.Mutex
	now func() time.Time
}

// NewAuthenticator creates a file-backed token source.
func NewAuthenticator(clientID, clientSecret, tokenURL, tokenPath string, logger zerolog.Logger) (*Authenticator, error) {
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("client id and secret are required")
	}
	if tokenPath == "" {
		return nil, fmt.Errorf("token path is required")
	}
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}

	return &Authenticator{
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     tokenURL,
		tokenPath:    tokenPath,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		logger:       logger,
		now:          time.Now,
	}, nil
}

// AccessToken returns a valid access token, refreshing through the OAuth
// endpoint when the cached one is expired or about to expire.
func (a *Authenticator) AccessToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	tokens, err := a.load()
	if err != nil {
		return "", err
	}

	if tokens.AccessToken != "" && a.now().Unix() < tokens.ExpiresAt-int64(expiryBuffer.Seconds()) {
		return tokens.AccessToken, nil
	}

	if tokens.RefreshToken == "" {
		return "", fmt.Errorf("no refresh token available: seed %s with an authorized grant", a.tokenPath)
	}

	a.logger.Info().Msg("Refreshing access token")

	refreshed, err := a.refresh(ctx, tokens.RefreshToken)
	if err != nil {
		return "", err
	}

	if err := a.save(refreshed); err != nil {
		return "", err
	}

	return refreshed.AccessToken, nil
}

func (a *Authenticator) load() (Tokens, error) {
	data, err := os.ReadFile(a.tokenPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Tokens{}, fmt.Errorf("token file %s does not exist: seed it with an authorized grant", a.tokenPath)
		}
		return Tokens{}, fmt.Errorf("failed to read token file: %w", err)
	}

	var tokens Tokens
	if err := json.Unmarshal(data, &tokens); err != nil {
		return Tokens{}, fmt.Errorf("failed to parse token file: %w", err)
	}
	return tokens, nil
}

func (a *Authenticator) save(tokens Tokens) error {
	data, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}
	if err := os.WriteFile(a.tokenPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

func (a *Authenticator) refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	form := url.Values{}
	form.Set("client_id", a.clientID)
	form.Set("client_secret", a.clientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Tokens{}, fmt.Errorf("failed to build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return Tokens{}, fmt.Errorf("token refresh failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Tokens{}, fmt.Errorf("token refresh failed with status %d", resp.StatusCode)
	}

	var tokens Tokens
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return Tokens{}, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokens.AccessToken == "" {
		return Tokens{}, fmt.Errorf("token response missing access_token")
	}

	return tokens, nil
}
