package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"trainlog/internal/logging"
	"trainlog/internal/observability"
)

const (
	DefaultExpiryBuffer = 5 * time.Minute
	DefaultMaxAttempts  = 2
)

// Endpoint names the provider's OAuth URLs.
type Endpoint struct {
	AuthURL  string
	TokenURL string
}

// Manager owns the access-token lifecycle for one provider.
type Manager struct {
	Provider     string
	Store        TokenStore
	Endpoint     Endpoint
	ClientID     string
	ClientSecret string
	RedirectURI  string
	HTTPClient   *http.Client
	// ExpiryBuffer is how long before expiry a token is treated as stale.
	ExpiryBuffer time.Duration
	MaxAttempts  int
	Now          func() time.Time
	Logger       *log.Logger
}

// TokenResponse is the token endpoint's JSON answer. FitnessSyncer reports
// expires_in, Strava reports expires_at.
type TokenResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int64    `json:"expires_in"`
	ExpiresAt    int64    `json:"expires_at"`
	Athlete      *Athlete `json:"athlete,omitempty"`
}

type Athlete struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
}

func (r TokenResponse) expiry(now time.Time) (time.Time, error) {
	switch {
	case r.ExpiresAt > 0:
		return time.Unix(r.ExpiresAt, 0).UTC(), nil
	case r.ExpiresIn > 0:
		return now.Add(time.Duration(r.ExpiresIn) * time.Second), nil
	default:
		return time.Time{}, errors.New("token response missing expires_in")
	}
}

// AccessToken returns a token that stays valid for at least the expiry
// buffer, refreshing and persisting a new one when needed. The whole read,
// refresh and persist sequence is attempted up to MaxAttempts times;
// incomplete stored state fails immediately.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	if m.Store == nil {
		return "", errors.New("token store not configured")
	}

	attempts := m.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		token, err := m.accessToken(ctx)
		if err == nil {
			return token, nil
		}
		var cfgErr *ConfigError
		if errors.As(err, &cfgErr) {
			return "", err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		lastErr = err
		m.logger().Warn("access token attempt failed", "provider", m.Provider, "attempt", attempt, "err", err)
	}
	return "", &RefreshError{Attempts: attempts, Err: lastErr}
}

func (m *Manager) accessToken(ctx context.Context) (string, error) {
	state, err := m.Store.Read(ctx)
	if err != nil {
		return "", fmt.Errorf("read token state: %w", err)
	}
	if missing := state.missing(); len(missing) > 0 {
		return "", &ConfigError{Missing: missing}
	}

	now := m.now().UTC()
	if state.ExpiresAt.After(now.Add(m.buffer())) {
		return state.AccessToken, nil
	}

	m.logger().Info("access token expired or expiring soon, refreshing",
		"provider", m.Provider, "expires_at", state.ExpiresAt.Format(time.RFC3339))

	resp, err := m.refresh(ctx, state.RefreshToken)
	observability.RecordTokenRefresh(m.Provider, err)
	if err != nil {
		return "", err
	}
	expiresAt, err := resp.expiry(now)
	if err != nil {
		return "", err
	}

	next := TokenState{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    expiresAt,
	}
	if next.RefreshToken == "" {
		next.RefreshToken = state.RefreshToken
	}
	if err := m.Store.Write(ctx, next); err != nil {
		return "", fmt.Errorf("persist refreshed token: %w", err)
	}
	return next.AccessToken, nil
}

// ExchangeCode trades an authorization code for the initial token state and
// persists it.
func (m *Manager) ExchangeCode(ctx context.Context, code string) (TokenResponse, error) {
	if code == "" {
		return TokenResponse{}, errors.New("missing authorization code")
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	resp, err := m.postToken(ctx, form)
	if err != nil {
		return TokenResponse{}, err
	}
	if resp.RefreshToken == "" {
		return TokenResponse{}, errors.New("exchange response missing refresh_token")
	}
	expiresAt, err := resp.expiry(m.now().UTC())
	if err != nil {
		return TokenResponse{}, err
	}
	if m.Store != nil {
		if err := m.Store.Write(ctx, TokenState{
			AccessToken:  resp.AccessToken,
			RefreshToken: resp.RefreshToken,
			ExpiresAt:    expiresAt,
		}); err != nil {
			return TokenResponse{}, fmt.Errorf("persist exchanged token: %w", err)
		}
	}
	return resp, nil
}

// AuthorizeURL builds the consent redirect. extra carries provider-specific
// parameters such as scope or approval_prompt.
func (m *Manager) AuthorizeURL(state string, extra url.Values) (string, error) {
	if m.Endpoint.AuthURL == "" || m.ClientID == "" {
		return "", errors.New("oauth client not configured")
	}
	u, err := url.Parse(m.Endpoint.AuthURL)
	if err != nil {
		return "", err
	}
	params := u.Query()
	params.Set("client_id", m.ClientID)
	params.Set("response_type", "code")
	if m.RedirectURI != "" {
		params.Set("redirect_uri", m.RedirectURI)
	}
	if state != "" {
		params.Set("state", state)
	}
	for k, vs := range extra {
		for _, v := range vs {
			params.Set(k, v)
		}
	}
	u.RawQuery = params.Encode()
	return u.String(), nil
}

func (m *Manager) refresh(ctx context.Context, refreshToken string) (TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return m.postToken(ctx, form)
}

func (m *Manager) postToken(ctx context.Context, form url.Values) (TokenResponse, error) {
	if m.ClientID == "" || m.ClientSecret == "" {
		return TokenResponse{}, fmt.Errorf("missing %s client credentials", m.Provider)
	}
	if m.Endpoint.TokenURL == "" {
		return TokenResponse{}, errors.New("missing token endpoint")
	}
	form.Set("client_id", m.ClientID)
	form.Set("client_secret", m.ClientSecret)
	if m.RedirectURI != "" {
		form.Set("redirect_uri", m.RedirectURI)
	}

	m.logger().Debug("oauth request", "provider", m.Provider, "method", http.MethodPost, "url", logging.SafeURL(m.Endpoint.TokenURL))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.Endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return TokenResponse{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	client := m.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return TokenResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		observability.RecordProviderError(m.Provider, fmt.Sprintf("%d", resp.StatusCode))
		return TokenResponse{}, &ProviderError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var payload TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return TokenResponse{}, fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return TokenResponse{}, errors.New("token response missing access_token")
	}
	return payload, nil
}

func (m *Manager) buffer() time.Duration {
	if m.ExpiryBuffer > 0 {
		return m.ExpiryBuffer
	}
	return DefaultExpiryBuffer
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *Manager) logger() *log.Logger {
	return logging.OrDefault(m.Logger)
}
