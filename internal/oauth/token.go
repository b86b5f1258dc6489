// Package oauth keeps a third-party access token fresh: it reads the stored
// token state, refreshes it through the provider's token endpoint when it is
// about to expire and persists the result.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TokenState is the persisted OAuth credential set for one provider.
type TokenState struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

func (s TokenState) missing() []string {
	var out []string
	if s.AccessToken == "" {
		out = append(out, "access token")
	}
	if s.RefreshToken == "" {
		out = append(out, "refresh token")
	}
	if s.ExpiresAt.IsZero() {
		out = append(out, "expiry time")
	}
	return out
}

// TokenStore reads and writes the token state. Implementations return a
// zero-valued field rather than an error when a value is absent.
type TokenStore interface {
	Read(ctx context.Context) (TokenState, error)
	Write(ctx context.Context, state TokenState) error
}

// TokenSource hands out a usable bearer token.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource for a fixed token.
type StaticToken string

func (t StaticToken) AccessToken(context.Context) (string, error) {
	if t == "" {
		return "", errors.New("empty static token")
	}
	return string(t), nil
}

// ErrConfigMissing marks token state that lacks a required field.
var ErrConfigMissing = errors.New("missing required tokens in config")

// ConfigError is returned when the stored token state is incomplete. It is
// never retried.
type ConfigError struct {
	Missing []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v: %s", ErrConfigMissing, strings.Join(e.Missing, ", "))
}

func (e *ConfigError) Unwrap() error {
	return ErrConfigMissing
}

// ProviderError is a non-2xx answer from the token endpoint.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("token endpoint error %d: %s", e.StatusCode, e.Body)
}

// RefreshError is returned once every refresh attempt has failed.
type RefreshError struct {
	Attempts int
	Err      error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("token refresh failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}
