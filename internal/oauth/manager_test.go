package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	state   TokenState
	writes  int
	readErr error
}

func (s *memoryStore) Read(context.Context) (TokenState, error) {
	if s.readErr != nil {
		return TokenState{}, s.readErr
	}
	return s.state, nil
}

func (s *memoryStore) Write(_ context.Context, state TokenState) error {
	s.state = state
	s.writes++
	return nil
}

var fixedNow = time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)

func newManager(store TokenStore, tokenURL string) *Manager {
	return &Manager{
		Provider:     "test",
		Store:        store,
		Endpoint:     Endpoint{AuthURL: "https://auth.example.com/authorize", TokenURL: tokenURL},
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURI:  "https://app.example.com/callback",
		Now:          func() time.Time { return fixedNow },
	}
}

func TestAccessTokenReturnsStoredTokenOutsideBuffer(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	store := &memoryStore{state: TokenState{
		AccessToken:  "A1",
		RefreshToken: "R1",
		ExpiresAt:    fixedNow.Add(5*time.Minute + time.Second),
	}}
	token, err := newManager(store, srv.URL).AccessToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "A1", token)
	require.Zero(t, atomic.LoadInt32(&calls))
	require.Zero(t, store.writes)
}

func TestAccessTokenRefreshesInsideBuffer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		require.Equal(t, "R1", r.PostForm.Get("refresh_token"))
		require.Equal(t, "client", r.PostForm.Get("client_id"))
		require.Equal(t, "secret", r.PostForm.Get("client_secret"))
		require.Equal(t, "https://app.example.com/callback", r.PostForm.Get("redirect_uri"))
		fmt.Fprint(w, `{"access_token":"A2","refresh_token":"R2","expires_in":3600}`)
	}))
	defer srv.Close()

	store := &memoryStore{state: TokenState{
		AccessToken:  "A1",
		RefreshToken: "R1",
		ExpiresAt:    fixedNow.Add(5*time.Minute - time.Second),
	}}
	token, err := newManager(store, srv.URL).AccessToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "A2", token)
	require.Equal(t, 1, store.writes)
	require.Equal(t, "R2", store.state.RefreshToken)
	require.Equal(t, fixedNow.Add(time.Hour), store.state.ExpiresAt)
}

func TestAccessTokenKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"access_token":"A2","expires_at":%d}`, fixedNow.Add(6*time.Hour).Unix())
	}))
	defer srv.Close()

	store := &memoryStore{state: TokenState{AccessToken: "A1", RefreshToken: "R1", ExpiresAt: fixedNow.Add(-time.Hour)}}
	token, err := newManager(store, srv.URL).AccessToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "A2", token)
	require.Equal(t, "R1", store.state.RefreshToken)
	require.Equal(t, fixedNow.Add(6*time.Hour), store.state.ExpiresAt)
}

func TestAccessTokenRetriesOnce(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "upstream hiccup", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"access_token":"A2","refresh_token":"R2","expires_in":3600}`)
	}))
	defer srv.Close()

	store := &memoryStore{state: TokenState{AccessToken: "A1", RefreshToken: "R1", ExpiresAt: fixedNow}}
	token, err := newManager(store, srv.URL).AccessToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "A2", token)
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestAccessTokenFailsAfterTwoAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	store := &memoryStore{state: TokenState{AccessToken: "A1", RefreshToken: "R1", ExpiresAt: fixedNow}}
	_, err := newManager(store, srv.URL).AccessToken(context.Background())
	require.Error(t, err)

	var refreshErr *RefreshError
	require.ErrorAs(t, err, &refreshErr)
	require.Equal(t, 2, refreshErr.Attempts)

	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	require.Equal(t, http.StatusBadRequest, providerErr.StatusCode)
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
	require.Zero(t, store.writes)
}

func TestAccessTokenConfigErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	store := &memoryStore{state: TokenState{AccessToken: "A1", ExpiresAt: fixedNow}}
	_, err := newManager(store, srv.URL).AccessToken(context.Background())
	require.ErrorIs(t, err, ErrConfigMissing)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, []string{"refresh token"}, cfgErr.Missing)
	require.Zero(t, atomic.LoadInt32(&calls))
}

func TestAccessTokenRetriesStoreReadFailure(t *testing.T) {
	store := &memoryStore{readErr: errors.New("sheet unavailable")}
	_, err := newManager(store, "http://unused.invalid").AccessToken(context.Background())
	var refreshErr *RefreshError
	require.ErrorAs(t, err, &refreshErr)
	require.Contains(t, err.Error(), "sheet unavailable")
}

func TestAccessTokenMissingExpiryIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token":"A2"}`)
	}))
	defer srv.Close()

	store := &memoryStore{state: TokenState{AccessToken: "A1", RefreshToken: "R1", ExpiresAt: fixedNow}}
	_, err := newManager(store, srv.URL).AccessToken(context.Background())
	require.Error(t, err)
	require.Zero(t, store.writes)
}

func TestExchangeCodePersistsTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		require.Equal(t, "abc", r.PostForm.Get("code"))
		fmt.Fprint(w, `{"access_token":"A","refresh_token":"R","expires_in":7200,"athlete":{"id":42,"firstname":"Sam"}}`)
	}))
	defer srv.Close()

	store := &memoryStore{}
	resp, err := newManager(store, srv.URL).ExchangeCode(context.Background(), "abc")
	require.NoError(t, err)
	require.NotNil(t, resp.Athlete)
	require.EqualValues(t, 42, resp.Athlete.ID)
	require.Equal(t, TokenState{AccessToken: "A", RefreshToken: "R", ExpiresAt: fixedNow.Add(2 * time.Hour)}, store.state)
}

func TestAuthorizeURL(t *testing.T) {
	m := newManager(&memoryStore{}, "")
	raw, err := m.AuthorizeURL("xyz", url.Values{"scope": {"Sources"}})
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	require.Equal(t, "auth.example.com", u.Host)
	require.Equal(t, "client", q.Get("client_id"))
	require.Equal(t, "code", q.Get("response_type"))
	require.Equal(t, "Sources", q.Get("scope"))
	require.Equal(t, "xyz", q.Get("state"))
	require.Equal(t, "https://app.example.com/callback", q.Get("redirect_uri"))
}
