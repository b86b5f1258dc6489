package workbook

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"trainlog/internal/oauth"
	"trainlog/internal/storage"
)

// Labels used in column A of a token configuration region.
const (
	LabelAccessToken       = "Access Token"
	LabelRefreshToken      = "Refresh Token"
	LabelExpiryTime        = "Expiry Time"
	LabelAuthorizationCode = "Authorization Code"
)

// ConfigTokenStore keeps an oauth.TokenState as label/value rows in one
// region. Rows it does not own are left untouched.
type ConfigTokenStore struct {
	table  storage.Table
	region string
}

var _ oauth.TokenStore = (*ConfigTokenStore)(nil)

func NewConfigTokenStore(table storage.Table, region string) *ConfigTokenStore {
	return &ConfigTokenStore{table: table, region: region}
}

// TokenStore returns the token store backed by region.
func (b *Book) TokenStore(region string) *ConfigTokenStore {
	return NewConfigTokenStore(b.table, region)
}

func (s *ConfigTokenStore) Read(ctx context.Context) (oauth.TokenState, error) {
	rows, err := s.table.Get(ctx, s.region)
	if err != nil {
		return oauth.TokenState{}, err
	}
	values := labelValues(rows)

	state := oauth.TokenState{
		AccessToken:  values[key(LabelAccessToken)],
		RefreshToken: values[key(LabelRefreshToken)],
	}
	if raw := values[key(LabelExpiryTime)]; raw != "" {
		if secs, err := strconv.ParseInt(raw, 10, 64); err == nil && secs > 0 {
			state.ExpiresAt = time.Unix(secs, 0).UTC()
		}
	}
	return state, nil
}

func (s *ConfigTokenStore) Write(ctx context.Context, state oauth.TokenState) error {
	return s.set(ctx, map[string]string{
		LabelAccessToken:  state.AccessToken,
		LabelRefreshToken: state.RefreshToken,
		LabelExpiryTime:   strconv.FormatInt(state.ExpiresAt.Unix(), 10),
	})
}

// AuthorizationCode returns the pasted authorization code, if any.
func (s *ConfigTokenStore) AuthorizationCode(ctx context.Context) (string, error) {
	rows, err := s.table.Get(ctx, s.region)
	if err != nil {
		return "", err
	}
	return labelValues(rows)[key(LabelAuthorizationCode)], nil
}

// SaveAuthorizationCode records a code received on an OAuth callback.
func (s *ConfigTokenStore) SaveAuthorizationCode(ctx context.Context, code string) error {
	return s.set(ctx, map[string]string{LabelAuthorizationCode: code})
}

func (s *ConfigTokenStore) set(ctx context.Context, values map[string]string) error {
	rows, err := s.table.Get(ctx, s.region)
	if err != nil {
		return err
	}

	next := make([][]string, len(rows))
	done := make(map[string]bool, len(values))
	for i, row := range rows {
		next[i] = row
		label := key(cell(row, 0))
		for name, value := range values {
			if label != key(name) || done[name] {
				continue
			}
			updated := []string{cell(row, 0), value}
			if len(row) > 2 {
				updated = append(updated, row[2:]...)
			}
			next[i] = updated
			done[name] = true
		}
	}

	var missing [][]string
	for _, name := range []string{LabelAccessToken, LabelRefreshToken, LabelExpiryTime, LabelAuthorizationCode} {
		if value, ok := values[name]; ok && !done[name] {
			missing = append(missing, []string{name, value})
		}
	}

	if len(done) > 0 {
		if err := s.table.Update(ctx, s.region, 0, next); err != nil {
			return fmt.Errorf("update %s: %w", s.region, err)
		}
	}
	if len(missing) > 0 {
		if err := s.table.Append(ctx, s.region, missing); err != nil {
			return fmt.Errorf("append %s: %w", s.region, err)
		}
	}
	return nil
}

func labelValues(rows [][]string) map[string]string {
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		label := key(cell(row, 0))
		if label == "" {
			continue
		}
		if _, seen := out[label]; !seen {
			out[label] = cell(row, 1)
		}
	}
	return out
}

func key(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
