// Package fitnesssyncer talks to the FitnessSyncer provider API: data source
// listing and the per-source item feed that activities are synced from.
package fitnesssyncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/charmbracelet/log"

	"trainlog/internal/activity"
	"trainlog/internal/logging"
	"trainlog/internal/oauth"
	"trainlog/internal/observability"
)

const (
	Provider       = "fitnesssyncer"
	DefaultBaseURL = "https://api.fitnesssyncer.com/api"
	DefaultLimit   = 100
)

// OAuth endpoints of the provider.
var Endpoint = oauth.Endpoint{
	AuthURL:  "https://www.fitnesssyncer.com/api/oauth/authorize",
	TokenURL: "https://api.fitnesssyncer.com/api/oauth/access_token",
}

// Scope requested on authorization.
const Scope = "Sources"

type Client struct {
	BaseURL     string
	TokenSource oauth.TokenSource
	HTTPClient  *http.Client
	Logger      *log.Logger
}

// DataSource is one connected upstream account.
type DataSource struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ProviderType string `json:"providerType,omitempty"`
}

// ListItems returns the newest items of a data source, at most limit.
func (c *Client) ListItems(ctx context.Context, sourceID string, limit int) ([]Item, error) {
	if sourceID == "" {
		return nil, errors.New("missing data source id")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))

	var payload struct {
		Items []Item `json:"items"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/providers/sources/"+url.PathEscape(sourceID)+"/items/", params, &payload); err != nil {
		return nil, err
	}
	return payload.Items, nil
}

// RecentActivities fetches items and projects them for ingestion.
func (c *Client) RecentActivities(ctx context.Context, sourceID string, limit int) ([]activity.Raw, error) {
	items, err := c.ListItems(ctx, sourceID, limit)
	if err != nil {
		return nil, err
	}
	raws := make([]activity.Raw, 0, len(items))
	for _, item := range items {
		raws = append(raws, item.Raw())
	}
	return raws, nil
}

func (c *Client) GetItem(ctx context.Context, sourceID, itemID string) (Item, error) {
	if sourceID == "" || itemID == "" {
		return Item{}, errors.New("missing data source or item id")
	}
	var item Item
	path := "/providers/sources/" + url.PathEscape(sourceID) + "/items/" + url.PathEscape(itemID) + "/"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &item); err != nil {
		return Item{}, err
	}
	return item, nil
}

func (c *Client) DeleteItem(ctx context.Context, sourceID, itemID string) error {
	if sourceID == "" || itemID == "" {
		return errors.New("missing data source or item id")
	}
	path := "/providers/sources/" + url.PathEscape(sourceID) + "/items/" + url.PathEscape(itemID) + "/"
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) ListDataSources(ctx context.Context) ([]DataSource, error) {
	var payload struct {
		Items []DataSource `json:"items"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/providers/sources/", nil, &payload); err != nil {
		return nil, err
	}
	return payload.Items, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, params url.Values, target interface{}) error {
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}

	u, err := url.Parse(base)
	if err != nil {
		return err
	}
	joined, err := url.JoinPath(u.Path, path)
	if err != nil {
		return err
	}
	u.Path = joined
	if params != nil {
		u.RawQuery = params.Encode()
	}

	logging.OrDefault(c.Logger).Debug("fitnesssyncer request", "method", method, "url", logging.SafeURL(u.String()))
	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return err
	}
	if c.TokenSource == nil {
		return errors.New("fitnesssyncer client has no token source")
	}
	token, err := c.TokenSource.AccessToken(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		observability.RecordProviderError(Provider, strconv.Itoa(resp.StatusCode))
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if target == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode fitnesssyncer response: %w", err)
	}
	return nil
}
