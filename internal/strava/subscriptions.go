package strava

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
)

type Subscription struct {
	ID          int64  `json:"id"`
	CallbackURL string `json:"callback_url"`
}

type SubscriptionAction string

const (
	SubscriptionExists    SubscriptionAction = "exists"
	SubscriptionCreated   SubscriptionAction = "created"
	SubscriptionRecreated SubscriptionAction = "recreated"
	SubscriptionMismatch  SubscriptionAction = "mismatch"
)

var (
	ErrSubscriptionMismatch  = errors.New("subscription callback url mismatch")
	ErrMultipleSubscriptions = errors.New("multiple subscriptions returned")
	errMissingCredentials    = errors.New("missing strava client credentials")
)

// SubscriptionClient manages the push subscription that delivers activity
// events to the webhook endpoint. It authenticates with client credentials,
// not an athlete token.
type SubscriptionClient struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
	Logger       *log.Logger
}

// Ensure makes sure exactly one subscription points at callbackURL. A
// subscription for another URL is replaced only when replace is set.
func (c *SubscriptionClient) Ensure(ctx context.Context, callbackURL, verifyToken string, replace bool) (SubscriptionAction, *Subscription, error) {
	if callbackURL == "" || verifyToken == "" {
		return "", nil, errors.New("callback url and verify token required")
	}

	subscriptions, err := c.List(ctx)
	if err != nil {
		return "", nil, err
	}

	switch len(subscriptions) {
	case 0:
		sub, err := c.Create(ctx, callbackURL, verifyToken)
		if err != nil {
			return "", nil, err
		}
		return SubscriptionCreated, sub, nil
	case 1:
	default:
		return "", nil, fmt.Errorf("%w: %d", ErrMultipleSubscriptions, len(subscriptions))
	}

	current := subscriptions[0]
	if sameCallback(current.CallbackURL, callbackURL) {
		return SubscriptionExists, &current, nil
	}
	if !replace {
		return SubscriptionMismatch, &current, fmt.Errorf("%w: existing=%q desired=%q", ErrSubscriptionMismatch, current.CallbackURL, callbackURL)
	}

	if err := c.Delete(ctx, current.ID); err != nil {
		return "", &current, err
	}
	sub, err := c.Create(ctx, callbackURL, verifyToken)
	if err != nil {
		return "", &current, err
	}
	return SubscriptionRecreated, sub, nil
}

func (c *SubscriptionClient) List(ctx context.Context) ([]Subscription, error) {
	endpoint, err := c.endpoint("/push_subscriptions", true)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var payload []Subscription
	if err := do(ctx, c.HTTPClient, c.Logger, req, &payload); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return payload, nil
}

func (c *SubscriptionClient) Create(ctx context.Context, callbackURL, verifyToken string) (*Subscription, error) {
	endpoint, err := c.endpoint("/push_subscriptions", false)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("client_id", c.ClientID)
	form.Set("client_secret", c.ClientSecret)
	form.Set("callback_url", callbackURL)
	form.Set("verify_token", verifyToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var payload Subscription
	if err := do(ctx, c.HTTPClient, c.Logger, req, &payload); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	if payload.ID == 0 {
		return nil, errors.New("create subscription response missing id")
	}
	if payload.CallbackURL == "" {
		payload.CallbackURL = callbackURL
	}
	return &payload, nil
}

func (c *SubscriptionClient) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return errors.New("subscription id required")
	}
	endpoint, err := c.endpoint("/push_subscriptions/"+strconv.FormatInt(id, 10), true)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	if err := do(ctx, c.HTTPClient, c.Logger, req, nil); err != nil {
		return fmt.Errorf("delete subscription %d: %w", id, err)
	}
	return nil
}

func (c *SubscriptionClient) endpoint(path string, withCredentials bool) (string, error) {
	if c.ClientID == "" || c.ClientSecret == "" {
		return "", errMissingCredentials
	}
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	endpoint, err := url.JoinPath(base, path)
	if err != nil {
		return "", err
	}
	if !withCredentials {
		return endpoint, nil
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	query := parsed.Query()
	query.Set("client_id", c.ClientID)
	query.Set("client_secret", c.ClientSecret)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func sameCallback(a, b string) bool {
	return strings.TrimRight(a, "/") == strings.TrimRight(b, "/")
}
