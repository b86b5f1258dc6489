// Package strava is a small client for the Strava v3 API: recent activities,
// heart-rate streams and push subscriptions.
package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"trainlog/internal/activity"
	"trainlog/internal/logging"
	"trainlog/internal/oauth"
	"trainlog/internal/observability"
)

const (
	Provider       = "strava"
	Source         = "Strava"
	DefaultBaseURL = "https://www.strava.com/api/v3"
)

type Client struct {
	BaseURL     string
	TokenSource oauth.TokenSource
	HTTPClient  *http.Client
	Logger      *log.Logger
}

type ActivitySummary struct {
	ID               int64
	Name             string
	Type             string
	SportType        string
	StartDate        time.Time
	MovingTime       int
	Distance         float64
	AverageHeartrate *float64
	MaxHeartrate     *float64
	HasHeartrate     bool
}

func (c *Client) ListActivities(ctx context.Context, page, perPage int) ([]ActivitySummary, error) {
	params := url.Values{}
	if page > 0 {
		params.Set("page", strconv.Itoa(page))
	}
	if perPage > 0 {
		params.Set("per_page", strconv.Itoa(perPage))
	}

	var payload []struct {
		ID               int64    `json:"id"`
		Name             string   `json:"name"`
		Type             string   `json:"type"`
		SportType        string   `json:"sport_type"`
		StartDate        string   `json:"start_date"`
		MovingTime       int      `json:"moving_time"`
		Distance         float64  `json:"distance"`
		AverageHeartrate *float64 `json:"average_heartrate"`
		MaxHeartrate     *float64 `json:"max_heartrate"`
		HasHeartrate     bool     `json:"has_heartrate"`
	}

	if err := c.getJSON(ctx, "/athlete/activities", params, &payload); err != nil {
		return nil, err
	}

	activities := make([]ActivitySummary, 0, len(payload))
	for _, p := range payload {
		start, err := time.Parse(time.RFC3339, p.StartDate)
		if err != nil {
			return nil, fmt.Errorf("parse start_date: %w", err)
		}
		activities = append(activities, ActivitySummary{
			ID:               p.ID,
			Name:             p.Name,
			Type:             p.Type,
			SportType:        p.SportType,
			StartDate:        start,
			MovingTime:       p.MovingTime,
			Distance:         p.Distance,
			AverageHeartrate: p.AverageHeartrate,
			MaxHeartrate:     p.MaxHeartrate,
			HasHeartrate:     p.HasHeartrate || p.AverageHeartrate != nil,
		})
	}
	return activities, nil
}

// HeartRateStream returns the activity's heart-rate samples.
func (c *Client) HeartRateStream(ctx context.Context, id int64) ([]float64, error) {
	params := url.Values{}
	params.Set("keys", "heartrate")
	params.Set("key_by_type", "true")
	params.Set("series_type", "time")

	var payload map[string]struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("/activities/%d/streams", id), params, &payload); err != nil {
		return nil, err
	}

	samples := make([]float64, 0, len(payload["heartrate"].Data))
	for _, entry := range payload["heartrate"].Data {
		var v float64
		if err := json.Unmarshal(entry, &v); err != nil {
			return nil, fmt.Errorf("parse heartrate: %w", err)
		}
		samples = append(samples, v)
	}
	return samples, nil
}

// RecentActivities lists the newest activities and attaches each one's
// heart-rate stream, producing ingestion records. Activities without heart
// rate carry no track payload.
func (c *Client) RecentActivities(ctx context.Context, perPage int) ([]activity.Raw, error) {
	summaries, err := c.ListActivities(ctx, 1, perPage)
	if err != nil {
		return nil, err
	}
	raws := make([]activity.Raw, 0, len(summaries))
	for _, s := range summaries {
		var stream []float64
		if s.HasHeartrate {
			stream, err = c.HeartRateStream(ctx, s.ID)
			if err != nil {
				return nil, fmt.Errorf("activity %d heart rate: %w", s.ID, err)
			}
		}
		raws = append(raws, s.Raw(stream))
	}
	return raws, nil
}

// Raw projects the summary and its heart-rate samples into an ingestion
// record.
func (s ActivitySummary) Raw(heartRates []float64) activity.Raw {
	start := s.StartDate.UnixMilli()
	duration := float64(s.MovingTime)
	km := s.Distance / 1000

	raw := activity.Raw{
		ItemID:         strconv.FormatInt(s.ID, 10),
		Source:         Source,
		StartMillis:    &start,
		DurationSec:    &duration,
		DistanceKM:     &km,
		AvgHeartRate:   s.AverageHeartrate,
		Classification: s.SportType,
		Activity:       s.Type,
	}
	if len(heartRates) > 0 {
		lap := activity.Lap{HeartRates: heartRates}
		if s.MaxHeartrate != nil {
			lap.MaxHeart = *s.MaxHeartrate
		} else {
			for _, hr := range heartRates {
				if hr > lap.MaxHeart {
					lap.MaxHeart = hr
				}
			}
		}
		raw.GPS = &activity.GPS{Sport: s.Type, Laps: []activity.Lap{lap}}
	}
	return raw
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, target interface{}) error {
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

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	if c.TokenSource == nil {
		return errors.New("strava client has no token source")
	}
	token, err := c.TokenSource.AccessToken(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	return do(ctx, c.HTTPClient, c.Logger, req, target)
}

func do(ctx context.Context, client *http.Client, logger *log.Logger, req *http.Request, target interface{}) error {
	if client == nil {
		client = http.DefaultClient
	}
	logging.OrDefault(logger).Debug("strava request", "method", strings.ToUpper(req.Method), "url", logging.SafeURL(req.URL.String()))

	resp, err := client.Do(req.WithContext(ctx))
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
	return json.NewDecoder(resp.Body).Decode(target)
}
