package strava

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"trainlog/internal/oauth"
)

func TestRecentActivitiesAttachesHeartRate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token" {
			t.Errorf("missing auth header")
		}
		switch r.URL.Path {
		case "/api/athlete/activities":
			require.Equal(t, "5", r.URL.Query().Get("per_page"))
			_, _ = w.Write([]byte(`[
  {"id":11,"name":"Lunch Run","type":"Run","sport_type":"Run","start_date":"2024-06-01T07:00:00Z","moving_time":1800,"distance":5000,"average_heartrate":128.4,"max_heartrate":141,"has_heartrate":true},
  {"id":12,"name":"Lift","type":"WeightTraining","sport_type":"WeightTraining","start_date":"2024-06-02T18:00:00Z","moving_time":2400,"distance":0}
]`))
		case "/api/activities/11/streams":
			require.Equal(t, "heartrate", r.URL.Query().Get("keys"))
			_, _ = w.Write([]byte(`{"heartrate":{"data":[120,125,130,140]}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := &Client{BaseURL: server.URL + "/api", TokenSource: oauth.StaticToken("token")}
	raws, err := client.RecentActivities(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, raws, 2)

	run := raws[0]
	require.Equal(t, "11", run.ItemID)
	require.Equal(t, Source, run.Source)
	require.Equal(t, "Run", run.ExerciseType())
	require.EqualValues(t, 1717225200000, *run.StartMillis)
	require.Equal(t, 5.0, *run.DistanceKM)
	require.NotNil(t, run.GPS)
	require.Equal(t, []float64{120, 125, 130, 140}, run.GPS.Laps[0].HeartRates)
	require.Equal(t, 141.0, run.GPS.Laps[0].MaxHeart)

	lift := raws[1]
	require.Nil(t, lift.GPS)
	require.Equal(t, "WeightTraining", lift.ExerciseType())
}

func TestClientAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Rate Limit Exceeded"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := &Client{BaseURL: server.URL, TokenSource: oauth.StaticToken("token")}
	_, err := client.ListActivities(context.Background(), 1, 10)
	require.True(t, IsRateLimited(err))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Contains(t, apiErr.Body, "Rate Limit")
}

func TestEnsureSubscription(t *testing.T) {
	var created, deleted bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "cid", r.FormValue("client_id"))
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/push_subscriptions":
			_, _ = w.Write([]byte(`[{"id":7,"callback_url":"https://old.example.com/webhook"}]`))
		case r.Method == http.MethodDelete && r.URL.Path == "/push_subscriptions/7":
			deleted = true
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodPost && r.URL.Path == "/push_subscriptions":
			require.Equal(t, "verify", r.FormValue("verify_token"))
			created = true
			_, _ = w.Write([]byte(`{"id":8}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := &SubscriptionClient{BaseURL: server.URL, ClientID: "cid", ClientSecret: "secret"}
	ctx := context.Background()

	action, sub, err := client.Ensure(ctx, "https://new.example.com/webhook", "verify", false)
	require.ErrorIs(t, err, ErrSubscriptionMismatch)
	require.Equal(t, SubscriptionMismatch, action)
	require.EqualValues(t, 7, sub.ID)

	action, sub, err = client.Ensure(ctx, "https://new.example.com/webhook", "verify", true)
	require.NoError(t, err)
	require.Equal(t, SubscriptionRecreated, action)
	require.EqualValues(t, 8, sub.ID)
	require.Equal(t, "https://new.example.com/webhook", sub.CallbackURL)
	require.True(t, deleted)
	require.True(t, created)

	action, _, err = client.Ensure(ctx, "https://old.example.com/webhook/", "verify", false)
	require.NoError(t, err)
	require.Equal(t, SubscriptionExists, action)
}

func TestEndpointFor(t *testing.T) {
	require.Equal(t, Endpoint, EndpointFor(""))
	ep := EndpointFor("http://127.0.0.1:9999")
	require.Equal(t, "http://127.0.0.1:9999/oauth/token", ep.TokenURL)
	require.Equal(t, "read,activity:read_all", AuthorizeParams().Get("scope"))
}
