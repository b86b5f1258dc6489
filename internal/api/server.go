// Package api exposes the JSON HTTP surface consumed by the training UI.
package api

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trainlog/internal/auth"
	"trainlog/internal/fitnesssyncer"
	"trainlog/internal/ingest"
	"trainlog/internal/logging"
	"trainlog/internal/oauth"
	"trainlog/internal/weekly"
	"trainlog/internal/workbook"
)

// Syncer runs one ingestion pass for a provider.
type Syncer interface {
	Sync(ctx context.Context) (ingest.Result, error)
}

// Authorizer drives a provider's authorization-code flow.
type Authorizer interface {
	AuthorizeURL(state string, extra url.Values) (string, error)
	ExchangeCode(ctx context.Context, code string) (oauth.TokenResponse, error)
}

// Server holds the collaborators behind every route. Nil providers answer
// 503 on their routes.
type Server struct {
	Book   *workbook.Book
	Weekly *weekly.Aggregator

	FitnessSyncerSync Syncer
	StravaSync        Syncer
	// FitnessSyncer serves the item and data source routes.
	FitnessSyncer     *fitnesssyncer.Fetcher
	FitnessSyncerAuth Authorizer
	StravaAuth        Authorizer
	Webhook           http.Handler

	Auth    auth.Config
	Limiter *RateLimiter
	// LogLock is shared with the ingestion pipelines so manual entries do
	// not interleave with a sync. Optional.
	LogLock       sync.Locker
	SecureCookies bool
	Logger        *log.Logger
}

// publicPaths are reached by browsers and providers that carry no bearer
// token.
var publicPaths = []string{
	"/webhook",
	"/fitnessSyncer/authorize",
	"/fitnessSyncer/callback",
	"/strava/connect",
	"/strava/callback",
}

// Handler builds the routed, rate limited and authenticated handler.
// Health and metrics sit outside the limiter so probes never trip it.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.handle(mux, "POST /sync", s.syncWith(s.FitnessSyncerSync))
	s.handle(mux, "POST /strava/sync", s.syncWith(s.StravaSync))
	s.handle(mux, "GET /weeklyMetrics", s.weeklyMetrics)
	s.handle(mux, "POST /weeklyMetrics", s.weeklyMetrics)
	s.handle(mux, "GET /activityLog", s.activityLog)
	s.handle(mux, "PATCH /activityLog", s.editActivity)
	s.handle(mux, "POST /logActivity", s.logActivity)
	s.handle(mux, "GET /trainingPlan", s.trainingPlan)
	s.handle(mux, "GET /progressMetrics", s.progressMetrics)
	s.handle(mux, "GET /fitnessSyncer/authorize", s.authorizeFitnessSyncer)
	s.handle(mux, "GET /fitnessSyncer/callback", s.fitnessSyncerCallback)
	s.handle(mux, "GET /fitnessSyncer/dataSources", s.dataSources)
	s.handle(mux, "GET /fitnessSyncer/items/{id}", s.getItem)
	s.handle(mux, "DELETE /fitnessSyncer/items/{id}", s.deleteItem)
	s.handle(mux, "GET /strava/connect", s.connectStrava)
	s.handle(mux, "GET /strava/callback", s.stravaCallback)
	if s.Webhook != nil {
		mux.Handle("/webhook", instrument("/webhook", s.logger(), s.Webhook))
	}

	authn := auth.NewMiddleware(s.Auth, auth.SkipPaths(publicPaths...))

	root := http.NewServeMux()
	s.handle(root, "GET /healthz", healthz)
	root.Handle("GET /metrics", promhttp.Handler())
	root.Handle("/", s.Limiter.Wrap(authn.Wrap(mux)))
	return root
}

func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, instrument(pattern, s.logger(), h))
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) syncWith(syncer Syncer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if syncer == nil {
			writeError(w, http.StatusServiceUnavailable, "not_configured", "provider is not configured")
			return
		}
		res, err := syncer.Sync(r.Context())
		if err != nil {
			fail(w, s.logger(), "sync failed", err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) lockLog() func() {
	if s.LogLock == nil {
		return func() {}
	}
	s.LogLock.Lock()
	return s.LogLock.Unlock
}

func (s *Server) logger() *log.Logger {
	return logging.OrDefault(s.Logger)
}
