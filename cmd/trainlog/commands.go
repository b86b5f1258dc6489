package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"trainlog/internal/activity"
	"trainlog/internal/api"
	"trainlog/internal/auth"
	"trainlog/internal/ingest"
	"trainlog/internal/strava"
	httptransport "trainlog/internal/transport/http"
	"trainlog/internal/webhook"
	"trainlog/internal/weekly"
	"trainlog/internal/worker"
)

const shutdownTimeout = 10 * time.Second

type ServeCmd struct {
	Addr      string `help:"Listen address. Overrides SERVER_ADDR."`
	Subscribe bool   `help:"Ensure the Strava push subscription after the listener is up."`
}

func (c *ServeCmd) Run(rc *runContext) error {
	cfg := rc.Config
	if c.Addr != "" {
		cfg.ServerAddr = c.Addr
	}
	a, err := newApp(rc.Ctx, cfg, rc.Logger)
	if err != nil {
		return err
	}
	defer a.Close()

	limiter, err := api.NewRateLimiter(cfg.RateLimitPerWindow, cfg.RateLimitWindow)
	if err != nil {
		return err
	}
	srv := &api.Server{
		Book:          a.book,
		Weekly:        a.weekly,
		Auth:          auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer},
		Limiter:       limiter,
		LogLock:       &a.logLock,
		SecureCookies: strings.HasPrefix(cfg.BaseURL, "https://"),
		Logger:        rc.Logger.WithPrefix("api"),
	}
	// Interface fields are only set for configured providers so the
	// routes of the others answer 503.
	var jobs []worker.Job
	if a.fsSync != nil {
		srv.FitnessSyncerSync = a.fsSync
		srv.FitnessSyncer = a.fsFetcher
		srv.FitnessSyncerAuth = a.fsAuth
		jobs = append(jobs, worker.Job{Name: a.fsSync.Provider, Syncer: a.fsSync})
	}
	if a.stravaSync != nil {
		srv.StravaSync = a.stravaSync
		srv.StravaAuth = a.stravaAuth
		srv.Webhook = &webhook.Handler{
			Syncer:        a.stravaSync,
			VerifyToken:   cfg.StravaVerifyToken,
			SigningSecret: cfg.StravaWebhookSecret,
			OwnerID:       cfg.StravaAthleteID,
			Logger:        rc.Logger.WithPrefix("webhook"),
		}
		jobs = append(jobs, worker.Job{Name: a.stravaSync.Provider, Syncer: a.stravaSync})
	}
	if cfg.JWTSecret == "" {
		rc.Logger.Warn("API_JWT_SECRET not set, API authentication disabled")
	}

	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.ServerAddr), srv.Handler())

	ctx, cancel := context.WithCancel(rc.Ctx)
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		rc.Logger.Info("listening", "addr", cfg.ServerAddr, "store", cfg.StoreBackend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if c.Subscribe {
		go ensureWebhookSubscription(ctx, cfg, rc.Logger)
	}
	scheduler := &worker.Worker{Jobs: jobs, Interval: cfg.SyncInterval, Logger: rc.Logger.WithPrefix("worker")}
	go scheduler.Run(ctx)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	rc.Logger.Info("shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	return server.Shutdown(shutdownCtx)
}

type SyncCmd struct{}

func (c *SyncCmd) Run(rc *runContext) error {
	a, err := newApp(rc.Ctx, rc.Config, rc.Logger)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.fsSync == nil {
		return errors.New("FITNESSSYNCER_CLIENT_ID is not set")
	}
	return printSync(a.fsSync.Sync(rc.Ctx))
}

type StravaSyncCmd struct{}

func (c *StravaSyncCmd) Run(rc *runContext) error {
	a, err := newApp(rc.Ctx, rc.Config, rc.Logger)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.stravaSync == nil {
		return errors.New("STRAVA_CLIENT_ID is not set")
	}
	return printSync(a.stravaSync.Sync(rc.Ctx))
}

func printSync(res ingest.Result, err error) error {
	if err != nil {
		return err
	}
	return printJSON(res)
}

type WeeklyCmd struct {
	Date string `help:"Recompute only the week containing this YYYY-MM-DD date."`
}

func (c *WeeklyCmd) Run(rc *runContext) error {
	a, err := newApp(rc.Ctx, rc.Config, rc.Logger)
	if err != nil {
		return err
	}
	defer a.Close()

	var summary weekly.Summary
	if c.Date == "" {
		summary, err = a.weekly.RecomputeAll(rc.Ctx)
	} else {
		day, parseErr := time.ParseInLocation(activity.DateLayout, c.Date, a.book.Location())
		if parseErr != nil {
			return fmt.Errorf("invalid date %q: %w", c.Date, parseErr)
		}
		summary, err = a.weekly.RecomputeWeek(rc.Ctx, day)
	}
	if err != nil {
		return err
	}
	return printJSON(summary)
}

type ExchangeCodeCmd struct {
	Provider string `arg:"" optional:"" enum:"fitnesssyncer,strava" default:"fitnesssyncer" help:"Provider to authorize (${enum})."`
	Code     string `help:"Authorization code. Defaults to the Authorization Code row of the provider's config region."`
}

func (c *ExchangeCodeCmd) Run(rc *runContext) error {
	a, err := newApp(rc.Ctx, rc.Config, rc.Logger)
	if err != nil {
		return err
	}
	defer a.Close()

	manager, store, err := a.authorizer(c.Provider)
	if err != nil {
		return err
	}
	code := c.Code
	if code == "" {
		if code, err = store.AuthorizationCode(rc.Ctx); err != nil {
			return err
		}
	}
	if code == "" {
		return errors.New("no authorization code given or saved")
	}

	token, err := manager.ExchangeCode(rc.Ctx, code)
	if err != nil {
		return err
	}
	// Codes are single use.
	if c.Code == "" {
		if err := store.SaveAuthorizationCode(rc.Ctx, ""); err != nil {
			rc.Logger.Warn("failed to clear authorization code", "err", err)
		}
	}
	rc.Logger.Info("tokens saved", "provider", c.Provider)
	if token.Athlete != nil {
		rc.Logger.Info("athlete connected", "id", token.Athlete.ID, "name", strings.TrimSpace(token.Athlete.FirstName+" "+token.Athlete.LastName))
	}
	return nil
}

type StravaSubscribeCmd struct {
	Replace bool `help:"Replace a subscription that points at another callback. Defaults to STRAVA_WEBHOOK_AUTO_REPLACE."`
}

func (c *StravaSubscribeCmd) Run(rc *runContext) error {
	cfg := rc.Config
	if c.Replace {
		cfg.StravaWebhookAutoReplace = true
	}
	action, sub, err := subscribe(rc.Ctx, cfg, rc.Logger)
	if err != nil {
		if errors.Is(err, strava.ErrSubscriptionMismatch) {
			return fmt.Errorf("%w (rerun with --replace)", err)
		}
		return err
	}
	return printJSON(struct {
		Action      strava.SubscriptionAction `json:"action"`
		ID          int64                     `json:"id"`
		CallbackURL string                    `json:"callbackUrl"`
	}{action, sub.ID, sub.CallbackURL})
}

type TokenCmd struct {
	Subject string        `help:"Token subject." default:"athlete"`
	Scopes  []string      `help:"Scopes to embed."`
	TTL     time.Duration `help:"Token lifetime." default:"720h" name:"ttl"`
}

func (c *TokenCmd) Run(rc *runContext) error {
	cfg := auth.Config{Secret: rc.Config.JWTSecret, Issuer: rc.Config.JWTIssuer}
	if !cfg.Enabled() {
		return errors.New("API_JWT_SECRET is not set")
	}
	token, err := auth.Issue(cfg, c.Subject, c.Scopes, c.TTL, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, token)
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
