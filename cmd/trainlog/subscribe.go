package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"trainlog/internal/config"
	"trainlog/internal/strava"
)

func subscribe(ctx context.Context, cfg config.Config, logger *log.Logger) (strava.SubscriptionAction, *strava.Subscription, error) {
	if cfg.StravaWebhookCallbackURL == "" {
		return "", nil, errors.New("BASE_URL or STRAVA_WEBHOOK_CALLBACK_URL not set")
	}
	if cfg.StravaVerifyToken == "" {
		return "", nil, errors.New("STRAVA_VERIFY_TOKEN not set")
	}
	if cfg.StravaClientID == "" || cfg.StravaClientSecret == "" {
		return "", nil, errors.New("Strava client credentials missing")
	}

	client := &strava.SubscriptionClient{
		BaseURL:      cfg.StravaBaseURL,
		ClientID:     cfg.StravaClientID,
		ClientSecret: cfg.StravaClientSecret,
		HTTPClient:   &http.Client{Timeout: 15 * time.Second},
		Logger:       logger.WithPrefix("strava"),
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	return client.Ensure(timeoutCtx, cfg.StravaWebhookCallbackURL, cfg.StravaVerifyToken, cfg.StravaWebhookAutoReplace)
}

// ensureWebhookSubscription runs at startup. Strava verifies the callback
// while the subscription is created, so the listener must already be up.
func ensureWebhookSubscription(ctx context.Context, cfg config.Config, logger *log.Logger) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(time.Second):
	}

	action, sub, err := subscribe(ctx, cfg, logger)
	if err != nil {
		if errors.Is(err, strava.ErrSubscriptionMismatch) {
			logger.Warn("webhook subscription mismatch, set STRAVA_WEBHOOK_AUTO_REPLACE=true to replace",
				"callback", cfg.StravaWebhookCallbackURL)
			return
		}
		logger.Error("webhook auto-register failed", "err", err)
		return
	}
	logger.Info("webhook subscription", "action", action, "id", sub.ID, "callback", sub.CallbackURL)
}
