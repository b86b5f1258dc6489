// Package webhook receives Strava push events and starts a Strava sync when
// a new activity is reported.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"trainlog/internal/ingest"
	"trainlog/internal/logging"
)

type Event struct {
	ObjectType     string                 `json:"object_type"`
	ObjectID       int64                  `json:"object_id"`
	AspectType     string                 `json:"aspect_type"`
	OwnerID        int64                  `json:"owner_id"`
	SubscriptionID int64                  `json:"subscription_id"`
	EventTime      int64                  `json:"event_time"`
	Updates        map[string]interface{} `json:"updates"`
}

// Syncer runs an ingestion pass.
type Syncer interface {
	Sync(ctx context.Context) (ingest.Result, error)
}

type Handler struct {
	Syncer        Syncer
	VerifyToken   string
	SigningSecret string
	// OwnerID, when set, ignores events for any other athlete.
	OwnerID     int64
	SyncTimeout time.Duration
	Logger      *log.Logger

	dispatch func(func())
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		h.handleVerification(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if h.SigningSecret != "" {
		if !validSignature(payload, r.Header.Get("X-Strava-Signature"), h.SigningSecret) {
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	if event.ObjectType == "" || event.ObjectID == 0 || event.AspectType == "" || event.OwnerID == 0 {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}

	logger := h.logger()
	logger.Info("strava webhook",
		"owner", event.OwnerID, "type", event.ObjectType, "aspect", event.AspectType, "object", event.ObjectID)

	if h.wantsSync(event) {
		h.startSync(event)
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) wantsSync(event Event) bool {
	if h.Syncer == nil {
		return false
	}
	if h.OwnerID != 0 && event.OwnerID != h.OwnerID {
		return false
	}
	return event.ObjectType == "activity" && event.AspectType == "create"
}

// startSync runs the sync outside the request; Strava expects the webhook
// answered within two seconds.
func (h *Handler) startSync(event Event) {
	timeout := h.SyncTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	run := func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		res, err := h.Syncer.Sync(ctx)
		if err != nil {
			h.logger().Error("webhook sync failed", "object", event.ObjectID, "err", err)
			return
		}
		h.logger().Info("webhook sync finished", "object", event.ObjectID, "new_activities", res.NewActivities)
	}
	if h.dispatch != nil {
		h.dispatch(run)
		return
	}
	go run()
}

func (h *Handler) handleVerification(w http.ResponseWriter, r *http.Request) {
	challenge := r.URL.Query().Get("hub.challenge")
	verifyToken := r.URL.Query().Get("hub.verify_token")
	if challenge == "" {
		http.Error(w, "missing challenge", http.StatusBadRequest)
		return
	}
	if h.VerifyToken != "" && verifyToken != h.VerifyToken {
		http.Error(w, "invalid verify token", http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"hub.challenge": challenge})
}

func (h *Handler) logger() *log.Logger {
	return logging.OrDefault(h.Logger)
}

func validSignature(body []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	expected := mac.Sum(nil)
	received, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, received)
}
