package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"trainlog/internal/ingest"
)

type countingSyncer struct {
	calls int
}

func (s *countingSyncer) Sync(context.Context) (ingest.Result, error) {
	s.calls++
	return ingest.Result{NewActivities: 1}, nil
}

func inline(f func()) { f() }

func TestHandlerTriggersSyncOnCreate(t *testing.T) {
	syncer := &countingSyncer{}
	handler := &Handler{Syncer: syncer, SigningSecret: "secret", dispatch: inline}

	payload := []byte(`{"object_type":"activity","object_id":42,"aspect_type":"create","owner_id":7}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
	req.Header.Set("X-Strava-Signature", signPayload(payload, "secret"))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if syncer.calls != 1 {
		t.Fatalf("expected 1 sync, got %d", syncer.calls)
	}
}

func TestHandlerIgnoresOtherEvents(t *testing.T) {
	syncer := &countingSyncer{}
	handler := &Handler{Syncer: syncer, OwnerID: 7, dispatch: inline}

	for _, payload := range []string{
		`{"object_type":"activity","object_id":42,"aspect_type":"update","owner_id":7}`,
		`{"object_type":"athlete","object_id":7,"aspect_type":"update","owner_id":7}`,
		`{"object_type":"activity","object_id":43,"aspect_type":"create","owner_id":8}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(payload))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	}
	if syncer.calls != 0 {
		t.Fatalf("expected no sync, got %d", syncer.calls)
	}
}

func TestHandlerRejectsMissingFields(t *testing.T) {
	handler := &Handler{SigningSecret: "secret"}
	payload := []byte(`{"object_type":"activity"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
	req.Header.Set("X-Strava-Signature", signPayload(payload, "secret"))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandlerRejectsBadSignature(t *testing.T) {
	handler := &Handler{SigningSecret: "secret"}
	payload := []byte(`{"object_type":"activity","object_id":42,"aspect_type":"create","owner_id":7}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
	req.Header.Set("X-Strava-Signature", signPayload(payload, "other"))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandlerVerification(t *testing.T) {
	handler := &Handler{VerifyToken: "token"}
	req := httptest.NewRequest(http.MethodGet, "/webhook?hub.challenge=abc&hub.verify_token=token", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"hub.challenge":"abc"`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/webhook?hub.challenge=abc&hub.verify_token=wrong", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func signPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
