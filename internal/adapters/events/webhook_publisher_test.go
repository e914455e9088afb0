package events

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/strcalc/internal/core/domain"
)

func TestWebhookPublisherSuccess(t *testing.T) {
	var gotBody []byte
	var gotHeaders http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	secret := "test-secret"
	pub := NewWebhookPublisher(srv.URL, secret, 5*time.Second)

	event := domain.EventEnvelope{
		EventID:       "evt-1",
		EventType:     "calculation.accepted",
		TenantID:      "tenant-a",
		AggregateType: "calculation",
		AggregateID:   "c1",
		SchemaVersion: 1,
		Payload:       json.RawMessage(`{"sum":3}`),
	}

	if err := pub.Publish(context.Background(), "events.tenant-a.calculation.accepted", event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ct := gotHeaders.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if topic := gotHeaders.Get("X-Strcalc-Topic"); topic != "events.tenant-a.calculation.accepted" {
		t.Errorf("X-Strcalc-Topic = %q, want events.tenant-a.calculation.accepted", topic)
	}
	if et := gotHeaders.Get("X-Strcalc-Event-Type"); et != "calculation.accepted" {
		t.Errorf("X-Strcalc-Event-Type = %q, want calculation.accepted", et)
	}
	if ten := gotHeaders.Get("X-Strcalc-Tenant"); ten != "tenant-a" {
		t.Errorf("X-Strcalc-Tenant = %q, want tenant-a", ten)
	}
	if id := gotHeaders.Get("X-Strcalc-Event-Id"); id != "evt-1" {
		t.Errorf("X-Strcalc-Event-Id = %q, want evt-1", id)
	}
	if !Verify([]byte(secret), gotBody, gotHeaders.Get("X-Hub-Signature-256")) {
		t.Error("Verify rejected a valid signature")
	}
	if Verify([]byte("other"), gotBody, gotHeaders.Get("X-Hub-Signature-256")) {
		t.Error("Verify accepted a signature made with another secret")
	}

	sigHeader := gotHeaders.Get("X-Hub-Signature-256")
	if !strings.HasPrefix(sigHeader, "sha256=") {
		t.Fatalf("X-Hub-Signature-256 header missing or malformed: %q", sigHeader)
	}
	gotSig := strings.TrimPrefix(sigHeader, "sha256=")
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(gotBody)
	wantSig := hex.EncodeToString(mac.Sum(nil))
	if gotSig != wantSig {
		t.Errorf("signature mismatch: got %q, want %q", gotSig, wantSig)
	}

	var decoded domain.EventEnvelope
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if decoded.EventID != event.EventID {
		t.Errorf("EventID = %q, want %q", decoded.EventID, event.EventID)
	}
}

func TestWebhookPublisherNon2xxReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	pub := NewWebhookPublisher(srv.URL, "secret", 5*time.Second)
	event := domain.EventEnvelope{EventID: "evt-2", EventType: "calculation.rejected", SchemaVersion: 1}

	err := pub.Publish(context.Background(), "events.t.calculation.rejected", event)
	if err == nil {
		t.Fatal("expected error for 500 response, got nil")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error should mention status code 500, got: %v", err)
	}
}

func TestWebhookPublisherContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	pub := NewWebhookPublisher(srv.URL, "secret", 5*time.Second)
	event := domain.EventEnvelope{EventID: "evt-3", EventType: "calculation.accepted", SchemaVersion: 1}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pub.Publish(ctx, "events.t.calculation.accepted", event)
	if err == nil {
		t.Fatal("expected error for cancelled context, got nil")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected error to wrap context.Canceled, got: %v", err)
	}
}

func TestWebhookPublisherZeroTimeoutUsesDefault(t *testing.T) {
	pub := NewWebhookPublisher("http://localhost:9", "s", 0)
	if pub.client.Timeout != defaultWebhookTimeout {
		t.Errorf("timeout = %v, want %v", pub.client.Timeout, defaultWebhookTimeout)
	}
}

func TestLogPublisherNeverFails(t *testing.T) {
	pub := NewLogPublisher(nil)
	if err := pub.Publish(context.Background(), "events.t.calculation.accepted", domain.EventEnvelope{EventID: "evt-4"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
