package services

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestEphemeralKey_Expired(t *testing.T) {
	now := time.Now()
	key := EphemeralKey{Secret: "s", ExpiresAt: now.Add(time.Minute)}

	if key.Expired(now) {
		t.Error("Key should not be expired before ExpiresAt")
	}
	if !key.Expired(now.Add(time.Minute)) {
		t.Error("Key should be expired at ExpiresAt")
	}
	if !key.Expired(now.Add(2 * time.Minute)) {
		t.Error("Key should be expired after ExpiresAt")
	}
}

func TestOpenAIRealtimeService_CreateEphemeralKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/realtime/sessions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer api-key" {
			t.Errorf("Unexpected auth header: %s", got)
		}
		_, _ = w.Write([]byte(`{"client_secret":{"value":"ek-abc","expires_at":4102444800}}`))
	}))
	defer server.Close()

	service := NewOpenAIRealtimeService("api-key", "", testLogger()).WithBaseURL(server.URL)

	key, err := service.CreateEphemeralKey(context.Background(), "ash")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if key.Secret != "ek-abc" {
		t.Errorf("Unexpected secret: %s", key.Secret)
	}
	if key.Expired(time.Now()) {
		t.Error("Expected key to be valid")
	}
}

func TestOpenAIRealtimeService_CreateEphemeralKey_EmptySecret(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"client_secret":{"value":"","expires_at":0}}`))
	}))
	defer server.Close()

	service := NewOpenAIRealtimeService("api-key", "", testLogger()).WithBaseURL(server.URL)

	if _, err := service.CreateEphemeralKey(context.Background(), ""); err == nil {
		t.Fatal("Expected error for empty client secret")
	}
}

func TestOpenAIRealtimeService_ExchangeSDP(t *testing.T) {
	const answer = "v=0\r\no=- 1 1 IN IP4 0.0.0.0\r\ns=answer\r\nt=0 0\r\n"
	var gotAuth, gotBody string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(answer))
	}))
	defer server.Close()

	service := NewOpenAIRealtimeService("api-key", "", testLogger()).WithBaseURL(server.URL)
	key := &EphemeralKey{Secret: "ek-abc", ExpiresAt: time.Now().Add(time.Minute)}

	got, err := service.ExchangeSDP(context.Background(), key, "v=0\r\ns=offer\r\n")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got != answer {
		t.Errorf("Unexpected answer SDP: %q", got)
	}
	if gotAuth != "Bearer ek-abc" {
		t.Errorf("Expected ephemeral secret in auth header, got %s", gotAuth)
	}
	if !strings.Contains(gotBody, "s=offer") {
		t.Errorf("Expected offer SDP in body, got %q", gotBody)
	}
}

func TestOpenAIRealtimeService_ExchangeSDP_ExpiredKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("No network call should be made with an expired key")
	}))
	defer server.Close()

	service := NewOpenAIRealtimeService("api-key", "", testLogger()).WithBaseURL(server.URL)
	key := &EphemeralKey{Secret: "ek-abc", ExpiresAt: time.Now().Add(-time.Minute)}

	if _, err := service.ExchangeSDP(context.Background(), key, "v=0\r\n"); err == nil {
		t.Fatal("Expected error for expired key")
	}
}
