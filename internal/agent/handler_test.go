package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/carolina/internal/identity"
	"github.com/go-chi/chi/v5"
)

func newTestHandler(t *testing.T, r Responder, cfg HandlerConfig) *Handler {
	t.Helper()
	h := NewHandler(NewService(r, nil, nil), cfg)
	t.Cleanup(h.Close)
	return h
}

func chatRequest(t *testing.T, userID, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	if userID != "" {
		req = req.WithContext(identity.WithUserID(req.Context(), userID))
	}
	return req
}

func TestHandleChat(t *testing.T) {
	h := newTestHandler(t, &stubResponder{reply: &Reply{Response: "hi there"}}, HandlerConfig{})

	rec := httptest.NewRecorder()
	h.HandleChat(rec, chatRequest(t, "alice", `{"message":"hello","history":[],"coreContext":"[CORE CONTEXT]"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var reply Reply
	if err := json.NewDecoder(rec.Body).Decode(&reply); err != nil {
		t.Fatalf("Failed to decode reply: %v", err)
	}
	if reply.Response != "hi there" {
		t.Errorf("Expected 'hi there', got %q", reply.Response)
	}
	if len(reply.Domains) == 0 {
		t.Error("Expected domains to be filled in")
	}
}

func TestHandleChatValidation(t *testing.T) {
	h := newTestHandler(t, Placeholder{}, HandlerConfig{MaxRequestBody: 64})

	tests := []struct {
		name     string
		userID   string
		body     string
		wantCode int
	}{
		{"no principal", "", `{"message":"x"}`, http.StatusUnauthorized},
		{"invalid json", "alice", `{`, http.StatusBadRequest},
		{"empty message", "alice", `{"message":""}`, http.StatusBadRequest},
		{"too large", "alice", `{"message":"` + strings.Repeat("a", 128) + `"}`, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.HandleChat(rec, chatRequest(t, tt.userID, tt.body))
			if rec.Code != tt.wantCode {
				t.Errorf("Expected %d, got %d", tt.wantCode, rec.Code)
			}
		})
	}
}

func TestHandleChatRateLimit(t *testing.T) {
	h := newTestHandler(t, Placeholder{}, HandlerConfig{RequestsPerWindow: 2, WindowDuration: time.Hour})

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.HandleChat(rec, chatRequest(t, "alice", `{"message":"x"}`))
		if rec.Code != http.StatusOK {
			t.Fatalf("Request %d: expected 200, got %d", i, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	h.HandleChat(rec, chatRequest(t, "alice", `{"message":"x"}`))
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.HandleChat(rec, chatRequest(t, "bob", `{"message":"x"}`))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected other principal to pass, got %d", rec.Code)
	}
}

func TestHandleChatContextError(t *testing.T) {
	h := newTestHandler(t, &stubResponder{err: errors.New("down")}, HandlerConfig{})

	req := chatRequest(t, "alice", `{"message":"x"}`)
	ctx, cancel := context.WithCancel(req.Context())
	cancel()

	rec := httptest.NewRecorder()
	h.HandleChat(rec, req.WithContext(ctx))
	if rec.Code != http.StatusBadGateway {
		t.Errorf("Expected 502, got %d", rec.Code)
	}
}

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Stop()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if !rl.Allow("k") {
		t.Fatal("Expected first request to pass")
	}
	if rl.Allow("k") {
		t.Fatal("Expected second request to be limited")
	}
	now = now.Add(2 * time.Minute)
	if !rl.Allow("k") {
		t.Error("Expected request after window to pass")
	}
	rl.Stop()
}

func TestRegisterRoutes(t *testing.T) {
	h := newTestHandler(t, Placeholder{}, HandlerConfig{})
	mux := chi.NewRouter()
	h.RegisterRoutes(mux)

	req := chatRequest(t, "alice", `{"message":"hello"}`)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat", bytes.NewReader(nil)))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}
