// Package api provides HTTP handlers for the Carolina API.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/carolina/internal/events"
	"github.com/ashureev/carolina/internal/store"
)

// timeNow is replaced in tests.
var timeNow = time.Now

// Handler provides common handler dependencies.
type Handler struct {
	repo   store.Repository
	events events.Publisher
	logger *slog.Logger
}

// NewHandler creates a new Handler. A nil publisher discards events.
func NewHandler(repo store.Repository, pub events.Publisher, logger *slog.Logger) *Handler {
	if pub == nil {
		pub = events.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{repo: repo, events: pub, logger: logger}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
