package events

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/ashureev/carolina/internal/identity"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// Handler serves the event feed over websocket.
type Handler struct {
	hub            *Hub
	originPatterns []string
}

// NewHandler returns a websocket handler for hub. Origins follow
// websocket.AcceptOptions.OriginPatterns; "*" allows any origin.
func NewHandler(hub *Hub, originPatterns []string) *Handler {
	return &Handler{hub: hub, originPatterns: originPatterns}
}

// ServeHTTP implements http.Handler for the websocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.hub.logger.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "feed ended"); closeErr != nil {
			h.hub.logger.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	sub := h.hub.subscribe(userID)
	defer h.hub.unsubscribe(sub)

	// The feed is one-way; CloseRead handles control frames and cancels ctx
	// when the peer goes away.
	ctx := ws.CloseRead(r.Context())

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.dropped:
			_ = ws.Close(websocket.StatusPolicyViolation, "subscriber too slow")
			return
		case ev := <-sub.ch:
			if err := h.write(ctx, ws, ev); err != nil {
				if !errors.Is(err, context.Canceled) {
					h.hub.logger.Debug("WebSocket write error", "error", err, "user_id", userID)
				}
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := ws.Ping(pingCtx)
			cancel()
			if err != nil {
				h.hub.logger.Debug("WebSocket ping failed", "error", err, "user_id", userID)
				return
			}
		}
	}
}

func (h *Handler) write(ctx context.Context, ws *websocket.Conn, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, ev)
}
