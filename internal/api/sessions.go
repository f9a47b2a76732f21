package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/carolina/internal/domain"
	"github.com/ashureev/carolina/internal/events"
	"github.com/ashureev/carolina/internal/identity"
	"github.com/ashureev/carolina/internal/store"
)

const maxBodyBytes = 1 << 20

// RegisterRoutes registers session and message routes (requires authentication).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", h.ListSessions)
		r.Post("/", h.CreateSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Patch("/", h.UpdateSession)
			r.Delete("/", h.DeleteSession)
			r.Post("/touch", h.TouchSession)
			r.Get("/messages", h.ListMessages)
			r.Post("/messages", h.CreateMessage)
		})
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			Error(w, http.StatusBadRequest, "invalid request body")
		}
		return false
	}
	return true
}

func (h *Handler) storeError(w http.ResponseWriter, op string, err error, attrs ...any) {
	if errors.Is(err, store.ErrNotFound) {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	h.logger.Error("Failed to "+op, append(attrs, "error", err)...)
	Error(w, http.StatusInternalServerError, "failed to "+op)
}

// ListSessions handles GET /api/sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessions, err := h.repo.ListSessions(r.Context(), userID)
	if err != nil {
		h.storeError(w, "list sessions", err, "user_id", userID)
		return
	}
	if sessions == nil {
		sessions = []*domain.ChatSession{}
	}
	JSON(w, http.StatusOK, sessions)
}

type sessionInput struct {
	Title *string `json:"title"`
	Emoji *string `json:"emoji"`
}

// CreateSession handles POST /api/sessions.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	var in sessionInput
	if !decodeBody(w, r, &in) {
		return
	}

	session := &domain.ChatSession{UserID: userID, Title: domain.DefaultSessionTitle, Emoji: domain.DefaultSessionEmoji}
	var err error
	if in.Title != nil {
		if session.Title, err = cleanTitle(*in.Title); err != nil {
			Error(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if in.Emoji != nil {
		if session.Emoji, err = cleanEmoji(*in.Emoji); err != nil {
			Error(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if err := h.repo.CreateSession(r.Context(), session); err != nil {
		h.storeError(w, "create session", err, "user_id", userID)
		return
	}
	h.logger.Info("Session created", "user_id", userID, "session_id", session.ID)
	h.events.Publish(userID, events.Event{Type: events.TypeSessionCreated, SessionID: session.ID, Session: session})
	JSON(w, http.StatusCreated, session)
}

// UpdateSession handles PATCH /api/sessions/{sessionID}. Empty fields are
// left unchanged.
func (h *Handler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	var in sessionInput
	if !decodeBody(w, r, &in) {
		return
	}

	var patch domain.SessionPatch
	if in.Title != nil && *in.Title != "" {
		title, err := cleanTitle(*in.Title)
		if err != nil {
			Error(w, http.StatusBadRequest, err.Error())
			return
		}
		patch.Title = &title
	}
	if in.Emoji != nil && *in.Emoji != "" {
		emoji, err := cleanEmoji(*in.Emoji)
		if err != nil {
			Error(w, http.StatusBadRequest, err.Error())
			return
		}
		patch.Emoji = &emoji
	}

	session, err := h.repo.UpdateSession(r.Context(), userID, sessionID, patch)
	if err != nil {
		h.storeError(w, "update session", err, "user_id", userID, "session_id", sessionID)
		return
	}
	if !patch.Empty() {
		h.events.Publish(userID, events.Event{Type: events.TypeSessionUpdated, SessionID: sessionID, Session: session})
	}
	JSON(w, http.StatusOK, session)
}

// DeleteSession handles DELETE /api/sessions/{sessionID}.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.repo.DeleteSession(r.Context(), userID, sessionID); err != nil {
		h.storeError(w, "delete session", err, "user_id", userID, "session_id", sessionID)
		return
	}
	h.logger.Info("Session deleted", "user_id", userID, "session_id", sessionID)
	h.events.Publish(userID, events.Event{Type: events.TypeSessionDeleted, SessionID: sessionID})
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// TouchSession handles POST /api/sessions/{sessionID}/touch.
func (h *Handler) TouchSession(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.repo.TouchSession(r.Context(), userID, sessionID, timeNow()); err != nil {
		h.storeError(w, "touch session", err, "user_id", userID, "session_id", sessionID)
		return
	}
	h.events.Publish(userID, events.Event{Type: events.TypeSessionTouched, SessionID: sessionID})
	w.WriteHeader(http.StatusNoContent)
}

// ListMessages handles GET /api/sessions/{sessionID}/messages.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	msgs, err := h.repo.ListMessages(r.Context(), userID, sessionID)
	if err != nil {
		h.storeError(w, "list messages", err, "user_id", userID, "session_id", sessionID)
		return
	}
	if msgs == nil {
		msgs = []*domain.ChatMessage{}
	}
	JSON(w, http.StatusOK, msgs)
}

// CreateMessage handles POST /api/sessions/{sessionID}/messages.
func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	var in domain.NewMessage
	if !decodeBody(w, r, &in) {
		return
	}
	in.SessionID = sessionID
	if !in.Role.Valid() {
		Error(w, http.StatusBadRequest, "role must be user or assistant")
		return
	}
	if in.Content == "" {
		Error(w, http.StatusBadRequest, "content is required")
		return
	}

	msg, err := h.repo.InsertMessage(r.Context(), userID, in)
	if err != nil {
		h.storeError(w, "save message", err, "user_id", userID, "session_id", sessionID)
		return
	}
	h.events.Publish(userID, events.Event{Type: events.TypeMessageCreated, SessionID: sessionID, Message: msg})
	JSON(w, http.StatusCreated, msg)
}
