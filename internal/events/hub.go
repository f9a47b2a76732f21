// Package events fans session changes out to websocket subscribers so every
// client of a principal sees renames, deletions and new messages.
package events

import (
	"log/slog"
	"sync"

	"github.com/ashureev/carolina/internal/domain"
)

// Event types.
const (
	TypeSessionCreated = "session.created"
	TypeSessionUpdated = "session.updated"
	TypeSessionDeleted = "session.deleted"
	TypeSessionTouched = "session.touched"
	TypeMessageCreated = "message.created"
)

// Event is one change notification.
type Event struct {
	Type      string              `json:"type"`
	SessionID string              `json:"sessionId"`
	Session   *domain.ChatSession `json:"session,omitempty"`
	Message   *domain.ChatMessage `json:"message,omitempty"`
}

// Publisher accepts events for a principal.
type Publisher interface {
	Publish(userID string, ev Event)
}

// Discard is a Publisher that drops everything.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(string, Event) {}

// PublishRemoved returns a callback that announces sessions deleted outside
// the API, such as by the idle cleanup, to each owner's clients.
func PublishRemoved(pub Publisher) func([]*domain.ChatSession) {
	return func(removed []*domain.ChatSession) {
		for _, session := range removed {
			pub.Publish(session.UserID, Event{Type: TypeSessionDeleted, SessionID: session.ID})
		}
	}
}

const subscriberBuffer = 32

type subscriber struct {
	userID string
	ch     chan Event
	// dropped is closed when the hub gives up on a slow subscriber.
	dropped chan struct{}
	once    sync.Once
}

func (s *subscriber) drop() {
	s.once.Do(func() { close(s.dropped) })
}

// Hub tracks subscribers per principal.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	logger *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[string]map[*subscriber]struct{}),
		logger: logger,
	}
}

func (h *Hub) subscribe(userID string) *subscriber {
	s := &subscriber{
		userID:  userID,
		ch:      make(chan Event, subscriberBuffer),
		dropped: make(chan struct{}),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[userID]; !ok {
		h.subs[userID] = make(map[*subscriber]struct{})
	}
	h.subs[userID][s] = struct{}{}
	h.logger.Info("Event subscriber registered", "user_id", userID, "subscribers", len(h.subs[userID]))
	return s
}

func (h *Hub) unsubscribe(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.subs[s.userID]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.subs, s.userID)
		}
	}
	h.logger.Info("Event subscriber unregistered", "user_id", s.userID)
}

// Publish delivers ev to every subscriber of userID. A subscriber whose
// buffer is full is disconnected rather than blocking the publisher.
func (h *Hub) Publish(userID string, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[userID] {
		select {
		case s.ch <- ev:
		default:
			h.logger.Warn("Event subscriber too slow, dropping", "user_id", userID)
			s.drop()
		}
	}
}

// Subscribers returns the number of subscribers for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// CloseAll disconnects every subscriber.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, subs := range h.subs {
		for s := range subs {
			s.drop()
		}
	}
}
