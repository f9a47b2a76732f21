// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/carolina/internal/domain"
)

// ErrNotFound is returned when a session does not exist for the principal.
var ErrNotFound = errors.New("not found")

// Repository defines the interface for persisting chat sessions and messages.
// Every call is scoped to a principal (userID); rows of other principals are invisible.
type Repository interface {
	// ListSessions returns the principal's sessions, most recently updated first.
	ListSessions(ctx context.Context, userID string) ([]*domain.ChatSession, error)

	// GetSession retrieves a single session.
	GetSession(ctx context.Context, userID, sessionID string) (*domain.ChatSession, error)

	// CreateSession inserts a session and assigns its ID and timestamps.
	CreateSession(ctx context.Context, session *domain.ChatSession) error

	// UpdateSession applies a partial title/emoji update and returns the stored row.
	UpdateSession(ctx context.Context, userID, sessionID string, patch domain.SessionPatch) (*domain.ChatSession, error)

	// DeleteSession removes a session together with its messages.
	DeleteSession(ctx context.Context, userID, sessionID string) error

	// TouchSession bumps updated_at for a session.
	TouchSession(ctx context.Context, userID, sessionID string, at time.Time) error

	// ListMessages returns a session's messages in creation order.
	ListMessages(ctx context.Context, userID, sessionID string) ([]*domain.ChatMessage, error)

	// InsertMessage appends a message to a session.
	InsertMessage(ctx context.Context, userID string, msg domain.NewMessage) (*domain.ChatMessage, error)

	// CleanupIdleSessions removes empty sessions not touched within ttl and
	// returns them (id and user id only).
	CleanupIdleSessions(ctx context.Context, ttl time.Duration) ([]*domain.ChatSession, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
