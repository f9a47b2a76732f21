package store

import (
	"context"
	"time"

	"github.com/ashureev/carolina/internal/domain"
)

// Scoped binds a Repository to one principal. It serves the session
// manager directly when the client runs without a server.
type Scoped struct {
	repo   Repository
	userID string
	now    func() time.Time
}

// NewScoped returns repo restricted to userID.
func NewScoped(repo Repository, userID string) *Scoped {
	return &Scoped{repo: repo, userID: userID, now: time.Now}
}

// ListSessions returns the principal's sessions, most recently updated first.
func (s *Scoped) ListSessions(ctx context.Context) ([]*domain.ChatSession, error) {
	return s.repo.ListSessions(ctx, s.userID)
}

// ListMessages returns a session's messages in creation order.
func (s *Scoped) ListMessages(ctx context.Context, sessionID string) ([]*domain.ChatMessage, error) {
	return s.repo.ListMessages(ctx, s.userID, sessionID)
}

// CreateSession creates a session, defaulting an empty title or emoji.
func (s *Scoped) CreateSession(ctx context.Context, title, emoji string) (*domain.ChatSession, error) {
	if title == "" {
		title = domain.DefaultSessionTitle
	}
	if emoji == "" {
		emoji = domain.DefaultSessionEmoji
	}
	session := &domain.ChatSession{UserID: s.userID, Title: title, Emoji: emoji}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// UpdateSession applies a partial update.
func (s *Scoped) UpdateSession(ctx context.Context, sessionID string, patch domain.SessionPatch) (*domain.ChatSession, error) {
	return s.repo.UpdateSession(ctx, s.userID, sessionID, patch)
}

// DeleteSession removes a session and its messages.
func (s *Scoped) DeleteSession(ctx context.Context, sessionID string) error {
	return s.repo.DeleteSession(ctx, s.userID, sessionID)
}

// InsertMessage appends a message.
func (s *Scoped) InsertMessage(ctx context.Context, msg domain.NewMessage) (*domain.ChatMessage, error) {
	return s.repo.InsertMessage(ctx, s.userID, msg)
}

// TouchSession bumps the session's updatedAt to now.
func (s *Scoped) TouchSession(ctx context.Context, sessionID string) error {
	return s.repo.TouchSession(ctx, s.userID, sessionID, s.now())
}
