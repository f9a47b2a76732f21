// Package domain contains core domain types for the Carolina chat service.
package domain

import (
	"encoding/json"
	"time"
)

// Defaults applied when a session is created without an explicit title or emoji.
const (
	DefaultSessionTitle = "New Chat"
	DefaultSessionEmoji = "✨"
)

// Role identifies the author of a chat message.
type Role string

const (
	// RoleUser marks messages typed by the person chatting.
	RoleUser Role = "user"
	// RoleAssistant marks messages produced by the AI persona.
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the supported roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ChatSession is a named, ordered conversation thread.
type ChatSession struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	Title     string    `json:"title"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Merge returns s with every non-zero field of update laid over it.
// Fields the backend did not return are left untouched.
func (s ChatSession) Merge(update ChatSession) ChatSession {
	if update.ID != "" {
		s.ID = update.ID
	}
	if update.UserID != "" {
		s.UserID = update.UserID
	}
	if update.Title != "" {
		s.Title = update.Title
	}
	if update.Emoji != "" {
		s.Emoji = update.Emoji
	}
	if !update.CreatedAt.IsZero() {
		s.CreatedAt = update.CreatedAt
	}
	if !update.UpdatedAt.IsZero() {
		s.UpdatedAt = update.UpdatedAt
	}
	return s
}

// SessionPatch carries a partial title/emoji update. Nil fields are not changed.
type SessionPatch struct {
	Title *string `json:"title,omitempty"`
	Emoji *string `json:"emoji,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p SessionPatch) Empty() bool {
	return p.Title == nil && p.Emoji == nil
}

// ChatMessage is a single immutable entry in a session.
// Domains and Calculations are assistant annotations kept as opaque JSON.
type ChatMessage struct {
	ID           string          `json:"id"`
	SessionID    string          `json:"session_id"`
	Role         Role            `json:"role"`
	Content      string          `json:"content"`
	CreatedAt    time.Time       `json:"created_at"`
	Domains      json.RawMessage `json:"domains,omitempty"`
	Calculations json.RawMessage `json:"calculations,omitempty"`
}

// NewMessage is the insert payload for a chat message.
type NewMessage struct {
	SessionID    string          `json:"session_id"`
	Role         Role            `json:"role"`
	Content      string          `json:"content"`
	Domains      json.RawMessage `json:"domains,omitempty"`
	Calculations json.RawMessage `json:"calculations,omitempty"`
}
