// Package agent adapts the AI collaborator that writes Carolina's replies.
package agent

import (
	"encoding/json"

	"github.com/ashureev/carolina/internal/domain"
)

// MaxHistory is the number of prior turns forwarded with a request.
const MaxHistory = 10

// FallbackReply is used when a responder returns an empty response.
const FallbackReply = "I'm thinking..."

// Turn is one prior message forwarded as conversation history.
type Turn struct {
	Role    domain.Role `json:"role"`
	Content string      `json:"content"`
}

// Request is what the client sends to the AI collaborator.
type Request struct {
	Message      string `json:"message"`
	History      []Turn `json:"history"`
	CoreContext  string `json:"coreContext,omitempty"`
	SystemPrompt string `json:"systemPrompt,omitempty"`
	SessionID    string `json:"sessionId,omitempty"`
}

// Reply is the AI collaborator's answer. Domains and Calculations are opaque
// annotations stored alongside the assistant message.
type Reply struct {
	Response     string          `json:"response"`
	Domains      json.RawMessage `json:"domains,omitempty"`
	Calculations json.RawMessage `json:"calculations,omitempty"`
}

// TrimHistory keeps the last MaxHistory turns.
func TrimHistory(history []Turn) []Turn {
	if len(history) <= MaxHistory {
		return history
	}
	return history[len(history)-MaxHistory:]
}

// TurnsFromMessages converts stored messages to history turns.
func TurnsFromMessages(messages []*domain.ChatMessage) []Turn {
	turns := make([]Turn, 0, len(messages))
	for _, msg := range messages {
		turns = append(turns, Turn{Role: msg.Role, Content: msg.Content})
	}
	return turns
}
