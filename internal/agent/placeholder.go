package agent

import (
	"context"
	"fmt"
	"strings"
)

// Placeholder answers with canned keyword replies. It is the responder of
// last resort when no model backend is configured.
type Placeholder struct{}

// Respond implements Responder.
func (Placeholder) Respond(_ context.Context, req Request) (*Reply, error) {
	return &Reply{Response: placeholderReply(req.Message)}, nil
}

func placeholderReply(message string) string {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "hello") || strings.Contains(lower, "hi"):
		return "Hello! I'm Carolina, your AI assistant. How can I help you today?"
	case strings.Contains(lower, "status"):
		return "All systems operational. Brain battery at optimal levels. Ready to assist."
	case strings.Contains(lower, "learn"):
		return "I'm always learning and evolving. My knowledge base expands with every interaction."
	case strings.Contains(lower, "help"):
		return "I can help you with various tasks including analysis, learning tracking, and system management. What would you like to explore?"
	default:
		return fmt.Sprintf("I've processed your message: \"%s\". How would you like me to proceed?", message)
	}
}
