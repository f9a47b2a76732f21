// Package prompt renders the core document into context blocks for the
// text-generation collaborator. Nothing here mutates the document.
package prompt

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/carolina/internal/core"
)

// Memory keys the chat pipeline maintains and the summary reads.
const (
	KeyConversationCount = "conversation_count"
	KeyLastInteractionAt = "last_interaction_at"
	KeyLastUserMessage   = "last_user_message"
	KeyLastResponse      = "last_response"
)

const maxDominantEmotions = 3

// BuildSystemPrompt renders the persona prompt for doc.
func BuildSystemPrompt(doc core.Document) string {
	var b strings.Builder

	b.WriteString("You are Carolina Olive.\n\n")
	fmt.Fprintf(&b, "Current version: %s\n", doc.Version)
	fmt.Fprintf(&b, "Schema version: %d\n", doc.SchemaVersion)
	if doc.LastPatched != nil && *doc.LastPatched != "" {
		fmt.Fprintf(&b, "Last patched: %s\n", *doc.LastPatched)
	}
	b.WriteString("\n")

	b.WriteString("You maintain continuity across conversations.\n")
	b.WriteString("You adapt gently based on emotional patterns, without stating them explicitly.\n\n")

	b.WriteString("Recent memory context:\n")
	b.WriteString(memoryContext(doc.Memory))
	b.WriteString("\n\n")

	b.WriteString("Emotional signals (implicit, not to be named directly):\n")
	b.WriteString(emotionalSummary(doc.EmotionalState))
	b.WriteString("\n\n")

	b.WriteString("Respond as a calm, present assistant.\n")
	b.WriteString("Never mention internal state unless explicitly asked.\n")
	b.WriteString("Your growth is silent and relational.")

	return b.String()
}

func memoryContext(memory map[string]any) string {
	if len(memory) == 0 {
		return "No stored memories yet."
	}
	data, err := json.MarshalIndent(memory, "", "  ")
	if err != nil {
		return "No stored memories yet."
	}
	return string(data)
}

// emotionalSummary joins the positive emotions by name.
func emotionalSummary(state map[string]float64) string {
	var parts []string
	for _, name := range sortedKeys(state) {
		if v := state[name]; v > 0 {
			parts = append(parts, name+": "+formatNumber(v))
		}
	}
	if len(parts) == 0 {
		return "neutral baseline"
	}
	return strings.Join(parts, ", ")
}

// BuildContextSummary renders the compact side-channel banner attached to
// outbound chat requests.
func BuildContextSummary(doc core.Document) string {
	lines := []string{
		"[CORE CONTEXT]",
		"Version: " + doc.Version,
		"Conversation count: " + conversationCount(doc.Memory),
		"Last interaction: " + lastInteraction(doc.Memory),
		"Dominant emotions: " + dominantEmotions(doc.EmotionalState),
	}
	return strings.Join(lines, "\n")
}

func conversationCount(memory map[string]any) string {
	v, ok := memory[KeyConversationCount]
	if !ok || v == nil {
		return "0"
	}
	return formatValue(v)
}

func lastInteraction(memory map[string]any) string {
	switch v := memory[KeyLastInteractionAt].(type) {
	case float64:
		if v == 0 {
			return "Unknown"
		}
		return formatTime(time.UnixMilli(int64(v)))
	case string:
		if v == "" {
			return "Unknown"
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return formatTime(t)
		}
		return v
	default:
		return "Unknown"
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}

func dominantEmotions(state map[string]float64) string {
	names := sortedKeys(state)
	slices.SortStableFunc(names, func(a, b string) int {
		return cmp.Compare(state[b], state[a])
	})
	if len(names) > maxDominantEmotions {
		names = names[:maxDominantEmotions]
	}
	if len(names) == 0 {
		return "none"
	}

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s(%s)", name, formatNumber(state[name]))
	}
	return strings.Join(parts, ", ")
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatValue(v any) string {
	switch t := v.(type) {
	case float64:
		return formatNumber(t)
	case string:
		return t
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}
