package sessions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateAutoTitle(t *testing.T) {
	tests := []struct {
		name    string
		content string
		title   string
		emoji   string
	}{
		{"love wins over later rules", "I love building things today and more words after that", "I love building things", "❤️"},
		{"long words truncated", "Supercalifragilistic expialidocious wonderfully marvelous", "Supercalifragilistic expialido...", "✨"},
		{"happy", "What a great day", "What a great day", "😊"},
		{"sad", "sorry for the delay", "sorry for the delay", "😢"},
		{"code", "my python script crashes", "my python script crashes", "💻"},
		{"security", "reset my password please", "reset my password please", "🛡️"},
		{"learn", "I want to study Go", "I want to study", "📚"},
		{"help", "how does this work", "how does this work", "❓"},
		{"idea", "an idea for later", "an idea for later", "💡"},
		{"case insensitive", "LOVE this", "LOVE this", "❤️"},
		{"word boundary", "lovely weather", "lovely weather", "✨"},
		{"whitespace collapsed", "  hello \n\t world  ", "hello world", "✨"},
		{"empty", "   ", "New Chat", "✨"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateAutoTitle(tt.content)
			assert.Equal(t, tt.title, got.Title)
			assert.Equal(t, tt.emoji, got.Emoji)
		})
	}
}

func TestGenerateAutoTitleCountsRunes(t *testing.T) {
	got := GenerateAutoTitle("ééééééééééééééééééééééééééééééééééé")
	assert.Equal(t, "éééééééééééééééééééééééééééééé...", got.Title)
}
