package sessions

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ashureev/carolina/internal/domain"
)

const (
	autoTitleWords    = 4
	autoTitleMaxRunes = 30
)

type emojiRule struct {
	pattern *regexp.Regexp
	emoji   string
}

// Checked in order; the first match wins.
var emojiRules = []emojiRule{
	{regexp.MustCompile(`\b(love|heart|romance)\b`), "❤️"},
	{regexp.MustCompile(`\b(happy|joy|great|amazing)\b`), "😊"},
	{regexp.MustCompile(`\b(sad|unhappy|sorry)\b`), "😢"},
	{regexp.MustCompile(`\b(code|program|bug|js|python|react)\b`), "💻"},
	{regexp.MustCompile(`\b(security|hack|password)\b`), "🛡️"},
	{regexp.MustCompile(`\b(learn|study|knowledge)\b`), "📚"},
	{regexp.MustCompile(`\b(help|question|how)\b`), "❓"},
	{regexp.MustCompile(`\b(idea|think|brain)\b`), "💡"},
}

// AutoTitle is a generated title/emoji pair.
type AutoTitle struct {
	Title string
	Emoji string
}

// TitleGenerator derives a title from a session's first user message.
type TitleGenerator func(content string) AutoTitle

// GenerateAutoTitle takes the first four words of content, shortened to 30
// runes plus "..." when longer, and picks an emoji by keyword.
func GenerateAutoTitle(content string) AutoTitle {
	words := strings.Fields(content)
	if len(words) > autoTitleWords {
		words = words[:autoTitleWords]
	}
	title := strings.Join(words, " ")
	if utf8.RuneCountInString(title) > autoTitleMaxRunes {
		title = string([]rune(title)[:autoTitleMaxRunes]) + "..."
	}
	if title == "" {
		title = domain.DefaultSessionTitle
	}

	text := strings.ToLower(content)
	emoji := domain.DefaultSessionEmoji
	for _, rule := range emojiRules {
		if rule.pattern.MatchString(text) {
			emoji = rule.emoji
			break
		}
	}
	return AutoTitle{Title: title, Emoji: emoji}
}
