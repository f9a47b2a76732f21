package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/ashureev/carolina/internal/sessions"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Bold(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	activeMarker = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Render("●")
)

// newNotifier prints session notices to w.
func newNotifier(w io.Writer) sessions.Notifier {
	return sessions.NotifierFunc(func(n sessions.Notice) {
		switch n.Level {
		case sessions.LevelError:
			if n.Err != nil {
				fmt.Fprintf(w, "%s %s: %v\n", errorStyle.Render("✗"), n.Message, n.Err)
				return
			}
			fmt.Fprintf(w, "%s %s\n", errorStyle.Render("✗"), n.Message)
		case sessions.LevelSuccess:
			fmt.Fprintf(w, "%s %s\n", successStyle.Render("✓"), n.Message)
		default:
			fmt.Fprintln(w, n.Message)
		}
	})
}

func keyValue(w io.Writer, key string, value any) {
	fmt.Fprintf(w, "%s %v\n", labelStyle.Render(key+":"), value)
}
