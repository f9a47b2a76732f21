package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashureev/carolina/internal/domain"
	"github.com/ashureev/carolina/internal/sessions"
)

// ErrReported is returned after the failure was already shown to the user.
var ErrReported = errors.New("command failed")

func newSessionsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "Manage chat sessions",
	}
	cmd.AddCommand(
		newSessionsListCommand(a),
		newSessionsNewCommand(a),
		newSessionsRenameCommand(a),
		newSessionsDeleteCommand(a),
		newSessionsShowCommand(a),
	)
	return cmd
}

func newSessionsListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List chat sessions, most recent first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr, _, err := a.openManager(cmd.Context(), "")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			list := mgr.Sessions()

			fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("📋 Chat Sessions (%d)", len(list))))
			fmt.Fprintln(out)
			for _, s := range list {
				marker := " "
				if s.ID == mgr.ActiveSessionID() {
					marker = activeMarker
				}
				printSessionLine(out, marker, s)
			}
			return nil
		},
	}
}

func printSessionLine(w io.Writer, marker string, s *domain.ChatSession) {
	fmt.Fprintf(w, "%s %s %s\n", marker, s.Emoji, titleStyle.Render(s.Title))
	fmt.Fprintf(w, "    %s  %s\n",
		idStyle.Render(s.ID),
		dateStyle.Render(s.UpdatedAt.Local().Format(time.DateTime)))
}

func newSessionsNewCommand(a *app) *cobra.Command {
	var emoji string
	cmd := &cobra.Command{
		Use:   "new [title]",
		Short: "Start a new chat session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, _, err := a.openManager(cmd.Context(), "")
			if err != nil {
				return err
			}
			var title string
			if len(args) == 1 {
				title = args[0]
			}
			created := mgr.CreateSession(cmd.Context(), title, emoji)
			if created == nil {
				return ErrReported
			}
			printSessionLine(cmd.OutOrStdout(), activeMarker, created)
			return nil
		},
	}
	cmd.Flags().StringVar(&emoji, "emoji", "", "Session emoji")
	return cmd
}

func newSessionsRenameCommand(a *app) *cobra.Command {
	var emoji string
	cmd := &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Rename a chat session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, _, err := a.openManager(cmd.Context(), "")
			if err != nil {
				return err
			}
			updated := mgr.RenameSession(cmd.Context(), args[0], args[1], emoji)
			if updated == nil {
				return ErrReported
			}
			printSessionLine(cmd.OutOrStdout(), " ", updated)
			return nil
		},
	}
	cmd.Flags().StringVar(&emoji, "emoji", "", "New session emoji")
	return cmd
}

func newSessionsDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a chat session and its messages",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, _, err := a.openManager(cmd.Context(), "")
			if err != nil {
				return err
			}
			if !mgr.DeleteSession(cmd.Context(), args[0]) {
				return ErrReported
			}
			return nil
		},
	}
}

func newSessionsShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Print a session's messages (the active session by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id string
			if len(args) == 1 {
				id = args[0]
			}
			mgr, _, err := a.openManager(cmd.Context(), id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if s := mgr.ActiveSession(); s != nil {
				fmt.Fprintln(out, headerStyle.Render(s.Emoji+" "+s.Title))
				fmt.Fprintln(out)
			}
			for _, msg := range activeMessages(mgr) {
				printMessage(out, msg)
			}
			return nil
		},
	}
}

func printMessage(w io.Writer, msg *domain.ChatMessage) {
	label := userStyle.Render("You")
	if msg.Role == domain.RoleAssistant {
		label = assistantStyle.Render("Carolina")
	}
	if !msg.CreatedAt.IsZero() {
		label += " " + dateStyle.Render(msg.CreatedAt.Local().Format(time.Kitchen))
	}
	fmt.Fprintf(w, "%s\n%s\n\n", label, msg.Content)
}

// activeMessages skips mirrored messages that belong to another session,
// which happens when loading the active session's messages failed.
func activeMessages(mgr *sessions.Manager) []*domain.ChatMessage {
	id := mgr.ActiveSessionID()
	var out []*domain.ChatMessage
	for _, msg := range mgr.Messages() {
		if msg.SessionID == id {
			out = append(out, msg)
		}
	}
	return out
}
