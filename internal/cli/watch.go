package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ashureev/carolina/internal/events"
)

func newWatchCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow session changes made by any of your clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.local {
				return errors.New("watch needs a server; drop --local")
			}
			client, err := a.remote()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			wsURL := events.FeedURL(client.BaseURL())
			a.logger.Debug("subscribing", "url", wsURL)

			return events.Subscribe(cmd.Context(), wsURL, client.Token(), func(ev events.Event) {
				fmt.Fprintln(out, describeEvent(ev))
			})
		},
	}
}

func describeEvent(ev events.Event) string {
	label := labelStyle.Render(ev.Type)
	switch {
	case ev.Message != nil:
		return fmt.Sprintf("%s %s %s: %s", label, idStyle.Render(ev.SessionID), ev.Message.Role, ev.Message.Content)
	case ev.Session != nil:
		return fmt.Sprintf("%s %s %s %s", label, idStyle.Render(ev.SessionID), ev.Session.Emoji, titleStyle.Render(ev.Session.Title))
	default:
		return fmt.Sprintf("%s %s", label, idStyle.Render(ev.SessionID))
	}
}
