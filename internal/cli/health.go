package cli

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/ashureev/carolina/internal/remote"
)

func newHealthCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the server and its database are reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.remote()
			if err != nil {
				return err
			}
			ctx, cancel := contextWithTimeout(cmd, a.cfg.Timeout)
			defer cancel()

			status, err := client.Health(ctx)
			out := cmd.OutOrStdout()
			var se *remote.StatusError
			if errors.As(err, &se) {
				fmt.Fprintf(out, "%s %s is unhealthy: %s\n", errorStyle.Render("✗"), client.BaseURL(), se.Message)
				return ErrReported
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "%s %s is %s\n", successStyle.Render("✓"), client.BaseURL(), status.Status)
			for _, name := range slices.Sorted(maps.Keys(status.Checks)) {
				keyValue(out, "  "+name, status.Checks[name])
			}
			return nil
		},
	}
}
