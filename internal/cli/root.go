package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashureev/carolina/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

// Execute runs the carolina command line with os.Args and releases every
// resource the command opened, including when it fails.
func Execute(ctx context.Context) error {
	root, a := newRootCommand()
	defer a.close()
	return root.ExecuteContext(ctx)
}

func newRootCommand() (*cobra.Command, *app) {
	a := &app{}

	var (
		serverURL   string
		token       string
		dataDir     string
		coreBackend string
		timeout     time.Duration
	)

	root := &cobra.Command{
		Use:   "carolina",
		Short: "Chat with Carolina Olive from the terminal",
		Long: `Carolina keeps a persisted core document (memory, emotional state and
emotion history) on this machine and chats through a Carolina server.

Quick Start:
  carolina sessions list           # List chat sessions
  carolina send "hello"            # Send one message to the active session
  carolina chat                    # Interactive chat
  carolina core status             # Inspect the core document
  carolina --local chat            # Chat without a server`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.initLogger(cmd.ErrOrStderr())

			cfg, err := config.LoadClient()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("server") {
				cfg.ServerURL = serverURL
			}
			if flags.Changed("token") {
				cfg.Token = token
			}
			if flags.Changed("data-dir") {
				cfg.DataDir = dataDir
			}
			if flags.Changed("core-backend") {
				cfg.CoreBackend = coreBackend
			}
			if flags.Changed("timeout") {
				cfg.Timeout = timeout
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			a.cfg = cfg
			return ensureDataDir(cfg.DataDir)
		},
	}

	pf := root.PersistentFlags()
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging")
	pf.BoolVar(&a.local, "local", false, "Keep sessions in the local data directory instead of a server")
	pf.StringVar(&serverURL, "server", "", "Server URL (default $CAROLINA_SERVER_URL or http://localhost:8080)")
	pf.StringVar(&token, "token", "", "API bearer token (default $CAROLINA_TOKEN)")
	pf.StringVar(&dataDir, "data-dir", "", "Directory for local state (default $CAROLINA_DATA_DIR)")
	pf.StringVar(&coreBackend, "core-backend", "", "Core document storage: file or sqlite")
	pf.DurationVar(&timeout, "timeout", 0, "Timeout for each server call")

	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(
		newCoreCommand(a),
		newSessionsCommand(a),
		newSendCommand(a),
		newChatCommand(a),
		newWatchCommand(a),
		newHealthCommand(a),
	)
	return root, a
}
