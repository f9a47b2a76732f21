package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ashureev/carolina/internal/chat"
	"github.com/ashureev/carolina/internal/core"
	"github.com/ashureev/carolina/internal/domain"
	"github.com/ashureev/carolina/internal/prompt"
	"github.com/ashureev/carolina/internal/sessions"
)

// openChat wires the send pipeline over the core document and the session
// manager.
func (a *app) openChat(ctx context.Context, sessionID string) (*chat.Service, *sessions.Manager, *core.Store, error) {
	state, err := a.openCore(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	mgr, responder, err := a.openManager(ctx, sessionID)
	if err != nil {
		return nil, nil, nil, err
	}
	svc := chat.NewService(mgr, state, responder,
		chat.WithLogger(a.logger),
		chat.WithNotifier(newNotifier(a.stderr)),
	)
	return svc, mgr, state, nil
}

func newSendCommand(a *app) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Send one message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, _, err := a.openChat(cmd.Context(), sessionID)
			if err != nil {
				return err
			}
			res, err := svc.Send(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			printReply(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session to send to (default: most recent)")
	return cmd
}

func newChatCommand(a *app) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat interactively",
		Long: `Chat interactively in the active session. Type a message and press Enter.

Commands:
  /new [title]    start a new session
  /sessions       list sessions
  /switch <id>    switch to another session
  /status         show the core context summary
  /quit           leave`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, mgr, state, err := a.openChat(cmd.Context(), sessionID)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return chat.RunSnapshotWorker(gctx, state, a.cfg.SnapshotInterval, a.logger)
			})
			g.Go(func() error {
				defer cancel()
				return runREPL(gctx, cmd.InOrStdin(), cmd.OutOrStdout(), svc, mgr, state)
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session to chat in (default: most recent)")
	return cmd
}

type replState interface {
	Document() core.Document
}

func runREPL(ctx context.Context, in io.Reader, out io.Writer, svc *chat.Service, mgr *sessions.Manager, state replState) error {
	if s := mgr.ActiveSession(); s != nil {
		fmt.Fprintln(out, headerStyle.Render(s.Emoji+" "+s.Title))
	}
	for _, msg := range activeMessages(mgr) {
		printMessage(out, msg)
	}

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		fmt.Fprint(out, userStyle.Render("> "))

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := runSlash(ctx, out, line, mgr, state); quit {
				return nil
			}
			continue
		}

		res, err := svc.Send(ctx, line)
		switch {
		case errors.Is(err, context.Canceled):
			return nil
		case errors.Is(err, chat.ErrNoActiveSession):
			fmt.Fprintf(out, "%s %v\n", errorStyle.Render("✗"), err)
		case err != nil:
			// The notifier has already reported the failure.
		default:
			printReply(out, res)
		}
	}
}

// printReply prints the stored assistant message, or the bare reply when
// storing it failed.
func printReply(w io.Writer, res *chat.Result) {
	if res.Assistant != nil {
		printMessage(w, res.Assistant)
		return
	}
	if res.Reply != nil {
		printMessage(w, &domain.ChatMessage{Role: domain.RoleAssistant, Content: res.Reply.Response})
	}
}

func runSlash(ctx context.Context, out io.Writer, line string, mgr *sessions.Manager, state replState) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true
	case "/new":
		if s := mgr.CreateSession(ctx, arg, ""); s != nil {
			printSessionLine(out, activeMarker, s)
		}
	case "/sessions":
		for _, s := range mgr.ListSessions(ctx) {
			marker := " "
			if s.ID == mgr.ActiveSessionID() {
				marker = activeMarker
			}
			printSessionLine(out, marker, s)
		}
	case "/switch":
		if mgr.SelectSession(ctx, arg) {
			for _, msg := range activeMessages(mgr) {
				printMessage(out, msg)
			}
		}
	case "/status":
		fmt.Fprintln(out, prompt.BuildContextSummary(state.Document()))
	default:
		fmt.Fprintf(out, "%s unknown command %s\n", errorStyle.Render("✗"), name)
	}
	return false
}
