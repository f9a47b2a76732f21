// Package cli implements the carolina command-line client.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashureev/carolina/internal/agent"
	"github.com/ashureev/carolina/internal/config"
	"github.com/ashureev/carolina/internal/core"
	"github.com/ashureev/carolina/internal/identity"
	"github.com/ashureev/carolina/internal/remote"
	"github.com/ashureev/carolina/internal/sessions"
	"github.com/ashureev/carolina/internal/store"
)

// app holds the resolved configuration and the resources opened for one
// command invocation.
type app struct {
	cfg     *config.ClientConfig
	local   bool
	verbose bool
	logger  *slog.Logger
	stderr  io.Writer

	closers []func() error
}

func (a *app) initLogger(w io.Writer) {
	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	a.stderr = w
	a.logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}

func (a *app) coreBackend() (core.Backend, error) {
	switch a.cfg.CoreBackend {
	case "sqlite":
		kv, err := store.NewSQLiteKV(filepath.Join(a.cfg.DataDir, "core.db"))
		if err != nil {
			return nil, err
		}
		a.onClose(kv.Close)
		return kv, nil
	default:
		return store.NewFileKV(filepath.Join(a.cfg.DataDir, "core"))
	}
}

// openCore loads the persisted core document. The store is flushed on close.
func (a *app) openCore(ctx context.Context) (*core.Store, error) {
	backend, err := a.coreBackend()
	if err != nil {
		return nil, fmt.Errorf("open core backend: %w", err)
	}
	s, err := core.Open(ctx, backend,
		core.WithHistoryLimit(a.cfg.HistoryLimit),
		core.WithLogger(a.logger),
	)
	if err != nil {
		return nil, err
	}
	a.onClose(func() error { return s.Close(context.Background()) })
	return s, nil
}

// backends returns the session backend and responder: the server over HTTP,
// or with --local a SQLite database in the data directory and the built-in
// responder.
func (a *app) backends() (sessions.Backend, agent.Responder, error) {
	if a.local {
		repo, err := store.NewSQLite(filepath.Join(a.cfg.DataDir, "sessions.db"))
		if err != nil {
			return nil, nil, fmt.Errorf("open local sessions: %w", err)
		}
		a.onClose(repo.Close)
		return store.NewScoped(repo, identity.LocalPrincipal), agent.NewService(agent.Placeholder{}, nil, a.logger), nil
	}

	client, err := a.remote()
	if err != nil {
		return nil, nil, err
	}
	return client, client, nil
}

func (a *app) remote() (*remote.Client, error) {
	return remote.New(a.cfg.ServerURL, a.cfg.Token)
}

// openManager initializes a session manager and optionally activates
// sessionID.
func (a *app) openManager(ctx context.Context, sessionID string) (*sessions.Manager, agent.Responder, error) {
	backend, responder, err := a.backends()
	if err != nil {
		return nil, nil, err
	}
	mgr := sessions.NewManager(backend,
		sessions.WithLogger(a.logger),
		sessions.WithTimeout(a.cfg.Timeout),
		sessions.WithNotifier(newNotifier(a.stderr)),
	)
	if err := mgr.Init(ctx); err != nil {
		return nil, nil, err
	}
	if sessionID != "" && !mgr.SelectSession(ctx, sessionID) {
		return nil, nil, fmt.Errorf("session %s not found", sessionID)
	}
	return mgr, responder, nil
}

func ensureDataDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

func contextWithTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = sessions.DefaultTimeout
	}
	return context.WithTimeout(cmd.Context(), d)
}
