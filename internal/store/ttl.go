package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/carolina/internal/domain"
)

// CleanupCallback is called after a sweep removed at least one session.
type CleanupCallback func(removed []*domain.ChatSession)

// RunCleanupWorker periodically removes sessions that never received a
// message and sat idle longer than ttl. A ttl of zero disables the worker.
// It blocks until ctx is done.
//
// A removed session may still be active on an idle client; onCleanup is the
// place to tell such clients.
func RunCleanupWorker(ctx context.Context, repo Repository, interval, ttl time.Duration, onCleanup CleanupCallback) error {
	if ttl <= 0 {
		slog.Debug("Cleanup worker disabled")
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	slog.Info("Cleanup worker started", "interval", interval, "ttl", ttl)

	for {
		select {
		case <-ticker.C:
			sweepIdleSessions(ctx, repo, ttl, onCleanup)
		case <-ctx.Done():
			slog.Info("Cleanup worker shutting down", "reason", ctx.Err())
			return nil
		}
	}
}

func sweepIdleSessions(ctx context.Context, repo Repository, ttl time.Duration, onCleanup CleanupCallback) {
	removed, err := repo.CleanupIdleSessions(ctx, ttl)
	if err != nil {
		if ctx.Err() != nil {
			slog.Debug("Cleanup worker: context canceled during sweep", "error", err)
			return
		}
		slog.Error("Cleanup worker failed to remove idle sessions", "error", err)
		return
	}
	if len(removed) == 0 {
		return
	}

	slog.Info("Cleanup worker removed idle sessions", "count", len(removed))
	if onCleanup != nil {
		onCleanup(removed)
	}
}
