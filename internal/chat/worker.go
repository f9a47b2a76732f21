package chat

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSnapshotInterval is how often the worker snapshots emotions.
const DefaultSnapshotInterval = 30 * time.Second

// RunSnapshotWorker snapshots the emotional state every interval while any
// emotion is non-zero. It blocks until ctx is cancelled.
func RunSnapshotWorker(ctx context.Context, state CoreState, interval time.Duration, logger *slog.Logger) error {
	if interval <= 0 {
		interval = DefaultSnapshotInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !state.Document().HasActiveEmotion() {
				continue
			}
			if err := state.SnapshotEmotions(ctx); err != nil {
				logger.Warn("Emotion snapshot failed", "error", err)
			}
		}
	}
}
