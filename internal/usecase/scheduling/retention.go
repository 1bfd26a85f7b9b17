package scheduling

import (
	"context"
	"log/slog"
	"time"

	"secretary-ai/internal/domain"
)

// RetentionAction purges conversations whose last update is older than
// maxAge. A non-positive maxAge disables it; now defaults to time.Now.
func RetentionAction(store domain.ConversationStore, maxAge time.Duration, now func() time.Time, logger *slog.Logger) func(context.Context) error {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context) error {
		if maxAge <= 0 {
			return nil
		}
		cutoff := now().Add(-maxAge)
		n, err := store.PurgeConversationsBefore(ctx, cutoff)
		if err != nil {
			return domain.WrapOp("retention.purge", err)
		}
		if n > 0 {
			logger.Info("purged stale conversations", "count", n, "cutoff", cutoff)
		}
		return nil
	}
}
