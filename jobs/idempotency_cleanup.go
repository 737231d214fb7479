package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stocklane/stocklane/internal/shared"
)

// idempotencyRetention is how long processed keys stay replay-protected.
const idempotencyRetention = 48 * time.Hour

// NewIdempotencyCleanupHandler builds the handler that prunes expired
// idempotency keys.
func NewIdempotencyCleanupHandler(store *shared.IdempotencyStore, logger *slog.Logger) asynq.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ScanPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if store == nil {
			return nil
		}
		if err := store.Cleanup(ctx, idempotencyRetention); err != nil {
			return err
		}
		logger.Info("idempotency cleanup done")
		return nil
	}
}
