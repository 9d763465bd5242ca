package database

import (
	"context"
	"fmt"
	"time"

	"interpharma-gateway/internal/common/logger"
)

// RetryWithBackoff runs op up to attempts times, doubling the delay after each
// failure. It gives up early when ctx is done.
func RetryWithBackoff(ctx context.Context, log logger.Logger, name string, attempts int, delay time.Duration, op func(context.Context) error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}

		log.Warn(fmt.Sprintf("%s failed, retrying", name), map[string]interface{}{
			"error":       err.Error(),
			"attempt":     i + 1,
			"maxAttempts": attempts,
			"nextRetryIn": delay.String(),
		})

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s aborted: %w", name, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, attempts, err)
}
