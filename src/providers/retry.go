package providers

import (
	"context"
	"log/slog"
	"time"
)

// RetryConfig bounds Retry.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	Logger     *slog.Logger
}

// Retry runs fn until it succeeds, returns a non-retryable error, or the
// retries are used up. The last error is returned.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil || !IsRetryable(err) || attempt >= cfg.MaxRetries {
			return err
		}

		delay := RetryDelay(err, attempt+1, cfg.BaseDelay)
		logger.Debug("retrying model call", "attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
