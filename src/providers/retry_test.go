package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetry(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), cfg, func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return &APIError{StatusCode: 503}
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on permanent error", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), cfg, func(ctx context.Context) error {
			calls++
			return &APIError{StatusCode: 400, Message: "bad"}
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), cfg, func(ctx context.Context) error {
			calls++
			return &APIError{StatusCode: 500}
		})
		var apiErr *APIError
		assert.True(t, errors.As(err, &apiErr))
		assert.Equal(t, 4, calls)
	})

	t.Run("honours cancellation while waiting", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		err := Retry(ctx, RetryConfig{MaxRetries: 5, BaseDelay: time.Hour}, func(ctx context.Context) error {
			cancel()
			return &APIError{StatusCode: 500}
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
