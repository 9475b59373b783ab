package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelCache(t *testing.T) {
	calls := 0
	fail := false
	cache := NewModelCache(time.Hour, func(ctx context.Context) ([]ModelInfo, error) {
		calls++
		if fail {
			return nil, errors.New("unavailable")
		}
		return []ModelInfo{{ID: "m1"}}, nil
	})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	models, err := cache.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "m1", models[0].ID)

	_, err = cache.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	now = now.Add(2 * time.Hour)
	_, err = cache.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	cache.Invalidate()
	fail = true
	_, err = cache.ListModels(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}
