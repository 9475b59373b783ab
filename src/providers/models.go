package providers

import (
	"context"
	"sync"
	"time"
)

// ModelInfo describes a model a provider offers.
type ModelInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// ModelLister is implemented by clients that can enumerate models.
type ModelLister interface {
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// ModelCache caches a model list for ttl.
type ModelCache struct {
	fetch     func(ctx context.Context) ([]ModelInfo, error)
	ttl       time.Duration
	mu        sync.Mutex
	models    []ModelInfo
	fetchedAt time.Time
	now       func() time.Time
}

// NewModelCache wraps fetch with a ttl cache.
func NewModelCache(ttl time.Duration, fetch func(ctx context.Context) ([]ModelInfo, error)) *ModelCache {
	return &ModelCache{fetch: fetch, ttl: ttl, now: time.Now}
}

// ListModels returns the cached list, fetching it when missing or expired.
func (c *ModelCache) ListModels(ctx context.Context) ([]ModelInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.models != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.models, nil
	}
	models, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.models = models
	c.fetchedAt = c.now()
	return models, nil
}

// Invalidate drops the cached list.
func (c *ModelCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.models = nil
}
