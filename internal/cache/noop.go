package cache

import (
	"context"
	"time"
)

// NoOpCache is a cache implementation that does nothing.
// Used as a fallback when Redis is unavailable: every lookup is a miss.
type NoOpCache struct{}

func NewNoOpCache() *NoOpCache {
	return &NoOpCache{}
}

func (c *NoOpCache) GetSnippets(ctx context.Context, key string) ([]Snippet, bool, error) {
	return nil, false, nil
}

func (c *NoOpCache) SetSnippets(ctx context.Context, key string, snippets []Snippet, ttl time.Duration) error {
	return nil
}

func (c *NoOpCache) InvalidateAll(ctx context.Context) error {
	return nil
}

func (c *NoOpCache) Close() error {
	return nil
}
