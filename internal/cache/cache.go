package cache

import (
	"context"
	"time"
)

// Cache stores retrieval results keyed by query fingerprint.
type Cache interface {
	// GetSnippets returns the cached snippets for key; ok is false on a miss.
	GetSnippets(ctx context.Context, key string) (snippets []Snippet, ok bool, err error)

	// SetSnippets stores snippets with TTL. An empty result is cached too.
	SetSnippets(ctx context.Context, key string, snippets []Snippet, ttl time.Duration) error

	// InvalidateAll drops every cached retrieval, e.g. after new documents are ingested.
	InvalidateAll(ctx context.Context) error

	Close() error
}

// Snippet is the cached form of a retrieved passage.
type Snippet struct {
	Text     string            `json:"text"`
	Source   string            `json:"source"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
