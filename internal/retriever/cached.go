package retriever

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strconv"
	"time"

	"ai-agent/internal/cache"
)

// Cached memoizes another Retriever's results. Cache failures are logged and
// fall through to the wrapped retriever.
type Cached struct {
	next  Retriever
	cache cache.Cache
	ttl   time.Duration
	log   *slog.Logger
}

func NewCached(next Retriever, c cache.Cache, ttl time.Duration, log *slog.Logger) *Cached {
	return &Cached{next: next, cache: c, ttl: ttl, log: log.With("component", "retriever", "provider", "cached")}
}

func (c *Cached) Retrieve(ctx context.Context, query string, topK int) ([]Snippet, error) {
	key := cacheKey(query, topK)

	hit, ok, err := c.cache.GetSnippets(ctx, key)
	if err != nil {
		c.log.Warn("cache read failed", "err", err)
	} else if ok {
		return fromCache(hit), nil
	}

	snippets, err := c.next.Retrieve(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	if err := c.cache.SetSnippets(ctx, key, toCache(snippets), c.ttl); err != nil {
		c.log.Warn("cache write failed", "err", err)
	}
	return snippets, nil
}

func cacheKey(query string, topK int) string {
	h := sha256.New()
	h.Write([]byte(query))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(topK)))
	return hex.EncodeToString(h.Sum(nil))
}

func toCache(in []Snippet) []cache.Snippet {
	out := make([]cache.Snippet, len(in))
	for i, s := range in {
		out[i] = cache.Snippet{Text: s.Text, Source: s.Source, Score: s.Score, Metadata: s.Metadata}
	}
	return out
}

func fromCache(in []cache.Snippet) []Snippet {
	if len(in) == 0 {
		return nil
	}
	out := make([]Snippet, len(in))
	for i, s := range in {
		out[i] = Snippet{Text: s.Text, Source: s.Source, Score: s.Score, Metadata: s.Metadata}
	}
	return out
}
