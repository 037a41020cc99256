package retriever

import (
	"context"
	"log/slog"
)

// Snippet is one retrieved passage. Retrievers return snippets ordered by
// descending relevance and callers keep that order.
type Snippet struct {
	Text     string
	Source   string
	Score    float64
	Metadata map[string]string
}

// Retriever fetches context snippets for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]Snippet, error)
}

// Disabled never retrieves anything and performs no I/O.
type Disabled struct{}

func (Disabled) Retrieve(context.Context, string, int) ([]Snippet, error) {
	return nil, nil
}

// Dummy is a placeholder retriever for deployments without a vector store.
// It logs the lookup and returns no snippets.
type Dummy struct {
	log *slog.Logger
}

func NewDummy(log *slog.Logger) *Dummy {
	return &Dummy{log: log.With("component", "retriever", "provider", "dummy")}
}

func (d *Dummy) Retrieve(ctx context.Context, query string, topK int) ([]Snippet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.log.Debug("retrieval requested", "query_len", len(query), "top_k", topK)
	return nil, nil
}
