package retriever

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"ai-agent/internal/embeddings"
	"ai-agent/internal/store"
)

// Vector embeds the query and runs a nearest-neighbour search over the store.
type Vector struct {
	embedder embeddings.Embedder
	store    store.Store
}

func NewVector(embedder embeddings.Embedder, st store.Store) *Vector {
	return &Vector{embedder: embedder, store: st}
}

func (v *Vector) Retrieve(ctx context.Context, query string, topK int) ([]Snippet, error) {
	if topK <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}
	vec, err := v.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := v.store.TopK(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	out := make([]Snippet, 0, len(results))
	for _, r := range results {
		md := map[string]string{
			"document_id": r.Chunk.DocumentID.String(),
			"chunk_index": strconv.Itoa(r.Chunk.Index),
		}
		if len(r.Tags) > 0 {
			md["tags"] = strings.Join(r.Tags, ",")
		}
		out = append(out, Snippet{
			Text:     r.Chunk.Text,
			Source:   r.Source,
			Score:    float64(r.Score),
			Metadata: md,
		})
	}
	return out, nil
}
