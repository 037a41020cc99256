package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ai-agent/internal/embeddings"
)

type Document struct {
	ID        uuid.UUID
	Source    string
	Tags      []string
	CreatedAt time.Time
}

// Chunk is one embedded slice of a document.
type Chunk struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	Index      int
	Text       string
	TokenCount int
	Vector     embeddings.Vector
}

type SearchResult struct {
	Chunk  Chunk
	Source string
	Tags   []string
	Score  float32
}

// Store is the vector store queried by the retriever and filled by ingestion.
type Store interface {
	// SaveDocument stores a document and its chunks in one transaction, so a
	// failed chunk leaves nothing behind.
	SaveDocument(ctx context.Context, source string, tags []string, chunks []Chunk) (Document, []Chunk, error)
	TopK(ctx context.Context, vector embeddings.Vector, k int) ([]SearchResult, error)
	Close() error
}
