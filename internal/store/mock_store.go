package store

import (
	"context"

	"github.com/stretchr/testify/mock"

	"ai-agent/internal/embeddings"
)

// MockStore is a mock implementation of Store using testify/mock.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) SaveDocument(ctx context.Context, source string, tags []string, chunks []Chunk) (Document, []Chunk, error) {
	args := m.Called(ctx, source, tags, chunks)
	var saved []Chunk
	if v := args.Get(1); v != nil {
		saved = v.([]Chunk)
	}
	return args.Get(0).(Document), saved, args.Error(2)
}

func (m *MockStore) TopK(ctx context.Context, vector embeddings.Vector, k int) ([]SearchResult, error) {
	args := m.Called(ctx, vector, k)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]SearchResult), args.Error(1)
}

func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
