package cache

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockCache is a mock implementation of the Cache interface for testing
type MockCache struct {
	mock.Mock
}

func (m *MockCache) GetSnippets(ctx context.Context, key string) ([]Snippet, bool, error) {
	args := m.Called(ctx, key)
	var snippets []Snippet
	if v := args.Get(0); v != nil {
		snippets = v.([]Snippet)
	}
	return snippets, args.Bool(1), args.Error(2)
}

func (m *MockCache) SetSnippets(ctx context.Context, key string, snippets []Snippet, ttl time.Duration) error {
	args := m.Called(ctx, key, snippets, ttl)
	return args.Error(0)
}

func (m *MockCache) InvalidateAll(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockCache) Close() error {
	args := m.Called()
	return args.Error(0)
}
