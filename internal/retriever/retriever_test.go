package retriever

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ai-agent/internal/cache"
	"ai-agent/internal/embeddings"
	"ai-agent/internal/logger"
	"ai-agent/internal/store"
)

func TestDisabledAndDummyReturnNothing(t *testing.T) {
	tests := []struct {
		name string
		r    Retriever
	}{
		{"disabled", Disabled{}},
		{"dummy", NewDummy(logger.Discard())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.r.Retrieve(context.Background(), "what is go?", 5)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestDummyHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewDummy(logger.Discard()).Retrieve(ctx, "q", 5)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVectorRetrieve(t *testing.T) {
	docID := uuid.New()
	vec := embeddings.Vector{0.1, 0.2}

	emb := new(embeddings.MockEmbedder)
	emb.On("Embed", mock.Anything, "quantum").Return(vec, nil).Once()

	st := new(store.MockStore)
	st.On("TopK", mock.Anything, vec, 2).Return([]store.SearchResult{
		{Chunk: store.Chunk{DocumentID: docID, Index: 3, Text: "qubits"}, Source: "physics.pdf", Tags: []string{"physics", "qc"}, Score: 0.9},
		{Chunk: store.Chunk{DocumentID: docID, Index: 7, Text: "gates"}, Source: "physics.pdf", Score: 0.5},
	}, nil).Once()

	got, err := NewVector(emb, st).Retrieve(context.Background(), "quantum", 2)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "qubits", got[0].Text)
	assert.Equal(t, "physics.pdf", got[0].Source)
	assert.InDelta(t, 0.9, got[0].Score, 1e-6)
	assert.Equal(t, "physics,qc", got[0].Metadata["tags"])
	assert.Equal(t, "3", got[0].Metadata["chunk_index"])
	assert.Equal(t, "gates", got[1].Text)
	emb.AssertExpectations(t)
	st.AssertExpectations(t)
}

func TestVectorRetrieveErrors(t *testing.T) {
	t.Run("embedder failure", func(t *testing.T) {
		emb := new(embeddings.MockEmbedder)
		emb.On("Embed", mock.Anything, "q").Return(nil, errors.New("down")).Once()
		st := new(store.MockStore)

		_, err := NewVector(emb, st).Retrieve(context.Background(), "q", 3)

		assert.Error(t, err)
		st.AssertNotCalled(t, "TopK", mock.Anything, mock.Anything, mock.Anything)
	})
	t.Run("store failure", func(t *testing.T) {
		emb := new(embeddings.MockEmbedder)
		emb.On("Embed", mock.Anything, "q").Return(embeddings.Vector{1}, nil).Once()
		st := new(store.MockStore)
		st.On("TopK", mock.Anything, embeddings.Vector{1}, 3).Return(nil, errors.New("db gone")).Once()

		_, err := NewVector(emb, st).Retrieve(context.Background(), "q", 3)

		assert.ErrorContains(t, err, "db gone")
	})
	t.Run("zero top k skips backends", func(t *testing.T) {
		emb := new(embeddings.MockEmbedder)
		got, err := NewVector(emb, new(store.MockStore)).Retrieve(context.Background(), "q", 0)
		require.NoError(t, err)
		assert.Empty(t, got)
		emb.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
	})
}

func TestCachedRetrieve(t *testing.T) {
	snippets := []Snippet{{Text: "t", Source: "s", Score: 0.7}}
	key := cacheKey("q", 4)

	t.Run("hit skips wrapped retriever", func(t *testing.T) {
		c := new(cache.MockCache)
		c.On("GetSnippets", mock.Anything, key).Return([]cache.Snippet{{Text: "t", Source: "s", Score: 0.7}}, true, nil).Once()
		next := new(MockRetriever)

		got, err := NewCached(next, c, time.Minute, logger.Discard()).Retrieve(context.Background(), "q", 4)

		require.NoError(t, err)
		assert.Equal(t, snippets, got)
		next.AssertNotCalled(t, "Retrieve", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("miss populates cache", func(t *testing.T) {
		c := new(cache.MockCache)
		c.On("GetSnippets", mock.Anything, key).Return(nil, false, nil).Once()
		c.On("SetSnippets", mock.Anything, key, []cache.Snippet{{Text: "t", Source: "s", Score: 0.7}}, time.Minute).Return(nil).Once()
		next := new(MockRetriever)
		next.On("Retrieve", mock.Anything, "q", 4).Return(snippets, nil).Once()

		got, err := NewCached(next, c, time.Minute, logger.Discard()).Retrieve(context.Background(), "q", 4)

		require.NoError(t, err)
		assert.Equal(t, snippets, got)
		c.AssertExpectations(t)
	})

	t.Run("cache errors are not fatal", func(t *testing.T) {
		c := new(cache.MockCache)
		c.On("GetSnippets", mock.Anything, key).Return(nil, false, errors.New("redis down")).Once()
		c.On("SetSnippets", mock.Anything, key, mock.Anything, time.Minute).Return(errors.New("redis down")).Once()
		next := new(MockRetriever)
		next.On("Retrieve", mock.Anything, "q", 4).Return(snippets, nil).Once()

		got, err := NewCached(next, c, time.Minute, logger.Discard()).Retrieve(context.Background(), "q", 4)

		require.NoError(t, err)
		assert.Equal(t, snippets, got)
	})

	t.Run("retriever errors are not cached", func(t *testing.T) {
		c := new(cache.MockCache)
		c.On("GetSnippets", mock.Anything, key).Return(nil, false, nil).Once()
		next := new(MockRetriever)
		next.On("Retrieve", mock.Anything, "q", 4).Return(nil, errors.New("boom")).Once()

		_, err := NewCached(next, c, time.Minute, logger.Discard()).Retrieve(context.Background(), "q", 4)

		assert.Error(t, err)
		c.AssertNotCalled(t, "SetSnippets", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestCacheKeyDistinguishesTopK(t *testing.T) {
	assert.NotEqual(t, cacheKey("q", 3), cacheKey("q", 4))
	assert.Equal(t, cacheKey("q", 3), cacheKey("q", 3))
}
