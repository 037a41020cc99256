package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ai-agent/internal/cache"
	"ai-agent/internal/embeddings"
	"ai-agent/internal/logger"
	"ai-agent/internal/store"
)

func vectors(n int) []embeddings.Vector {
	out := make([]embeddings.Vector, n)
	for i := range out {
		out[i] = embeddings.Vector{float32(i)}
	}
	return out
}

func TestIngestBatchesAndStores(t *testing.T) {
	docID := uuid.New()
	text := strings.Repeat("alpha ", 10) // 10 words -> chunks of 4 with overlap 1: 3 chunks

	emb := new(embeddings.MockEmbedder)
	emb.On("EmbedBatch", mock.Anything, mock.MatchedBy(func(texts []string) bool { return len(texts) == 2 })).Return(vectors(2), nil).Once()
	emb.On("EmbedBatch", mock.Anything, mock.MatchedBy(func(texts []string) bool { return len(texts) == 1 })).Return(vectors(1), nil).Once()

	st := new(store.MockStore)
	st.On("SaveDocument", mock.Anything, "notes.txt", []string{"kb"}, mock.MatchedBy(func(cs []store.Chunk) bool {
		return len(cs) == 3 && cs[2].Index == 2 && len(cs[2].Vector) == 1
	})).Return(store.Document{ID: docID, Source: "notes.txt"}, []store.Chunk{{}, {}, {}}, nil).Once()

	c := new(cache.MockCache)
	c.On("InvalidateAll", mock.Anything).Return(nil).Once()

	p := New(emb, st, c, logger.Discard(), Options{ChunkWords: 4, Overlap: 1, BatchSize: 2})
	report, err := p.Ingest(context.Background(), "notes.txt", []byte(text), []string{"kb"})

	require.NoError(t, err)
	assert.Equal(t, docID, report.DocumentID)
	assert.Equal(t, 3, report.Chunks)
	emb.AssertExpectations(t)
	st.AssertExpectations(t)
	c.AssertExpectations(t)
}

func TestIngestFailures(t *testing.T) {
	t.Run("empty document", func(t *testing.T) {
		p := New(new(embeddings.MockEmbedder), new(store.MockStore), nil, logger.Discard(), Options{})
		_, err := p.Ingest(context.Background(), "empty.txt", []byte("   "), nil)
		assert.ErrorIs(t, err, ErrNoText)
	})

	t.Run("embedder failure stores nothing", func(t *testing.T) {
		emb := new(embeddings.MockEmbedder)
		emb.On("EmbedBatch", mock.Anything, mock.Anything).Return(nil, errors.New("ollama down"))
		st := new(store.MockStore)

		_, err := New(emb, st, nil, logger.Discard(), Options{}).Ingest(context.Background(), "a.md", []byte("some words"), nil)

		assert.ErrorContains(t, err, "ollama down")
		st.AssertNotCalled(t, "SaveDocument", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("store failure skips cache invalidation", func(t *testing.T) {
		emb := new(embeddings.MockEmbedder)
		emb.On("EmbedBatch", mock.Anything, mock.Anything).Return(vectors(1), nil)
		st := new(store.MockStore)
		st.On("SaveDocument", mock.Anything, "a.md", []string(nil), mock.Anything).
			Return(store.Document{}, nil, errors.New("chunk 0: vector has 1 dimensions, store expects 768")).Once()
		c := new(cache.MockCache)

		_, err := New(emb, st, c, logger.Discard(), Options{}).Ingest(context.Background(), "a.md", []byte("some words"), nil)

		assert.ErrorContains(t, err, "dimensions")
		st.AssertExpectations(t)
		c.AssertNotCalled(t, "InvalidateAll", mock.Anything)
	})

	t.Run("cache invalidation failure is not fatal", func(t *testing.T) {
		emb := new(embeddings.MockEmbedder)
		emb.On("EmbedBatch", mock.Anything, mock.Anything).Return(vectors(1), nil)
		st := new(store.MockStore)
		st.On("SaveDocument", mock.Anything, "a.md", []string(nil), mock.Anything).Return(store.Document{ID: uuid.New()}, []store.Chunk{{}}, nil)
		c := new(cache.MockCache)
		c.On("InvalidateAll", mock.Anything).Return(errors.New("redis down"))

		_, err := New(emb, st, c, logger.Discard(), Options{}).Ingest(context.Background(), "a.md", []byte("some words"), nil)

		assert.NoError(t, err)
	})
}

func TestIngestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guide.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o600))

	emb := new(embeddings.MockEmbedder)
	emb.On("EmbedBatch", mock.Anything, []string{"hello world"}).Return(vectors(1), nil)
	st := new(store.MockStore)
	st.On("SaveDocument", mock.Anything, "guide.txt", []string(nil), mock.Anything).Return(store.Document{ID: uuid.New()}, []store.Chunk{{}}, nil)

	report, err := New(emb, st, nil, logger.Discard(), Options{}).IngestFile(context.Background(), path, nil)

	require.NoError(t, err)
	assert.Equal(t, "guide.txt", report.Source)

	_, err = New(emb, st, nil, logger.Discard(), Options{}).IngestFile(context.Background(), filepath.Join(t.TempDir(), "missing.txt"), nil)
	assert.Error(t, err)
}

func TestExtractText(t *testing.T) {
	text, err := ExtractText("README.md", []byte("# Title"))
	require.NoError(t, err)
	assert.Equal(t, "# Title", text)

	_, err = ExtractText("broken.PDF", []byte("not a pdf"))
	assert.Error(t, err)
}
