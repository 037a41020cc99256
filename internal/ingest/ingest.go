package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"ai-agent/internal/cache"
	"ai-agent/internal/chunker"
	"ai-agent/internal/embeddings"
	"ai-agent/internal/store"
)

// ErrNoText is returned when a document yields no extractable text.
var ErrNoText = errors.New("document contains no text")

type Options struct {
	ChunkWords int
	Overlap    int
	BatchSize  int // chunks per embedding call
}

// Pipeline loads documents into the vector store used by the vector retriever.
type Pipeline struct {
	embedder embeddings.Embedder
	store    store.Store
	cache    cache.Cache
	log      *slog.Logger
	opts     Options
}

type Report struct {
	DocumentID uuid.UUID
	Source     string
	Chunks     int
}

func New(e embeddings.Embedder, st store.Store, c cache.Cache, log *slog.Logger, opts Options) *Pipeline {
	if opts.ChunkWords <= 0 {
		opts.ChunkWords = 200
	}
	if opts.Overlap <= 0 {
		opts.Overlap = 40
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	if c == nil {
		c = cache.NewNoOpCache()
	}
	return &Pipeline{embedder: e, store: st, cache: c, log: log.With("component", "ingest"), opts: opts}
}

// IngestFile reads path and ingests it with its base name as source.
func (p *Pipeline) IngestFile(ctx context.Context, path string, tags []string) (Report, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Report{}, err
	}
	return p.Ingest(ctx, filepath.Base(path), content, tags)
}

// Ingest extracts, chunks, embeds and stores one document, then drops cached
// retrievals so new content is visible immediately.
func (p *Pipeline) Ingest(ctx context.Context, source string, content []byte, tags []string) (Report, error) {
	text, err := ExtractText(source, content)
	if err != nil {
		return Report{}, fmt.Errorf("extract %s: %w", source, err)
	}
	parts := chunker.Split(text, chunker.Options{MaxWords: p.opts.ChunkWords, Overlap: p.opts.Overlap})
	if len(parts) == 0 {
		return Report{}, fmt.Errorf("%s: %w", source, ErrNoText)
	}

	chunks := make([]store.Chunk, len(parts))
	for start := 0; start < len(parts); start += p.opts.BatchSize {
		end := min(start+p.opts.BatchSize, len(parts))
		texts := make([]string, 0, end-start)
		for _, c := range parts[start:end] {
			texts = append(texts, c.Text)
		}
		vecs, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return Report{}, fmt.Errorf("embed %s chunks %d-%d: %w", source, start, end, err)
		}
		if len(vecs) != len(texts) {
			return Report{}, fmt.Errorf("embed %s: got %d vectors for %d chunks", source, len(vecs), len(texts))
		}
		for i, c := range parts[start:end] {
			chunks[start+i] = store.Chunk{Index: c.Index, Text: c.Text, TokenCount: c.WordCount, Vector: vecs[i]}
		}
	}

	doc, _, err := p.store.SaveDocument(ctx, source, tags, chunks)
	if err != nil {
		return Report{}, fmt.Errorf("save document %s: %w", source, err)
	}
	if err := p.cache.InvalidateAll(ctx); err != nil {
		p.log.Warn("retrieval cache invalidation failed", "err", err)
	}

	p.log.Info("document ingested", "source", source, "document_id", doc.ID, "chunks", len(chunks))
	return Report{DocumentID: doc.ID, Source: source, Chunks: len(chunks)}, nil
}

// ExtractText returns the plain text of a document. PDFs are parsed page by
// page; anything else is treated as UTF-8 text.
func ExtractText(filename string, content []byte) (string, error) {
	if strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return extractPDF(content)
	}
	return string(content), nil
}

func extractPDF(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for n := 1; n <= r.NumPage(); n++ {
		page := r.Page(n)
		if page.V.IsNull() || page.V.Key("Contents").Kind() == pdf.Null {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page should not sink the whole document.
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), nil
}
