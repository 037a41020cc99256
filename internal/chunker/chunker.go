package chunker

import (
	"strings"
)

// Options controls how text is split.
type Options struct {
	MaxWords int // words per chunk
	Overlap  int // words repeated at the start of the next chunk
}

// Chunk is one window of the source text.
type Chunk struct {
	Index     int
	Text      string
	WordCount int
}

const defaultMaxWords = 200

// Split performs a sliding word window with overlap. Words are
// whitespace-delimited, which approximates tokens closely enough for
// embedding models with a few hundred tokens of context.
func Split(text string, opts Options) []Chunk {
	if opts.MaxWords <= 0 {
		opts.MaxWords = defaultMaxWords
	}
	if opts.Overlap < 0 || opts.Overlap >= opts.MaxWords {
		opts.Overlap = 0
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	step := opts.MaxWords - opts.Overlap
	chunks := make([]Chunk, 0, len(words)/step+1)
	for start := 0; start < len(words); start += step {
		end := min(start+opts.MaxWords, len(words))
		chunks = append(chunks, Chunk{
			Index:     len(chunks),
			Text:      strings.Join(words[start:end], " "),
			WordCount: end - start,
		})
		if end == len(words) {
			break
		}
	}
	return chunks
}
