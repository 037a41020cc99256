package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		opts      Options
		wantTexts []string
	}{
		{"empty", "", Options{MaxWords: 10}, nil},
		{"whitespace only", " \n\t ", Options{MaxWords: 10}, nil},
		{"shorter than window", "one two", Options{MaxWords: 10}, []string{"one two"}},
		{"no overlap", "one two three four five six", Options{MaxWords: 3}, []string{"one two three", "four five six"}},
		{
			"overlap",
			"one two three four five six seven eight nine ten",
			Options{MaxWords: 4, Overlap: 1},
			[]string{"one two three four", "four five six seven", "seven eight nine ten"},
		},
		{"overlap not below window is ignored", "a b c d", Options{MaxWords: 2, Overlap: 2}, []string{"a b", "c d"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := Split(tt.text, tt.opts)
			require.Len(t, chunks, len(tt.wantTexts))
			for i, c := range chunks {
				assert.Equal(t, i, c.Index)
				assert.Equal(t, tt.wantTexts[i], c.Text)
				assert.Equal(t, len(strings.Fields(tt.wantTexts[i])), c.WordCount)
			}
		})
	}
}

func TestSplitDefaults(t *testing.T) {
	chunks := Split(strings.Repeat("word ", 500), Options{})

	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.LessOrEqual(t, c.WordCount, defaultMaxWords)
	}
}
