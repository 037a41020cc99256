package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ai-agent/internal/retriever"
)

func TestAssemblePrompt(t *testing.T) {
	snippets := []retriever.Snippet{
		{Text: "Qubits hold superpositions.", Source: "qc.pdf", Score: 0.91234},
		{Text: "Gates are unitary.", Source: "gates.md", Score: 0.5},
	}
	tests := []struct {
		name     string
		system   string
		context  string
		snippets []retriever.Snippet
		user     string
		want     string
	}{
		{
			name: "user only",
			user: "hi",
			want: "[User]\nhi",
		},
		{
			name:   "system and user",
			system: "You are a helpful science tutor.",
			user:   "Explain quantum computing in 3 sentences.",
			want:   "[System]\nYou are a helpful science tutor.\n\n[User]\nExplain quantum computing in 3 sentences.",
		},
		{
			name:    "empty json context is omitted",
			system:  "s",
			context: " {} ",
			user:    "u",
			want:    "[System]\ns\n\n[User]\nu",
		},
		{
			name:    "null context is omitted",
			context: "null",
			user:    "u",
			want:    "[User]\nu",
		},
		{
			name:     "all sections in order",
			system:   "s",
			context:  `{"customer":"acme"}`,
			snippets: snippets,
			user:     "u",
			want: "[System]\ns\n\n" +
				"[Context]\n{\"customer\":\"acme\"}\n\n" +
				"### Retrieved Context ###\n\n" +
				"[1] (source=qc.pdf, score=0.912)\nQubits hold superpositions.\n\n" +
				"[2] (source=gates.md, score=0.500)\nGates are unitary.\n\n" +
				"### End Context ###\n\n" +
				"[User]\nu",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AssemblePrompt(tt.system, tt.context, tt.snippets, tt.user))
		})
	}
}

func TestAssemblePromptIsDeterministic(t *testing.T) {
	s := []retriever.Snippet{{Text: "a", Source: "x"}, {Text: "b", Source: "y"}}
	first := AssemblePrompt("sys", `{"k":1}`, s, "u")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, AssemblePrompt("sys", `{"k":1}`, s, "u"))
	}
}
