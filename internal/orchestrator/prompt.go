package orchestrator

import (
	"fmt"
	"strings"

	"ai-agent/internal/retriever"
)

// AssemblePrompt builds the model input in a fixed order: system prompt,
// caller context, retrieved snippets, user message. Empty sections are
// omitted and snippets keep their retrieval order.
func AssemblePrompt(systemPrompt, contextJSON string, snippets []retriever.Snippet, userMessage string) string {
	parts := make([]string, 0, 4)
	if systemPrompt != "" {
		parts = append(parts, "[System]\n"+systemPrompt)
	}
	if hasContext(contextJSON) {
		parts = append(parts, "[Context]\n"+contextJSON)
	}
	if block := formatSnippets(snippets); block != "" {
		parts = append(parts, block)
	}
	parts = append(parts, "[User]\n"+userMessage)
	return strings.Join(parts, "\n\n")
}

func formatSnippets(snippets []retriever.Snippet) string {
	if len(snippets) == 0 {
		return ""
	}
	parts := make([]string, 0, len(snippets)+2)
	parts = append(parts, "### Retrieved Context ###")
	for i, s := range snippets {
		parts = append(parts, fmt.Sprintf("[%d] (source=%s, score=%.3f)\n%s", i+1, s.Source, s.Score, s.Text))
	}
	parts = append(parts, "### End Context ###")
	return strings.Join(parts, "\n\n")
}
