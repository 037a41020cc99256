package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

var errNotObject = errors.New("structured output is not a JSON object")

// StructuredPrompt appends the JSON instruction (and schema hint, if any) to prompt.
func StructuredPrompt(prompt, schemaHint string) string {
	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\nRespond only with a valid JSON object")
	if hint := strings.TrimSpace(schemaHint); hint != "" {
		b.WriteString(" matching this schema:\n")
		b.WriteString(hint)
	} else {
		b.WriteString(".")
	}
	return b.String()
}

// ParseStructured decodes text as a JSON object. Markdown code fences around
// the object are tolerated.
func ParseStructured(text string) (map[string]any, error) {
	s := stripFences(strings.TrimSpace(text))
	var payload map[string]any
	if err := json.Unmarshal([]byte(s), &payload); err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, errNotObject
	}
	return payload, nil
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		return s
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}
