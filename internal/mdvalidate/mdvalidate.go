// Package mdvalidate sanity-checks the orchestrator's composed answer text
// before it is returned to the caller.
package mdvalidate

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/text"
)

// Clean strips an outer ```markdown ... ``` or ``` ... ``` fence an LLM
// sometimes wraps its answer in.
func Clean(input string) string {
	cleaned := strings.TrimSpace(input)
	switch {
	case strings.HasPrefix(cleaned, "```markdown") && strings.HasSuffix(cleaned, "```"):
		cleaned = strings.TrimSuffix(strings.TrimPrefix(cleaned, "```markdown"), "```")
	case strings.HasPrefix(cleaned, "```") && strings.HasSuffix(cleaned, "```"):
		cleaned = strings.TrimSuffix(strings.TrimPrefix(cleaned, "```"), "```")
	}
	return strings.TrimSpace(cleaned)
}

// Valid reports whether input parses as Markdown without the parser
// returning a nil document. Goldmark is permissive, so this is a basic
// sanity check, not a strict grammar validation.
func Valid(input string) bool {
	doc := goldmark.DefaultParser().Parse(text.NewReader([]byte(input)))
	return doc != nil
}
