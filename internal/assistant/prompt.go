package assistant

import (
	"encoding/json"
	"strings"
)

// Placeholders recognized in prompt templates.
const (
	selectionPlaceholder = "{{selection}}"
	outlinePlaceholder   = "{{outline}}"
)

// DefaultPromptTemplate asks the model to explain a passage for a newcomer,
// linking it to the rest of the book through its outline.
const DefaultPromptTemplate = `{{selection}}

1. The text above is part of a book. Study it from the point of view of a newcomer: anticipate the questions and doubts a beginner would have, and answer them.
2. Knowledge does not stand alone. Below is the book's table of contents; connect the passage to the other topics it relates to.
{{outline}}
`

// BuildPrompt fills template with the selection and the JSON-encoded outline.
// An empty template uses DefaultPromptTemplate; a nil outline encodes as [].
func BuildPrompt(template string, selection string, outline []string) (string, error) {
	if template == "" {
		template = DefaultPromptTemplate
	}
	if outline == nil {
		outline = []string{}
	}
	encoded, err := json.Marshal(outline)
	if err != nil {
		return "", err
	}
	replacer := strings.NewReplacer(
		selectionPlaceholder, selection,
		outlinePlaceholder, string(encoded),
	)
	return replacer.Replace(template), nil
}
