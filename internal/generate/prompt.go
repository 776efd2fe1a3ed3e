package generate

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/manicule/manicule/internal/summary"
)

const (
	// maxSnippetChars bounds each retrieved context snippet in the prompt.
	maxSnippetChars = 2000
	// maxExistingChars bounds the existing document included for editing.
	maxExistingChars = 12000
)

const generatePromptTemplate = `You are a senior technical writer updating project documentation after a code change.

Pull request: {{.Repo}} #{{.PRNumber}} - {{.PRTitle}}

Change summary:
{{- range .Sections}}
{{.Heading}}:
{{- range .Lines}}
- {{.}}
{{- end}}
{{- end}}

{{- if .Snippets}}

Relevant code context:
{{- range .Snippets}}
` + "```" + `
{{.}}
` + "```" + `
{{- end}}
{{- end}}

{{- if .Existing}}

Existing document content:
---
{{.Existing}}
---

Apply a surgical edit: update only the sections affected by this change and preserve everything else, including headings, ordering, and formatting. Return the complete updated document.
{{- else}}

Write a new Markdown document describing the behavior affected by this change.
{{- end}}

Rules:
- Never fabricate behavior, parameters, endpoints, or configuration that the change summary and code context do not show.
- Where a detail is unknown, write "Details not yet documented." rather than guessing.
- Respond with the Markdown document only. No preamble, no commentary, no code fence around the whole document.`

var promptTmpl = template.Must(template.New("generate").Parse(generatePromptTemplate))

type promptSection struct {
	Heading string
	Lines   []string
}

type promptData struct {
	Repo     string
	PRNumber int
	PRTitle  string
	Sections []promptSection
	Snippets []string
	Existing string
}

func changeLines(changes []summary.Change) []string {
	lines := make([]string, 0, len(changes))
	for _, c := range changes {
		lines = append(lines, c.Summary)
	}
	return lines
}

func buildPrompt(in *Input) (string, error) {
	data := promptData{
		Repo:     in.Repo,
		PRNumber: in.PRNumber,
		PRTitle:  in.PRTitle,
	}

	addSection := func(heading string, changes []summary.Change) {
		if len(changes) == 0 {
			return
		}
		data.Sections = append(data.Sections, promptSection{Heading: heading, Lines: changeLines(changes)})
	}
	addSection("API changes", in.Summary.APIChanges)
	addSection("Behavior changes", in.Summary.BehaviorChanges)
	addSection("Configuration changes", in.Summary.ConfigChanges)
	addSection("Other changes", in.Summary.General)
	if len(data.Sections) == 0 {
		return "", fmt.Errorf("empty change summary")
	}

	for _, s := range in.Snippets {
		if len(s) > maxSnippetChars {
			s = s[:maxSnippetChars]
		}
		data.Snippets = append(data.Snippets, s)
	}

	existing := strings.TrimSpace(in.Existing)
	if len(existing) > maxExistingChars {
		existing = existing[:maxExistingChars]
	}
	data.Existing = existing

	var buf bytes.Buffer
	if err := promptTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing generate prompt template: %w", err)
	}
	return buf.String(), nil
}
