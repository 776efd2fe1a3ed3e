package classify

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/manicule/manicule/internal/ghapp"
)

// maxPatchExcerpt bounds how much of each patch is sent for classification.
const maxPatchExcerpt = 1000

const classifyPromptTemplate = `You are analyzing a GitHub Pull Request.

Decide whether these changes require documentation updates.

A PR is documentation-relevant if it changes:
- Public APIs or endpoints
- Request or response shapes
- Auth, config, or CLI behavior

Internal refactors, tests, comments, or formatting changes do NOT count.

Respond ONLY with valid JSON in this format:

{"doc_relevant": boolean, "confidence": number, "reason": string}

Changed files:
{{range .Files}}
--- {{.Filename}} ({{.Status}})
{{.Excerpt}}
{{end}}`

var promptTmpl = template.Must(template.New("classify").Parse(classifyPromptTemplate))

type promptFile struct {
	Filename string
	Status   string
	Excerpt  string
}

// buildPrompt renders the classification prompt with filenames and bounded
// patch excerpts.
func buildPrompt(files []ghapp.ChangedFile) (string, error) {
	data := struct{ Files []promptFile }{}
	for _, f := range files {
		excerpt := f.Patch
		if len(excerpt) > maxPatchExcerpt {
			excerpt = excerpt[:maxPatchExcerpt]
		}
		if excerpt == "" {
			excerpt = "(no patch available)"
		}
		data.Files = append(data.Files, promptFile{
			Filename: f.Filename,
			Status:   f.Status,
			Excerpt:  excerpt,
		})
	}

	var buf bytes.Buffer
	if err := promptTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering classification prompt: %w", err)
	}
	return buf.String(), nil
}
