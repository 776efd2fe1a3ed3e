// Package target decides which documentation file a generated update should
// land in, based on the docs repository's manifest and the changed files.
package target

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"text/template"
	"time"

	"github.com/manicule/manicule/internal/provider"
)

// FallbackPath receives updates when no better target can be resolved.
const FallbackPath = "updates/auto-generated.md"

const defaultTimeout = 30 * time.Second

// Manifest maps documentation files to the topics they cover. It is read
// from docs.json at the docs repository root.
type Manifest struct {
	// Docs maps a relative Markdown path to a short topic description.
	Docs map[string]string `json:"docs"`
}

// ParseManifest decodes a docs.json manifest. A missing or malformed
// manifest is not an error to the caller; resolution just falls back.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing docs manifest: %w", err)
	}
	return &m, nil
}

const resolvePromptTemplate = `You are routing a documentation update to the right file.

{{if .Docs -}}
Documentation files available:
{{- range $path, $topic := .Docs}}
- {{$path}}: {{$topic}}
{{- end}}
{{- else -}}
No existing documentation structure (docs.json) was found.
{{- end}}

The update was triggered by changes to:
{{- range .Changed}}
- {{.}}
{{- end}}

Respond with exactly one relative Markdown path, and nothing else. Prefer a path from the list above when one clearly fits; for a new feature, suggest a logically grouped path instead (for example api-reference/new-endpoint.md). If you cannot suggest any path, respond with NONE.`

var resolveTmpl = template.Must(template.New("resolve").Parse(resolvePromptTemplate))

// Resolver picks a documentation path for an update.
type Resolver struct {
	completer provider.Completer
	timeout   time.Duration
	logger    *slog.Logger
}

// NewResolver creates a Resolver using the given completion provider.
func NewResolver(completer provider.Completer, timeout time.Duration, logger *slog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{completer: completer, timeout: timeout, logger: logger}
}

// Resolve returns the relative path the update should be written to. An
// existing manifest entry wins when the model picks one, but a safe new
// path is accepted too, so updates for fresh features can open their own
// page. Resolve never fails: when the model answer is unusable it returns
// FallbackPath.
func (r *Resolver) Resolve(ctx context.Context, manifest *Manifest, changedFiles []string) string {
	var docs map[string]string
	if manifest != nil {
		docs = manifest.Docs
	}

	var buf bytes.Buffer
	data := struct {
		Docs    map[string]string
		Changed []string
	}{Docs: docs, Changed: changedFiles}
	if err := resolveTmpl.Execute(&buf, data); err != nil {
		r.logger.Warn("target resolution prompt failed", "error", err)
		return FallbackPath
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.completer.Complete(ctx, buf.String())
	if err != nil {
		r.logger.Warn("target resolution failed, using fallback", "error", err)
		return FallbackPath
	}

	candidate := sanitize(resp)
	if candidate == "" || candidate == "NONE" {
		return FallbackPath
	}
	if !validPath(candidate) {
		r.logger.Warn("target resolution returned unsafe path, using fallback", "path", candidate)
		return FallbackPath
	}
	if _, ok := docs[candidate]; !ok {
		r.logger.Debug("target resolution picked a new documentation path", "path", candidate)
	}
	return candidate
}

// sanitize strips the decoration models wrap answers in: whitespace, code
// fences, backticks, and quotes.
func sanitize(s string) string {
	s = strings.TrimSpace(s)
	// Take the first non-empty line in case the model adds commentary.
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		line = strings.Trim(line, "`\"'")
		if line != "" && !strings.HasPrefix(line, "```") {
			return line
		}
	}
	return ""
}

// validPath rejects absolute paths and anything escaping the docs root.
func validPath(p string) bool {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return false
	}
	clean := path.Clean(p)
	if clean != p {
		return false
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return false
	}
	return strings.HasSuffix(clean, ".md")
}
