// Package generate turns a change summary plus retrieved code context into
// a Markdown documentation patch via an LLM completion.
package generate

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/manicule/manicule/internal/provider"
	"github.com/manicule/manicule/internal/summary"
)

const defaultTimeout = 30 * time.Second

// Input carries everything the generator needs for one documentation update.
type Input struct {
	Repo     string
	PRNumber int
	PRTitle  string
	Summary  *summary.Summary
	Snippets []string
	// Existing is the current content of the target document, empty when
	// the document does not exist yet.
	Existing string
}

// Generator produces documentation content from change summaries.
type Generator struct {
	completer provider.Completer
	timeout   time.Duration
	logger    *slog.Logger
}

// NewGenerator creates a Generator using the given completion provider.
func NewGenerator(completer provider.Completer, timeout time.Duration, logger *slog.Logger) *Generator {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{completer: completer, timeout: timeout, logger: logger}
}

// wholeFenceRe matches a response that is a single code fence wrapping the
// entire document, which some models emit despite instructions.
var wholeFenceRe = regexp.MustCompile("(?s)\\A```(?:markdown|md)?\\s*\n(.*?)\n?```\\s*\\z")

// Generate returns the Markdown document for the change, or an empty string
// when generation fails. Callers fall back to a minimal document rather than
// aborting the pipeline.
func (g *Generator) Generate(ctx context.Context, in *Input) string {
	prompt, err := buildPrompt(in)
	if err != nil {
		g.logger.Warn("doc generation skipped", "repo", in.Repo, "pr", in.PRNumber, "error", err)
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.completer.Complete(ctx, prompt)
	if err != nil {
		g.logger.Warn("doc generation failed", "repo", in.Repo, "pr", in.PRNumber, "error", err)
		return ""
	}

	doc := strings.TrimSpace(resp)
	if m := wholeFenceRe.FindStringSubmatch(doc); m != nil {
		doc = strings.TrimSpace(m[1])
	}
	return doc
}

// FallbackDocument is published when the model returns nothing usable, so a
// reviewer still sees that a documentation-relevant change landed.
func FallbackDocument(in *Input) string {
	var b strings.Builder
	b.WriteString("# Documentation Update\n\n")
	b.WriteString("Automated documentation update for ")
	b.WriteString(in.Repo)
	b.WriteString(" #")
	b.WriteString(strconv.Itoa(in.PRNumber))
	b.WriteString(": ")
	b.WriteString(in.PRTitle)
	b.WriteString("\n\n")
	b.WriteString("Details not yet documented.\n")
	if len(in.Summary.TouchedFiles) > 0 {
		b.WriteString("\nFiles changed:\n")
		for _, f := range in.Summary.TouchedFiles {
			b.WriteString("- ")
			b.WriteString(f)
			b.WriteString("\n")
		}
	}
	return b.String()
}
