package classify

import (
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/manicule/manicule/internal/ghapp"
	"github.com/manicule/manicule/internal/provider"
)

// Result is the outcome of documentation-relevance classification.
type Result struct {
	Relevant   bool
	Confidence float64
	Reason     string
}

// Classifier decides whether a pull request's changes warrant a
// documentation update, using an LLM completer.
type Classifier struct {
	completer provider.Completer
	timeout   time.Duration
	logger    *slog.Logger
}

// NewClassifier creates a Classifier with the given completer and timeout.
// If timeout is zero, defaults to 30 seconds.
func NewClassifier(completer provider.Completer, timeout time.Duration, logger *slog.Logger) *Classifier {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		completer: completer,
		timeout:   timeout,
		logger:    logger,
	}
}

// deniedExtensions are file types that never carry documentation-relevant
// semantics: images, data blobs, lockfiles, generated artifacts.
var deniedExtensions = map[string]bool{
	".png":   true,
	".jpg":   true,
	".jpeg":  true,
	".gif":   true,
	".svg":   true,
	".ico":   true,
	".webp":  true,
	".json":  true,
	".lock":  true,
	".snap":  true,
	".map":   true,
	".sum":   true,
	".woff":  true,
	".woff2": true,
}

// deniedPatterns are path fragments of generated or vendored content.
var deniedPatterns = []string{
	"node_modules/",
	"vendor/",
	"dist/",
	"build/",
	"__snapshots__/",
	".min.js",
	".min.css",
	"package-lock.json",
	"yarn.lock",
}

// isDenied reports whether a file can be dropped before classification.
func isDenied(filename string) bool {
	lower := strings.ToLower(filename)
	for _, p := range deniedPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return deniedExtensions[filepath.Ext(lower)]
}

// filterFiles drops denylisted files, returning what remains.
func filterFiles(files []ghapp.ChangedFile) []ghapp.ChangedFile {
	var kept []ghapp.ChangedFile
	for _, f := range files {
		if !isDenied(f.Filename) {
			kept = append(kept, f)
		}
	}
	return kept
}

// llmResponse is the expected JSON structure from the LLM.
type llmResponse struct {
	DocRelevant bool    `json:"doc_relevant"`
	Confidence  float64 `json:"confidence"`
	Reason      string  `json:"reason"`
}

// codeFenceRe matches markdown code fences around JSON.
var codeFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*\n?(.*?)\\s*```")

// bracesRe extracts the outermost JSON object from surrounding prose.
var bracesRe = regexp.MustCompile(`(?s)\{.*\}`)

// parseResponse parses the LLM's JSON response, stripping markdown fences
// and surrounding prose if present, and clamping confidence to [0, 1].
func parseResponse(raw string) (*llmResponse, bool) {
	cleaned := strings.TrimSpace(raw)

	if matches := codeFenceRe.FindStringSubmatch(cleaned); len(matches) > 1 {
		cleaned = strings.TrimSpace(matches[1])
	}
	if !strings.HasPrefix(cleaned, "{") {
		if m := bracesRe.FindString(cleaned); m != "" {
			cleaned = m
		}
	}

	var resp llmResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return nil, false
	}

	if resp.Confidence < 0 {
		resp.Confidence = 0
	}
	if resp.Confidence > 1 {
		resp.Confidence = 1
	}

	return &resp, true
}

// notRelevant is the safe default: classification failure must never crash
// the pipeline, only suppress the doc-update path.
func notRelevant(reason string, confidence float64) *Result {
	return &Result{Relevant: false, Confidence: confidence, Reason: reason}
}

// Classify decides whether the changed files warrant a documentation update.
// Files matching the denylist are dropped first; if nothing remains, the
// result is a confident "not relevant" without any provider call. Provider
// failures and unparseable responses degrade to a zero-confidence "not
// relevant" rather than an error.
func (c *Classifier) Classify(ctx context.Context, files []ghapp.ChangedFile) *Result {
	kept := filterFiles(files)
	if len(kept) == 0 {
		return notRelevant("no semantically relevant files changed", 1.0)
	}

	prompt, err := buildPrompt(kept)
	if err != nil {
		c.logger.Error("building classification prompt", "error", err)
		return notRelevant("classification failed", 0)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.completer.Complete(ctx, prompt)
	if err != nil {
		c.logger.Warn("relevance classification call failed", "error", err)
		return notRelevant("classification failed", 0)
	}

	resp, ok := parseResponse(raw)
	if !ok {
		c.logger.Warn("unparseable classification response", "raw", truncate(raw, 200))
		return notRelevant("classification failed", 0)
	}

	return &Result{
		Relevant:   resp.DocRelevant,
		Confidence: resp.Confidence,
		Reason:     resp.Reason,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
