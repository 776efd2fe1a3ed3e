package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/manicule/manicule/internal/provider"
	"github.com/manicule/manicule/internal/store"
	"github.com/manicule/manicule/internal/summary"
)

const (
	defaultThreshold = float32(0.4)
	defaultTopK      = 5
	defaultTimeout   = 30 * time.Second

	// maxQueryChars bounds the embedded search query.
	maxQueryChars = 4000
)

// Retriever finds code snippets semantically related to a change summary,
// scoped strictly to one repository's embedding index.
type Retriever struct {
	embedder  provider.Embedder
	store     store.EmbeddingStore
	threshold float32
	topK      int
	timeout   time.Duration
	logger    *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithThreshold sets the minimum cosine similarity for returned snippets.
func WithThreshold(t float32) Option {
	return func(r *Retriever) { r.threshold = t }
}

// WithTopK sets the maximum number of snippets to return.
func WithTopK(k int) Option {
	return func(r *Retriever) { r.topK = k }
}

// WithTimeout sets the embedding-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Retriever) { r.timeout = d }
}

// NewRetriever creates a Retriever backed by the given embedder and store.
func NewRetriever(embedder provider.Embedder, st store.EmbeddingStore, logger *slog.Logger, opts ...Option) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Retriever{
		embedder:  embedder,
		store:     st,
		threshold: defaultThreshold,
		topK:      defaultTopK,
		timeout:   defaultTimeout,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// nonCodeExtensions are filtered out of retrieval results: lockfiles,
// markdown, and JSON config carry little code-level signal.
var nonCodeExtensions = map[string]bool{
	".md":   true,
	".json": true,
	".lock": true,
	".txt":  true,
	".svg":  true,
}

// BuildQuery derives a natural-language search query from a change summary.
// The type/schema/interface vocabulary bias is a deliberate tuning knob:
// documentation updates are usually anchored on declarations rather than
// call sites.
func BuildQuery(sum *summary.Summary) string {
	var parts []string

	if len(sum.TouchedFiles) > 0 {
		parts = append(parts, "Files: "+strings.Join(sum.TouchedFiles, ", "))
	}

	appendChanges := func(label string, changes []summary.Change) {
		if len(changes) == 0 {
			return
		}
		var lines []string
		for _, c := range changes {
			lines = append(lines, c.Summary)
		}
		parts = append(parts, label+": "+strings.Join(lines, "; "))
	}
	appendChanges("API changes", sum.APIChanges)
	appendChanges("Behavior changes", sum.BehaviorChanges)
	appendChanges("Config changes", sum.ConfigChanges)

	parts = append(parts, "Related types, schemas, interfaces, route handlers, request and response definitions")

	q := strings.Join(parts, ". ")
	if len(q) > maxQueryChars {
		q = q[:maxQueryChars]
	}
	return q
}

// scored pairs an embedding record with its similarity to the query.
type scored struct {
	record store.CodeEmbedding
	score  float32
}

// Retrieve returns the most relevant source-annotated code snippets for the
// given repository and change summary, ordered best first. Any failure
// (embedding call, store read, malformed vectors) degrades to an empty
// result: missing context must never abort the documentation pipeline.
func (r *Retriever) Retrieve(ctx context.Context, repoID int64, sum *summary.Summary) []string {
	if r.embedder == nil {
		return nil
	}

	query := BuildQuery(sum)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.logger.Warn("query embedding failed, continuing without context", "repo_id", repoID, "error", err)
		return nil
	}

	records, err := r.store.EmbeddingsForRepo(repoID)
	if err != nil {
		r.logger.Warn("embedding index read failed, continuing without context", "repo_id", repoID, "error", err)
		return nil
	}

	var candidates []scored
	for _, rec := range records {
		if nonCodeExtensions[strings.ToLower(filepath.Ext(rec.Path))] {
			continue
		}
		if len(strings.TrimSpace(rec.Snippet)) < 10 {
			continue
		}

		vec := DecodeEmbedding(rec.Embedding)
		if len(vec) == 0 {
			continue
		}

		score, err := CosineSimilarity(queryVec, vec)
		if err != nil {
			// Dimension mismatches point at an index built with a
			// different model; skip the record.
			continue
		}
		if score < r.threshold {
			continue
		}
		candidates = append(candidates, scored{record: rec, score: score})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > r.topK {
		candidates = candidates[:r.topK]
	}

	snippets := make([]string, len(candidates))
	for i, c := range candidates {
		snippets[i] = fmt.Sprintf("// source: %s\n%s", c.record.Path, c.record.Snippet)
	}
	return snippets
}
