package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/manicule/manicule/internal/classify"
	"github.com/manicule/manicule/internal/generate"
	"github.com/manicule/manicule/internal/ghapp"
	"github.com/manicule/manicule/internal/notify"
	"github.com/manicule/manicule/internal/publish"
	"github.com/manicule/manicule/internal/summary"
	"github.com/manicule/manicule/internal/target"
)

const defaultConfidenceThreshold = 0.6

// manifestFile is the routing manifest looked up at the docs root.
const manifestFile = "docs.json"

// Classifier decides whether a change is documentation-relevant.
type Classifier interface {
	Classify(ctx context.Context, files []ghapp.ChangedFile) *classify.Result
}

// ContextRetriever finds code snippets related to a change summary.
type ContextRetriever interface {
	Retrieve(ctx context.Context, repoID int64, sum *summary.Summary) []string
}

// Generator produces the documentation content.
type Generator interface {
	Generate(ctx context.Context, in *generate.Input) string
}

// TargetResolver picks the documentation file to update.
type TargetResolver interface {
	Resolve(ctx context.Context, manifest *target.Manifest, changedFiles []string) string
}

// PullRequest is the triggering change, already validated by the handler.
type PullRequest struct {
	InstallationID int64
	Owner          string
	Repo           string
	Number         int
	Title          string
	// RepoID is the tracked repository's row id, used to scope retrieval.
	RepoID int64
}

// DocsTarget is where the documentation update lands. For separate MAIN and
// DOCS repositories, Owner/Repo name the docs repository and DocsRoot is
// empty. For a HYBRID repository they name the source repository itself and
// DocsRoot prefixes every documentation path.
type DocsTarget struct {
	Owner    string
	Repo     string
	DocsRoot string
}

// Pipeline runs the full documentation flow for one pull request: classify,
// summarize, retrieve context, generate content, resolve the target file,
// and publish the docs PR.
type Pipeline struct {
	github     GitHub
	classifier Classifier
	retriever  ContextRetriever
	generator  Generator
	resolver   TargetResolver
	notifier   notify.Notifier
	threshold  float64
	logger     *slog.Logger
}

// NewPipeline wires the documentation pipeline. notifier may be nil.
func NewPipeline(gh GitHub, cl Classifier, rt ContextRetriever, gen Generator, res TargetResolver, notifier notify.Notifier, threshold float64, logger *slog.Logger) *Pipeline {
	if threshold <= 0 {
		threshold = defaultConfidenceThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		github:     gh,
		classifier: cl,
		retriever:  rt,
		generator:  gen,
		resolver:   res,
		notifier:   notifier,
		threshold:  threshold,
		logger:     logger,
	}
}

// Outcome reports what the pipeline did with a pull request.
type Outcome struct {
	// Skipped is set with a reason when no docs PR was published.
	Skipped string
	// Result describes the published docs PR when Skipped is empty.
	Result *publish.Result
}

func skipped(reason string) *Outcome {
	return &Outcome{Skipped: reason}
}

// Run processes one pull request. Classification misses and low confidence
// are normal outcomes, not errors; only publishing failures return an error.
func (p *Pipeline) Run(ctx context.Context, pr *PullRequest, tgt *DocsTarget) (*Outcome, error) {
	logger := p.logger.With("repo", pr.Owner+"/"+pr.Repo, "pr", pr.Number)

	files, err := p.github.ListFiles(ctx, pr.InstallationID, pr.Owner, pr.Repo, pr.Number)
	if err != nil {
		return nil, fmt.Errorf("listing changed files: %w", err)
	}
	if len(files) == 0 {
		return skipped("no changed files"), nil
	}

	result := p.classifier.Classify(ctx, files)
	logger.Info("change classified",
		"relevant", result.Relevant,
		"confidence", result.Confidence,
		"reason", result.Reason)
	if !result.Relevant {
		return skipped("not documentation-relevant: " + result.Reason), nil
	}
	if result.Confidence < p.threshold {
		return skipped(fmt.Sprintf("confidence %.2f below threshold %.2f", result.Confidence, p.threshold)), nil
	}

	sum := summary.Summarize(files)
	snippets := p.retriever.Retrieve(ctx, pr.RepoID, sum)
	logger.Info("context retrieved", "snippets", len(snippets))

	docPath := p.resolveTarget(ctx, pr, tgt, sum.TouchedFiles)

	existing, ok, err := p.github.FileContent(ctx, pr.InstallationID, tgt.Owner, tgt.Repo, docPath, "")
	if err != nil {
		logger.Warn("reading existing document failed, generating from scratch", "path", docPath, "error", err)
	} else if !ok {
		existing = ""
	}

	in := &generate.Input{
		Repo:     pr.Owner + "/" + pr.Repo,
		PRNumber: pr.Number,
		PRTitle:  pr.Title,
		Summary:  sum,
		Snippets: snippets,
		Existing: existing,
	}
	content := p.generator.Generate(ctx, in)
	if content == "" {
		// A documentation-relevant change still deserves a reviewable PR.
		logger.Warn("generation produced no content, publishing fallback document")
		content = generate.FallbackDocument(in)
	}

	res, err := p.github.PublishDocs(ctx, pr.InstallationID, &publish.Request{
		Owner:      tgt.Owner,
		Repo:       tgt.Repo,
		Path:       docPath,
		Content:    content,
		SourceRepo: pr.Owner + "/" + pr.Repo,
		SourcePR:   pr.Number,
		PRTitle:    pr.Title,
	})
	if err != nil {
		return nil, fmt.Errorf("publishing docs update: %w", err)
	}

	comment := fmt.Sprintf("Documentation update proposed: %s (updates `%s`)", res.URL, res.Path)
	if err := p.github.CommentOnPR(ctx, pr.InstallationID, pr.Owner, pr.Repo, pr.Number, comment); err != nil {
		// The docs PR exists; a missing comment is only worth a log line.
		logger.Warn("commenting on source PR failed", "error", err)
	}

	if p.notifier != nil {
		event := notify.Event{
			Kind:        notify.DocPRPublished,
			Repo:        pr.Owner + "/" + pr.Repo,
			SourcePR:    pr.Number,
			DocPRURL:    res.URL,
			DocPRNumber: res.Number,
			DocPath:     res.Path,
		}
		if err := p.notifier.Notify(ctx, event); err != nil {
			logger.Warn("notification failed", "error", err)
		}
	}

	return &Outcome{Result: res}, nil
}

// resolveTarget loads the docs manifest and asks the resolver for the file
// to update. Hybrid targets keep everything under the docs root.
func (p *Pipeline) resolveTarget(ctx context.Context, pr *PullRequest, tgt *DocsTarget, changedFiles []string) string {
	manifestPath := manifestFile
	if tgt.DocsRoot != "" {
		manifestPath = path.Join(tgt.DocsRoot, manifestFile)
	}

	var manifest *target.Manifest
	raw, ok, err := p.github.FileContent(ctx, pr.InstallationID, tgt.Owner, tgt.Repo, manifestPath, "")
	if err != nil {
		p.logger.Warn("reading docs manifest failed", "path", manifestPath, "error", err)
	} else if ok {
		manifest, err = target.ParseManifest([]byte(raw))
		if err != nil {
			p.logger.Warn("docs manifest is malformed, using fallback path", "path", manifestPath, "error", err)
		}
	}

	docPath := p.resolver.Resolve(ctx, manifest, changedFiles)
	if tgt.DocsRoot != "" {
		docPath = path.Join(tgt.DocsRoot, docPath)
	}
	return docPath
}
