// Package publish turns generated documentation into a pull request on the
// docs repository: branch from the default branch, commit the file, open a PR.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gogithub "github.com/google/go-github/v60/github"

	"github.com/manicule/manicule/internal/ghapp"
)

// Request describes one documentation update to publish.
type Request struct {
	// Owner and Repo identify the repository that receives the doc PR.
	Owner string
	Repo  string
	// Path is the target file, relative to the repository root.
	Path    string
	Content string
	// SourceRepo and SourcePR identify the code change that triggered the
	// update, used in the branch name, commit message, and PR body.
	SourceRepo string
	SourcePR   int
	PRTitle    string
}

// Result reports the published pull request.
type Result struct {
	URL    string
	Path   string
	Number int
	Branch string
}

// Publisher opens documentation pull requests.
type Publisher struct {
	logger *slog.Logger
	// now is swappable so tests get deterministic branch names.
	now func() time.Time
}

// NewPublisher creates a Publisher.
func NewPublisher(logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{logger: logger, now: time.Now}
}

// Publish creates a branch, commits the documentation file, and opens a pull
// request against the repository's default branch. Unlike the pipeline stages
// before it, every failure here propagates: a half-published update is worth
// surfacing, not swallowing.
func (p *Publisher) Publish(ctx context.Context, client *gogithub.Client, req *Request) (*Result, error) {
	repo, _, err := client.Repositories.Get(ctx, req.Owner, req.Repo)
	if err != nil {
		return nil, fmt.Errorf("fetching repository %s/%s: %w", req.Owner, req.Repo, err)
	}
	baseBranch := repo.GetDefaultBranch()
	if baseBranch == "" {
		baseBranch = "main"
	}

	baseRef, _, err := client.Git.GetRef(ctx, req.Owner, req.Repo, "heads/"+baseBranch)
	if err != nil {
		return nil, fmt.Errorf("resolving base branch %s: %w", baseBranch, err)
	}

	branch := fmt.Sprintf("docs/update-%d-%d", req.SourcePR, p.now().UnixMilli())
	_, _, err = client.Git.CreateRef(ctx, req.Owner, req.Repo, &gogithub.Reference{
		Ref:    gogithub.String("refs/heads/" + branch),
		Object: &gogithub.GitObject{SHA: baseRef.Object.SHA},
	})
	if err != nil {
		return nil, fmt.Errorf("creating branch %s: %w", branch, err)
	}

	// An existing file needs its blob SHA to be updated in place.
	_, sha, exists, err := ghapp.FileContent(ctx, client, req.Owner, req.Repo, req.Path, baseBranch)
	if err != nil {
		return nil, err
	}

	message := fmt.Sprintf("docs: update for %s #%d", req.SourceRepo, req.SourcePR)
	fileOpts := &gogithub.RepositoryContentFileOptions{
		Message: gogithub.String(message),
		Content: []byte(req.Content),
		Branch:  gogithub.String(branch),
	}
	if exists {
		fileOpts.SHA = gogithub.String(sha)
		_, _, err = client.Repositories.UpdateFile(ctx, req.Owner, req.Repo, req.Path, fileOpts)
	} else {
		_, _, err = client.Repositories.CreateFile(ctx, req.Owner, req.Repo, req.Path, fileOpts)
	}
	if err != nil {
		return nil, fmt.Errorf("committing %s to %s: %w", req.Path, branch, err)
	}

	title := fmt.Sprintf("Docs Update: %s #%d", req.SourceRepo, req.SourcePR)
	body := fmt.Sprintf("Automated documentation update for %s #%d: %s\n\nUpdated file: `%s`",
		req.SourceRepo, req.SourcePR, req.PRTitle, req.Path)
	pr, _, err := client.PullRequests.Create(ctx, req.Owner, req.Repo, &gogithub.NewPullRequest{
		Title: gogithub.String(title),
		Head:  gogithub.String(branch),
		Base:  gogithub.String(baseBranch),
		Body:  gogithub.String(body),
	})
	if err != nil {
		return nil, fmt.Errorf("opening pull request from %s: %w", branch, err)
	}

	p.logger.Info("documentation pull request opened",
		"repo", req.Owner+"/"+req.Repo,
		"pr", pr.GetNumber(),
		"path", req.Path,
		"source", fmt.Sprintf("%s#%d", req.SourceRepo, req.SourcePR))

	return &Result{
		URL:    pr.GetHTMLURL(),
		Path:   req.Path,
		Number: pr.GetNumber(),
		Branch: branch,
	}, nil
}
