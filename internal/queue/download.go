package queue

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gogithub "github.com/google/go-github/v60/github"

	"github.com/manicule/manicule/internal/ghapp"
	"github.com/manicule/manicule/internal/indexer"
	"github.com/manicule/manicule/internal/retry"
	"github.com/manicule/manicule/internal/store"
)

const defaultBlobConcurrency = 5

// Downloader stages a repository snapshot on local disk and returns the
// staging directory.
type Downloader interface {
	Download(ctx context.Context, job *store.IndexJob) (string, error)
}

// GitHubDownloader fetches repository trees through the GitHub API. Each
// installation gets its own directory under baseDir so tenants never share
// staging space.
type GitHubDownloader struct {
	factory         *ghapp.ClientFactory
	baseDir         string
	blobConcurrency int
	logger          *slog.Logger
}

// NewGitHubDownloader creates a downloader staging under baseDir.
func NewGitHubDownloader(factory *ghapp.ClientFactory, baseDir string, blobConcurrency int, logger *slog.Logger) *GitHubDownloader {
	if blobConcurrency <= 0 {
		blobConcurrency = defaultBlobConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GitHubDownloader{
		factory:         factory,
		baseDir:         baseDir,
		blobConcurrency: blobConcurrency,
		logger:          logger,
	}
}

// StagingDir returns the isolated staging directory for a job:
// <base>/installation_<id>/<owner>_<repo>.
func (d *GitHubDownloader) StagingDir(job *store.IndexJob) string {
	return filepath.Join(d.baseDir,
		fmt.Sprintf("installation_%d", job.InstallationID),
		fmt.Sprintf("%s_%s", job.Owner, job.Repo))
}

// Download fetches the default-branch tree of the job's repository into a
// fresh staging directory. Individual blob failures are logged and skipped;
// tree-level failures abort the download.
func (d *GitHubDownloader) Download(ctx context.Context, job *store.IndexJob) (string, error) {
	client, err := d.factory.InstallationClient(job.InstallationID)
	if err != nil {
		return "", fmt.Errorf("creating installation client: %w", err)
	}

	repo, _, err := client.Repositories.Get(ctx, job.Owner, job.Repo)
	if err != nil {
		return "", fmt.Errorf("fetching repository %s/%s: %w", job.Owner, job.Repo, err)
	}
	branch := repo.GetDefaultBranch()
	if branch == "" {
		branch = "main"
	}

	var tree *gogithub.Tree
	err = retry.Do(ctx, retry.DefaultMaxAttempts, func() error {
		var treeErr error
		tree, _, treeErr = client.Git.GetTree(ctx, job.Owner, job.Repo, branch, true)
		return treeErr
	})
	if err != nil {
		return "", fmt.Errorf("fetching tree of %s/%s@%s: %w", job.Owner, job.Repo, branch, err)
	}
	if tree.GetTruncated() {
		d.logger.Warn("repository tree truncated by GitHub, index will be partial",
			"repo", job.Owner+"/"+job.Repo)
	}

	root := d.StagingDir(job)
	if err := os.RemoveAll(root); err != nil {
		return "", fmt.Errorf("clearing staging dir: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("creating staging dir: %w", err)
	}

	var blobs []*gogithub.TreeEntry
	for _, entry := range tree.Entries {
		if entry.GetType() != "blob" {
			continue
		}
		if !indexer.IsIndexableFile(entry.GetPath()) {
			continue
		}
		blobs = append(blobs, entry)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		skipped int
	)
	sem := make(chan struct{}, d.blobConcurrency)

	for _, entry := range blobs {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(entry *gogithub.TreeEntry) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := d.fetchBlob(ctx, client, job, root, entry); err != nil {
				mu.Lock()
				skipped++
				mu.Unlock()
				d.logger.Warn("blob download failed, skipping file",
					"repo", job.Owner+"/"+job.Repo,
					"path", entry.GetPath(),
					"error", err)
			}
		}(entry)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	d.logger.Info("repository snapshot staged",
		"repo", job.Owner+"/"+job.Repo,
		"path", root,
		"files", len(blobs)-skipped,
		"skipped", skipped)
	return root, nil
}

func (d *GitHubDownloader) fetchBlob(ctx context.Context, client *gogithub.Client, job *store.IndexJob, root string, entry *gogithub.TreeEntry) error {
	data, resp, err := client.Git.GetBlobRaw(ctx, job.Owner, job.Repo, entry.GetSHA())
	if err != nil {
		return err
	}
	if info := ghapp.ParseRateLimit(resp); info.ShouldThrottle() {
		if err := ghapp.ThrottleWait(ctx, info); err != nil {
			return err
		}
	}

	dest, err := securePath(root, entry.GetPath())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o644)
}

// securePath joins a tree entry path under root, rejecting anything that
// would escape the staging directory.
func securePath(root, rel string) (string, error) {
	if strings.HasPrefix(rel, "/") || strings.Contains(rel, "\\") {
		return "", fmt.Errorf("unsafe tree path %q", rel)
	}
	clean := filepath.Clean(rel)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("unsafe tree path %q", rel)
	}
	return filepath.Join(root, clean), nil
}
