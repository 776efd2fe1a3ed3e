package webhook

import (
	"context"
	"fmt"

	gogithub "github.com/google/go-github/v60/github"

	"github.com/manicule/manicule/internal/ghapp"
	"github.com/manicule/manicule/internal/publish"
)

// GitHub is the GitHub API surface the documentation pipeline needs. It is
// satisfied by appGitHub and replaced with a fake in tests.
type GitHub interface {
	ListFiles(ctx context.Context, installationID int64, owner, repo string, pr int) ([]ghapp.ChangedFile, error)
	FileContent(ctx context.Context, installationID int64, owner, repo, path, ref string) (content string, ok bool, err error)
	PublishDocs(ctx context.Context, installationID int64, req *publish.Request) (*publish.Result, error)
	CommentOnPR(ctx context.Context, installationID int64, owner, repo string, pr int, body string) error
}

// appGitHub implements GitHub with per-installation clients minted by the
// App client factory.
type appGitHub struct {
	factory   *ghapp.ClientFactory
	publisher *publish.Publisher
}

// NewGitHub creates the production GitHub adapter.
func NewGitHub(factory *ghapp.ClientFactory, publisher *publish.Publisher) GitHub {
	return &appGitHub{factory: factory, publisher: publisher}
}

func (g *appGitHub) client(installationID int64) (*gogithub.Client, error) {
	client, err := g.factory.InstallationClient(installationID)
	if err != nil {
		return nil, fmt.Errorf("creating installation client: %w", err)
	}
	return client, nil
}

func (g *appGitHub) ListFiles(ctx context.Context, installationID int64, owner, repo string, pr int) ([]ghapp.ChangedFile, error) {
	client, err := g.client(installationID)
	if err != nil {
		return nil, err
	}
	return ghapp.ListPullRequestFiles(ctx, client, owner, repo, pr)
}

func (g *appGitHub) FileContent(ctx context.Context, installationID int64, owner, repo, path, ref string) (string, bool, error) {
	client, err := g.client(installationID)
	if err != nil {
		return "", false, err
	}
	content, _, ok, err := ghapp.FileContent(ctx, client, owner, repo, path, ref)
	return content, ok, err
}

func (g *appGitHub) PublishDocs(ctx context.Context, installationID int64, req *publish.Request) (*publish.Result, error) {
	client, err := g.client(installationID)
	if err != nil {
		return nil, err
	}
	return g.publisher.Publish(ctx, client, req)
}

func (g *appGitHub) CommentOnPR(ctx context.Context, installationID int64, owner, repo string, pr int, body string) error {
	client, err := g.client(installationID)
	if err != nil {
		return err
	}
	_, _, err = client.Issues.CreateComment(ctx, owner, repo, pr, &gogithub.IssueComment{
		Body: gogithub.String(body),
	})
	if err != nil {
		return fmt.Errorf("commenting on %s/%s#%d: %w", owner, repo, pr, err)
	}
	return nil
}
