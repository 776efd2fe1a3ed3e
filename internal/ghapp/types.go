package ghapp

import (
	"context"
	"fmt"

	gogithub "github.com/google/go-github/v60/github"
)

// ChangedFile is one file touched by a pull request, as reported by the
// list-files API. Patch may be empty for binary or very large files.
type ChangedFile struct {
	Filename string
	Status   string
	Patch    string
}

// ListPullRequestFiles fetches every changed file of a pull request,
// following pagination.
func ListPullRequestFiles(ctx context.Context, client *gogithub.Client, owner, repo string, number int) ([]ChangedFile, error) {
	var files []ChangedFile
	opts := &gogithub.ListOptions{PerPage: 100}

	for {
		page, resp, err := client.PullRequests.ListFiles(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("listing PR files: %w", err)
		}
		for _, f := range page {
			files = append(files, ChangedFile{
				Filename: f.GetFilename(),
				Status:   f.GetStatus(),
				Patch:    f.GetPatch(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return files, nil
}

// FileContent fetches the decoded content and blob SHA of a file on a ref.
// A missing file is not an error: ok is false and content empty.
func FileContent(ctx context.Context, client *gogithub.Client, owner, repo, path, ref string) (content, sha string, ok bool, err error) {
	fc, _, resp, err := client.Repositories.GetContents(ctx, owner, repo, path,
		&gogithub.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		if resp != nil && resp.StatusCode == 404 {
			return "", "", false, nil
		}
		return "", "", false, fmt.Errorf("fetching %s: %w", path, err)
	}
	if fc == nil {
		// Path resolved to a directory listing.
		return "", "", false, nil
	}

	decoded, err := fc.GetContent()
	if err != nil {
		return "", "", false, fmt.Errorf("decoding %s: %w", path, err)
	}
	return decoded, fc.GetSHA(), true, nil
}
