package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/manicule/manicule/internal/classify"
	"github.com/manicule/manicule/internal/generate"
	"github.com/manicule/manicule/internal/ghapp"
	"github.com/manicule/manicule/internal/publish"
	"github.com/manicule/manicule/internal/queue"
	"github.com/manicule/manicule/internal/store"
	"github.com/manicule/manicule/internal/summary"
	"github.com/manicule/manicule/internal/target"
)

const testSecret = "webhook-test-secret"

type fakeGitHub struct {
	files    []ghapp.ChangedFile
	contents map[string]string // "owner/repo/path" -> content

	published []*publish.Request
	comments  []string
	pubErr    error
}

func (f *fakeGitHub) ListFiles(_ context.Context, _ int64, _, _ string, _ int) ([]ghapp.ChangedFile, error) {
	return f.files, nil
}

func (f *fakeGitHub) FileContent(_ context.Context, _ int64, owner, repo, path, _ string) (string, bool, error) {
	content, ok := f.contents[owner+"/"+repo+"/"+path]
	return content, ok, nil
}

func (f *fakeGitHub) PublishDocs(_ context.Context, _ int64, req *publish.Request) (*publish.Result, error) {
	if f.pubErr != nil {
		return nil, f.pubErr
	}
	f.published = append(f.published, req)
	return &publish.Result{
		URL:    fmt.Sprintf("https://github.com/%s/%s/pull/99", req.Owner, req.Repo),
		Path:   req.Path,
		Number: 99,
		Branch: "docs/update-test",
	}, nil
}

func (f *fakeGitHub) CommentOnPR(_ context.Context, _ int64, owner, repo string, pr int, body string) error {
	f.comments = append(f.comments, fmt.Sprintf("%s/%s#%d: %s", owner, repo, pr, body))
	return nil
}

type fakeClassifier struct{ result *classify.Result }

func (f *fakeClassifier) Classify(_ context.Context, _ []ghapp.ChangedFile) *classify.Result {
	return f.result
}

type fakeRetriever struct{ snippets []string }

func (f *fakeRetriever) Retrieve(_ context.Context, _ int64, _ *summary.Summary) []string {
	return f.snippets
}

type fakeGenerator struct{ content string }

func (f *fakeGenerator) Generate(_ context.Context, _ *generate.Input) string {
	return f.content
}

type fakeResolver struct{ path string }

func (f *fakeResolver) Resolve(_ context.Context, _ *target.Manifest, _ []string) string {
	if f.path == "" {
		return target.FallbackPath
	}
	return f.path
}

type testEnv struct {
	db     *store.DB
	github *fakeGitHub
	server *Server
}

func newTestEnv(t *testing.T, gh *fakeGitHub, cl Classifier, gen Generator, res TargetResolver) *testEnv {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.DiscardHandler)
	if cl == nil {
		cl = &fakeClassifier{result: &classify.Result{Relevant: true, Confidence: 0.9, Reason: "api change"}}
	}
	if gen == nil {
		gen = &fakeGenerator{content: "# Updated Doc\n\nContent.\n"}
	}
	if res == nil {
		res = &fakeResolver{path: "api/users.md"}
	}

	pipeline := NewPipeline(gh, cl, &fakeRetriever{snippets: []string{"// source: a.go\nfunc A() {}"}}, gen, res, nil, 0.6, logger)
	q := queue.NewQueue(db, nil, logger)
	srv := NewServer(db, q, pipeline, ghapp.NewVerifier(testSecret), logger)
	return &testEnv{db: db, github: gh, server: srv}
}

func signedRequest(t *testing.T, event string, payload any) *http.Request {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/github/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", event)
	req.Header.Set("X-Hub-Signature-256", ghapp.NewVerifier(testSecret).Sign(body))
	return req
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("invalid JSON response %q: %v", data, err)
	}
	return out
}

func installationCreated() map[string]any {
	return map[string]any{
		"action": "created",
		"installation": map[string]any{
			"id": 1001,
			"account": map[string]any{
				"login": "acme",
				"type":  "Organization",
			},
		},
		"repositories": []map[string]any{
			{"name": "widgets"},
			{"name": "docs"},
		},
	}
}

func pullRequestOpened(headRef, sender string) map[string]any {
	return map[string]any{
		"action": "opened",
		"number": 17,
		"pull_request": map[string]any{
			"title": "Add user creation endpoint",
			"head":  map[string]any{"ref": headRef},
		},
		"repository": map[string]any{
			"name":  "widgets",
			"owner": map[string]any{"login": "acme"},
		},
		"installation": map[string]any{"id": 1001},
		"sender":       map[string]any{"login": sender},
	}
}

// install runs the installation webhook and assigns roles so acme/widgets is
// MAIN and acme/docs is DOCS.
func installAcme(t *testing.T, env *testEnv) {
	t.Helper()
	resp, err := env.server.App().Test(signedRequest(t, "installation", installationCreated()))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("installation status = %d", resp.StatusCode)
	}

	owner, err := env.db.GetOwnerByLogin("acme")
	if err != nil {
		t.Fatal(err)
	}
	repos, err := env.db.ListRepositories(owner.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range repos {
		role := store.RoleMain
		if r.Name == "docs" {
			role = store.RoleDocs
		}
		if err := env.db.SetRepositoryRole(r.ID, role); err != nil {
			t.Fatal(err)
		}
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	env := newTestEnv(t, &fakeGitHub{}, nil, nil, nil)

	body, _ := json.Marshal(installationCreated())
	req := httptest.NewRequest(http.MethodPost, "/github/webhook", bytes.NewReader(body))
	req.Header.Set("X-GitHub-Event", "installation")
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")

	resp, err := env.server.App().Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestInstallationLifecycle(t *testing.T) {
	env := newTestEnv(t, &fakeGitHub{}, nil, nil, nil)
	installAcme(t, env)

	// Redelivery does not duplicate rows.
	resp, err := env.server.App().Test(signedRequest(t, "installation", installationCreated()))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("redelivery status = %d", resp.StatusCode)
	}
	owner, err := env.db.GetOwnerByLogin("acme")
	if err != nil {
		t.Fatal(err)
	}
	repos, err := env.db.ListRepositories(owner.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(repos) != 2 {
		t.Fatalf("repos = %d, want 2", len(repos))
	}

	// Uninstall deactivates the account.
	deleted := installationCreated()
	deleted["action"] = "deleted"
	if _, err := env.server.App().Test(signedRequest(t, "installation", deleted)); err != nil {
		t.Fatal(err)
	}
	if _, err := env.db.GetOwnerByLogin("acme"); err == nil {
		t.Fatal("deactivated owner still resolvable by login")
	}
}

func TestPullRequestPublishesDocsPR(t *testing.T) {
	gh := &fakeGitHub{
		files: []ghapp.ChangedFile{
			{Filename: "src/routes/users.ts", Status: "modified", Patch: "+app.post(\"/users\", handler)"},
		},
		contents: map[string]string{
			"acme/docs/docs.json":    `{"docs": {"api/users.md": "User API"}}`,
			"acme/docs/api/users.md": "# Users API\n\nOld content.\n",
		},
	}
	env := newTestEnv(t, gh, nil, nil, nil)
	installAcme(t, env)

	resp, err := env.server.App().Test(signedRequest(t, "pull_request", pullRequestOpened("feature/users", "dev")))
	if err != nil {
		t.Fatal(err)
	}
	body := decodeBody(t, resp)
	if resp.StatusCode != http.StatusOK || body["status"] != "published" {
		t.Fatalf("status=%d body=%v", resp.StatusCode, body)
	}

	if len(gh.published) != 1 {
		t.Fatalf("published = %d", len(gh.published))
	}
	pub := gh.published[0]
	if pub.Owner != "acme" || pub.Repo != "docs" {
		t.Errorf("published to %s/%s, want acme/docs", pub.Owner, pub.Repo)
	}
	if pub.Path != "api/users.md" {
		t.Errorf("path = %q", pub.Path)
	}
	if pub.SourceRepo != "acme/widgets" || pub.SourcePR != 17 {
		t.Errorf("source = %s#%d", pub.SourceRepo, pub.SourcePR)
	}
	if len(gh.comments) != 1 || !strings.Contains(gh.comments[0], "acme/widgets#17") {
		t.Errorf("comments = %v", gh.comments)
	}
}

func TestPullRequestHybridPrefixesDocsRoot(t *testing.T) {
	gh := &fakeGitHub{
		files: []ghapp.ChangedFile{{Filename: "src/app.ts", Status: "modified", Patch: "+if (x) { return }"}},
	}
	env := newTestEnv(t, gh, nil, nil, &fakeResolver{})
	installAcme(t, env)

	// Reconfigure as a single hybrid repository.
	owner, _ := env.db.GetOwnerByLogin("acme")
	repos, _ := env.db.ListRepositories(owner.ID)
	for _, r := range repos {
		role := store.RoleIgnore
		if r.Name == "widgets" {
			role = store.RoleHybrid
		}
		if err := env.db.SetRepositoryRole(r.ID, role); err != nil {
			t.Fatal(err)
		}
	}

	resp, err := env.server.App().Test(signedRequest(t, "pull_request", pullRequestOpened("feature/x", "dev")))
	if err != nil {
		t.Fatal(err)
	}
	if body := decodeBody(t, resp); body["status"] != "published" {
		t.Fatalf("body = %v", body)
	}

	pub := gh.published[0]
	if pub.Owner != "acme" || pub.Repo != "widgets" {
		t.Errorf("published to %s/%s, want the hybrid repo itself", pub.Owner, pub.Repo)
	}
	if pub.Path != "docs/"+target.FallbackPath {
		t.Errorf("path = %q, want docs root prefix", pub.Path)
	}
}

func TestPullRequestSkips(t *testing.T) {
	t.Run("untracked repository", func(t *testing.T) {
		env := newTestEnv(t, &fakeGitHub{}, nil, nil, nil)
		// Install without assigning roles: widgets stays IGNORE.
		if _, err := env.server.App().Test(signedRequest(t, "installation", installationCreated())); err != nil {
			t.Fatal(err)
		}
		resp, err := env.server.App().Test(signedRequest(t, "pull_request", pullRequestOpened("feature/x", "dev")))
		if err != nil {
			t.Fatal(err)
		}
		body := decodeBody(t, resp)
		if body["status"] != "skipped" || body["reason"] != "repository not tracked" {
			t.Fatalf("body = %v", body)
		}
	})

	t.Run("generated branch", func(t *testing.T) {
		env := newTestEnv(t, &fakeGitHub{}, nil, nil, nil)
		installAcme(t, env)
		resp, err := env.server.App().Test(signedRequest(t, "pull_request", pullRequestOpened("docs/update-17-123", "dev")))
		if err != nil {
			t.Fatal(err)
		}
		if body := decodeBody(t, resp); body["reason"] != "generated pull request" {
			t.Fatalf("body = %v", body)
		}
	})

	t.Run("bot sender", func(t *testing.T) {
		env := newTestEnv(t, &fakeGitHub{}, nil, nil, nil)
		installAcme(t, env)
		resp, err := env.server.App().Test(signedRequest(t, "pull_request", pullRequestOpened("feature/x", "manicule[bot]")))
		if err != nil {
			t.Fatal(err)
		}
		if body := decodeBody(t, resp); body["reason"] != "generated pull request" {
			t.Fatalf("body = %v", body)
		}
	})

	t.Run("irrelevant change", func(t *testing.T) {
		cl := &fakeClassifier{result: &classify.Result{Relevant: false, Confidence: 0.9, Reason: "formatting only"}}
		gh := &fakeGitHub{files: []ghapp.ChangedFile{{Filename: "a.go", Patch: "+x"}}}
		env := newTestEnv(t, gh, cl, nil, nil)
		installAcme(t, env)
		resp, err := env.server.App().Test(signedRequest(t, "pull_request", pullRequestOpened("feature/x", "dev")))
		if err != nil {
			t.Fatal(err)
		}
		body := decodeBody(t, resp)
		if body["status"] != "skipped" || !strings.Contains(body["reason"].(string), "not documentation-relevant") {
			t.Fatalf("body = %v", body)
		}
		if len(gh.published) != 0 {
			t.Error("nothing should be published")
		}
	})

	t.Run("low confidence", func(t *testing.T) {
		cl := &fakeClassifier{result: &classify.Result{Relevant: true, Confidence: 0.3, Reason: "maybe"}}
		gh := &fakeGitHub{files: []ghapp.ChangedFile{{Filename: "a.go", Patch: "+x"}}}
		env := newTestEnv(t, gh, cl, nil, nil)
		installAcme(t, env)
		resp, err := env.server.App().Test(signedRequest(t, "pull_request", pullRequestOpened("feature/x", "dev")))
		if err != nil {
			t.Fatal(err)
		}
		if body := decodeBody(t, resp); !strings.Contains(body["reason"].(string), "below threshold") {
			t.Fatalf("body = %v", body)
		}
	})

	t.Run("ignored action", func(t *testing.T) {
		env := newTestEnv(t, &fakeGitHub{}, nil, nil, nil)
		installAcme(t, env)
		payload := pullRequestOpened("feature/x", "dev")
		payload["action"] = "closed"
		resp, err := env.server.App().Test(signedRequest(t, "pull_request", payload))
		if err != nil {
			t.Fatal(err)
		}
		if body := decodeBody(t, resp); body["status"] != "ignored" {
			t.Fatalf("body = %v", body)
		}
	})
}

func TestPullRequestMisconfiguredDocsTarget(t *testing.T) {
	gh := &fakeGitHub{files: []ghapp.ChangedFile{{Filename: "a.go", Patch: "+x"}}}
	env := newTestEnv(t, gh, nil, nil, nil)
	installAcme(t, env)

	// Demote the docs repository: MAIN with no DOCS sibling.
	owner, _ := env.db.GetOwnerByLogin("acme")
	repos, _ := env.db.ListRepositories(owner.ID)
	for _, r := range repos {
		if r.Name == "docs" {
			if err := env.db.SetRepositoryRole(r.ID, store.RoleIgnore); err != nil {
				t.Fatal(err)
			}
		}
	}

	resp, err := env.server.App().Test(signedRequest(t, "pull_request", pullRequestOpened("feature/x", "dev")))
	if err != nil {
		t.Fatal(err)
	}
	body := decodeBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("config errors answer 200 so GitHub stops retrying, got %d", resp.StatusCode)
	}
	if body["reason"] != "mark exactly one repository as MAIN and one as DOCS" {
		t.Fatalf("body = %v", body)
	}
}

func TestGenerationFallbackStillPublishes(t *testing.T) {
	gh := &fakeGitHub{files: []ghapp.ChangedFile{{Filename: "a.go", Patch: "+if (x) { return }"}}}
	env := newTestEnv(t, gh, nil, &fakeGenerator{content: ""}, nil)
	installAcme(t, env)

	resp, err := env.server.App().Test(signedRequest(t, "pull_request", pullRequestOpened("feature/x", "dev")))
	if err != nil {
		t.Fatal(err)
	}
	if body := decodeBody(t, resp); body["status"] != "published" {
		t.Fatalf("body = %v", body)
	}
	if len(gh.published) != 1 || !strings.Contains(gh.published[0].Content, "Details not yet documented.") {
		t.Fatalf("fallback document not published: %+v", gh.published)
	}
}

func apiRequest(method, url string, payload any) *http.Request {
	var body io.Reader
	if payload != nil {
		data, _ := json.Marshal(payload)
		body = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, url, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func TestStartIndexingAPI(t *testing.T) {
	env := newTestEnv(t, &fakeGitHub{}, nil, nil, nil)
	installAcme(t, env)

	resp, err := env.server.App().Test(apiRequest(http.MethodPost, "/api/indexing/start", fiberMap{"login": "acme"}))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["repository"] != "acme/widgets" || body["job_id"] == "" {
		t.Fatalf("body = %v", body)
	}

	// A second trigger while the job is pending conflicts.
	resp, err = env.server.App().Test(apiRequest(http.MethodPost, "/api/indexing/start", fiberMap{"login": "acme"}))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}

	// Unknown login.
	resp, err = env.server.App().Test(apiRequest(http.MethodPost, "/api/indexing/start", fiberMap{"login": "ghost"}))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

type fiberMap = map[string]any

func TestStartIndexingRejectsBadRoleConfig(t *testing.T) {
	env := newTestEnv(t, &fakeGitHub{}, nil, nil, nil)
	// Installed but with both repos still IGNORE.
	if _, err := env.server.App().Test(signedRequest(t, "installation", installationCreated())); err != nil {
		t.Fatal(err)
	}

	resp, err := env.server.App().Test(apiRequest(http.MethodPost, "/api/indexing/start", fiberMap{"login": "acme"}))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["error"] != "mark exactly one repository as MAIN and one as DOCS" {
		t.Fatalf("body = %v", body)
	}
}

func TestRepositoryRoleAPI(t *testing.T) {
	env := newTestEnv(t, &fakeGitHub{}, nil, nil, nil)
	installAcme(t, env)

	owner, _ := env.db.GetOwnerByLogin("acme")
	repos, _ := env.db.ListRepositories(owner.ID)
	id := repos[0].ID

	resp, err := env.server.App().Test(apiRequest(http.MethodPost, fmt.Sprintf("/api/repositories/%d/role", id), fiberMap{"role": "HYBRID"}))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	resp, err = env.server.App().Test(apiRequest(http.MethodPost, fmt.Sprintf("/api/repositories/%d/role", id), fiberMap{"role": "WRONG"}))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid role status = %d", resp.StatusCode)
	}

	resp, err = env.server.App().Test(apiRequest(http.MethodPost, "/api/repositories/99999/role", fiberMap{"role": "MAIN"}))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing repo status = %d", resp.StatusCode)
	}
}

func TestListEndpoints(t *testing.T) {
	env := newTestEnv(t, &fakeGitHub{}, nil, nil, nil)
	installAcme(t, env)

	resp, err := env.server.App().Test(apiRequest(http.MethodGet, "/api/repositories?login=acme", nil))
	if err != nil {
		t.Fatal(err)
	}
	var repos []store.Repository
	data, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(data, &repos); err != nil {
		t.Fatalf("invalid response %q: %v", data, err)
	}
	if len(repos) != 2 {
		t.Fatalf("repos = %d", len(repos))
	}

	resp, err = env.server.App().Test(apiRequest(http.MethodGet, "/api/jobs?status=pending", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("jobs status = %d", resp.StatusCode)
	}

	resp, err = env.server.App().Test(apiRequest(http.MethodGet, "/health", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
}

func TestInstallationSingleRepoStartsInitialIndex(t *testing.T) {
	env := newTestEnv(t, &fakeGitHub{}, nil, nil, nil)

	payload := installationCreated()
	payload["repositories"] = []map[string]any{{"name": "site"}}

	resp, err := env.server.App().Test(signedRequest(t, "installation", payload))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("installation status = %d", resp.StatusCode)
	}

	jobs, err := env.db.ListJobs(store.JobPending)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 {
		t.Fatalf("pending jobs = %d, want 1", len(jobs))
	}
	if !jobs[0].Hybrid {
		t.Error("initial job for a single-repo install should be hybrid")
	}
	if jobs[0].Repo != "site" {
		t.Errorf("job repo = %s, want site", jobs[0].Repo)
	}

	// Redelivery does not enqueue a second job.
	if _, err := env.server.App().Test(signedRequest(t, "installation", payload)); err != nil {
		t.Fatal(err)
	}
	jobs, err = env.db.ListJobs(store.JobPending)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 {
		t.Fatalf("pending jobs after redelivery = %d, want 1", len(jobs))
	}
}

func TestInstallationMultiRepoDefersIndexing(t *testing.T) {
	env := newTestEnv(t, &fakeGitHub{}, nil, nil, nil)
	installAcme(t, env)

	jobs, err := env.db.ListJobs(store.JobPending)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 0 {
		t.Fatalf("pending jobs = %d, want 0 until roles are assigned", len(jobs))
	}
}

func TestReinstallDoesNotRestartIndexing(t *testing.T) {
	env := newTestEnv(t, &fakeGitHub{}, nil, nil, nil)

	payload := installationCreated()
	payload["repositories"] = []map[string]any{{"name": "site"}}
	if _, err := env.server.App().Test(signedRequest(t, "installation", payload)); err != nil {
		t.Fatal(err)
	}

	// The initial job runs and permanently fails, leaving no active job
	// that would otherwise gate the enqueue.
	job, err := env.db.ClaimJob(time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if err := env.db.DeadLetterJob(job.ID, "clone failed"); err != nil {
		t.Fatal(err)
	}

	// Uninstall, then reinstall the app.
	deleted := map[string]any{
		"action":       "deleted",
		"installation": payload["installation"],
	}
	if _, err := env.server.App().Test(signedRequest(t, "installation", deleted)); err != nil {
		t.Fatal(err)
	}
	if _, err := env.server.App().Test(signedRequest(t, "installation", payload)); err != nil {
		t.Fatal(err)
	}

	jobs, err := env.db.ListJobs(store.JobPending)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 0 {
		t.Fatalf("pending jobs after reinstall = %d, want 0", len(jobs))
	}
}

func TestPullRequestPublishFailureAnswers502(t *testing.T) {
	gh := &fakeGitHub{
		files: []ghapp.ChangedFile{
			{Filename: "src/routes/users.ts", Status: "modified", Patch: "+app.post(\"/users\", handler)"},
		},
		contents: map[string]string{
			"acme/docs/docs.json": `{"docs": {"api/users.md": "User API"}}`,
		},
		pubErr: errors.New("github: 503"),
	}
	env := newTestEnv(t, gh, nil, nil, nil)
	installAcme(t, env)

	resp, err := env.server.App().Test(signedRequest(t, "pull_request", pullRequestOpened("feature/users", "dev")))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
	if len(gh.comments) != 0 {
		t.Errorf("no comment should be posted on publish failure, got %v", gh.comments)
	}
}
