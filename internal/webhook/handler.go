package webhook

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	gogithub "github.com/google/go-github/v60/github"

	"github.com/manicule/manicule/internal/queue"
	"github.com/manicule/manicule/internal/store"
)

// docBranchPrefix marks branches created by the publisher. PRs from these
// branches are ignored so the service never documents its own output.
const docBranchPrefix = "docs/update-"

// pullRequestActions are the PR webhook actions that trigger the pipeline.
var pullRequestActions = map[string]bool{
	"opened":      true,
	"reopened":    true,
	"synchronize": true,
}

// HandleWebhook receives GitHub App events. Signature verification runs
// against the raw body before any parsing. Misconfigured or irrelevant
// events answer 200 so GitHub does not retry them.
func (s *Server) HandleWebhook(c fiber.Ctx) error {
	body := c.Body()
	if !s.verifier.Verify(body, c.Get("X-Hub-Signature-256")) {
		s.logger.Warn("webhook signature verification failed")
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid signature"})
	}

	event := c.Get("X-GitHub-Event")
	switch event {
	case "installation":
		return s.handleInstallation(c, body)
	case "installation_repositories":
		return s.handleInstallationRepositories(c, body)
	case "pull_request":
		return s.handlePullRequest(c, body)
	case "ping":
		return c.JSON(fiber.Map{"status": "pong"})
	default:
		s.logger.Debug("ignoring webhook event", "event", event)
		return c.JSON(fiber.Map{"status": "ignored", "event": event})
	}
}

func (s *Server) handleInstallation(c fiber.Ctx, body []byte) error {
	var ev gogithub.InstallationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed installation event"})
	}

	inst := ev.GetInstallation()
	login := inst.GetAccount().GetLogin()

	switch ev.GetAction() {
	case "created":
		// A reinstall reactivates an existing row; only a first-time install
		// should kick off indexing below.
		_, lookupErr := s.store.GetOwnerByInstallationID(inst.GetID())
		firstInstall := errors.Is(lookupErr, store.ErrNotFound)

		owner, err := s.store.UpsertInstallation(login, inst.GetID(), inst.GetAccount().GetType())
		if err != nil {
			s.logger.Error("recording installation failed", "login", login, "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "recording installation failed"})
		}
		var recorded []*store.Repository
		for _, repo := range ev.Repositories {
			rec, err := s.store.EnsureRepository(owner.ID, login, repo.GetName())
			if err != nil {
				s.logger.Error("recording repository failed", "repo", repo.GetName(), "error", err)
				continue
			}
			recorded = append(recorded, rec)
		}

		// Single-repository installs are the hybrid shape: docs live next to
		// the code, so indexing can start before any roles are assigned. The
		// enqueue gates keep redeliveries from creating duplicate jobs.
		if firstInstall && len(recorded) == 1 {
			if _, err := s.queue.Enqueue(recorded[0], inst.GetID(), s.maxAttempts, true); err != nil &&
				!errors.Is(err, queue.ErrAlreadyIndexed) && !errors.Is(err, queue.ErrIndexingInProgress) {
				s.logger.Error("initial indexing enqueue failed", "repo", recorded[0].Name, "error", err)
			}
		}

		s.logger.Info("installation created", "login", login, "installation_id", inst.GetID(), "repos", len(ev.Repositories))
		return c.JSON(fiber.Map{"status": "ok"})

	case "deleted":
		if err := s.store.DeactivateInstallation(inst.GetID()); err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("deactivating installation failed", "installation_id", inst.GetID(), "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "deactivating installation failed"})
		}
		s.logger.Info("installation deleted", "login", login, "installation_id", inst.GetID())
		return c.JSON(fiber.Map{"status": "ok"})

	default:
		return c.JSON(fiber.Map{"status": "ignored", "action": ev.GetAction()})
	}
}

func (s *Server) handleInstallationRepositories(c fiber.Ctx, body []byte) error {
	var ev gogithub.InstallationRepositoriesEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed event"})
	}

	inst := ev.GetInstallation()
	owner, err := s.store.GetOwnerByInstallationID(inst.GetID())
	if err != nil {
		s.logger.Warn("repositories event for unknown installation", "installation_id", inst.GetID())
		return c.JSON(fiber.Map{"status": "skipped", "reason": "unknown installation"})
	}

	for _, repo := range ev.RepositoriesAdded {
		if _, err := s.store.EnsureRepository(owner.ID, owner.Login, repo.GetName()); err != nil {
			s.logger.Error("recording repository failed", "repo", repo.GetName(), "error", err)
		}
	}
	return c.JSON(fiber.Map{"status": "ok", "added": len(ev.RepositoriesAdded)})
}

func (s *Server) handlePullRequest(c fiber.Ctx, body []byte) error {
	var ev gogithub.PullRequestEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed pull_request event"})
	}

	if !pullRequestActions[ev.GetAction()] {
		return c.JSON(fiber.Map{"status": "ignored", "action": ev.GetAction()})
	}

	headRef := ev.GetPullRequest().GetHead().GetRef()
	sender := ev.GetSender().GetLogin()
	if strings.HasPrefix(headRef, docBranchPrefix) || strings.HasSuffix(sender, "[bot]") {
		s.logger.Info("skipping self-generated pull request", "head", headRef, "sender", sender)
		return c.JSON(fiber.Map{"status": "skipped", "reason": "generated pull request"})
	}

	installationID := ev.GetInstallation().GetID()
	ownerLogin := ev.GetRepo().GetOwner().GetLogin()
	repoName := ev.GetRepo().GetName()

	owner, err := s.store.GetOwnerByInstallationID(installationID)
	if err != nil {
		s.logger.Warn("pull request from unknown installation", "installation_id", installationID)
		return c.JSON(fiber.Map{"status": "skipped", "reason": "unknown installation"})
	}

	repo, err := s.store.EnsureRepository(owner.ID, ownerLogin, repoName)
	if err != nil {
		s.logger.Error("looking up repository failed", "repo", repoName, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "repository lookup failed"})
	}
	if !repo.Role.Tracked() {
		return c.JSON(fiber.Map{"status": "skipped", "reason": "repository not tracked"})
	}

	tgt, reason := s.resolveDocsTarget(owner, repo)
	if tgt == nil {
		s.logger.Error("docs target misconfigured", "repo", ownerLogin+"/"+repoName, "reason", reason)
		return c.JSON(fiber.Map{"status": "skipped", "reason": reason})
	}

	pr := &PullRequest{
		InstallationID: installationID,
		Owner:          ownerLogin,
		Repo:           repoName,
		Number:         ev.GetNumber(),
		Title:          ev.GetPullRequest().GetTitle(),
		RepoID:         repo.ID,
	}

	outcome, err := s.pipeline.Run(c.Context(), pr, tgt)
	if err != nil {
		s.logger.Error("documentation pipeline failed", "repo", pr.Owner+"/"+pr.Repo, "pr", pr.Number, "error", err)
		// Upstream publish failures are a gateway problem, not ours.
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "documentation pipeline failed"})
	}

	if outcome.Skipped != "" {
		return c.JSON(fiber.Map{"status": "skipped", "reason": outcome.Skipped})
	}
	return c.JSON(fiber.Map{
		"status":  "published",
		"pr_url":  outcome.Result.URL,
		"pr":      outcome.Result.Number,
		"path":    outcome.Result.Path,
	})
}

// resolveDocsTarget decides where the documentation update lands. A HYBRID
// repository documents itself under the docs root. A MAIN repository needs
// exactly one sibling repository marked DOCS.
func (s *Server) resolveDocsTarget(owner *store.InstallationOwner, repo *store.Repository) (*DocsTarget, string) {
	if repo.Role == store.RoleHybrid {
		return &DocsTarget{Owner: repo.Owner, Repo: repo.Name, DocsRoot: s.docsRoot}, ""
	}

	repos, err := s.store.ListRepositories(owner.ID)
	if err != nil {
		return nil, "listing repositories failed"
	}
	var docs []store.Repository
	for _, r := range repos {
		if r.Role == store.RoleDocs {
			docs = append(docs, r)
		}
	}
	if len(docs) != 1 {
		return nil, "mark exactly one repository as MAIN and one as DOCS"
	}
	return &DocsTarget{Owner: docs[0].Owner, Repo: docs[0].Name}, ""
}
