package webhook

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/manicule/manicule/internal/queue"
	"github.com/manicule/manicule/internal/store"
)

type startIndexingInput struct {
	Login string `json:"login"`
}

// StartIndexing enqueues an indexing job for the account's tracked
// repository. The account must be configured as either one MAIN plus one
// DOCS repository, or a single HYBRID repository.
func (s *Server) StartIndexing(c fiber.Ctx) error {
	var input startIndexingInput
	if err := c.Bind().Body(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if input.Login == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "login is required"})
	}

	owner, err := s.store.GetOwnerByLogin(input.Login)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "installation not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	repos, err := s.store.ListRepositories(owner.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	repo, hybrid, ok := indexableRepository(repos)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "mark exactly one repository as MAIN and one as DOCS",
		})
	}

	job, err := s.queue.Enqueue(repo, owner.InstallationID, s.maxAttempts, hybrid)
	if err != nil {
		switch {
		case errors.Is(err, queue.ErrAlreadyIndexed):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Already Indexed"})
		case errors.Is(err, queue.ErrIndexingInProgress):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Indexing already in progress"})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"job_id":     job.ID,
		"repository": repo.Owner + "/" + repo.Name,
	})
}

// indexableRepository picks the repository to index from the account's
// configuration: one HYBRID, or the MAIN of a MAIN+DOCS pair.
func indexableRepository(repos []store.Repository) (*store.Repository, bool, bool) {
	var mains, docs, hybrids []store.Repository
	for _, r := range repos {
		switch r.Role {
		case store.RoleMain:
			mains = append(mains, r)
		case store.RoleDocs:
			docs = append(docs, r)
		case store.RoleHybrid:
			hybrids = append(hybrids, r)
		}
	}

	if len(hybrids) == 1 && len(mains) == 0 && len(docs) == 0 {
		return &hybrids[0], true, true
	}
	if len(mains) == 1 && len(docs) == 1 && len(hybrids) == 0 {
		return &mains[0], false, true
	}
	return nil, false, false
}

// ListRepositories returns the repositories of one installation.
func (s *Server) ListRepositories(c fiber.Ctx) error {
	login := c.Query("login")
	if login == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "login query parameter is required"})
	}

	owner, err := s.store.GetOwnerByLogin(login)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "installation not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	repos, err := s.store.ListRepositories(owner.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if repos == nil {
		repos = []store.Repository{}
	}
	return c.JSON(repos)
}

type setRoleInput struct {
	Role string `json:"role"`
}

// SetRepositoryRole updates how a repository participates in the pipeline.
func (s *Server) SetRepositoryRole(c fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid repository id"})
	}

	var input setRoleInput
	if err := c.Bind().Body(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	role := store.RepoRole(input.Role)
	if !role.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "role must be MAIN, DOCS, HYBRID, or IGNORE"})
	}

	if err := s.store.SetRepositoryRole(id, role); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "repository not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	repo, err := s.store.GetRepository(id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(repo)
}

// ListJobs returns indexing jobs, optionally filtered by status.
func (s *Server) ListJobs(c fiber.Ctx) error {
	status := store.JobStatus(c.Query("status", string(store.JobPending)))
	switch status {
	case store.JobPending, store.JobRunning, store.JobDone, store.JobDead:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "status must be pending, running, done, or dead"})
	}

	jobs, err := s.store.ListJobs(status)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if jobs == nil {
		jobs = []store.IndexJob{}
	}
	return c.JSON(jobs)
}
