// Package webhook hosts the HTTP surface: the GitHub App webhook receiver,
// the management API, and the documentation pipeline they drive.
package webhook

import (
	"log/slog"

	"github.com/gofiber/fiber/v3"

	"github.com/manicule/manicule/internal/ghapp"
	"github.com/manicule/manicule/internal/queue"
	"github.com/manicule/manicule/internal/store"
)

// Store is the persistence surface the HTTP layer needs.
type Store interface {
	store.Registry
	store.JobStore
}

// Enqueuer creates indexing jobs. Satisfied by *queue.Queue.
type Enqueuer interface {
	Enqueue(repo *store.Repository, installationID int64, maxAttempts int, hybrid bool) (*store.IndexJob, error)
}

var _ Enqueuer = (*queue.Queue)(nil)

// Server hosts the webhook receiver and management API.
type Server struct {
	app      *fiber.App
	store    Store
	queue    Enqueuer
	pipeline *Pipeline
	verifier *ghapp.Verifier

	docsRoot    string
	maxAttempts int
	logger      *slog.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithDocsRoot sets the documentation directory for hybrid repositories.
func WithDocsRoot(root string) ServerOption {
	return func(s *Server) { s.docsRoot = root }
}

// WithMaxAttempts sets the attempt budget for enqueued indexing jobs.
func WithMaxAttempts(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// NewServer wires routes onto a fresh fiber app.
func NewServer(st Store, q Enqueuer, pipeline *Pipeline, verifier *ghapp.Verifier, logger *slog.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		app: fiber.New(fiber.Config{
			AppName: "Manicule",
		}),
		store:       st,
		queue:       q,
		pipeline:    pipeline,
		verifier:    verifier,
		docsRoot:    "docs",
		maxAttempts: 3,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/health", s.Health)
	s.app.Post("/github/webhook", s.HandleWebhook)

	api := s.app.Group("/api")
	api.Post("/indexing/start", s.StartIndexing)
	api.Get("/repositories", s.ListRepositories)
	api.Post("/repositories/:id/role", s.SetRepositoryRole)
	api.Get("/jobs", s.ListJobs)
}

// App exposes the underlying fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves until the listener fails or Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.logger.Info("http server listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// Health reports liveness.
func (s *Server) Health(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "service": "manicule"})
}
