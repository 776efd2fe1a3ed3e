package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/manicule/manicule/internal/indexer"
	"github.com/manicule/manicule/internal/pubsub"
	"github.com/manicule/manicule/internal/retry"
	"github.com/manicule/manicule/internal/store"
)

const (
	defaultWorkers      = 2
	defaultPollInterval = 10 * time.Second
	// defaultLeaseWindow bounds how long a job may sit in running before it
	// is treated as abandoned by a dead worker and handed back to the queue.
	defaultLeaseWindow = 15 * time.Minute
)

// DeadLetterFunc is called when a job exhausts its attempts.
type DeadLetterFunc func(job *store.IndexJob, lastError string)

// Pool claims indexing jobs and drives each through download, index, and
// completion. Claims go through the store's single-writer transaction, so
// running multiple workers never double-processes a job.
type Pool struct {
	store        Stores
	downloader   Downloader
	runner       indexer.Runner
	broker       *pubsub.Broker[store.IndexJob]
	workers      int
	pollInterval time.Duration
	leaseWindow  time.Duration
	onDeadLetter DeadLetterFunc
	logger       *slog.Logger
	// now is swappable for tests.
	now func() time.Time
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithWorkers sets the number of concurrent workers.
func WithWorkers(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithPollInterval sets how often idle workers re-check the queue. Broker
// wakeups make this a backstop for jobs scheduled in the future.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

// WithLeaseWindow sets how long a running job may go without progress before
// it is reclaimed for another worker.
func WithLeaseWindow(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.leaseWindow = d
		}
	}
}

// WithDeadLetterFunc registers a callback for permanently failed jobs.
func WithDeadLetterFunc(fn DeadLetterFunc) PoolOption {
	return func(p *Pool) { p.onDeadLetter = fn }
}

// NewPool creates a worker pool. The broker is optional.
func NewPool(st Stores, downloader Downloader, runner indexer.Runner, broker *pubsub.Broker[store.IndexJob], logger *slog.Logger, opts ...PoolOption) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		store:        st,
		downloader:   downloader,
		runner:       runner,
		broker:       broker,
		workers:      defaultWorkers,
		pollInterval: defaultPollInterval,
		leaseWindow:  defaultLeaseWindow,
		logger:       logger,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run blocks processing jobs until the context is cancelled.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.workerLoop(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (p *Pool) workerLoop(ctx context.Context, id int) {
	logger := p.logger.With("worker", id)

	var wake <-chan pubsub.Event[store.IndexJob]
	if p.broker != nil {
		wake = p.broker.Subscribe(ctx)
	}

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}

		if n, err := p.store.ReclaimStaleJobs(p.now().UTC(), p.leaseWindow); err != nil {
			logger.Error("reclaiming stale jobs failed", "error", err)
		} else if n > 0 {
			logger.Warn("reclaimed abandoned running jobs", "count", n)
		}

		job, err := p.store.ClaimJob(p.now().UTC())
		if err == nil {
			p.process(ctx, logger, job)
			// Drain the queue before going idle.
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			logger.Error("claiming job failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-wake:
		}
	}
}

// process runs one claimed job through the indexing state machine. Failures
// reschedule the job with backoff until attempts run out, then dead-letter it.
func (p *Pool) process(ctx context.Context, logger *slog.Logger, job *store.IndexJob) {
	logger = logger.With("job_id", job.ID, "repo", job.Owner+"/"+job.Repo, "attempt", job.Attempts)
	logger.Info("indexing job started")

	if err := p.runJob(ctx, job); err != nil {
		p.fail(logger, job, err)
		return
	}

	if err := p.store.CompleteJob(job.ID); err != nil {
		logger.Error("marking job done failed", "error", err)
		return
	}
	logger.Info("indexing job completed")
}

func (p *Pool) runJob(ctx context.Context, job *store.IndexJob) error {
	if err := p.store.SetIndexStatus(job.RepoID, store.StatusDownloading, ""); err != nil {
		return fmt.Errorf("entering download state: %w", err)
	}

	path, err := p.downloader.Download(ctx, job)
	if err != nil {
		return fmt.Errorf("downloading snapshot: %w", err)
	}
	if err := p.store.SetIndexStatus(job.RepoID, store.StatusDownloaded, ""); err != nil {
		return fmt.Errorf("entering downloaded state: %w", err)
	}

	if err := p.store.SetIndexStatus(job.RepoID, store.StatusIndexing, ""); err != nil {
		return fmt.Errorf("entering indexing state: %w", err)
	}
	if err := p.runner.Run(ctx, job.RepoID, path); err != nil {
		return fmt.Errorf("indexing snapshot: %w", err)
	}

	if err := p.store.SetIndexStatus(job.RepoID, store.StatusCompleted, ""); err != nil {
		return fmt.Errorf("entering completed state: %w", err)
	}
	return nil
}

func (p *Pool) fail(logger *slog.Logger, job *store.IndexJob, jobErr error) {
	msg := jobErr.Error()

	if err := p.store.SetIndexStatus(job.RepoID, store.StatusFailed, msg); err != nil {
		logger.Error("recording failed index status", "error", err)
	}

	if job.Attempts >= job.MaxAttempts {
		logger.Error("indexing job dead-lettered", "error", msg)
		if err := p.store.DeadLetterJob(job.ID, msg); err != nil {
			logger.Error("dead-lettering job failed", "error", err)
		}
		if p.onDeadLetter != nil {
			p.onDeadLetter(job, msg)
		}
		return
	}

	runAfter := p.now().UTC().Add(retry.Backoff(job.Attempts - 1))
	logger.Warn("indexing job failed, rescheduling", "error", msg, "run_after", runAfter)
	if err := p.store.RescheduleJob(job.ID, runAfter, msg); err != nil {
		logger.Error("rescheduling job failed", "error", err)
	}
}
