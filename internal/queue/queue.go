// Package queue manages durable indexing jobs: enqueue with idempotency
// guards, and a worker pool that downloads repository snapshots and drives
// them through the indexing state machine.
package queue

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/manicule/manicule/internal/pubsub"
	"github.com/manicule/manicule/internal/store"
)

var (
	// ErrAlreadyIndexed is returned when the repository's index is already
	// complete and no re-index was requested.
	ErrAlreadyIndexed = errors.New("repository already indexed")

	// ErrIndexingInProgress is returned when a job for the repository is
	// already pending or running.
	ErrIndexingInProgress = errors.New("indexing already in progress")
)

// Stores is the persistence surface the queue needs.
type Stores interface {
	store.Registry
	store.JobStore
}

// Queue enqueues indexing jobs and wakes the worker pool.
type Queue struct {
	store  Stores
	broker *pubsub.Broker[store.IndexJob]
	logger *slog.Logger
}

// NewQueue creates a Queue. The broker is optional; without it workers rely
// on polling alone.
func NewQueue(st Stores, broker *pubsub.Broker[store.IndexJob], logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{store: st, broker: broker, logger: logger}
}

// Enqueue creates a durable indexing job for the repository and wakes a
// worker. It refuses to enqueue when the repository is already indexed or a
// job is already in flight, so webhook redeliveries and double-clicked
// triggers stay idempotent.
func (q *Queue) Enqueue(repo *store.Repository, installationID int64, maxAttempts int, hybrid bool) (*store.IndexJob, error) {
	if repo.IndexStatus == store.StatusCompleted {
		return nil, ErrAlreadyIndexed
	}

	active, err := q.store.HasActiveJob(repo.ID)
	if err != nil {
		return nil, fmt.Errorf("checking active jobs: %w", err)
	}
	if active {
		return nil, ErrIndexingInProgress
	}

	job := &store.IndexJob{
		ID:             uuid.NewString(),
		InstallationID: installationID,
		Owner:          repo.Owner,
		Repo:           repo.Name,
		RepoID:         repo.ID,
		OwnerID:        repo.OwnerID,
		Hybrid:         hybrid,
		MaxAttempts:    maxAttempts,
		RunAfter:       time.Now().UTC(),
	}
	if err := q.store.InsertJob(job); err != nil {
		return nil, fmt.Errorf("inserting job: %w", err)
	}

	q.logger.Info("indexing job enqueued",
		"job_id", job.ID,
		"repo", repo.Owner+"/"+repo.Name,
		"installation_id", installationID)

	if q.broker != nil {
		q.broker.Publish(pubsub.Enqueued, *job)
	}
	return job, nil
}
