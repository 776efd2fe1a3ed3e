package store

import "time"

// Registry defines the installation/repository persistence operations
// consumed by the webhook orchestrator and management API. It is satisfied
// by *DB and can be replaced with a fake for testing.
type Registry interface {
	UpsertInstallation(login string, installationID int64, accountType string) (*InstallationOwner, error)
	DeactivateInstallation(installationID int64) error
	GetOwnerByInstallationID(installationID int64) (*InstallationOwner, error)
	GetOwnerByLogin(login string) (*InstallationOwner, error)

	EnsureRepository(ownerID int64, owner, name string) (*Repository, error)
	GetRepository(id int64) (*Repository, error)
	ListRepositories(ownerID int64) ([]Repository, error)
	SetRepositoryRole(repoID int64, role RepoRole) error
	SetIndexStatus(repoID int64, status IndexStatus, errMsg string) error
}

// JobStore defines the durable queue operations shared by the enqueue side
// and the worker pool.
type JobStore interface {
	InsertJob(job *IndexJob) error
	ClaimJob(now time.Time) (*IndexJob, error)
	ReclaimStaleJobs(now time.Time, lease time.Duration) (int, error)
	CompleteJob(id string) error
	RescheduleJob(id string, runAfter time.Time, lastError string) error
	DeadLetterJob(id string, lastError string) error
	HasActiveJob(repoID int64) (bool, error)
	ListJobs(status JobStatus) ([]IndexJob, error)
}

// EmbeddingStore defines the per-repository vector index operations used by
// the context retriever and the built-in indexer.
type EmbeddingStore interface {
	InsertEmbedding(repoID int64, path, snippet string, embedding []byte) error
	EmbeddingsForRepo(repoID int64) ([]CodeEmbedding, error)
	ClearEmbeddingsForRepo(repoID int64) error
}

// Compile-time checks that *DB satisfies the store interfaces.
var (
	_ Registry       = (*DB)(nil)
	_ JobStore       = (*DB)(nil)
	_ EmbeddingStore = (*DB)(nil)
)
