package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// RepoRole describes how a repository participates in documentation automation.
type RepoRole string

const (
	RoleMain   RepoRole = "MAIN"   // source repository whose PRs drive doc updates
	RoleDocs   RepoRole = "DOCS"   // sibling repository receiving generated docs
	RoleHybrid RepoRole = "HYBRID" // source and docs live in the same repository
	RoleIgnore RepoRole = "IGNORE" // not tracked
)

// Valid reports whether the role is one of the known values.
func (r RepoRole) Valid() bool {
	switch r {
	case RoleMain, RoleDocs, RoleHybrid, RoleIgnore:
		return true
	}
	return false
}

// Tracked reports whether pull requests on a repository with this role
// drive the documentation pipeline.
func (r RepoRole) Tracked() bool {
	return r == RoleMain || r == RoleHybrid
}

// IndexStatus is the repository indexing state machine.
type IndexStatus string

const (
	StatusNone        IndexStatus = ""
	StatusDownloading IndexStatus = "DOWNLOADING"
	StatusDownloaded  IndexStatus = "DOWNLOADED"
	StatusIndexing    IndexStatus = "INDEXING"
	StatusCompleted   IndexStatus = "COMPLETED"
	StatusFailed      IndexStatus = "FAILED"
)

// Valid reports whether the status is one of the known values.
func (s IndexStatus) Valid() bool {
	switch s {
	case StatusNone, StatusDownloading, StatusDownloaded, StatusIndexing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal step.
// Forward-only: none -> DOWNLOADING -> DOWNLOADED -> INDEXING -> COMPLETED.
// Any in-flight state may fail; FAILED may be requeued via DOWNLOADING.
// COMPLETED is terminal until an explicit reset.
func (s IndexStatus) CanTransition(next IndexStatus) bool {
	switch s {
	case StatusNone:
		return next == StatusDownloading || next == StatusFailed
	case StatusDownloading:
		return next == StatusDownloaded || next == StatusFailed
	case StatusDownloaded:
		return next == StatusIndexing || next == StatusFailed
	case StatusIndexing:
		return next == StatusCompleted || next == StatusFailed
	case StatusFailed:
		return next == StatusDownloading
	case StatusCompleted:
		return false
	}
	return false
}

// InstallationOwner is one connected customer account.
type InstallationOwner struct {
	ID             int64      `json:"id"`
	InstallationID int64      `json:"installation_id"`
	Login          string     `json:"login"`
	AccountType    string     `json:"account_type"`
	Active         bool       `json:"active"`
	UninstalledAt  *time.Time `json:"uninstalled_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Repository is one tracked repository under an installation.
type Repository struct {
	ID            int64       `json:"id"`
	OwnerID       int64       `json:"owner_id"`
	Owner         string      `json:"owner"`
	Name          string      `json:"name"`
	Role          RepoRole    `json:"role"`
	IndexStatus   IndexStatus `json:"index_status"`
	LastIndexedAt *time.Time  `json:"last_indexed_at,omitempty"`
	ErrorMessage  string      `json:"error_message,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// JobStatus is the lifecycle state of a durable indexing job.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobDead    JobStatus = "dead"
)

// IndexJob is a durable work item for the repository-indexing pipeline.
// The same struct is used on the enqueue and dequeue sides.
type IndexJob struct {
	ID             string    `json:"id"`
	InstallationID int64     `json:"installation_id"`
	Owner          string    `json:"owner"`
	Repo           string    `json:"repo"`
	RepoID         int64     `json:"repo_id"`
	OwnerID        int64     `json:"owner_id"`
	Hybrid         bool      `json:"hybrid"`
	Status         JobStatus `json:"status"`
	Attempts       int       `json:"attempts"`
	MaxAttempts    int       `json:"max_attempts"`
	RunAfter       time.Time `json:"run_after"`
	LastError      string    `json:"last_error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// CodeEmbedding is one indexed code snippet with its vector embedding.
type CodeEmbedding struct {
	ID        int64
	RepoID    int64
	Path      string
	Snippet   string
	Embedding []byte
}
