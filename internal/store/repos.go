package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const repoColumns = `id, owner_id, owner, name, role, index_status, last_indexed_at, error_message, created_at`

// EnsureRepository inserts a repository record if it does not already exist
// and returns the stored row. Safe against webhook redelivery: the unique
// (owner_id, owner, name) constraint makes repeated calls idempotent.
func (d *DB) EnsureRepository(ownerID int64, owner, name string) (*Repository, error) {
	_, err := d.db.Exec(
		`INSERT INTO repositories (owner_id, owner, name) VALUES (?, ?, ?)
		 ON CONFLICT(owner_id, owner, name) DO NOTHING`,
		ownerID, owner, name,
	)
	if err != nil {
		return nil, fmt.Errorf("ensuring repository: %w", err)
	}
	return d.FindRepository(ownerID, owner, name)
}

// GetRepository retrieves a repository by internal id.
func (d *DB) GetRepository(id int64) (*Repository, error) {
	row := d.db.QueryRow(
		`SELECT `+repoColumns+` FROM repositories WHERE id = ?`, id,
	)
	return scanRepository(row)
}

// FindRepository retrieves a repository by owner id and owner/name pair.
func (d *DB) FindRepository(ownerID int64, owner, name string) (*Repository, error) {
	row := d.db.QueryRow(
		`SELECT `+repoColumns+` FROM repositories WHERE owner_id = ? AND owner = ? AND name = ?`,
		ownerID, owner, name,
	)
	return scanRepository(row)
}

// ListRepositories returns all repositories belonging to an installation owner.
func (d *DB) ListRepositories(ownerID int64) ([]Repository, error) {
	rows, err := d.db.Query(
		`SELECT `+repoColumns+` FROM repositories WHERE owner_id = ? ORDER BY id`, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing repositories: %w", err)
	}
	defer rows.Close()

	var repos []Repository
	for rows.Next() {
		r, err := scanRepositoryRows(rows)
		if err != nil {
			return nil, err
		}
		repos = append(repos, *r)
	}
	return repos, rows.Err()
}

// SetRepositoryRole updates the role of a repository. Roles are only ever
// changed via this explicit operation, never by the indexing worker.
func (d *DB) SetRepositoryRole(repoID int64, role RepoRole) error {
	if !role.Valid() {
		return fmt.Errorf("invalid repository role %q", role)
	}
	res, err := d.db.Exec(`UPDATE repositories SET role = ? WHERE id = ?`, string(role), repoID)
	if err != nil {
		return fmt.Errorf("setting repository role: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking role update: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetIndexStatus advances the repository indexing state machine. The
// transition is validated against the current stored status; illegal moves
// (e.g. COMPLETED back to DOWNLOADING without a failure) are rejected.
// Transitioning to COMPLETED refreshes last_indexed_at and clears any prior
// error; transitioning to FAILED records errMsg.
func (d *DB) SetIndexStatus(repoID int64, status IndexStatus, errMsg string) error {
	if !status.Valid() {
		return fmt.Errorf("invalid index status %q", status)
	}

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning status transaction: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRow(`SELECT index_status FROM repositories WHERE id = ?`, repoID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("reading current index status: %w", err)
	}

	if !IndexStatus(current).CanTransition(status) {
		return fmt.Errorf("illegal index status transition %q -> %q for repository %d", current, status, repoID)
	}

	switch status {
	case StatusCompleted:
		_, err = tx.Exec(
			`UPDATE repositories SET index_status = ?, last_indexed_at = ?, error_message = NULL WHERE id = ?`,
			string(status), time.Now().UTC().Format(time.RFC3339), repoID,
		)
	case StatusFailed:
		_, err = tx.Exec(
			`UPDATE repositories SET index_status = ?, error_message = ? WHERE id = ?`,
			string(status), errMsg, repoID,
		)
	default:
		_, err = tx.Exec(
			`UPDATE repositories SET index_status = ? WHERE id = ?`,
			string(status), repoID,
		)
	}
	if err != nil {
		return fmt.Errorf("updating index status: %w", err)
	}

	return tx.Commit()
}

func scanRepository(row *sql.Row) (*Repository, error) {
	var r Repository
	var role, status string
	var lastIndexed, errMsg sql.NullString
	var createdAt string

	err := row.Scan(&r.ID, &r.OwnerID, &r.Owner, &r.Name, &role, &status, &lastIndexed, &errMsg, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning repository: %w", err)
	}

	r.Role = RepoRole(role)
	r.IndexStatus = IndexStatus(status)
	if lastIndexed.Valid {
		t := parseStoredTime(lastIndexed.String)
		r.LastIndexedAt = &t
	}
	r.ErrorMessage = errMsg.String
	r.CreatedAt = parseStoredTime(createdAt)

	return &r, nil
}

func scanRepositoryRows(rows *sql.Rows) (*Repository, error) {
	var r Repository
	var role, status string
	var lastIndexed, errMsg sql.NullString
	var createdAt string

	err := rows.Scan(&r.ID, &r.OwnerID, &r.Owner, &r.Name, &role, &status, &lastIndexed, &errMsg, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("scanning repository: %w", err)
	}

	r.Role = RepoRole(role)
	r.IndexStatus = IndexStatus(status)
	if lastIndexed.Valid {
		t := parseStoredTime(lastIndexed.String)
		r.LastIndexedAt = &t
	}
	r.ErrorMessage = errMsg.String
	r.CreatedAt = parseStoredTime(createdAt)

	return &r, nil
}
