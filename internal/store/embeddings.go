package store

import (
	"fmt"
)

// InsertEmbedding stores one code snippet embedding for a repository.
func (d *DB) InsertEmbedding(repoID int64, path, snippet string, embedding []byte) error {
	if len(embedding) == 0 {
		return fmt.Errorf("empty embedding for %s", path)
	}
	_, err := d.db.Exec(
		`INSERT INTO code_embeddings (repo_id, path, snippet, embedding) VALUES (?, ?, ?, ?)`,
		repoID, path, snippet, embedding,
	)
	if err != nil {
		return fmt.Errorf("inserting embedding: %w", err)
	}
	return nil
}

// EmbeddingsForRepo returns all embeddings for exactly one repository.
// The repo_id equality filter is a multi-tenancy invariant: records from
// other repositories must never be visible to a caller.
func (d *DB) EmbeddingsForRepo(repoID int64) ([]CodeEmbedding, error) {
	rows, err := d.db.Query(
		`SELECT id, repo_id, path, snippet, embedding FROM code_embeddings WHERE repo_id = ?`,
		repoID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying embeddings: %w", err)
	}
	defer rows.Close()

	var out []CodeEmbedding
	for rows.Next() {
		var e CodeEmbedding
		if err := rows.Scan(&e.ID, &e.RepoID, &e.Path, &e.Snippet, &e.Embedding); err != nil {
			return nil, fmt.Errorf("scanning embedding: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ClearEmbeddingsForRepo deletes a repository's embedding index, used before
// a re-index pass so stale snippets do not linger.
func (d *DB) ClearEmbeddingsForRepo(repoID int64) error {
	_, err := d.db.Exec(`DELETE FROM code_embeddings WHERE repo_id = ?`, repoID)
	if err != nil {
		return fmt.Errorf("clearing embeddings: %w", err)
	}
	return nil
}
