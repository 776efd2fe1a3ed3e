package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertInstallation records a new installation or reactivates an existing
// one. GitHub may redeliver installation webhooks, so the write is keyed on
// the external installation id: an existing record only has its active flag
// flipped and uninstall timestamp cleared, never duplicating child rows.
func (d *DB) UpsertInstallation(login string, installationID int64, accountType string) (*InstallationOwner, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning upsert transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRow(
		`SELECT id FROM installation_owners WHERE installation_id = ?`, installationID,
	).Scan(&id)
	switch {
	case err == nil:
		_, err = tx.Exec(
			`UPDATE installation_owners SET active = 1, uninstalled_at = NULL, login = ?, account_type = ? WHERE id = ?`,
			login, accountType, id,
		)
		if err != nil {
			return nil, fmt.Errorf("reactivating installation: %w", err)
		}
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.Exec(
			`INSERT INTO installation_owners (installation_id, login, account_type) VALUES (?, ?, ?)`,
			installationID, login, accountType,
		)
		if err != nil {
			return nil, fmt.Errorf("inserting installation: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("getting installation id: %w", err)
		}
	default:
		return nil, fmt.Errorf("looking up installation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing upsert: %w", err)
	}
	return d.GetOwner(id)
}

// DeactivateInstallation soft-deletes an installation: the record is kept
// for audit history with active=0 and the uninstall timestamp set.
func (d *DB) DeactivateInstallation(installationID int64) error {
	res, err := d.db.Exec(
		`UPDATE installation_owners SET active = 0, uninstalled_at = ? WHERE installation_id = ?`,
		time.Now().UTC().Format(time.RFC3339), installationID,
	)
	if err != nil {
		return fmt.Errorf("deactivating installation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking deactivation result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetOwner retrieves an installation owner by internal id.
func (d *DB) GetOwner(id int64) (*InstallationOwner, error) {
	row := d.db.QueryRow(
		`SELECT id, installation_id, login, account_type, active, uninstalled_at, created_at
		 FROM installation_owners WHERE id = ?`, id,
	)
	return scanOwner(row)
}

// GetOwnerByInstallationID retrieves an installation owner by its external
// installation id.
func (d *DB) GetOwnerByInstallationID(installationID int64) (*InstallationOwner, error) {
	row := d.db.QueryRow(
		`SELECT id, installation_id, login, account_type, active, uninstalled_at, created_at
		 FROM installation_owners WHERE installation_id = ?`, installationID,
	)
	return scanOwner(row)
}

// GetOwnerByLogin retrieves an active installation owner by account login.
func (d *DB) GetOwnerByLogin(login string) (*InstallationOwner, error) {
	row := d.db.QueryRow(
		`SELECT id, installation_id, login, account_type, active, uninstalled_at, created_at
		 FROM installation_owners WHERE login = ? AND active = 1`, login,
	)
	return scanOwner(row)
}

// ListOwners returns all active installation owners ordered by login.
func (d *DB) ListOwners() ([]InstallationOwner, error) {
	rows, err := d.db.Query(
		`SELECT id, installation_id, login, account_type, active, uninstalled_at, created_at
		 FROM installation_owners WHERE active = 1 ORDER BY login`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing installation owners: %w", err)
	}
	defer rows.Close()

	var owners []InstallationOwner
	for rows.Next() {
		var o InstallationOwner
		var accountType, uninstalledAt sql.NullString
		var active int
		var createdAt string
		if err := rows.Scan(&o.ID, &o.InstallationID, &o.Login, &accountType, &active, &uninstalledAt, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning installation owner: %w", err)
		}
		o.AccountType = accountType.String
		o.Active = active != 0
		if uninstalledAt.Valid {
			t := parseStoredTime(uninstalledAt.String)
			o.UninstalledAt = &t
		}
		o.CreatedAt = parseStoredTime(createdAt)
		owners = append(owners, o)
	}
	return owners, rows.Err()
}

func scanOwner(row *sql.Row) (*InstallationOwner, error) {
	var o InstallationOwner
	var accountType, uninstalledAt sql.NullString
	var active int
	var createdAt string

	err := row.Scan(&o.ID, &o.InstallationID, &o.Login, &accountType, &active, &uninstalledAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning installation owner: %w", err)
	}

	o.AccountType = accountType.String
	o.Active = active != 0
	if uninstalledAt.Valid {
		t := parseStoredTime(uninstalledAt.String)
		o.UninstalledAt = &t
	}
	o.CreatedAt = parseStoredTime(createdAt)

	return &o, nil
}
