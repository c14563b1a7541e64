package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/schemaforge-labs/schemaforge/pkg/core"
)

// CreateVersion persists snapshot as the next version for scope and
// activates it. Deactivating all siblings and inserting the new row
// happen in one transaction, preserving the single-active invariant
// under concurrent provisioning attempts.
func (s *SQLiteStore) CreateVersion(scope core.Scope, snapshot *core.Schema, description string) (*core.SchemaVersion, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if snapshot == nil {
		return nil, fmt.Errorf("snapshot is nil")
	}

	snap, err := snapshot.Clone()
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var next int
	err = tx.QueryRow(
		`SELECT COALESCE(MAX(version), 0) + 1 FROM schema_versions WHERE project_id = ? AND user_id = ?`,
		scope.ProjectID, scope.UserID,
	).Scan(&next)
	if err != nil {
		return nil, fmt.Errorf("failed to determine next version: %w", err)
	}

	if _, err := tx.Exec(
		`UPDATE schema_versions SET is_active = 0 WHERE project_id = ? AND user_id = ? AND is_active = 1`,
		scope.ProjectID, scope.UserID,
	); err != nil {
		return nil, fmt.Errorf("failed to deactivate prior versions: %w", err)
	}

	// The stored snapshot always carries the row's version number, even
	// when a lost race forces the caller to retry with a stale candidate.
	snap.Version = next
	data, err := snap.CanonicalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	version := &core.SchemaVersion{
		ID:                generateID(),
		ProjectID:         scope.ProjectID,
		UserID:            scope.UserID,
		Version:           next,
		Snapshot:          snap,
		ChangeDescription: description,
		CreatedAt:         time.Now().UTC(),
		IsActive:          true,
	}

	if _, err := tx.Exec(
		`INSERT INTO schema_versions (id, project_id, user_id, version, snapshot, change_description, created_at, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 1)`,
		version.ID, version.ProjectID, version.UserID, version.Version,
		string(data), version.ChangeDescription, version.CreatedAt,
	); err != nil {
		// A unique (scope, version) collision means another writer won
		// the race for this version number.
		return nil, &core.ConcurrencyError{Scope: scope.String(), Op: "version activation", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit version: %w", err)
	}

	s.logger.Info("created schema version",
		"scope", scope.String(), "version", version.Version, "id", version.ID)
	return version, nil
}

// GetVersion retrieves a version by ID.
func (s *SQLiteStore) GetVersion(id string) (*core.SchemaVersion, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	return s.scanVersion(s.db.QueryRow(
		`SELECT id, project_id, user_id, version, snapshot, change_description, created_at, is_active
		 FROM schema_versions WHERE id = ?`, id,
	))
}

// GetActiveVersion retrieves the single active version for a scope.
// Returns core.ErrNoActiveVersion if the scope has none.
func (s *SQLiteStore) GetActiveVersion(scope core.Scope) (*core.SchemaVersion, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	v, err := s.scanVersion(s.db.QueryRow(
		`SELECT id, project_id, user_id, version, snapshot, change_description, created_at, is_active
		 FROM schema_versions WHERE project_id = ? AND user_id = ? AND is_active = 1`,
		scope.ProjectID, scope.UserID,
	))
	if errors.Is(err, core.ErrVersionNotFound) {
		return nil, core.ErrNoActiveVersion
	}
	return v, err
}

// ListVersions retrieves all versions for a scope, newest first.
func (s *SQLiteStore) ListVersions(scope core.Scope) ([]*core.SchemaVersion, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT id, project_id, user_id, version, snapshot, change_description, created_at, is_active
		 FROM schema_versions WHERE project_id = ? AND user_id = ? ORDER BY version DESC`,
		scope.ProjectID, scope.UserID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var versions []*core.SchemaVersion
	for rows.Next() {
		v, err := s.scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// RollbackToVersion returns a copy of the stored snapshot only. It does
// not activate anything: the caller must run the snapshot back through
// validation, compilation and provisioning and persist the result as a
// new version.
func (s *SQLiteStore) RollbackToVersion(id string) (*core.Schema, error) {
	v, err := s.GetVersion(id)
	if err != nil {
		return nil, err
	}
	return v.Snapshot.MustClone(), nil
}

// CompareVersions diffs two snapshots as a set difference over table
// names. Modified lists tables present in both whose canonical
// encodings differ; column-level rename detection is not attempted.
func (s *SQLiteStore) CompareVersions(aID, bID string) (*core.VersionDiff, error) {
	a, err := s.GetVersion(aID)
	if err != nil {
		return nil, err
	}
	b, err := s.GetVersion(bID)
	if err != nil {
		return nil, err
	}

	diff := &core.VersionDiff{Added: []string{}, Removed: []string{}, Modified: []string{}}

	aTables := make(map[string]*core.TableDefinition)
	for i := range a.Snapshot.Tables {
		aTables[a.Snapshot.Tables[i].Name] = &a.Snapshot.Tables[i]
	}

	for i := range b.Snapshot.Tables {
		t := &b.Snapshot.Tables[i]
		old, ok := aTables[t.Name]
		if !ok {
			diff.Added = append(diff.Added, t.Name)
			continue
		}
		delete(aTables, t.Name)
		oldJSON, err := json.Marshal(old)
		if err != nil {
			return nil, fmt.Errorf("failed to encode table %s: %w", t.Name, err)
		}
		newJSON, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("failed to encode table %s: %w", t.Name, err)
		}
		if string(oldJSON) != string(newJSON) {
			diff.Modified = append(diff.Modified, t.Name)
		}
	}

	// Whatever is left of a's tables was removed in b. Preserve a's
	// schema order for deterministic output.
	for i := range a.Snapshot.Tables {
		name := a.Snapshot.Tables[i].Name
		if _, ok := aTables[name]; ok {
			diff.Removed = append(diff.Removed, name)
		}
	}

	return diff, nil
}

// DeleteProject cascades deletion of a project's versions, traces and
// locks. This is the only path that removes decision traces.
func (s *SQLiteStore) DeleteProject(projectID string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"schema_versions", "decision_traces", "edit_locks"} {
		if _, err := tx.Exec(`DELETE FROM `+table+` WHERE project_id = ?`, projectID); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit project deletion: %w", err)
	}

	s.logger.Info("deleted project", "project_id", projectID)
	return nil
}

// rowScanner abstracts sql.Row and sql.Rows for scanVersion.
type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanVersion(row rowScanner) (*core.SchemaVersion, error) {
	v := &core.SchemaVersion{}
	var snapshot string
	var isActive int

	err := row.Scan(&v.ID, &v.ProjectID, &v.UserID, &v.Version, &snapshot,
		&v.ChangeDescription, &v.CreatedAt, &isActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrVersionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan version: %w", err)
	}

	v.Snapshot = &core.Schema{}
	if err := json.Unmarshal([]byte(snapshot), v.Snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot for version %s: %w", v.ID, err)
	}
	v.IsActive = isActive == 1
	return v, nil
}
