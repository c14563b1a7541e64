package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/schemaforge-labs/schemaforge/pkg/core"
)

// AcquireLock claims the edit lock for a scope. A live lock held by
// anyone (the requester included) is a conflict; expired locks are
// claimable by any owner. Returns an opaque token the holder must
// present to renew or release.
func (s *SQLiteStore) AcquireLock(scope core.Scope, owner string, ttl time.Duration) (string, error) {
	if s.db == nil {
		return "", fmt.Errorf("database not opened")
	}

	now := time.Now().UTC()
	token := generateID()

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var holder string
	var expiresAt time.Time
	err = tx.QueryRow(
		`SELECT owner, expires_at FROM edit_locks WHERE project_id = ? AND user_id = ?`,
		scope.ProjectID, scope.UserID,
	).Scan(&holder, &expiresAt)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.Exec(
			`INSERT INTO edit_locks (project_id, user_id, owner, token, expires_at) VALUES (?, ?, ?, ?, ?)`,
			scope.ProjectID, scope.UserID, owner, token, now.Add(ttl),
		); err != nil {
			return "", fmt.Errorf("failed to insert lock: %w", err)
		}
	case err != nil:
		return "", fmt.Errorf("failed to query lock: %w", err)
	case expiresAt.After(now):
		return "", &core.ConcurrencyError{
			Scope: scope.String(),
			Op:    "acquire edit lock",
			Err:   fmt.Errorf("%w by %s until %s", core.ErrLockHeld, holder, expiresAt.Format(time.RFC3339)),
		}
	default:
		// Expired row: claim it in place.
		if _, err := tx.Exec(
			`UPDATE edit_locks SET owner = ?, token = ?, expires_at = ? WHERE project_id = ? AND user_id = ?`,
			owner, token, now.Add(ttl), scope.ProjectID, scope.UserID,
		); err != nil {
			return "", fmt.Errorf("failed to claim expired lock: %w", err)
		}
		s.logger.Debug("claimed expired edit lock",
			"scope", scope.String(), "previous_owner", holder, "owner", owner)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit lock acquisition: %w", err)
	}
	return token, nil
}

// RenewLock extends a held lock's expiry. Fails if the token no longer
// identifies a live lock, which means the holder lost it to expiry.
func (s *SQLiteStore) RenewLock(token string, ttl time.Duration) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	now := time.Now().UTC()
	res, err := s.db.Exec(
		`UPDATE edit_locks SET expires_at = ? WHERE token = ? AND expires_at > ?`,
		now.Add(ttl), token, now,
	)
	if err != nil {
		return fmt.Errorf("failed to renew lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to renew lock: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("lock token %s is no longer held", token)
	}
	return nil
}

// ReleaseLock drops a held lock. Releasing an unknown or already
// expired token is a no-op.
func (s *SQLiteStore) ReleaseLock(token string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if _, err := s.db.Exec(`DELETE FROM edit_locks WHERE token = ?`, token); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
