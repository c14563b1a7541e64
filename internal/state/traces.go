package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/schemaforge-labs/schemaforge/pkg/core"
)

// AppendTrace records one decision trace. Traces are append-only; no
// update or single-row delete path exists.
func (s *SQLiteStore) AppendTrace(trace *core.DecisionTrace) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if trace == nil {
		return fmt.Errorf("trace is nil")
	}

	id := trace.ID
	if id == "" {
		id = generateID()
	}

	before, err := encodeSnapshot(trace.SchemaBefore)
	if err != nil {
		return fmt.Errorf("failed to encode before snapshot: %w", err)
	}
	after, err := encodeSnapshot(trace.SchemaAfter)
	if err != nil {
		return fmt.Errorf("failed to encode after snapshot: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO decision_traces (id, project_id, user_id, intent, action, precedent, version, schema_before, schema_after, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, trace.ProjectID, trace.UserID, trace.Intent, trace.Action,
		nullString(trace.Precedent), trace.Version, before, after, trace.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append trace: %w", err)
	}
	return nil
}

// ListTraces retrieves traces for a scope, newest first. A limit of
// zero or less returns all traces.
func (s *SQLiteStore) ListTraces(scope core.Scope, limit int) ([]*core.DecisionTrace, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	query := `SELECT id, project_id, user_id, intent, action, precedent, version, schema_before, schema_after, created_at
		 FROM decision_traces WHERE project_id = ? AND user_id = ? ORDER BY created_at DESC, id DESC`
	args := []any{scope.ProjectID, scope.UserID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list traces: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var traces []*core.DecisionTrace
	for rows.Next() {
		t := &core.DecisionTrace{}
		var precedent, before, after sql.NullString
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.UserID, &t.Intent, &t.Action,
			&precedent, &t.Version, &before, &after, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan trace: %w", err)
		}
		t.Precedent = precedent.String

		if t.SchemaBefore, err = decodeSnapshot(before); err != nil {
			return nil, fmt.Errorf("failed to decode before snapshot for trace %s: %w", t.ID, err)
		}
		if t.SchemaAfter, err = decodeSnapshot(after); err != nil {
			return nil, fmt.Errorf("failed to decode after snapshot for trace %s: %w", t.ID, err)
		}
		traces = append(traces, t)
	}
	return traces, rows.Err()
}

func encodeSnapshot(s *core.Schema) (sql.NullString, error) {
	if s == nil {
		return sql.NullString{}, nil
	}
	data, err := s.CanonicalJSON()
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeSnapshot(v sql.NullString) (*core.Schema, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	s := &core.Schema{}
	if err := json.Unmarshal([]byte(v.String), s); err != nil {
		return nil, err
	}
	return s, nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
