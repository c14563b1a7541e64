// Package refine drives the conversational schema refinement loop: a
// session state machine over the collaborator boundary, and a pure
// reducer that applies collaborator changesets to schema snapshots.
package refine

import (
	"fmt"

	"github.com/schemaforge-labs/schemaforge/pkg/core"
)

// Apply applies a changeset to a schema and returns the resulting
// snapshot. The input schema is never mutated; entries apply in order
// against the accumulating result, and the first invalid entry aborts
// the whole changeset.
func Apply(schema *core.Schema, changes []core.Change) (*core.Schema, error) {
	out, err := schema.Clone()
	if err != nil {
		return nil, err
	}

	for i, c := range changes {
		if err := applyChange(out, c); err != nil {
			return nil, fmt.Errorf("change %d (%s %s): %w", i, c.Op, c.Target, err)
		}
	}
	return out, nil
}

func applyChange(s *core.Schema, c core.Change) error {
	if c.Table == "" {
		return fmt.Errorf("missing table name")
	}

	switch c.Target {
	case core.TargetTable:
		return applyTableChange(s, c)
	case core.TargetColumn:
		return applyColumnChange(s, c)
	case core.TargetRelationship:
		return applyRelationshipChange(s, c)
	case core.TargetUIHints:
		return applyUIHintsChange(s, c)
	default:
		return fmt.Errorf("unknown target %q", c.Target)
	}
}

func applyTableChange(s *core.Schema, c core.Change) error {
	switch c.Op {
	case core.OpAdd:
		if c.TableDef == nil {
			return fmt.Errorf("missing table_def payload")
		}
		if c.TableDef.Name != c.Table {
			return fmt.Errorf("table_def name %q does not match table %q", c.TableDef.Name, c.Table)
		}
		if _, ok := s.Table(c.Table); ok {
			return fmt.Errorf("table %q already exists", c.Table)
		}
		s.Tables = append(s.Tables, *c.TableDef)
		return nil

	case core.OpModify:
		if c.TableDef == nil {
			return fmt.Errorf("missing table_def payload")
		}
		for i := range s.Tables {
			if s.Tables[i].Name == c.Table {
				s.Tables[i] = *c.TableDef
				s.Tables[i].Name = c.Table
				return nil
			}
		}
		return fmt.Errorf("table %q not found", c.Table)

	case core.OpRemove:
		for i := range s.Tables {
			if s.Tables[i].Name == c.Table {
				s.Tables = append(s.Tables[:i], s.Tables[i+1:]...)
				dropTableRelationships(s, c.Table)
				return nil
			}
		}
		return fmt.Errorf("table %q not found", c.Table)

	default:
		return fmt.Errorf("unknown op %q", c.Op)
	}
}

func applyColumnChange(s *core.Schema, c core.Change) error {
	table, ok := s.Table(c.Table)
	if !ok {
		return fmt.Errorf("table %q not found", c.Table)
	}
	if c.Column == "" {
		return fmt.Errorf("missing column name")
	}
	// Audit columns are structural; no changeset may touch them.
	if core.IsAuditColumn(c.Column) {
		return fmt.Errorf("column %q is an audit column and cannot be changed", c.Column)
	}

	switch c.Op {
	case core.OpAdd:
		if c.ColumnDef == nil {
			return fmt.Errorf("missing column_def payload")
		}
		if c.ColumnDef.Name != c.Column {
			return fmt.Errorf("column_def name %q does not match column %q", c.ColumnDef.Name, c.Column)
		}
		if table.HasColumn(c.Column) {
			return fmt.Errorf("column %q already exists on table %q", c.Column, c.Table)
		}
		table.Columns = append(table.Columns, *c.ColumnDef)
		return nil

	case core.OpModify:
		if c.ColumnDef == nil {
			return fmt.Errorf("missing column_def payload")
		}
		for i := range table.Columns {
			if table.Columns[i].Name == c.Column {
				table.Columns[i] = *c.ColumnDef
				table.Columns[i].Name = c.Column
				return nil
			}
		}
		return fmt.Errorf("column %q not found on table %q", c.Column, c.Table)

	case core.OpRemove:
		for i := range table.Columns {
			if table.Columns[i].Name == c.Column {
				table.Columns = append(table.Columns[:i], table.Columns[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("column %q not found on table %q", c.Column, c.Table)

	default:
		return fmt.Errorf("unknown op %q", c.Op)
	}
}

func applyRelationshipChange(s *core.Schema, c core.Change) error {
	if c.Relationship == nil {
		return fmt.Errorf("missing relationship payload")
	}
	rel := *c.Relationship
	if rel.FromTable != c.Table {
		return fmt.Errorf("relationship from_table %q does not match table %q", rel.FromTable, c.Table)
	}

	switch c.Op {
	case core.OpAdd:
		for _, existing := range s.Relationships {
			if existing.FromTable == rel.FromTable && existing.FromColumn == rel.FromColumn {
				return fmt.Errorf("relationship from %s.%s already exists", rel.FromTable, rel.FromColumn)
			}
		}
		s.Relationships = append(s.Relationships, rel)
		return nil

	case core.OpModify:
		for i := range s.Relationships {
			if s.Relationships[i].FromTable == rel.FromTable && s.Relationships[i].FromColumn == rel.FromColumn {
				s.Relationships[i] = rel
				return nil
			}
		}
		return fmt.Errorf("relationship from %s.%s not found", rel.FromTable, rel.FromColumn)

	case core.OpRemove:
		for i := range s.Relationships {
			if s.Relationships[i].FromTable == rel.FromTable && s.Relationships[i].FromColumn == rel.FromColumn {
				s.Relationships = append(s.Relationships[:i], s.Relationships[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("relationship from %s.%s not found", rel.FromTable, rel.FromColumn)

	default:
		return fmt.Errorf("unknown op %q", c.Op)
	}
}

func applyUIHintsChange(s *core.Schema, c core.Change) error {
	table, ok := s.Table(c.Table)
	if !ok {
		return fmt.Errorf("table %q not found", c.Table)
	}

	switch c.Op {
	case core.OpAdd, core.OpModify:
		if c.UIHints == nil {
			return fmt.Errorf("missing ui_hints payload")
		}
		table.UIHints = c.UIHints
		return nil
	case core.OpRemove:
		table.UIHints = nil
		return nil
	default:
		return fmt.Errorf("unknown op %q", c.Op)
	}
}

// dropTableRelationships removes every relationship touching a removed
// table so the snapshot stays internally consistent.
func dropTableRelationships(s *core.Schema, table string) {
	kept := s.Relationships[:0]
	for _, rel := range s.Relationships {
		if rel.FromTable == table || rel.ToTable == table {
			continue
		}
		kept = append(kept, rel)
	}
	s.Relationships = kept
}
