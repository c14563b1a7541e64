// Package validator checks candidate schemas against structural and
// security rules before they may reach the compiler. Checks run
// independently and accumulate into one error list; any single failure
// blocks compilation.
package validator

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/schemaforge-labs/schemaforge/internal/dag"
	"github.com/schemaforge-labs/schemaforge/pkg/core"
)

// Structural limits on candidate schemas.
const (
	DefaultMaxTables         = 15
	DefaultMaxColumns        = 50
	DefaultMaxReferenceDepth = 3
)

// Rule names reported in ErrorDetail entries.
const (
	RuleStructure   = "structure"
	RuleNaming      = "naming"
	RuleAudit       = "audit_columns"
	RuleReferential = "referential_integrity"
	RuleCycle       = "cycle"
	RuleType        = "column_type"
	RuleDefault     = "default_literal"
)

// identPattern is the shape every table and column name must match.
var identPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// defaultPattern bounds default literals to simple expressions. Anything
// outside it is rejected rather than escaped; defaults end up verbatim
// in DDL text and must never smuggle statements.
var defaultPattern = regexp.MustCompile(`^[a-zA-Z0-9_ ().,:'+-]*$`)

// Result is the outcome of one validation pass.
type Result struct {
	Passed bool               `json:"passed"`
	Errors []core.ErrorDetail `json:"errors"`
}

// Err converts a failed result into a *core.ValidationError, or nil.
func (r *Result) Err() error {
	if r.Passed {
		return nil
	}
	return &core.ValidationError{Errors: r.Errors}
}

// Validator validates candidate schemas. The zero limits fall back to
// the defaults; tests lower them to exercise boundary behavior.
type Validator struct {
	logger    *slog.Logger
	maxTables int
	maxCols   int
	maxDepth  int
}

// Option configures a Validator.
type Option func(*Validator)

// WithLimits overrides the structural limits.
func WithLimits(maxTables, maxColumns, maxDepth int) Option {
	return func(v *Validator) {
		v.maxTables = maxTables
		v.maxCols = maxColumns
		v.maxDepth = maxDepth
	}
}

// New creates a validator. A nil logger discards output.
func New(logger *slog.Logger, opts ...Option) *Validator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	v := &Validator{
		logger:    logger,
		maxTables: DefaultMaxTables,
		maxCols:   DefaultMaxColumns,
		maxDepth:  DefaultMaxReferenceDepth,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate runs all checks over the schema and accumulates failures.
func (v *Validator) Validate(s *core.Schema) *Result {
	var errs []core.ErrorDetail

	if s == nil {
		errs = append(errs, core.ErrorDetail{
			Rule:    RuleStructure,
			Message: "schema is missing",
		})
		return &Result{Passed: false, Errors: errs}
	}

	errs = append(errs, v.checkStructure(s)...)
	errs = append(errs, v.checkNaming(s)...)
	errs = append(errs, v.checkTypes(s)...)
	errs = append(errs, v.checkAuditColumns(s)...)
	errs = append(errs, v.checkIndexes(s)...)
	errs = append(errs, v.checkReferences(s)...)
	errs = append(errs, v.checkCycles(s)...)

	passed := len(errs) == 0
	if !passed {
		v.logger.Debug("schema validation failed", "errors", len(errs))
	}
	return &Result{Passed: passed, Errors: errs}
}

// checkStructure enforces table/column counts and table name uniqueness.
func (v *Validator) checkStructure(s *core.Schema) []core.ErrorDetail {
	var errs []core.ErrorDetail

	if len(s.Tables) > v.maxTables {
		errs = append(errs, core.ErrorDetail{
			Rule:    RuleStructure,
			Message: fmt.Sprintf("schema has %d tables, maximum is %d", len(s.Tables), v.maxTables),
		})
	}

	seen := make(map[string]bool, len(s.Tables))
	for i := range s.Tables {
		t := &s.Tables[i]
		if seen[t.Name] {
			errs = append(errs, core.ErrorDetail{
				Rule:    RuleStructure,
				Table:   t.Name,
				Message: "duplicate table name",
			})
		}
		seen[t.Name] = true

		if len(t.Columns) > v.maxCols {
			errs = append(errs, core.ErrorDetail{
				Rule:    RuleStructure,
				Table:   t.Name,
				Message: fmt.Sprintf("table has %d columns, maximum is %d", len(t.Columns), v.maxCols),
			})
		}

		cols := make(map[string]bool, len(t.Columns))
		for j := range t.Columns {
			name := t.Columns[j].Name
			if cols[name] {
				errs = append(errs, core.ErrorDetail{
					Rule:    RuleStructure,
					Table:   t.Name,
					Column:  name,
					Message: "duplicate column name",
				})
			}
			cols[name] = true
		}
	}

	return errs
}

// checkNaming enforces lowercase_underscore names outside the reserved
// keyword set, and bounds default literals.
func (v *Validator) checkNaming(s *core.Schema) []core.ErrorDetail {
	var errs []core.ErrorDetail

	for i := range s.Tables {
		t := &s.Tables[i]
		errs = append(errs, checkName(RuleNaming, t.Name, "", t.Name)...)
		for j := range t.Columns {
			c := &t.Columns[j]
			errs = append(errs, checkName(RuleNaming, t.Name, c.Name, c.Name)...)
			if c.Default != "" && !defaultPattern.MatchString(c.Default) {
				errs = append(errs, core.ErrorDetail{
					Rule:    RuleDefault,
					Table:   t.Name,
					Column:  c.Name,
					Message: fmt.Sprintf("default %q contains disallowed characters", c.Default),
				})
			}
		}
	}

	return errs
}

func checkName(rule, table, column, name string) []core.ErrorDetail {
	var errs []core.ErrorDetail
	if name == "" {
		errs = append(errs, core.ErrorDetail{
			Rule:    rule,
			Table:   table,
			Column:  column,
			Message: "name is empty",
		})
		return errs
	}
	if !identPattern.MatchString(name) {
		errs = append(errs, core.ErrorDetail{
			Rule:    rule,
			Table:   table,
			Column:  column,
			Message: fmt.Sprintf("name %q must be lowercase letters, digits and underscores", name),
		})
	}
	if IsReservedWord(strings.ToLower(name)) {
		errs = append(errs, core.ErrorDetail{
			Rule:    rule,
			Table:   table,
			Column:  column,
			Message: fmt.Sprintf("name %q is a reserved SQL keyword", name),
		})
	}
	return errs
}

// checkTypes enforces the enumerated physical type set.
func (v *Validator) checkTypes(s *core.Schema) []core.ErrorDetail {
	var errs []core.ErrorDetail
	for i := range s.Tables {
		t := &s.Tables[i]
		for j := range t.Columns {
			c := &t.Columns[j]
			if !c.Type.Valid() {
				errs = append(errs, core.ErrorDetail{
					Rule:    RuleType,
					Table:   t.Name,
					Column:  c.Name,
					Message: fmt.Sprintf("unknown column type %q", c.Type),
				})
			}
		}
	}
	return errs
}

// checkAuditColumns requires id/user_id/created_at/updated_at on every
// table with correct nullability and a primary key on id.
func (v *Validator) checkAuditColumns(s *core.Schema) []core.ErrorDetail {
	var errs []core.ErrorDetail

	for i := range s.Tables {
		t := &s.Tables[i]
		for _, name := range core.AuditColumns {
			col, ok := t.Column(name)
			if !ok {
				errs = append(errs, core.ErrorDetail{
					Rule:    RuleAudit,
					Table:   t.Name,
					Column:  name,
					Message: "mandatory audit column is missing",
				})
				continue
			}
			if col.Nullable {
				errs = append(errs, core.ErrorDetail{
					Rule:    RuleAudit,
					Table:   t.Name,
					Column:  name,
					Message: "audit column must not be nullable",
				})
			}
			if name == core.AuditColumnID && !col.PrimaryKey {
				errs = append(errs, core.ErrorDetail{
					Rule:    RuleAudit,
					Table:   t.Name,
					Column:  name,
					Message: "id must be the primary key",
				})
			}
		}
	}

	return errs
}

// checkIndexes verifies declared index names and columns.
func (v *Validator) checkIndexes(s *core.Schema) []core.ErrorDetail {
	var errs []core.ErrorDetail
	for i := range s.Tables {
		t := &s.Tables[i]
		for _, idx := range t.Indexes {
			if !identPattern.MatchString(idx.Name) {
				errs = append(errs, core.ErrorDetail{
					Rule:    RuleNaming,
					Table:   t.Name,
					Message: fmt.Sprintf("index name %q must be lowercase letters, digits and underscores", idx.Name),
				})
			}
			if len(idx.Columns) == 0 {
				errs = append(errs, core.ErrorDetail{
					Rule:    RuleStructure,
					Table:   t.Name,
					Message: fmt.Sprintf("index %q has no columns", idx.Name),
				})
			}
			for _, col := range idx.Columns {
				if !t.HasColumn(col) {
					errs = append(errs, core.ErrorDetail{
						Rule:    RuleReferential,
						Table:   t.Name,
						Column:  col,
						Message: fmt.Sprintf("index %q names unknown column", idx.Name),
					})
				}
			}
		}
	}
	return errs
}

// onDeleteActions is the allowed set for references.on_delete.
var onDeleteActions = map[string]bool{
	"": true, "cascade": true, "restrict": true, "set_null": true, "no_action": true,
}

// checkReferences verifies column references and relationship endpoints
// point at tables and columns present in the same schema.
func (v *Validator) checkReferences(s *core.Schema) []core.ErrorDetail {
	var errs []core.ErrorDetail

	for i := range s.Tables {
		t := &s.Tables[i]
		for j := range t.Columns {
			c := &t.Columns[j]
			if c.References == nil {
				continue
			}
			target, ok := s.Table(c.References.Table)
			if !ok {
				errs = append(errs, core.ErrorDetail{
					Rule:    RuleReferential,
					Table:   t.Name,
					Column:  c.Name,
					Message: fmt.Sprintf("references unknown table %q", c.References.Table),
				})
				continue
			}
			if !onDeleteActions[strings.ToLower(c.References.OnDelete)] {
				errs = append(errs, core.ErrorDetail{
					Rule:    RuleReferential,
					Table:   t.Name,
					Column:  c.Name,
					Message: fmt.Sprintf("unknown on_delete action %q", c.References.OnDelete),
				})
			}
			if c.References.Column != "" && !target.HasColumn(c.References.Column) {
				errs = append(errs, core.ErrorDetail{
					Rule:    RuleReferential,
					Table:   t.Name,
					Column:  c.Name,
					Message: fmt.Sprintf("references unknown column %s.%s", c.References.Table, c.References.Column),
				})
			}
		}
	}

	for _, rel := range s.Relationships {
		from, fromOK := s.Table(rel.FromTable)
		if !fromOK {
			errs = append(errs, core.ErrorDetail{
				Rule:    RuleReferential,
				Table:   rel.FromTable,
				Message: fmt.Sprintf("relationship from_table %q does not exist", rel.FromTable),
			})
		}
		to, toOK := s.Table(rel.ToTable)
		if !toOK {
			errs = append(errs, core.ErrorDetail{
				Rule:    RuleReferential,
				Table:   rel.ToTable,
				Message: fmt.Sprintf("relationship to_table %q does not exist", rel.ToTable),
			})
		}
		if fromOK && rel.FromColumn != "" && !from.HasColumn(rel.FromColumn) {
			errs = append(errs, core.ErrorDetail{
				Rule:    RuleReferential,
				Table:   rel.FromTable,
				Column:  rel.FromColumn,
				Message: "relationship from_column does not exist",
			})
		}
		if toOK && rel.ToColumn != "" && !to.HasColumn(rel.ToColumn) {
			errs = append(errs, core.ErrorDetail{
				Rule:    RuleReferential,
				Table:   rel.ToTable,
				Column:  rel.ToColumn,
				Message: "relationship to_column does not exist",
			})
		}
	}

	return errs
}

// checkCycles builds the foreign-key graph and rejects cycles and
// reference chains deeper than the configured limit.
func (v *Validator) checkCycles(s *core.Schema) []core.ErrorDetail {
	var errs []core.ErrorDetail

	g := dag.FromSchema(s)
	if hasCycle, path := g.HasCycle(); hasCycle {
		errs = append(errs, core.ErrorDetail{
			Rule:    RuleCycle,
			Message: fmt.Sprintf("foreign-key cycle: %s", strings.Join(path, " -> ")),
		})
		return errs
	}

	depth, err := g.MaxDepth()
	if err != nil {
		errs = append(errs, core.ErrorDetail{
			Rule:    RuleCycle,
			Message: err.Error(),
		})
		return errs
	}
	if depth > v.maxDepth {
		errs = append(errs, core.ErrorDetail{
			Rule:    RuleStructure,
			Message: fmt.Sprintf("foreign-key reference depth %d exceeds maximum %d", depth, v.maxDepth),
		})
	}

	return errs
}
