// Package compiler deterministically translates validated schemas into
// data-definition text. It is the sole path from schema objects to
// executable statements: it accepts structured schemas only, and no
// caller-supplied SQL string ever reaches its output.
package compiler

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/schemaforge-labs/schemaforge/pkg/core"
)

// triggerFunction is the shared updated-at trigger function, emitted
// once and idempotently before any table statements.
const triggerFunction = `CREATE OR REPLACE FUNCTION set_updated_at() RETURNS trigger AS $$
BEGIN
  NEW.updated_at = now();
  RETURN NEW;
END;
$$ LANGUAGE plpgsql;`

// identPattern mirrors the validator's identifier rule. The compiler
// re-checks it defensively: a mismatch here means a schema skipped
// validation, which is a programming error.
var identPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// onDeleteSQL maps references.on_delete values to their SQL clauses.
var onDeleteSQL = map[string]string{
	"cascade":   "ON DELETE CASCADE",
	"restrict":  "ON DELETE RESTRICT",
	"set_null":  "ON DELETE SET NULL",
	"no_action": "ON DELETE NO ACTION",
}

// Compiler compiles schemas to DDL. Same schema, byte-identical output;
// a content-addressed cache fronts compilation as a pure optimization.
type Compiler struct {
	logger *slog.Logger
	cache  *ddlCache
}

// New creates a compiler. A nil logger discards output.
func New(logger *slog.Logger) (*Compiler, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cache, err := newDDLCache()
	if err != nil {
		return nil, fmt.Errorf("failed to create ddl cache: %w", err)
	}
	return &Compiler{logger: logger, cache: cache}, nil
}

// Compile emits the full DDL for a validated schema wrapped in a single
// transaction block. Emission order: the shared trigger function, every
// CREATE TABLE in schema order (so later constraints may reference any
// table), then per table in schema order its foreign keys, indexes,
// row-level isolation policy and update trigger.
func (c *Compiler) Compile(s *core.Schema) (string, error) {
	hash, err := s.Hash()
	if err != nil {
		return "", &core.CompilationError{Reason: fmt.Sprintf("schema not encodable: %v", err)}
	}
	if ddl, ok := c.cache.get(hash); ok {
		c.logger.Debug("compiled ddl cache hit", "schema_hash", hash)
		return ddl, nil
	}

	if err := c.checkInvariants(s); err != nil {
		c.logger.Error("schema reached compiler without validation", "error", err)
		return "", err
	}

	var b strings.Builder
	b.WriteString("BEGIN;\n\n")
	b.WriteString(triggerFunction)
	b.WriteString("\n\n")

	for i := range s.Tables {
		b.WriteString(createTableStatement(&s.Tables[i]))
		b.WriteString("\n\n")
	}

	for i := range s.Tables {
		writeTableArtifacts(&b, &s.Tables[i])
	}

	b.WriteString("COMMIT;\n")

	ddl := b.String()
	c.cache.set(hash, ddl)
	c.logger.Debug("compiled schema", "tables", len(s.Tables), "schema_hash", hash, "bytes", len(ddl))
	return ddl, nil
}

// CompileTable emits a self-contained transactional unit for a single
// table, used by the per-entity fallback execution path. Foreign keys
// referencing tables that failed to provision will fail here, which is
// the per-table error the fallback exists to report.
func (c *Compiler) CompileTable(s *core.Schema, tableName string) (string, error) {
	t, ok := s.Table(tableName)
	if !ok {
		return "", &core.CompilationError{Table: tableName, Reason: "table not in schema"}
	}
	if err := c.checkTableInvariants(t); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("BEGIN;\n\n")
	b.WriteString(triggerFunction)
	b.WriteString("\n\n")
	b.WriteString(createTableStatement(t))
	b.WriteString("\n\n")
	writeTableArtifacts(&b, t)
	b.WriteString("COMMIT;\n")
	return b.String(), nil
}

// checkInvariants re-verifies the properties the validator guarantees.
// Failures are compiler invariant violations, not user errors.
func (c *Compiler) checkInvariants(s *core.Schema) error {
	if s == nil {
		return &core.CompilationError{Reason: "schema is nil"}
	}
	for i := range s.Tables {
		if err := c.checkTableInvariants(&s.Tables[i]); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) checkTableInvariants(t *core.TableDefinition) error {
	if !identPattern.MatchString(t.Name) {
		return &core.CompilationError{Table: t.Name, Reason: "table name is not a valid identifier"}
	}
	for _, name := range core.AuditColumns {
		if !t.HasColumn(name) {
			return &core.CompilationError{Table: t.Name, Reason: fmt.Sprintf("audit column %s missing", name)}
		}
	}
	for i := range t.Columns {
		col := &t.Columns[i]
		if !identPattern.MatchString(col.Name) {
			return &core.CompilationError{Table: t.Name, Reason: fmt.Sprintf("column name %q is not a valid identifier", col.Name)}
		}
		if !col.Type.Valid() {
			return &core.CompilationError{Table: t.Name, Reason: fmt.Sprintf("column %s has unknown type %q", col.Name, col.Type)}
		}
		if ref := col.References; ref != nil {
			if !identPattern.MatchString(ref.Table) {
				return &core.CompilationError{Table: t.Name, Reason: fmt.Sprintf("column %s references invalid identifier %q", col.Name, ref.Table)}
			}
			if _, ok := onDeleteSQL[strings.ToLower(ref.OnDelete)]; !ok && ref.OnDelete != "" {
				return &core.CompilationError{Table: t.Name, Reason: fmt.Sprintf("column %s has unknown on_delete %q", col.Name, ref.OnDelete)}
			}
		}
	}
	return nil
}

// createTableStatement emits CREATE TABLE IF NOT EXISTS with column
// definitions and the inline primary key.
func createTableStatement(t *core.TableDefinition) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", t.Name)
	for i := range t.Columns {
		b.WriteString("  ")
		b.WriteString(columnDefinition(&t.Columns[i]))
		if i < len(t.Columns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(");")
	return b.String()
}

func columnDefinition(c *core.ColumnDefinition) string {
	parts := []string{c.Name, c.Type.SQL()}
	if c.PrimaryKey {
		parts = append(parts, "PRIMARY KEY")
	} else if !c.Nullable {
		parts = append(parts, "NOT NULL")
	}
	if c.Unique && !c.PrimaryKey {
		parts = append(parts, "UNIQUE")
	}
	if expr := defaultExpr(c); expr != "" {
		parts = append(parts, "DEFAULT "+expr)
	}
	return strings.Join(parts, " ")
}

// knownDefaultExprs are default values emitted verbatim as expressions.
var knownDefaultExprs = map[string]bool{
	"now()":             true,
	"gen_random_uuid()": true,
	"current_date":      true,
	"current_timestamp": true,
	"true":              true,
	"false":             true,
}

var numericPattern = regexp.MustCompile(`^-?[0-9]+(\.[0-9]+)?$`)

// defaultExpr returns the DEFAULT expression for a column. Audit columns
// get canonical defaults when none is declared; declared string values
// are quoted as literals with embedded quotes doubled.
func defaultExpr(c *core.ColumnDefinition) string {
	d := c.Default
	if d == "" {
		switch {
		case c.Name == core.AuditColumnID && c.Type == core.TypeUUID:
			return "gen_random_uuid()"
		case c.Name == core.AuditColumnCreatedAt, c.Name == core.AuditColumnUpdatedAt:
			return "now()"
		}
		return ""
	}
	if knownDefaultExprs[strings.ToLower(d)] || numericPattern.MatchString(d) {
		return d
	}
	return "'" + strings.ReplaceAll(d, "'", "''") + "'"
}

// writeTableArtifacts emits a table's foreign keys, indexes, row-level
// isolation policy and update trigger, in that fixed order.
func writeTableArtifacts(b *strings.Builder, t *core.TableDefinition) {
	// Foreign keys: drop-then-add keeps re-runs idempotent, since ADD
	// CONSTRAINT has no IF NOT EXISTS form.
	for i := range t.Columns {
		col := &t.Columns[i]
		if col.References == nil {
			continue
		}
		name := fmt.Sprintf("fk_%s_%s", t.Name, col.Name)
		refColumn := col.References.Column
		if refColumn == "" {
			refColumn = core.AuditColumnID
		}
		fmt.Fprintf(b, "ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s;\n", t.Name, name)
		fmt.Fprintf(b, "ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s(%s)",
			t.Name, name, col.Name, col.References.Table, refColumn)
		if clause, ok := onDeleteSQL[strings.ToLower(col.References.OnDelete)]; ok && col.References.OnDelete != "" {
			b.WriteString(" " + clause)
		}
		b.WriteString(";\n")
	}

	// Declared indexes, then the mandatory user_id/created_at indexes.
	seen := make(map[string]bool)
	for _, idx := range t.Indexes {
		seen[idx.Name] = true
		unique := ""
		if idx.Unique {
			unique = "UNIQUE "
		}
		fmt.Fprintf(b, "CREATE %sINDEX IF NOT EXISTS %s ON %s (%s);\n",
			unique, idx.Name, t.Name, strings.Join(idx.Columns, ", "))
	}
	for _, col := range []string{core.AuditColumnUserID, core.AuditColumnCreatedAt} {
		name := fmt.Sprintf("idx_%s_%s", t.Name, col)
		if seen[name] {
			continue
		}
		fmt.Fprintf(b, "CREATE INDEX IF NOT EXISTS %s ON %s (%s);\n", name, t.Name, col)
	}

	// Row-level isolation: every operation is restricted to rows owned
	// by the requesting principal.
	policy := t.Name + "_isolation"
	fmt.Fprintf(b, "ALTER TABLE %s ENABLE ROW LEVEL SECURITY;\n", t.Name)
	fmt.Fprintf(b, "DROP POLICY IF EXISTS %s ON %s;\n", policy, t.Name)
	fmt.Fprintf(b, "CREATE POLICY %s ON %s\n  FOR ALL\n  USING (user_id = current_setting('app.current_user_id')::uuid)\n  WITH CHECK (user_id = current_setting('app.current_user_id')::uuid);\n", policy, t.Name)

	// Update-timestamp trigger bound to the shared function.
	trigger := t.Name + "_set_updated_at"
	fmt.Fprintf(b, "DROP TRIGGER IF EXISTS %s ON %s;\n", trigger, t.Name)
	fmt.Fprintf(b, "CREATE TRIGGER %s\n  BEFORE UPDATE ON %s\n  FOR EACH ROW EXECUTE FUNCTION set_updated_at();\n\n", trigger, t.Name)
}
