// Package provision applies compiled DDL to the live database. It is
// the only component holding the privileged execution channel, and the
// only statement text it submits is compiler output.
package provision

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/schemaforge-labs/schemaforge/internal/adapter"
	"github.com/schemaforge-labs/schemaforge/internal/compiler"
	"github.com/schemaforge-labs/schemaforge/pkg/core"
)

// TableError is one per-table failure from the fallback path, or a
// whole-transaction failure (empty Table) from the atomic path.
type TableError struct {
	Table   string `json:"table,omitempty"`
	Message string `json:"message"`
}

// Result aggregates a provisioning attempt. Success is true iff the
// error list is empty.
type Result struct {
	Success       bool         `json:"success"`
	TablesCreated []string     `json:"tables_created"`
	Errors        []TableError `json:"errors"`
	SQLExecuted   string       `json:"sql_executed"`
}

// Executor is one execution strategy for compiled DDL.
type Executor interface {
	Execute(ctx context.Context, ddl string, schema *core.Schema) *Result
}

// AtomicExecutor submits the full DDL block as one atomic unit. Either
// everything applies or the transaction rolls back entirely.
type AtomicExecutor struct {
	db     adapter.Adapter
	logger *slog.Logger
}

// NewAtomicExecutor creates the atomic strategy.
func NewAtomicExecutor(db adapter.Adapter, logger *slog.Logger) *AtomicExecutor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &AtomicExecutor{db: db, logger: logger}
}

// Execute applies the DDL in one round trip.
func (e *AtomicExecutor) Execute(ctx context.Context, ddl string, schema *core.Schema) *Result {
	result := &Result{SQLExecuted: ddl}

	if err := e.db.Exec(ctx, ddl); err != nil {
		e.logger.Error("atomic provisioning failed", "error", err)
		result.Errors = append(result.Errors, TableError{Message: err.Error()})
		return result
	}

	result.Success = true
	result.TablesCreated = schema.TableNames()
	e.logger.Info("provisioned schema atomically", "tables", len(result.TablesCreated))
	return result
}

// PerEntityExecutor compiles and executes each table's statements
// independently, in schema order, collecting per-table errors without
// aborting the remaining tables. Used when the adapter cannot apply a
// DDL block atomically; it trades atomicity for partial-success
// visibility.
type PerEntityExecutor struct {
	db       adapter.Adapter
	compiler *compiler.Compiler
	logger   *slog.Logger
}

// NewPerEntityExecutor creates the fallback strategy.
func NewPerEntityExecutor(db adapter.Adapter, comp *compiler.Compiler, logger *slog.Logger) *PerEntityExecutor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &PerEntityExecutor{db: db, compiler: comp, logger: logger}
}

// Execute applies each table's unit separately. The ddl argument is
// ignored; each unit is recompiled from the schema so failures are
// attributable to exactly one table.
func (e *PerEntityExecutor) Execute(ctx context.Context, _ string, schema *core.Schema) *Result {
	result := &Result{}

	for i := range schema.Tables {
		name := schema.Tables[i].Name

		unit, err := e.compiler.CompileTable(schema, name)
		if err != nil {
			e.logger.Error("per-table compilation failed", "table", name, "error", err)
			result.Errors = append(result.Errors, TableError{Table: name, Message: err.Error()})
			continue
		}
		result.SQLExecuted += unit

		if err := e.db.Exec(ctx, unit); err != nil {
			e.logger.Warn("table provisioning failed, continuing with remaining tables",
				"table", name, "error", err)
			result.Errors = append(result.Errors, TableError{Table: name, Message: err.Error()})
			continue
		}

		result.TablesCreated = append(result.TablesCreated, name)
	}

	result.Success = len(result.Errors) == 0
	e.logger.Info("provisioned schema per table",
		"created", len(result.TablesCreated), "failed", len(result.Errors))
	return result
}

// Provisioner selects an execution strategy by capability probing and
// records one decision trace per attempt.
type Provisioner struct {
	db       adapter.Adapter
	compiler *compiler.Compiler
	traces   core.TraceSink
	logger   *slog.Logger
}

// New creates a provisioner. The trace sink may be nil in tests.
func New(db adapter.Adapter, comp *compiler.Compiler, traces core.TraceSink, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Provisioner{db: db, compiler: comp, traces: traces, logger: logger}
}

// Provision applies the compiled DDL for schema and writes one decision
// trace summarizing the outcome, including before/after snapshots for
// auditability.
func (p *Provisioner) Provision(ctx context.Context, ddl string, schema *core.Schema, scope core.Scope, before *core.Schema) (*Result, error) {
	var exec Executor
	if p.db.SupportsTransactionalDDL() {
		exec = NewAtomicExecutor(p.db, p.logger)
	} else {
		p.logger.Debug("adapter lacks transactional DDL, using per-entity execution")
		exec = NewPerEntityExecutor(p.db, p.compiler, p.logger)
	}

	result := exec.Execute(ctx, ddl, schema)

	action := fmt.Sprintf("provisioned %d of %d tables", len(result.TablesCreated), len(schema.Tables))
	if p.traces != nil {
		trace := &core.DecisionTrace{
			ID:           uuid.New().String(),
			ProjectID:    scope.ProjectID,
			UserID:       scope.UserID,
			Intent:       "provision_schema",
			Action:       action,
			Version:      schema.Version,
			SchemaBefore: before,
			SchemaAfter:  schema,
			Timestamp:    time.Now().UTC(),
		}
		if err := p.traces.AppendTrace(trace); err != nil {
			// Trace failure must not mask the provisioning outcome.
			p.logger.Error("failed to record decision trace", "error", err)
		}
	}

	if !result.Success {
		return result, &core.ProvisioningError{
			Table: firstFailedTable(result),
			Err:   fmt.Errorf("%d of %d tables failed", len(result.Errors), len(schema.Tables)),
		}
	}
	return result, nil
}

func firstFailedTable(r *Result) string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0].Table
}
