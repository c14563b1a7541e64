package provision

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/schemaforge-labs/schemaforge/internal/adapter"
	"github.com/schemaforge-labs/schemaforge/internal/compiler"
	"github.com/schemaforge-labs/schemaforge/pkg/core"
)

func auditColumns() []core.ColumnDefinition {
	return []core.ColumnDefinition{
		{Name: "id", Type: core.TypeUUID, PrimaryKey: true},
		{Name: "user_id", Type: core.TypeUUID},
		{Name: "created_at", Type: core.TypeTimestampTZ},
		{Name: "updated_at", Type: core.TypeTimestampTZ},
	}
}

func crmSchema() *core.Schema {
	return &core.Schema{
		Tables: []core.TableDefinition{
			{
				Name:    "company",
				Columns: append(auditColumns(), core.ColumnDefinition{Name: "name", Type: core.TypeText}),
			},
			{
				Name: "deal",
				Columns: append(auditColumns(), core.ColumnDefinition{
					Name: "company_id", Type: core.TypeUUID,
					References: &core.ForeignKey{Table: "company", Column: "id"},
				}),
			},
		},
	}
}

// mockAdapter wraps a sqlmock-backed connection with a configurable
// transactional-DDL capability.
type mockAdapter struct {
	adapter.BaseSQLAdapter
	transactional bool
}

func (m *mockAdapter) Connect(_ context.Context, _ adapter.Config) error { return nil }
func (m *mockAdapter) DialectName() string                               { return "mock" }
func (m *mockAdapter) SupportsTransactionalDDL() bool                    { return m.transactional }

func newMockAdapter(t *testing.T, transactional bool) (*mockAdapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	a := &mockAdapter{transactional: transactional}
	a.DB = db
	return a, mock
}

// traceRecorder collects appended traces.
type traceRecorder struct {
	traces []*core.DecisionTrace
	err    error
}

func (r *traceRecorder) AppendTrace(trace *core.DecisionTrace) error {
	if r.err != nil {
		return r.err
	}
	r.traces = append(r.traces, trace)
	return nil
}

func newCompiler(t *testing.T) *compiler.Compiler {
	t.Helper()
	c, err := compiler.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestProvisionAtomicSuccess(t *testing.T) {
	db, mock := newMockAdapter(t, true)
	mock.ExpectExec("BEGIN;").WillReturnResult(sqlmock.NewResult(0, 0))

	comp := newCompiler(t)
	schema := crmSchema()
	ddl, err := comp.Compile(schema)
	if err != nil {
		t.Fatal(err)
	}

	traces := &traceRecorder{}
	p := New(db, comp, traces, nil)

	result, err := p.Provision(context.Background(), ddl, schema, core.Scope{UserID: "u1"}, nil)
	if err != nil {
		t.Fatalf("Provision() error: %v", err)
	}
	if !result.Success {
		t.Errorf("Success = false: %+v", result.Errors)
	}
	if len(result.TablesCreated) != 2 {
		t.Errorf("TablesCreated = %v, want both tables", result.TablesCreated)
	}
	if result.SQLExecuted != ddl {
		t.Error("SQLExecuted does not match compiled ddl")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestProvisionAtomicFailure(t *testing.T) {
	db, mock := newMockAdapter(t, true)
	mock.ExpectExec("BEGIN;").WillReturnError(errors.New("permission denied"))

	comp := newCompiler(t)
	schema := crmSchema()
	ddl, err := comp.Compile(schema)
	if err != nil {
		t.Fatal(err)
	}

	p := New(db, comp, &traceRecorder{}, nil)
	result, err := p.Provision(context.Background(), ddl, schema, core.Scope{UserID: "u1"}, nil)

	var perr *core.ProvisioningError
	if !errors.As(err, &perr) {
		t.Fatalf("Provision() error = %v, want ProvisioningError", err)
	}
	if result.Success {
		t.Error("Success = true after failed execution")
	}
	if len(result.TablesCreated) != 0 {
		t.Errorf("TablesCreated = %v, want none", result.TablesCreated)
	}
}

func TestProvisionPerEntityPartialSuccess(t *testing.T) {
	db, mock := newMockAdapter(t, false)
	// company succeeds, deal fails.
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS company")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS deal")).
		WillReturnError(errors.New("type mismatch"))

	comp := newCompiler(t)
	schema := crmSchema()
	p := New(db, comp, &traceRecorder{}, nil)

	result, err := p.Provision(context.Background(), "", schema, core.Scope{UserID: "u1"}, nil)

	var perr *core.ProvisioningError
	if !errors.As(err, &perr) {
		t.Fatalf("Provision() error = %v, want ProvisioningError", err)
	}
	if perr.Table != "deal" {
		t.Errorf("ProvisioningError.Table = %q, want deal", perr.Table)
	}
	if len(result.TablesCreated) != 1 || result.TablesCreated[0] != "company" {
		t.Errorf("TablesCreated = %v, want [company]", result.TablesCreated)
	}
	if len(result.Errors) != 1 || result.Errors[0].Table != "deal" {
		t.Errorf("Errors = %+v, want one deal error", result.Errors)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestProvisionPerEntityContinuesPastFailures(t *testing.T) {
	db, mock := newMockAdapter(t, false)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS company")).
		WillReturnError(errors.New("boom"))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS deal")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	comp := newCompiler(t)
	p := New(db, comp, &traceRecorder{}, nil)

	result, _ := p.Provision(context.Background(), "", crmSchema(), core.Scope{UserID: "u1"}, nil)
	if len(result.TablesCreated) != 1 || result.TablesCreated[0] != "deal" {
		t.Errorf("TablesCreated = %v, want [deal]", result.TablesCreated)
	}
}

func TestProvisionWritesDecisionTrace(t *testing.T) {
	db, mock := newMockAdapter(t, true)
	mock.ExpectExec("BEGIN;").WillReturnResult(sqlmock.NewResult(0, 0))

	comp := newCompiler(t)
	schema := crmSchema()
	schema.Version = 3
	ddl, err := comp.Compile(schema)
	if err != nil {
		t.Fatal(err)
	}

	before := crmSchema()
	traces := &traceRecorder{}
	p := New(db, comp, traces, nil)

	if _, err := p.Provision(context.Background(), ddl, schema, core.Scope{ProjectID: "p1", UserID: "u1"}, before); err != nil {
		t.Fatal(err)
	}

	if len(traces.traces) != 1 {
		t.Fatalf("expected one trace, got %d", len(traces.traces))
	}
	tr := traces.traces[0]
	if tr.Intent != "provision_schema" {
		t.Errorf("Intent = %q", tr.Intent)
	}
	if !strings.Contains(tr.Action, "2 of 2 tables") {
		t.Errorf("Action = %q, want provisioned 2 of 2 tables", tr.Action)
	}
	if tr.SchemaBefore != before || tr.SchemaAfter != schema {
		t.Error("trace snapshots do not reference before/after schemas")
	}
	if tr.ProjectID != "p1" || tr.UserID != "u1" {
		t.Errorf("trace scope = %s/%s", tr.ProjectID, tr.UserID)
	}
}

func TestProvisionTraceFailureDoesNotMaskOutcome(t *testing.T) {
	db, mock := newMockAdapter(t, true)
	mock.ExpectExec("BEGIN;").WillReturnResult(sqlmock.NewResult(0, 0))

	comp := newCompiler(t)
	schema := crmSchema()
	ddl, err := comp.Compile(schema)
	if err != nil {
		t.Fatal(err)
	}

	p := New(db, comp, &traceRecorder{err: errors.New("store closed")}, nil)
	result, err := p.Provision(context.Background(), ddl, schema, core.Scope{UserID: "u1"}, nil)
	if err != nil {
		t.Fatalf("Provision() error = %v, trace failure must not fail provisioning", err)
	}
	if !result.Success {
		t.Error("Success = false")
	}
}
