package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/schemaforge-labs/schemaforge/internal/adapter"
	"github.com/schemaforge-labs/schemaforge/pkg/core"
)

// recordingAdapter captures executed statements in place of a live
// database.
type recordingAdapter struct {
	mu            sync.Mutex
	executed      []string
	transactional bool
	failTables    map[string]bool
}

func (a *recordingAdapter) Connect(_ context.Context, _ adapter.Config) error { return nil }
func (a *recordingAdapter) Close() error                                      { return nil }
func (a *recordingAdapter) DialectName() string                               { return "recording" }
func (a *recordingAdapter) SupportsTransactionalDDL() bool                    { return a.transactional }

func (a *recordingAdapter) Query(_ context.Context, _ string) (*adapter.Rows, error) {
	return nil, errors.New("not supported")
}

func (a *recordingAdapter) Exec(_ context.Context, sql string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.executed = append(a.executed, sql)
	for table := range a.failTables {
		if strings.Contains(sql, "CREATE TABLE IF NOT EXISTS "+table+" ") {
			return errors.New("injected failure for " + table)
		}
	}
	return nil
}

var (
	fakeMu      sync.Mutex
	currentFake *recordingAdapter
)

// The factory registry is global, so tests swap the instance the
// "recording" factory hands out.
func init() {
	adapter.Register("recording", func(_ *slog.Logger) adapter.Adapter {
		fakeMu.Lock()
		defer fakeMu.Unlock()
		return currentFake
	})
}

func useFakeAdapterFactory(a *recordingAdapter) {
	fakeMu.Lock()
	currentFake = a
	fakeMu.Unlock()
}

func newTestEngine(t *testing.T, db *recordingAdapter) *Engine {
	t.Helper()
	useFakeAdapterFactory(db)

	eng, err := New(Config{
		StatePath: ":memory:",
		Adapter:   adapter.Config{Type: "recording"},
		Owner:     "test",
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

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

func TestApplyFullPipeline(t *testing.T) {
	db := &recordingAdapter{transactional: true}
	eng := newTestEngine(t, db)
	scope := core.Scope{UserID: "u1"}

	result, version, err := eng.Apply(context.Background(), scope, crmSchema(), "initial")
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if !result.Success || len(result.TablesCreated) != 2 {
		t.Errorf("result = %+v", result)
	}
	if version.Version != 1 || !version.IsActive {
		t.Errorf("version = %d active=%v, want 1 active", version.Version, version.IsActive)
	}

	// One atomic execution.
	if len(db.executed) != 1 {
		t.Errorf("executions = %d, want 1", len(db.executed))
	}

	// The registry is published only after success.
	reg := eng.Registry()
	if reg.Count() != 2 {
		t.Fatalf("registry count = %d, want 2", reg.Count())
	}
	fields, ok := reg.GetFormFields("company")
	if !ok {
		t.Fatal("company not in registry")
	}
	for _, f := range fields {
		if core.IsAuditColumn(f.Name) {
			t.Errorf("audit column %q in form fields", f.Name)
		}
	}

	// Decision trace recorded for the provisioning attempt.
	traces, err := eng.Store().ListTraces(scope, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(traces) != 1 || traces[0].Intent != "provision_schema" {
		t.Errorf("traces = %+v", traces)
	}
}

func TestApplyVersionsIncrement(t *testing.T) {
	eng := newTestEngine(t, &recordingAdapter{transactional: true})
	scope := core.Scope{UserID: "u1"}

	if _, _, err := eng.Apply(context.Background(), scope, crmSchema(), "v1"); err != nil {
		t.Fatal(err)
	}

	next := crmSchema()
	next.Tables = next.Tables[:1]
	_, version, err := eng.Apply(context.Background(), scope, next, "drop deal")
	if err != nil {
		t.Fatal(err)
	}
	if version.Version != 2 {
		t.Errorf("version = %d, want 2", version.Version)
	}

	// Registry reflects the latest schema.
	if eng.Registry().Has("deal") {
		t.Error("stale entity in registry after republish")
	}
}

func TestApplyValidationFailureCreatesNothing(t *testing.T) {
	eng := newTestEngine(t, &recordingAdapter{transactional: true})
	scope := core.Scope{UserID: "u1"}

	bad := crmSchema()
	bad.Tables[0].Columns = bad.Tables[0].Columns[1:] // drop id

	_, _, err := eng.Apply(context.Background(), scope, bad, "")
	var verr *core.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Apply() error = %v, want ValidationError", err)
	}

	if _, err := eng.Store().GetActiveVersion(scope); !errors.Is(err, core.ErrNoActiveVersion) {
		t.Error("version created despite validation failure")
	}
	if eng.Registry().Count() != 0 {
		t.Error("registry published despite validation failure")
	}
}

func TestApplyProvisioningFailureCreatesNoVersion(t *testing.T) {
	db := &recordingAdapter{transactional: false, failTables: map[string]bool{"deal": true}}
	eng := newTestEngine(t, db)
	scope := core.Scope{UserID: "u1"}

	result, _, err := eng.Apply(context.Background(), scope, crmSchema(), "")
	var perr *core.ProvisioningError
	if !errors.As(err, &perr) {
		t.Fatalf("Apply() error = %v, want ProvisioningError", err)
	}
	if len(result.TablesCreated) != 1 || result.TablesCreated[0] != "company" {
		t.Errorf("TablesCreated = %v, want [company]", result.TablesCreated)
	}

	// Failed attempts never become versions, but the attempt is traced.
	if _, err := eng.Store().GetActiveVersion(scope); !errors.Is(err, core.ErrNoActiveVersion) {
		t.Error("version created despite provisioning failure")
	}
	traces, _ := eng.Store().ListTraces(scope, 0)
	if len(traces) != 1 || !strings.Contains(traces[0].Action, "1 of 2") {
		t.Errorf("traces = %+v", traces)
	}
}

func TestRollbackCreatesNewVersion(t *testing.T) {
	eng := newTestEngine(t, &recordingAdapter{transactional: true})
	scope := core.Scope{UserID: "u1"}

	_, v1, err := eng.Apply(context.Background(), scope, crmSchema(), "v1")
	if err != nil {
		t.Fatal(err)
	}
	next := crmSchema()
	next.Tables = next.Tables[:1]
	if _, _, err := eng.Apply(context.Background(), scope, next, "v2"); err != nil {
		t.Fatal(err)
	}

	_, v3, err := eng.Rollback(context.Background(), scope, v1.ID)
	if err != nil {
		t.Fatalf("Rollback() error: %v", err)
	}
	if v3.Version != 3 {
		t.Errorf("rollback version = %d, want 3", v3.Version)
	}
	if len(v3.Snapshot.Tables) != 2 {
		t.Errorf("rollback snapshot tables = %d, want 2", len(v3.Snapshot.Tables))
	}
	if !strings.Contains(v3.ChangeDescription, "rollback to version 1") {
		t.Errorf("ChangeDescription = %q", v3.ChangeDescription)
	}

	// The old row stays inactive; only the new version is active.
	old, err := eng.Store().GetVersion(v1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if old.IsActive {
		t.Error("rolled-back-to version was revived")
	}
}

func TestRepublish(t *testing.T) {
	eng := newTestEngine(t, &recordingAdapter{transactional: true})
	scope := core.Scope{UserID: "u1"}

	if _, _, err := eng.Apply(context.Background(), scope, crmSchema(), ""); err != nil {
		t.Fatal(err)
	}
	eng.Registry().Clear()

	if err := eng.Republish(scope); err != nil {
		t.Fatal(err)
	}
	if eng.Registry().Count() != 2 {
		t.Errorf("registry count = %d after republish, want 2", eng.Registry().Count())
	}
}

// stubCollaborator returns one fixed proposal.
type stubCollaborator struct {
	resp *core.RefineResponse
}

func (c *stubCollaborator) Propose(_ context.Context, _ *core.RefineRequest) (*core.RefineResponse, error) {
	return c.resp, nil
}

func TestSessionTracesReachStore(t *testing.T) {
	eng := newTestEngine(t, &recordingAdapter{transactional: true})
	scope := core.Scope{UserID: "u1"}

	updated := crmSchema()
	updated.Tables = append(updated.Tables, core.TableDefinition{
		Name:    "note",
		Columns: auditColumns(),
	})
	collab := &stubCollaborator{resp: &core.RefineResponse{
		Intent:          core.IntentAddEntity,
		Reasoning:       "notes attach to deals in comparable schemas",
		UpdatedSchema:   updated,
		ResponseMessage: "added note",
	}}

	sess := eng.NewSession(scope, collab)
	if err := sess.Initialize(crmSchema()); err != nil {
		t.Fatal(err)
	}
	if _, err := sess.SubmitMessage(context.Background(), "add a note table"); err != nil {
		t.Fatal(err)
	}

	traces, err := eng.Store().ListTraces(scope, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(traces) != 1 {
		t.Fatalf("traces = %d, want 1", len(traces))
	}
	if traces[0].Intent != string(core.IntentAddEntity) {
		t.Errorf("trace intent = %q", traces[0].Intent)
	}
	if traces[0].Precedent != "notes attach to deals in comparable schemas" {
		t.Errorf("trace precedent = %q", traces[0].Precedent)
	}
	if traces[0].SchemaAfter == nil || len(traces[0].SchemaAfter.Tables) != 3 {
		t.Errorf("trace after snapshot = %+v", traces[0].SchemaAfter)
	}
}

func TestCompilePreview(t *testing.T) {
	eng := newTestEngine(t, &recordingAdapter{transactional: true})

	ddl, err := eng.Compile(crmSchema())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ddl, "CREATE TABLE IF NOT EXISTS company") {
		t.Error("compiled ddl missing table")
	}

	bad := crmSchema()
	bad.Tables[0].Name = "select"
	if _, err := eng.Compile(bad); err == nil {
		t.Error("Compile() accepted invalid schema")
	}
}
