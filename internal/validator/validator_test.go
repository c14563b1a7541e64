package validator

import (
	"strings"
	"testing"

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

func validTable(name string, extra ...core.ColumnDefinition) core.TableDefinition {
	return core.TableDefinition{
		Name:    name,
		Columns: append(auditColumns(), extra...),
	}
}

func validSchema() *core.Schema {
	return &core.Schema{
		Tables: []core.TableDefinition{
			validTable("company", core.ColumnDefinition{Name: "name", Type: core.TypeText}),
			validTable("deal",
				core.ColumnDefinition{Name: "title", Type: core.TypeText},
				core.ColumnDefinition{
					Name: "company_id", Type: core.TypeUUID,
					References: &core.ForeignKey{Table: "company", Column: "id", OnDelete: "cascade"},
				},
			),
		},
	}
}

func hasRuleError(r *Result, rule string) bool {
	for _, e := range r.Errors {
		if e.Rule == rule {
			return true
		}
	}
	return false
}

func TestValidateValidSchema(t *testing.T) {
	result := New(nil).Validate(validSchema())
	if !result.Passed {
		t.Fatalf("valid schema rejected: %+v", result.Errors)
	}
	if err := result.Err(); err != nil {
		t.Errorf("Err() = %v for passing result", err)
	}
}

func TestValidateNilSchema(t *testing.T) {
	result := New(nil).Validate(nil)
	if result.Passed {
		t.Fatal("nil schema passed validation")
	}
}

func TestValidateAccumulatesAllErrors(t *testing.T) {
	s := &core.Schema{
		Tables: []core.TableDefinition{
			{
				Name: "Select", // reserved and wrong case
				Columns: []core.ColumnDefinition{
					{Name: "id", Type: core.TypeUUID}, // not primary key, audit cols missing
				},
			},
		},
	}

	result := New(nil).Validate(s)
	if result.Passed {
		t.Fatal("invalid schema passed validation")
	}
	if len(result.Errors) < 4 {
		t.Errorf("expected accumulated errors, got %d: %+v", len(result.Errors), result.Errors)
	}
}

func TestValidateReservedWord(t *testing.T) {
	s := validSchema()
	s.Tables[0].Name = "select"

	result := New(nil).Validate(s)
	if !hasRuleError(result, RuleNaming) {
		t.Errorf("reserved table name not reported: %+v", result.Errors)
	}
}

func TestValidateMissingAuditColumn(t *testing.T) {
	s := validSchema()
	// Drop updated_at from the first table.
	cols := s.Tables[0].Columns
	s.Tables[0].Columns = cols[:3]

	result := New(nil).Validate(s)
	if !hasRuleError(result, RuleAudit) {
		t.Errorf("missing audit column not reported: %+v", result.Errors)
	}
}

func TestValidateNullableAuditColumn(t *testing.T) {
	s := validSchema()
	for i := range s.Tables[0].Columns {
		if s.Tables[0].Columns[i].Name == "user_id" {
			s.Tables[0].Columns[i].Nullable = true
		}
	}

	result := New(nil).Validate(s)
	if !hasRuleError(result, RuleAudit) {
		t.Errorf("nullable audit column not reported: %+v", result.Errors)
	}
}

func TestValidateUnknownReferenceTable(t *testing.T) {
	s := validSchema()
	s.Tables[1].Columns = append(s.Tables[1].Columns, core.ColumnDefinition{
		Name: "owner_id", Type: core.TypeUUID,
		References: &core.ForeignKey{Table: "missing", Column: "id"},
	})

	result := New(nil).Validate(s)
	if !hasRuleError(result, RuleReferential) {
		t.Errorf("unknown reference target not reported: %+v", result.Errors)
	}
}

func TestValidateUnknownOnDelete(t *testing.T) {
	s := validSchema()
	s.Tables[1].Columns[5].References.OnDelete = "explode"

	result := New(nil).Validate(s)
	if !hasRuleError(result, RuleReferential) {
		t.Errorf("unknown on_delete not reported: %+v", result.Errors)
	}
}

func TestValidateUnknownColumnType(t *testing.T) {
	s := validSchema()
	s.Tables[0].Columns = append(s.Tables[0].Columns, core.ColumnDefinition{
		Name: "blob_col", Type: "blob",
	})

	result := New(nil).Validate(s)
	if !hasRuleError(result, RuleType) {
		t.Errorf("unknown column type not reported: %+v", result.Errors)
	}
}

func TestValidateDefaultLiteral(t *testing.T) {
	s := validSchema()
	s.Tables[0].Columns = append(s.Tables[0].Columns, core.ColumnDefinition{
		Name: "note", Type: core.TypeText, Nullable: true,
		Default: "x'; DROP TABLE company; --",
	})

	result := New(nil).Validate(s)
	if !hasRuleError(result, RuleDefault) {
		t.Errorf("dangerous default literal not reported: %+v", result.Errors)
	}
}

func TestValidateCycle(t *testing.T) {
	s := &core.Schema{
		Tables: []core.TableDefinition{
			validTable("a", core.ColumnDefinition{
				Name: "b_id", Type: core.TypeUUID, Nullable: true,
				References: &core.ForeignKey{Table: "b", Column: "id"},
			}),
			validTable("b", core.ColumnDefinition{
				Name: "a_id", Type: core.TypeUUID, Nullable: true,
				References: &core.ForeignKey{Table: "a", Column: "id"},
			}),
		},
	}

	result := New(nil).Validate(s)
	if !hasRuleError(result, RuleCycle) {
		t.Errorf("foreign-key cycle not reported: %+v", result.Errors)
	}
}

func TestValidateReferenceDepth(t *testing.T) {
	// a <- b <- c <- d <- e: depth 4, over the limit of 3.
	tables := []core.TableDefinition{validTable("ta")}
	names := []string{"ta", "tb", "tc", "td", "te"}
	for i := 1; i < len(names); i++ {
		tables = append(tables, validTable(names[i], core.ColumnDefinition{
			Name: names[i-1] + "_id", Type: core.TypeUUID,
			References: &core.ForeignKey{Table: names[i-1], Column: "id"},
		}))
	}
	s := &core.Schema{Tables: tables}

	result := New(nil).Validate(s)
	if result.Passed {
		t.Fatal("over-deep reference chain passed validation")
	}
	found := false
	for _, e := range result.Errors {
		if strings.Contains(e.Message, "reference depth") {
			found = true
		}
	}
	if !found {
		t.Errorf("depth violation not reported: %+v", result.Errors)
	}

	// Depth exactly at the limit passes.
	s.Tables = s.Tables[:4]
	if result := New(nil).Validate(s); !result.Passed {
		t.Errorf("depth-3 chain rejected: %+v", result.Errors)
	}
}

func TestValidateLimits(t *testing.T) {
	v := New(nil, WithLimits(2, 50, 3))

	s := &core.Schema{
		Tables: []core.TableDefinition{
			validTable("one"), validTable("two"), validTable("three"),
		},
	}
	result := v.Validate(s)
	if !hasRuleError(result, RuleStructure) {
		t.Errorf("table count over limit not reported: %+v", result.Errors)
	}
}

func TestValidateDuplicateNames(t *testing.T) {
	s := validSchema()
	s.Tables = append(s.Tables, validTable("company"))

	result := New(nil).Validate(s)
	if !hasRuleError(result, RuleStructure) {
		t.Errorf("duplicate table name not reported: %+v", result.Errors)
	}
}

func TestValidateIndexUnknownColumn(t *testing.T) {
	s := validSchema()
	s.Tables[0].Indexes = []core.IndexDefinition{
		{Name: "idx_company_missing", Columns: []string{"missing"}},
	}

	result := New(nil).Validate(s)
	if !hasRuleError(result, RuleReferential) {
		t.Errorf("index on unknown column not reported: %+v", result.Errors)
	}
}

func TestIsReservedWord(t *testing.T) {
	for _, word := range []string{"select", "table", "user", "order"} {
		if !IsReservedWord(word) {
			t.Errorf("IsReservedWord(%q) = false, want true", word)
		}
	}
	if IsReservedWord("company") {
		t.Error(`IsReservedWord("company") = true, want false`)
	}
}
