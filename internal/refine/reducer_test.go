package refine

import (
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

func baseSchema() *core.Schema {
	return &core.Schema{
		Tables: []core.TableDefinition{
			{
				Name:    "company",
				Columns: append(auditColumns(), core.ColumnDefinition{Name: "name", Type: core.TypeText}),
			},
			{
				Name: "contact",
				Columns: append(auditColumns(), core.ColumnDefinition{
					Name: "company_id", Type: core.TypeUUID,
					References: &core.ForeignKey{Table: "company", Column: "id"},
				}),
			},
		},
		Relationships: []core.Relationship{
			{FromTable: "contact", FromColumn: "company_id", ToTable: "company", ToColumn: "id"},
		},
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	in := baseSchema()
	_, err := Apply(in, []core.Change{
		{Op: core.OpRemove, Target: core.TargetTable, Table: "contact"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(in.Tables) != 2 || len(in.Relationships) != 1 {
		t.Error("input schema was mutated")
	}
}

func TestApplyAddTable(t *testing.T) {
	def := core.TableDefinition{
		Name:    "deal",
		Columns: auditColumns(),
	}
	out, err := Apply(baseSchema(), []core.Change{
		{Op: core.OpAdd, Target: core.TargetTable, Table: "deal", TableDef: &def},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := out.Table("deal"); !ok {
		t.Error("added table missing")
	}

	// Adding an existing table fails.
	_, err = Apply(out, []core.Change{
		{Op: core.OpAdd, Target: core.TargetTable, Table: "deal", TableDef: &def},
	})
	if err == nil {
		t.Error("duplicate table add did not fail")
	}
}

func TestApplyRemoveTableDropsRelationships(t *testing.T) {
	out, err := Apply(baseSchema(), []core.Change{
		{Op: core.OpRemove, Target: core.TargetTable, Table: "company"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := out.Table("company"); ok {
		t.Error("removed table still present")
	}
	if len(out.Relationships) != 0 {
		t.Errorf("relationships touching removed table survived: %+v", out.Relationships)
	}
}

func TestApplyColumnChanges(t *testing.T) {
	out, err := Apply(baseSchema(), []core.Change{
		{
			Op: core.OpAdd, Target: core.TargetColumn, Table: "company", Column: "website",
			ColumnDef: &core.ColumnDefinition{Name: "website", Type: core.TypeText, Nullable: true},
		},
		{
			Op: core.OpModify, Target: core.TargetColumn, Table: "company", Column: "name",
			ColumnDef: &core.ColumnDefinition{Name: "name", Type: core.TypeVarchar},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	company, _ := out.Table("company")
	if !company.HasColumn("website") {
		t.Error("added column missing")
	}
	name, _ := company.Column("name")
	if name.Type != core.TypeVarchar {
		t.Errorf("modified column type = %q", name.Type)
	}

	out, err = Apply(out, []core.Change{
		{Op: core.OpRemove, Target: core.TargetColumn, Table: "company", Column: "website"},
	})
	if err != nil {
		t.Fatal(err)
	}
	company, _ = out.Table("company")
	if company.HasColumn("website") {
		t.Error("removed column still present")
	}
}

func TestApplyProtectsAuditColumns(t *testing.T) {
	for _, op := range []core.ChangeOp{core.OpModify, core.OpRemove} {
		_, err := Apply(baseSchema(), []core.Change{
			{
				Op: op, Target: core.TargetColumn, Table: "company", Column: "user_id",
				ColumnDef: &core.ColumnDefinition{Name: "user_id", Type: core.TypeText},
			},
		})
		if err == nil {
			t.Errorf("%s of audit column did not fail", op)
		}
	}
}

func TestApplyRelationshipChanges(t *testing.T) {
	rel := core.Relationship{
		FromTable: "contact", FromColumn: "manager_id", ToTable: "contact", ToColumn: "id",
	}
	// FromTable mismatch with change.Table fails.
	_, err := Apply(baseSchema(), []core.Change{
		{Op: core.OpAdd, Target: core.TargetRelationship, Table: "company", Relationship: &rel},
	})
	if err == nil {
		t.Error("from_table mismatch did not fail")
	}

	out, err := Apply(baseSchema(), []core.Change{
		{Op: core.OpAdd, Target: core.TargetRelationship, Table: "contact", Relationship: &rel},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Relationships) != 2 {
		t.Errorf("relationships = %d, want 2", len(out.Relationships))
	}

	out, err = Apply(out, []core.Change{
		{Op: core.OpRemove, Target: core.TargetRelationship, Table: "contact", Relationship: &rel},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Relationships) != 1 {
		t.Errorf("relationships = %d after remove, want 1", len(out.Relationships))
	}
}

func TestApplyUIHints(t *testing.T) {
	hints := &core.UIHints{Label: "Company", PluralName: "orgs"}
	out, err := Apply(baseSchema(), []core.Change{
		{Op: core.OpModify, Target: core.TargetUIHints, Table: "company", UIHints: hints},
	})
	if err != nil {
		t.Fatal(err)
	}
	company, _ := out.Table("company")
	if company.UIHints == nil || company.UIHints.Label != "Company" {
		t.Errorf("ui hints not applied: %+v", company.UIHints)
	}

	out, err = Apply(out, []core.Change{
		{Op: core.OpRemove, Target: core.TargetUIHints, Table: "company"},
	})
	if err != nil {
		t.Fatal(err)
	}
	company, _ = out.Table("company")
	if company.UIHints != nil {
		t.Error("ui hints not removed")
	}
}

func TestApplyRejectsMalformedEntries(t *testing.T) {
	cases := []struct {
		name   string
		change core.Change
	}{
		{"missing table", core.Change{Op: core.OpAdd, Target: core.TargetTable}},
		{"unknown target", core.Change{Op: core.OpAdd, Target: "index", Table: "company"}},
		{"unknown op", core.Change{Op: "rename", Target: core.TargetTable, Table: "company"}},
		{"missing payload", core.Change{Op: core.OpAdd, Target: core.TargetTable, Table: "deal"}},
		{"payload name mismatch", core.Change{
			Op: core.OpAdd, Target: core.TargetTable, Table: "deal",
			TableDef: &core.TableDefinition{Name: "other"},
		}},
		{"unknown table", core.Change{
			Op: core.OpAdd, Target: core.TargetColumn, Table: "missing", Column: "x",
			ColumnDef: &core.ColumnDefinition{Name: "x", Type: core.TypeText},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Apply(baseSchema(), []core.Change{tc.change}); err == nil {
				t.Error("malformed change applied without error")
			}
		})
	}
}

func TestApplyAbortsOnFirstInvalidEntry(t *testing.T) {
	_, err := Apply(baseSchema(), []core.Change{
		{Op: core.OpRemove, Target: core.TargetTable, Table: "contact"},
		{Op: core.OpRemove, Target: core.TargetTable, Table: "missing"},
	})
	if err == nil {
		t.Fatal("changeset with invalid entry applied")
	}
}
