package core

// ChangeOp is the operation kind of a changeset entry.
type ChangeOp string

// Change operations.
const (
	OpAdd    ChangeOp = "add"
	OpModify ChangeOp = "modify"
	OpRemove ChangeOp = "remove"
)

// ChangeTarget is the schema element a changeset entry applies to.
type ChangeTarget string

// Change targets.
const (
	TargetTable        ChangeTarget = "table"
	TargetColumn       ChangeTarget = "column"
	TargetRelationship ChangeTarget = "relationship"
	TargetUIHints      ChangeTarget = "ui_hints"
)

// Change is one tagged-variant entry of a collaborator changeset. The
// populated payload depends on (Op, Target); the reducer rejects entries
// whose payload does not match their tag.
type Change struct {
	Op     ChangeOp     `json:"op"`
	Target ChangeTarget `json:"target"`

	// Table names the affected table. Required for every target.
	Table string `json:"table"`

	// Column names the affected column for column changes.
	Column string `json:"column,omitempty"`

	TableDef     *TableDefinition  `json:"table_def,omitempty"`
	ColumnDef    *ColumnDefinition `json:"column_def,omitempty"`
	Relationship *Relationship     `json:"relationship,omitempty"`
	UIHints      *UIHints          `json:"ui_hints,omitempty"`
}
