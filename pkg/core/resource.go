package core

// FieldSpec is the registry's view of one column, consumed by generic
// form and list renderers.
type FieldSpec struct {
	Name       string      `json:"name"`
	Type       ColumnType  `json:"type"`
	Nullable   bool        `json:"nullable"`
	Required   bool        `json:"required"`
	Unique     bool        `json:"unique,omitempty"`
	References *ForeignKey `json:"references,omitempty"`
}

// RelationshipField is a synthetic lookup field projected from a
// relationship, used by generic UI to render reference pickers.
type RelationshipField struct {
	Name         string      `json:"name"`
	SourceTable  string      `json:"source_table"`
	TargetTable  string      `json:"target_table"`
	TargetColumn string      `json:"target_column"`
	Cardinality  Cardinality `json:"cardinality,omitempty"`
}

// CompiledEntity is the runtime-registry representation of a provisioned
// table. Generic CRUD consumers read it instead of per-entity code.
type CompiledEntity struct {
	Name          string         `json:"name"`
	PluralName    string         `json:"plural_name"`
	Label         string         `json:"label,omitempty"`
	Fields        []FieldSpec    `json:"fields"`
	Relationships []Relationship `json:"relationships,omitempty"`
	UIHints       *UIHints       `json:"ui_hints,omitempty"`
}
