package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Audit column names that every table must carry. The validator enforces
// their presence; the registry strips them from user-facing field views.
const (
	AuditColumnID        = "id"
	AuditColumnUserID    = "user_id"
	AuditColumnCreatedAt = "created_at"
	AuditColumnUpdatedAt = "updated_at"
)

// AuditColumns lists the mandatory audit columns in canonical order.
var AuditColumns = []string{
	AuditColumnID,
	AuditColumnUserID,
	AuditColumnCreatedAt,
	AuditColumnUpdatedAt,
}

// IsAuditColumn reports whether name is one of the mandatory audit columns.
func IsAuditColumn(name string) bool {
	switch name {
	case AuditColumnID, AuditColumnUserID, AuditColumnCreatedAt, AuditColumnUpdatedAt:
		return true
	}
	return false
}

// ColumnType is the enumerated physical type of a column.
type ColumnType string

// Supported physical column types.
const (
	TypeUUID        ColumnType = "uuid"
	TypeText        ColumnType = "text"
	TypeVarchar     ColumnType = "varchar"
	TypeInteger     ColumnType = "integer"
	TypeBigInt      ColumnType = "bigint"
	TypeNumeric     ColumnType = "numeric"
	TypeBoolean     ColumnType = "boolean"
	TypeDate        ColumnType = "date"
	TypeTimestampTZ ColumnType = "timestamptz"
	TypeJSONB       ColumnType = "jsonb"
)

// columnTypeSQL maps each enumerated type to its SQL spelling.
var columnTypeSQL = map[ColumnType]string{
	TypeUUID:        "uuid",
	TypeText:        "text",
	TypeVarchar:     "varchar(255)",
	TypeInteger:     "integer",
	TypeBigInt:      "bigint",
	TypeNumeric:     "numeric(12,2)",
	TypeBoolean:     "boolean",
	TypeDate:        "date",
	TypeTimestampTZ: "timestamptz",
	TypeJSONB:       "jsonb",
}

// Valid reports whether t is one of the enumerated physical types.
func (t ColumnType) Valid() bool {
	_, ok := columnTypeSQL[t]
	return ok
}

// SQL returns the SQL spelling for the type. Unknown types return the
// raw string so errors surface at validation, not compilation.
func (t ColumnType) SQL() string {
	if s, ok := columnTypeSQL[t]; ok {
		return s
	}
	return string(t)
}

// ForeignKey describes a column-level reference to another table.
type ForeignKey struct {
	Table    string `json:"table"`
	Column   string `json:"column"`
	OnDelete string `json:"on_delete,omitempty"`
}

// ColumnDefinition describes a single column of a table.
type ColumnDefinition struct {
	Name       string      `json:"name"`
	Type       ColumnType  `json:"type"`
	Nullable   bool        `json:"nullable"`
	Default    string      `json:"default,omitempty"`
	Unique     bool        `json:"unique,omitempty"`
	PrimaryKey bool        `json:"primary_key,omitempty"`
	References *ForeignKey `json:"references,omitempty"`
}

// IndexDefinition describes a declared index on a table.
type IndexDefinition struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique,omitempty"`
}

// UIHints carries presentation hints consumed by generic CRUD pages.
// The core never interprets them beyond plural-name resolution.
type UIHints struct {
	Label       string   `json:"label,omitempty"`
	PluralName  string   `json:"plural_name,omitempty"`
	Icon        string   `json:"icon,omitempty"`
	ListColumns []string `json:"list_columns,omitempty"`
}

// TableDefinition describes one entity table of a schema.
type TableDefinition struct {
	Name    string             `json:"name"`
	Columns []ColumnDefinition `json:"columns"`
	Indexes []IndexDefinition  `json:"indexes,omitempty"`
	UIHints *UIHints           `json:"ui_hints,omitempty"`
}

// Column returns the column with the given name.
func (t *TableDefinition) Column(name string) (*ColumnDefinition, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// HasColumn reports whether the table declares the named column.
func (t *TableDefinition) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// Cardinality of a relationship between two tables.
type Cardinality string

// Relationship cardinalities.
const (
	OneToOne   Cardinality = "one_to_one"
	OneToMany  Cardinality = "one_to_many"
	ManyToMany Cardinality = "many_to_many"
)

// Relationship is a declared link between two tables of the same schema.
type Relationship struct {
	FromTable   string      `json:"from_table"`
	FromColumn  string      `json:"from_column"`
	ToTable     string      `json:"to_table"`
	ToColumn    string      `json:"to_column"`
	Cardinality Cardinality `json:"cardinality,omitempty"`
}

// Schema is the declarative data model proposed by the AI collaborator
// and validated, compiled and versioned by this system.
type Schema struct {
	Version       int               `json:"version"`
	Tables        []TableDefinition `json:"tables"`
	Relationships []Relationship    `json:"relationships,omitempty"`
}

// Table returns the table with the given name.
func (s *Schema) Table(name string) (*TableDefinition, bool) {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i], true
		}
	}
	return nil, false
}

// TableNames returns the table names in schema order.
func (s *Schema) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for i := range s.Tables {
		names = append(names, s.Tables[i].Name)
	}
	return names
}

// Clone returns a deep copy of the schema via a JSON round trip.
func (s *Schema) Clone() (*Schema, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	var out Schema
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema: %w", err)
	}
	return &out, nil
}

// MustClone is Clone for schemas already known to round-trip, such as
// snapshots loaded from the version store. It panics on marshal failure,
// which would indicate a programming error.
func (s *Schema) MustClone() *Schema {
	out, err := s.Clone()
	if err != nil {
		panic(err)
	}
	return out
}

// CanonicalJSON returns the deterministic encoding of the schema.
// Struct field order is fixed by declaration, so equal schemas encode to
// equal bytes. Used for snapshots, diffing and the compiled-DDL cache key.
func (s *Schema) CanonicalJSON() ([]byte, error) {
	return json.Marshal(s)
}

// Hash returns the hex SHA-256 of the canonical encoding.
func (s *Schema) Hash() (string, error) {
	data, err := s.CanonicalJSON()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
