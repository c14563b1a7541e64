// Package registry holds the in-memory catalog of provisioned entities.
// Generic CRUD consumers resolve entities and field views here instead
// of carrying per-entity code.
package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/schemaforge-labs/schemaforge/pkg/core"
)

// Entry wraps a registered entity with registration timestamps.
type Entry struct {
	Resource  *core.CompiledEntity `json:"resource"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// ResourceRegistry is a thread-safe catalog of compiled entities keyed
// by singular name, with a secondary plural-name index for routing.
type ResourceRegistry struct {
	mu       sync.RWMutex
	byName   map[string]*Entry
	byPlural map[string]string
	logger   *slog.Logger
}

// New creates an empty registry. A nil logger discards output.
func New(logger *slog.Logger) *ResourceRegistry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ResourceRegistry{
		byName:   make(map[string]*Entry),
		byPlural: make(map[string]string),
		logger:   logger,
	}
}

// Register adds or replaces an entity. Re-registering an existing name
// overwrites the resource, preserves CreatedAt and logs a warning, so
// accidental double publishes are visible but not fatal.
func (r *ResourceRegistry) Register(resource *core.CompiledEntity) error {
	if resource == nil {
		return fmt.Errorf("resource is nil")
	}
	if resource.Name == "" {
		return fmt.Errorf("resource name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := r.byName[resource.Name]; ok {
		r.logger.Warn("overwriting registered resource", "name", resource.Name)
		delete(r.byPlural, existing.Resource.PluralName)
		existing.Resource = resource
		existing.UpdatedAt = now
	} else {
		r.byName[resource.Name] = &Entry{Resource: resource, CreatedAt: now, UpdatedAt: now}
	}
	if resource.PluralName != "" {
		r.byPlural[resource.PluralName] = resource.Name
	}
	return nil
}

// Unregister removes an entity by name. Unknown names are a no-op.
func (r *ResourceRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.byName[name]; ok {
		delete(r.byPlural, entry.Resource.PluralName)
		delete(r.byName, name)
	}
}

// Get retrieves an entity by its singular name.
func (r *ResourceRegistry) Get(name string) (*core.CompiledEntity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return entry.Resource, true
}

// GetByPluralName retrieves an entity by its plural name, the form
// routing layers see in URLs.
func (r *ResourceRegistry) GetByPluralName(plural string) (*core.CompiledEntity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.byPlural[plural]
	if !ok {
		return nil, false
	}
	entry, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return entry.Resource, true
}

// GetAll returns all registered entities sorted by name.
func (r *ResourceRegistry) GetAll() []*core.CompiledEntity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*core.CompiledEntity, 0, len(r.byName))
	for _, entry := range r.byName {
		out = append(out, entry.Resource)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Has reports whether an entity is registered under name.
func (r *ResourceRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byName[name]
	return ok
}

// Count returns the number of registered entities.
func (r *ResourceRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// Clear removes all registered entities.
func (r *ResourceRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName = make(map[string]*Entry)
	r.byPlural = make(map[string]string)
}

// GetFormFields returns the fields a generic create/edit form should
// render: every field except the audit columns, which the database and
// triggers populate.
func (r *ResourceRegistry) GetFormFields(name string) ([]core.FieldSpec, bool) {
	resource, ok := r.Get(name)
	if !ok {
		return nil, false
	}

	fields := make([]core.FieldSpec, 0, len(resource.Fields))
	for _, f := range resource.Fields {
		if core.IsAuditColumn(f.Name) {
			continue
		}
		fields = append(fields, f)
	}
	return fields, true
}

// GetListFields returns the fields a generic list page should show. If
// the entity declares list_columns hints those are honored (unknown or
// audit names skipped); otherwise all non-audit fields are returned.
func (r *ResourceRegistry) GetListFields(name string) ([]core.FieldSpec, bool) {
	resource, ok := r.Get(name)
	if !ok {
		return nil, false
	}

	if resource.UIHints != nil && len(resource.UIHints.ListColumns) > 0 {
		byName := make(map[string]core.FieldSpec, len(resource.Fields))
		for _, f := range resource.Fields {
			byName[f.Name] = f
		}
		fields := make([]core.FieldSpec, 0, len(resource.UIHints.ListColumns))
		for _, col := range resource.UIHints.ListColumns {
			f, ok := byName[col]
			if !ok || core.IsAuditColumn(col) {
				continue
			}
			fields = append(fields, f)
		}
		return fields, true
	}

	return r.GetFormFields(name)
}

// GetRelationshipFields returns the synthetic lookup fields projected
// from the entity's relationships, for reference pickers.
func (r *ResourceRegistry) GetRelationshipFields(name string) ([]core.RelationshipField, bool) {
	resource, ok := r.Get(name)
	if !ok {
		return nil, false
	}

	fields := make([]core.RelationshipField, 0, len(resource.Relationships))
	for _, rel := range resource.Relationships {
		if rel.FromTable != name {
			continue
		}
		fields = append(fields, core.RelationshipField{
			Name:         rel.FromColumn,
			SourceTable:  rel.FromTable,
			TargetTable:  rel.ToTable,
			TargetColumn: rel.ToColumn,
			Cardinality:  rel.Cardinality,
		})
	}
	return fields, true
}

// ToJSON serializes the registry as an object keyed by resource name,
// for inspection and the resources CLI command.
func (r *ResourceRegistry) ToJSON() ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*core.CompiledEntity, len(r.byName))
	for name, entry := range r.byName {
		out[name] = entry.Resource
	}
	return json.MarshalIndent(out, "", "  ")
}

// PublishSchema atomically replaces the registry contents with the
// entities of a provisioned schema. Publication happens after
// provisioning succeeds, never before.
func (r *ResourceRegistry) PublishSchema(s *core.Schema) error {
	if s == nil {
		return fmt.Errorf("schema is nil")
	}

	entities := make([]*core.CompiledEntity, 0, len(s.Tables))
	for i := range s.Tables {
		entities = append(entities, buildEntity(s, &s.Tables[i]))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	byName := make(map[string]*Entry, len(entities))
	byPlural := make(map[string]string, len(entities))
	for _, e := range entities {
		created := now
		if prev, ok := r.byName[e.Name]; ok {
			created = prev.CreatedAt
		}
		byName[e.Name] = &Entry{Resource: e, CreatedAt: created, UpdatedAt: now}
		if e.PluralName != "" {
			byPlural[e.PluralName] = e.Name
		}
	}
	r.byName = byName
	r.byPlural = byPlural

	r.logger.Info("published schema to registry", "entities", len(entities), "version", s.Version)
	return nil
}

// buildEntity projects a table definition into its registry form.
func buildEntity(s *core.Schema, t *core.TableDefinition) *core.CompiledEntity {
	entity := &core.CompiledEntity{
		Name:       t.Name,
		PluralName: pluralize(t.Name),
		UIHints:    t.UIHints,
	}
	if t.UIHints != nil {
		entity.Label = t.UIHints.Label
		if t.UIHints.PluralName != "" {
			entity.PluralName = t.UIHints.PluralName
		}
	}

	entity.Fields = make([]core.FieldSpec, 0, len(t.Columns))
	for _, c := range t.Columns {
		entity.Fields = append(entity.Fields, core.FieldSpec{
			Name:       c.Name,
			Type:       c.Type,
			Nullable:   c.Nullable,
			Required:   !c.Nullable && c.Default == "" && !c.PrimaryKey,
			Unique:     c.Unique,
			References: c.References,
		})
	}

	for _, rel := range s.Relationships {
		if rel.FromTable == t.Name || rel.ToTable == t.Name {
			entity.Relationships = append(entity.Relationships, rel)
		}
	}
	return entity
}
