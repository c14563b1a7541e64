// Package dag provides the directed graph over foreign-key edges between
// tables. It supports cycle detection and reference-depth computation,
// both consumed by the schema validator.
package dag

import (
	"fmt"
	"sort"

	"github.com/schemaforge-labs/schemaforge/pkg/core"
)

// Node represents one table in the graph.
type Node struct {
	// ID is the table name, unique within the schema.
	ID string
	// Table is the table definition, if known.
	Table *core.TableDefinition
}

// Graph is a directed graph where an edge A -> B means table B holds a
// foreign key referencing table A.
type Graph struct {
	nodes   map[string]*Node
	edges   map[string][]string // referenced table -> referencing tables
	parents map[string][]string // referencing table -> referenced tables
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:   make(map[string]*Node),
		edges:   make(map[string][]string),
		parents: make(map[string][]string),
	}
}

// FromSchema builds the foreign-key graph of a schema. Edges are added
// for column references and declared relationships; references to
// unknown tables are skipped (the validator reports those separately).
func FromSchema(s *core.Schema) *Graph {
	g := NewGraph()
	for i := range s.Tables {
		t := &s.Tables[i]
		g.AddNode(t.Name, t)
	}
	for i := range s.Tables {
		t := &s.Tables[i]
		for j := range t.Columns {
			ref := t.Columns[j].References
			if ref == nil {
				continue
			}
			if _, ok := g.nodes[ref.Table]; ok && ref.Table != t.Name {
				_ = g.AddEdge(ref.Table, t.Name)
			}
		}
	}
	for _, rel := range s.Relationships {
		_, fromOK := g.nodes[rel.FromTable]
		_, toOK := g.nodes[rel.ToTable]
		if fromOK && toOK && rel.FromTable != rel.ToTable {
			_ = g.AddEdge(rel.ToTable, rel.FromTable)
		}
	}
	return g
}

// AddNode adds a node to the graph, updating the definition if present.
func (g *Graph) AddNode(id string, table *core.TableDefinition) {
	if _, exists := g.nodes[id]; !exists {
		g.nodes[id] = &Node{ID: id, Table: table}
		g.edges[id] = []string{}
		g.parents[id] = []string{}
		return
	}
	g.nodes[id].Table = table
}

// AddEdge adds a directed edge from the referenced table to the
// referencing table.
func (g *Graph) AddEdge(referencedID, referencingID string) error {
	if _, exists := g.nodes[referencedID]; !exists {
		return fmt.Errorf("referenced table %q does not exist", referencedID)
	}
	if _, exists := g.nodes[referencingID]; !exists {
		return fmt.Errorf("referencing table %q does not exist", referencingID)
	}
	if referencedID == referencingID {
		return fmt.Errorf("self-reference detected: %s", referencedID)
	}

	if !contains(g.edges[referencedID], referencingID) {
		g.edges[referencedID] = append(g.edges[referencedID], referencingID)
	}
	if !contains(g.parents[referencingID], referencedID) {
		g.parents[referencingID] = append(g.parents[referencingID], referencedID)
	}
	return nil
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, children := range g.edges {
		count += len(children)
	}
	return count
}

// HasCycle returns true if the graph contains a cycle, along with the
// cycle path for error reporting. Detection is depth-first search with
// recursion-stack tracking.
func (g *Graph) HasCycle() (bool, []string) {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	path := make(map[string]string)

	var cyclePath []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		recStack[id] = true

		for _, childID := range g.edges[id] {
			if !visited[childID] {
				path[childID] = id
				if dfs(childID) {
					return true
				}
			} else if recStack[childID] {
				// Found cycle, reconstruct path
				cyclePath = []string{childID}
				for curr := id; curr != childID; curr = path[curr] {
					cyclePath = append([]string{curr}, cyclePath...)
				}
				cyclePath = append([]string{childID}, cyclePath...)
				return true
			}
		}

		recStack[id] = false
		return false
	}

	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if !visited[id] {
			if dfs(id) {
				return true, cyclePath
			}
		}
	}

	return false, nil
}

// ReferenceDepths groups tables by foreign-key reference depth. Depth 0
// holds tables referencing nothing; a table's depth is one more than the
// deepest table it references. Returns an error on cycles.
func (g *Graph) ReferenceDepths() ([][]string, error) {
	if hasCycle, cyclePath := g.HasCycle(); hasCycle {
		return nil, fmt.Errorf("cycle detected: %v", cyclePath)
	}

	assigned := make(map[string]int)

	var depthOf func(id string) int
	depthOf = func(id string) int {
		if d, ok := assigned[id]; ok {
			return d
		}

		parents := g.parents[id]
		if len(parents) == 0 {
			assigned[id] = 0
			return 0
		}

		maxParent := 0
		for _, parentID := range parents {
			if d := depthOf(parentID); d > maxParent {
				maxParent = d
			}
		}

		assigned[id] = maxParent + 1
		return maxParent + 1
	}

	maxDepth := 0
	for id := range g.nodes {
		if d := depthOf(id); d > maxDepth {
			maxDepth = d
		}
	}

	levels := make([][]string, maxDepth+1)
	for id, d := range assigned {
		levels[d] = append(levels[d], id)
	}
	for i := range levels {
		sort.Strings(levels[i])
	}

	return levels, nil
}

// MaxDepth returns the deepest foreign-key reference chain length.
// An empty graph has depth 0.
func (g *Graph) MaxDepth() (int, error) {
	levels, err := g.ReferenceDepths()
	if err != nil {
		return 0, err
	}
	if len(levels) == 0 {
		return 0, nil
	}
	return len(levels) - 1, nil
}

// contains checks if a slice contains a string.
func contains(slice []string, str string) bool {
	for _, s := range slice {
		if s == str {
			return true
		}
	}
	return false
}
