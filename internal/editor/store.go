// Package editor holds the client-side editing model: the graph store, the
// undo/redo history and the Session that ties them to autosave and live sync.
package editor

import (
	"gameflow/internal/domain/flow"
)

// Store is the in-memory graph being edited. It is not safe for concurrent
// use; Session serializes access.
type Store struct {
	graph    flow.Graph
	onChange func()
}

// NewStore creates a store holding a copy of g.
func NewStore(g flow.Graph) *Store {
	return &Store{graph: flow.Normalize(g.Clone())}
}

// OnChange registers the callback fired after every mutation.
func (s *Store) OnChange(fn func()) {
	s.onChange = fn
}

// Graph returns a deep copy of the current graph.
func (s *Store) Graph() flow.Graph {
	return s.graph.Clone()
}

// Node returns a copy of the node with the given id.
func (s *Store) Node(id string) (flow.Node, bool) {
	n, ok := s.graph.Node(id)
	if !ok {
		return flow.Node{}, false
	}
	return n.Clone(), true
}

// Len returns the number of nodes and edges.
func (s *Store) Len() (nodes, edges int) {
	return len(s.graph.Nodes), len(s.graph.Edges)
}

// Replace swaps in a whole new graph.
func (s *Store) Replace(g flow.Graph) {
	s.graph = flow.Normalize(g.Clone())
	s.changed()
}

// AddNode appends a node.
func (s *Store) AddNode(n flow.Node) {
	s.graph.Nodes = append(s.graph.Nodes, n.Clone())
	s.changed()
}

// RemoveNode deletes a node and every edge touching it.
func (s *Store) RemoveNode(id string) bool {
	i := s.graph.NodeIndex(id)
	if i < 0 {
		return false
	}
	s.graph.Nodes = append(s.graph.Nodes[:i:i], s.graph.Nodes[i+1:]...)

	kept := make([]flow.Edge, 0, len(s.graph.Edges))
	for _, e := range s.graph.Edges {
		if e.Source != id && e.Target != id {
			kept = append(kept, e)
		}
	}
	s.graph.Edges = kept
	s.changed()
	return true
}

// AddEdge appends an edge.
func (s *Store) AddEdge(e flow.Edge) {
	s.graph.Edges = append(s.graph.Edges, e.Clone())
	s.changed()
}

// RemoveEdge deletes the edge with the given id.
func (s *Store) RemoveEdge(id string) bool {
	for i := range s.graph.Edges {
		if s.graph.Edges[i].ID == id {
			s.graph.Edges = append(s.graph.Edges[:i:i], s.graph.Edges[i+1:]...)
			s.changed()
			return true
		}
	}
	return false
}

// HasConnection reports whether an edge already links source to target.
func (s *Store) HasConnection(source, target string) bool {
	for _, e := range s.graph.Edges {
		if e.Source == source && e.Target == target {
			return true
		}
	}
	return false
}

// SetField updates one text field of a node's data.
func (s *Store) SetField(id string, field flow.Field, value string) bool {
	i := s.graph.NodeIndex(id)
	if i < 0 {
		return false
	}
	d := &s.graph.Nodes[i].Data
	switch field {
	case flow.FieldLabel:
		d.Label = value
	case flow.FieldComment:
		d.Comment = value
	default:
		return false
	}
	s.changed()
	return true
}

// SetNodes replaces the node list, keeping edges.
func (s *Store) SetNodes(nodes []flow.Node) {
	g := flow.Graph{Nodes: nodes, Edges: s.graph.Edges}
	s.graph = g.Clone()
	s.changed()
}

func (s *Store) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}
