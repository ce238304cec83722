package flow

import (
	"encoding/json"
	"fmt"
)

// Graph is a full snapshot of the flow: nodes in display order and edges in
// insertion order.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Empty returns a graph with non-nil, empty collections.
func Empty() Graph {
	return Graph{Nodes: []Node{}, Edges: []Edge{}}
}

// IsEmpty reports whether the graph has neither nodes nor edges.
func (g Graph) IsEmpty() bool {
	return len(g.Nodes) == 0 && len(g.Edges) == 0
}

// NodeIndex returns the index of the node with the given id, or -1.
func (g Graph) NodeIndex(id string) int {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return i
		}
	}
	return -1
}

// Node looks a node up by id.
func (g Graph) Node(id string) (Node, bool) {
	if i := g.NodeIndex(id); i >= 0 {
		return g.Nodes[i], true
	}
	return Node{}, false
}

// HasEdge reports whether an edge with the given id exists.
func (g Graph) HasEdge(id string) bool {
	for i := range g.Edges {
		if g.Edges[i].ID == id {
			return true
		}
	}
	return false
}

// Clone returns a structural deep copy. Passthrough attributes are copied
// byte for byte, so mutating the clone never affects the receiver.
func (g Graph) Clone() Graph {
	out := Graph{
		Nodes: make([]Node, len(g.Nodes)),
		Edges: make([]Edge, len(g.Edges)),
	}
	for i, n := range g.Nodes {
		out.Nodes[i] = n.Clone()
	}
	for i, e := range g.Edges {
		out.Edges[i] = e.Clone()
	}
	return out
}

// Clone deep-copies the node.
func (n Node) Clone() Node {
	n.Data = n.Data.Clone()
	n.Attrs = cloneRaw(n.Attrs)
	return n
}

// Clone deep-copies the node data.
func (d NodeData) Clone() NodeData {
	d.Extra = cloneRaw(d.Extra)
	return d
}

// Clone deep-copies the edge.
func (e Edge) Clone() Edge {
	e.Attrs = cloneRaw(e.Attrs)
	return e
}

// Valid reports whether the edge names an id, a source and a target.
func (e Edge) Valid() bool {
	return e.ID != "" && e.Source != "" && e.Target != ""
}

// Normalize drops edges that lack an id, source or target. Node positions and
// labels are already defaulted while decoding.
func Normalize(g Graph) Graph {
	out := Graph{Nodes: g.Nodes, Edges: make([]Edge, 0, len(g.Edges))}
	if out.Nodes == nil {
		out.Nodes = []Node{}
	}
	for _, e := range g.Edges {
		if e.Valid() {
			out.Edges = append(out.Edges, e)
		}
	}
	return out
}

// MarshalJSON never emits null collections.
func (g Graph) MarshalJSON() ([]byte, error) {
	type wire struct {
		Nodes []Node `json:"nodes"`
		Edges []Edge `json:"edges"`
	}
	w := wire{Nodes: g.Nodes, Edges: g.Edges}
	if w.Nodes == nil {
		w.Nodes = []Node{}
	}
	if w.Edges == nil {
		w.Edges = []Edge{}
	}
	return json.Marshal(w)
}

// ParseGraph decodes a {nodes, edges} object. Both collections must be
// present as arrays; the result is normalized.
func ParseGraph(data []byte) (Graph, error) {
	var w struct {
		Nodes []Node `json:"nodes"`
		Edges []Edge `json:"edges"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return Graph{}, fmt.Errorf("decode flow: %w", err)
	}
	if w.Nodes == nil || w.Edges == nil {
		return Graph{}, fmt.Errorf("decode flow: expected nodes and edges arrays")
	}
	return Normalize(Graph{Nodes: w.Nodes, Edges: w.Edges}), nil
}

func cloneRaw(in map[string]json.RawMessage) map[string]json.RawMessage {
	if in == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(in))
	for k, v := range in {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// copyRaw is cloneRaw that always returns a writable map.
func copyRaw(in map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(in)+4)
	for k, v := range in {
		out[k] = v
	}
	return out
}
