package flow

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"time"
)

const exportComment = "Полная схема: все узлы и связи. Редактируйте в текстовом редакторе и загрузите через Импорт."

// Document is the export file format.
type Document struct {
	Comment    string    `json:"_comment,omitempty"`
	Nodes      []Node    `json:"nodes"`
	Edges      []Edge    `json:"edges"`
	ExportedAt time.Time `json:"exportedAt"`
}

// Export wraps a copy of g in an export document stamped with at.
func Export(g Graph, at time.Time) Document {
	c := g.Clone()
	return Document{
		Comment:    exportComment,
		Nodes:      c.Nodes,
		Edges:      c.Edges,
		ExportedAt: at.UTC(),
	}
}

// Marshal renders the document as indented JSON.
func (d Document) Marshal() ([]byte, error) {
	if d.Nodes == nil {
		d.Nodes = []Node{}
	}
	if d.Edges == nil {
		d.Edges = []Edge{}
	}
	return json.MarshalIndent(d, "", "  ")
}

// ParseDocument decodes an exported file. Unlike ParseGraph, missing
// collections are treated as empty.
func ParseDocument(data []byte) (Graph, error) {
	var w struct {
		Nodes []Node `json:"nodes"`
		Edges []Edge `json:"edges"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return Graph{}, fmt.Errorf("decode document: %w", err)
	}
	return Normalize(Graph{Nodes: w.Nodes, Edges: w.Edges}), nil
}

//go:embed seed/default.json
var seedJSON []byte

// Seed returns the built-in narrative used when nothing has been persisted.
func Seed() Graph {
	g, err := ParseGraph(seedJSON)
	if err != nil {
		panic(fmt.Sprintf("flow: embedded seed is invalid: %v", err))
	}
	return g
}
