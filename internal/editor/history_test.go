package editor

import (
	"fmt"
	"testing"

	"gameflow/internal/domain/flow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func graphOf(ids ...string) flow.Graph {
	g := flow.Empty()
	for _, id := range ids {
		g.Nodes = append(g.Nodes, flow.Node{ID: id, Data: flow.NodeData{Label: id}})
	}
	return g
}

func TestHistory(t *testing.T) {
	t.Run("Should start empty", func(t *testing.T) {
		h := NewHistory(0)
		assert.False(t, h.CanUndo())
		assert.False(t, h.CanRedo())

		_, ok := h.Undo(graphOf("a"))
		assert.False(t, ok)
		_, ok = h.Redo(graphOf("a"))
		assert.False(t, ok)
	})

	t.Run("Should undo n snapshots back to the initial state", func(t *testing.T) {
		h := NewHistory(DefaultHistorySize)
		current := graphOf()
		initial := current.Clone()
		for i := 0; i < 5; i++ {
			h.Snapshot(current)
			current = graphOf(append(idsOf(current), fmt.Sprint(i))...)
		}
		for i := 0; i < 5; i++ {
			prev, ok := h.Undo(current)
			require.True(t, ok)
			current = prev
		}
		assert.Equal(t, initial, current)
		assert.False(t, h.CanUndo())
		assert.True(t, h.CanRedo())
	})

	t.Run("Should return to the same state after k undos and k redos", func(t *testing.T) {
		h := NewHistory(DefaultHistorySize)
		current := graphOf()
		for i := 0; i < 6; i++ {
			h.Snapshot(current)
			current = graphOf(append(idsOf(current), fmt.Sprint(i))...)
		}
		want := current.Clone()

		for k := 0; k < 4; k++ {
			current, _ = h.Undo(current)
		}
		for k := 0; k < 4; k++ {
			var ok bool
			current, ok = h.Redo(current)
			require.True(t, ok)
		}
		assert.Equal(t, want, current)
		assert.False(t, h.CanRedo())
	})

	t.Run("Should bound the undo stack", func(t *testing.T) {
		h := NewHistory(DefaultHistorySize)
		current := graphOf()
		for i := 0; i < DefaultHistorySize+10; i++ {
			h.Snapshot(current)
			current = graphOf(fmt.Sprint(i))
		}
		past, _ := h.Depth()
		assert.Equal(t, DefaultHistorySize, past)

		// The oldest surviving snapshot is the state after the tenth edit.
		var g flow.Graph
		for h.CanUndo() {
			g, _ = h.Undo(current)
			current = g
		}
		assert.Equal(t, graphOf("9"), current)
	})

	t.Run("Should clear redo on a new snapshot", func(t *testing.T) {
		h := NewHistory(DefaultHistorySize)
		h.Snapshot(graphOf())
		_, _ = h.Undo(graphOf("a"))
		require.True(t, h.CanRedo())

		h.Snapshot(graphOf())
		assert.False(t, h.CanRedo())
	})

	t.Run("Should isolate snapshots from later mutation", func(t *testing.T) {
		h := NewHistory(DefaultHistorySize)
		g := graphOf("a")
		h.Snapshot(g)
		g.Nodes[0].Data.Label = "mutated"

		prev, ok := h.Undo(g)
		require.True(t, ok)
		assert.Equal(t, "a", prev.Nodes[0].Data.Label)
	})
}

func idsOf(g flow.Graph) []string {
	ids := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		ids = append(ids, n.ID)
	}
	return ids
}

func TestStore(t *testing.T) {
	changes := 0
	s := NewStore(flow.Graph{
		Nodes: []flow.Node{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		Edges: []flow.Edge{
			{ID: "eab", Source: "a", Target: "b"},
			{ID: "ebc", Source: "b", Target: "c"},
		},
	})
	s.OnChange(func() { changes++ })

	assert.True(t, s.HasConnection("a", "b"))
	assert.False(t, s.HasConnection("b", "a"))

	require.True(t, s.RemoveNode("b"))
	nodes, edges := s.Len()
	assert.Equal(t, 2, nodes)
	assert.Equal(t, 0, edges)
	assert.False(t, s.RemoveNode("b"))

	assert.True(t, s.SetField("a", flow.FieldComment, "note"))
	assert.False(t, s.SetField("a", flow.Field("description"), "x"))
	n, _ := s.Node("a")
	assert.Equal(t, "note", n.Data.Comment)

	s.AddEdge(flow.Edge{ID: "eac", Source: "a", Target: "c"})
	assert.True(t, s.RemoveEdge("eac"))
	assert.False(t, s.RemoveEdge("eac"))

	assert.Equal(t, 4, changes)
}
