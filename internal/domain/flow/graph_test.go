package flow

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleGraph() Graph {
	return Graph{
		Nodes: []Node{
			{ID: "a", Position: Position{X: 1, Y: 2}, Data: NodeData{Label: "A", Extra: map[string]json.RawMessage{"k": json.RawMessage(`"v"`)}}},
			{ID: "b", Data: NodeData{Label: "B"}, Attrs: map[string]json.RawMessage{"style": json.RawMessage(`{"w":1}`)}},
		},
		Edges: []Edge{{ID: "ea-b", Source: "a", Target: "b"}},
	}
}

func TestCloneIsIndependent(t *testing.T) {
	g := sampleGraph()
	c := g.Clone()
	require.Equal(t, g, c)

	c.Nodes[0].Data.Label = "changed"
	c.Nodes[0].Data.Extra["k"][1] = 'X'
	c.Nodes[1].Attrs["style"] = json.RawMessage(`{}`)
	c.Edges[0].Target = "z"

	assert.Equal(t, "A", g.Nodes[0].Data.Label)
	assert.Equal(t, json.RawMessage(`"v"`), g.Nodes[0].Data.Extra["k"])
	assert.Equal(t, json.RawMessage(`{"w":1}`), g.Nodes[1].Attrs["style"])
	assert.Equal(t, "b", g.Edges[0].Target)
}

func TestNormalizeDropsIncompleteEdges(t *testing.T) {
	g := Graph{
		Edges: []Edge{
			{ID: "ok", Source: "a", Target: "b"},
			{ID: "", Source: "a", Target: "b"},
			{ID: "no-source", Target: "b"},
			{ID: "no-target", Source: "a"},
		},
	}
	out := Normalize(g)
	require.Len(t, out.Edges, 1)
	assert.Equal(t, "ok", out.Edges[0].ID)
	assert.NotNil(t, out.Nodes)
}

func TestParseGraph(t *testing.T) {
	t.Run("requires both arrays", func(t *testing.T) {
		_, err := ParseGraph([]byte(`{"nodes":[]}`))
		assert.Error(t, err)
		_, err = ParseGraph([]byte(`{"nodes":null,"edges":[]}`))
		assert.Error(t, err)
		_, err = ParseGraph([]byte(`{"nodes":{},"edges":[]}`))
		assert.Error(t, err)
	})

	t.Run("empty arrays are fine", func(t *testing.T) {
		g, err := ParseGraph([]byte(`{"nodes":[],"edges":[]}`))
		require.NoError(t, err)
		assert.True(t, g.IsEmpty())
	})

	t.Run("marshal never emits null", func(t *testing.T) {
		out, err := json.Marshal(Graph{})
		require.NoError(t, err)
		assert.JSONEq(t, `{"nodes":[],"edges":[]}`, string(out))
	})
}

func TestLookup(t *testing.T) {
	g := sampleGraph()
	assert.Equal(t, 1, g.NodeIndex("b"))
	assert.Equal(t, -1, g.NodeIndex("zz"))
	n, ok := g.Node("a")
	require.True(t, ok)
	assert.Equal(t, "A", n.Data.Label)
	assert.True(t, g.HasEdge("ea-b"))
	assert.False(t, g.HasEdge("nope"))
}

func TestDocumentRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	doc := Export(sampleGraph(), at)
	data, err := doc.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"exportedAt": "2026-03-01T12:00:00Z"`)

	g, err := ParseDocument(data)
	require.NoError(t, err)
	want, err := json.Marshal(sampleGraph())
	require.NoError(t, err)
	got, err := json.Marshal(g)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(got))

	g, err = ParseDocument([]byte(`{"nodes":[{"id":"x"}]}`))
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 1)
	assert.Empty(t, g.Edges)
	assert.Equal(t, DefaultLabel, g.Nodes[0].Data.Label)
}

func TestSeed(t *testing.T) {
	g := Seed()
	assert.Len(t, g.Nodes, 20)
	assert.Len(t, g.Edges, 19)
	root, ok := g.Node("1")
	require.True(t, ok)
	assert.Equal(t, "Ворота в новую жизнь", root.Data.Label)
	assert.Equal(t, "Сцена 1", root.Data.SceneNumber)
}
