package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"gameflow/internal/domain/flow"
	"gameflow/internal/domain/layout"
	"gameflow/internal/persistence"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu       sync.Mutex
	stored   *flow.Graph
	fetchErr error
	saves    []flow.Graph
}

func (f *fakeAPI) Fetch(context.Context) (flow.Graph, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return flow.Graph{}, f.fetchErr
	}
	if f.stored == nil {
		return flow.Graph{}, persistence.ErrNoSnapshot
	}
	return f.stored.Clone(), nil
}

func (f *fakeAPI) Save(_ context.Context, g flow.Graph) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, g.Clone())
	return nil
}

func (f *fakeAPI) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saves)
}

func (f *fakeAPI) lastSave() flow.Graph {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves[len(f.saves)-1]
}

const saveDelay = 20 * time.Millisecond

func newTestSession(t *testing.T, api *fakeAPI, initial flow.Graph) *Session {
	t.Helper()
	seq := 0
	s := NewSession(Config{
		SaveDelay:          saveDelay,
		RemoteHintDuration: 40 * time.Millisecond,
		Initial:            &initial,
	}, Deps{
		API: api,
		NewID: func() string {
			seq++
			return fmt.Sprintf("node-%d", seq)
		},
	})
	t.Cleanup(func() { s.Close() })
	return s
}

func twoNodes() flow.Graph {
	return flow.Graph{
		Nodes: []flow.Node{
			{ID: "a", Position: flow.Position{X: 0, Y: 0}, Data: flow.NodeData{Label: "A"}},
			{ID: "b", Position: flow.Position{X: 200, Y: 140}, Data: flow.NodeData{Label: "B"}},
		},
		Edges: []flow.Edge{},
	}
}

func TestSession_Start(t *testing.T) {
	t.Run("Should replace the graph with the persisted one without echoing it", func(t *testing.T) {
		stored := graphOf("x", "y")
		api := &fakeAPI{stored: &stored}
		s := newTestSession(t, api, twoNodes())

		require.NoError(t, s.Start(context.Background()))
		assert.Equal(t, persistence.LoadLoaded, s.State().Load)
		assert.Equal(t, idsOf(stored), idsOf(s.Graph()))

		time.Sleep(4 * saveDelay)
		assert.Equal(t, 0, api.saveCount())
	})

	t.Run("Should keep and persist the default graph when nothing is stored", func(t *testing.T) {
		api := &fakeAPI{}
		s := newTestSession(t, api, twoNodes())

		require.NoError(t, s.Start(context.Background()))
		assert.Equal(t, persistence.LoadLoaded, s.State().Load)
		assert.Eventually(t, func() bool { return api.saveCount() == 1 }, time.Second, time.Millisecond)
		assert.Equal(t, idsOf(twoNodes()), idsOf(api.lastSave()))
	})

	t.Run("Should stay offline when the server is unreachable", func(t *testing.T) {
		api := &fakeAPI{fetchErr: errors.New("connection refused")}
		s := newTestSession(t, api, twoNodes())

		require.Error(t, s.Start(context.Background()))
		assert.Equal(t, persistence.LoadError, s.State().Load)

		_, err := s.AddNode("offline", "", "")
		require.NoError(t, err)
		time.Sleep(4 * saveDelay)
		assert.Equal(t, 0, api.saveCount())
	})
}

func TestSession_AddNode(t *testing.T) {
	t.Run("Should place below the lowest node centered on the rest", func(t *testing.T) {
		s := newTestSession(t, &fakeAPI{}, twoNodes())

		n, err := s.AddNode("  Scene  ", " note ", flow.NodeTypeChoice)
		require.NoError(t, err)

		assert.Equal(t, "node-1", n.ID)
		assert.Equal(t, "Scene", n.Data.Label)
		assert.Equal(t, "note", n.Data.Comment)
		assert.Equal(t, flow.NodeTypeChoice, n.Data.NodeType)
		assert.Equal(t, flow.Position{X: 100 - layout.NodeWidth/2, Y: 140 + layout.NodeHeight + layout.GapY}, n.Position)
		assert.True(t, s.State().CanUndo)
	})

	t.Run("Should default label and type", func(t *testing.T) {
		s := newTestSession(t, &fakeAPI{}, flow.Empty())

		n, err := s.AddNode("   ", "", "")
		require.NoError(t, err)
		assert.Equal(t, NewNodeLabel, n.Data.Label)
		assert.Equal(t, flow.NodeTypeMainScene, n.Data.NodeType)
		assert.Equal(t, flow.Position{X: -110, Y: 140}, n.Position)
	})

	t.Run("Should reject an unknown node type", func(t *testing.T) {
		s := newTestSession(t, &fakeAPI{}, flow.Empty())

		_, err := s.AddNode("x", "", flow.NodeType("boss"))
		assert.ErrorIs(t, err, ErrInvalidNodeType)
		assert.False(t, s.State().CanUndo)
	})
}

func TestSession_Edges(t *testing.T) {
	s := newTestSession(t, &fakeAPI{}, twoNodes())

	e, err := s.Connect("a", "b")
	require.NoError(t, err)
	assert.Equal(t, "ea-b", e.ID)

	_, err = s.Connect("a", "b")
	assert.ErrorIs(t, err, ErrDuplicateEdge)
	_, err = s.Connect("a", "nope")
	assert.ErrorIs(t, err, ErrUnknownNode)

	assert.True(t, s.DeleteEdge("ea-b"))
	assert.False(t, s.DeleteEdge("ea-b"))
	assert.Empty(t, s.Graph().Edges)

	require.True(t, s.Undo())
	assert.Len(t, s.Graph().Edges, 1)
}

func TestSession_Selection(t *testing.T) {
	t.Run("Should edit the selected node without a history entry", func(t *testing.T) {
		s := newTestSession(t, &fakeAPI{}, twoNodes())

		assert.ErrorIs(t, s.UpdateSelected(flow.FieldLabel, "x"), ErrNoSelection)
		assert.ErrorIs(t, s.Select("nope"), ErrUnknownNode)

		require.NoError(t, s.Select("a"))
		require.NoError(t, s.UpdateSelected(flow.FieldLabel, "Renamed"))
		require.NoError(t, s.UpdateSelected(flow.FieldComment, "why"))
		assert.ErrorIs(t, s.UpdateSelected(flow.Field("nodeType"), "x"), ErrUnknownField)

		n, ok := s.Selected()
		require.True(t, ok)
		assert.Equal(t, "Renamed", n.Data.Label)
		assert.Equal(t, "why", n.Data.Comment)
		assert.False(t, s.State().CanUndo)
	})

	t.Run("Should delete the selected node with its edges", func(t *testing.T) {
		s := newTestSession(t, &fakeAPI{}, twoNodes())
		_, err := s.Connect("a", "b")
		require.NoError(t, err)

		assert.False(t, s.DeleteSelected())
		require.NoError(t, s.Select("b"))
		assert.True(t, s.DeleteSelected())

		g := s.Graph()
		assert.Equal(t, []string{"a"}, idsOf(g))
		assert.Empty(t, g.Edges)
		assert.Empty(t, s.State().Selected)
	})

	t.Run("Should clear the selection on undo", func(t *testing.T) {
		s := newTestSession(t, &fakeAPI{}, twoNodes())
		_, err := s.AddNode("c", "", "")
		require.NoError(t, err)
		require.NoError(t, s.Select("a"))

		require.True(t, s.Undo())
		assert.Empty(t, s.State().Selected)
		assert.Equal(t, idsOf(twoNodes()), idsOf(s.Graph()))
		assert.True(t, s.State().CanRedo)

		require.True(t, s.Redo())
		assert.Len(t, s.Graph().Nodes, 3)
	})
}

func TestSession_ClearAllAndUndo(t *testing.T) {
	s := newTestSession(t, &fakeAPI{}, twoNodes())

	s.ClearAll()
	assert.True(t, s.Graph().IsEmpty())

	require.True(t, s.Undo())
	assert.Equal(t, twoNodes(), s.Graph())
	assert.False(t, s.Undo())
}

func TestSession_Align(t *testing.T) {
	t.Run("Should lay out an acyclic graph", func(t *testing.T) {
		s := newTestSession(t, &fakeAPI{}, twoNodes())
		_, err := s.Connect("a", "b")
		require.NoError(t, err)

		require.NoError(t, s.Align())
		g := s.Graph()
		assert.Equal(t, flow.Position{X: 0, Y: 0}, g.Nodes[0].Position)
		assert.Equal(t, flow.Position{X: 0, Y: layout.NodeHeight + layout.GapY}, g.Nodes[1].Position)
	})

	t.Run("Should refuse a cyclic graph", func(t *testing.T) {
		s := newTestSession(t, &fakeAPI{}, twoNodes())
		_, err := s.Connect("a", "b")
		require.NoError(t, err)
		_, err = s.Connect("b", "a")
		require.NoError(t, err)
		before := s.Graph()

		assert.ErrorIs(t, s.Align(), layout.ErrCycle)
		assert.Equal(t, before, s.Graph())
	})
}

func TestSession_Autosave(t *testing.T) {
	api := &fakeAPI{stored: &flow.Graph{Nodes: []flow.Node{}, Edges: []flow.Edge{}}}
	s := newTestSession(t, api, twoNodes())
	require.NoError(t, s.Start(context.Background()))

	for i := 0; i < 3; i++ {
		_, err := s.AddNode(fmt.Sprint(i), "", "")
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return api.saveCount() == 1 }, time.Second, time.Millisecond)
	assert.Len(t, api.lastSave().Nodes, 3)
	assert.Eventually(t, func() bool { return s.State().Save == persistence.SaveSaved }, time.Second, time.Millisecond)

	require.True(t, s.Undo())
	time.Sleep(4 * saveDelay)
	assert.Equal(t, 1, api.saveCount())
}

func TestSession_ApplyRemote(t *testing.T) {
	t.Run("Should keep the selected node's local data", func(t *testing.T) {
		api := &fakeAPI{stored: ptr(twoNodes())}
		s := newTestSession(t, api, flow.Empty())
		require.NoError(t, s.Start(context.Background()))

		require.NoError(t, s.Select("a"))
		require.NoError(t, s.UpdateSelected(flow.FieldLabel, "A-local"))

		remote := twoNodes()
		remote.Nodes[0].Data.Label = "A-remote"
		remote.Nodes[1].Data.Label = "B-remote"
		s.ApplyRemote(remote)

		g := s.Graph()
		assert.Equal(t, "A-local", g.Nodes[0].Data.Label)
		assert.Equal(t, "B-remote", g.Nodes[1].Data.Label)
		assert.Equal(t, "a", s.State().Selected)
		assert.True(t, s.State().RemoteUpdate)

		assert.Eventually(t, func() bool { return !s.State().RemoteUpdate }, time.Second, 5*time.Millisecond)
	})

	t.Run("Should drop a selection that vanished remotely", func(t *testing.T) {
		s := newTestSession(t, &fakeAPI{}, twoNodes())
		require.NoError(t, s.Select("b"))

		s.ApplyRemote(graphOf("a"))
		assert.Empty(t, s.State().Selected)
	})

	t.Run("Should not echo a remote merge but save later edits", func(t *testing.T) {
		api := &fakeAPI{stored: ptr(twoNodes())}
		s := newTestSession(t, api, flow.Empty())
		require.NoError(t, s.Start(context.Background()))

		s.ApplyRemote(graphOf("r1", "r2"))
		time.Sleep(4 * saveDelay)
		assert.Equal(t, 0, api.saveCount())

		_, err := s.AddNode("mine", "", "")
		require.NoError(t, err)
		require.Eventually(t, func() bool { return api.saveCount() == 1 }, time.Second, time.Millisecond)
		assert.Len(t, api.lastSave().Nodes, 3)
	})

	t.Run("Should publish connection changes", func(t *testing.T) {
		s := newTestSession(t, &fakeAPI{}, twoNodes())

		var mu sync.Mutex
		var seen []bool
		unsubscribe := s.Subscribe(func(st State) {
			mu.Lock()
			seen = append(seen, st.Connected)
			mu.Unlock()
		})

		s.ConnectionChanged(true)
		s.ConnectionChanged(true)
		s.ConnectionChanged(false)
		unsubscribe()
		s.ConnectionChanged(true)

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []bool{true, false}, seen)
	})
}

func TestSession_ExportImport(t *testing.T) {
	s := newTestSession(t, &fakeAPI{}, twoNodes())

	data, err := s.Export(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"exportedAt": "2024-05-01T12:00:00Z"`)

	s.ClearAll()
	require.NoError(t, s.Import(data))
	assert.Equal(t, twoNodes(), s.Graph())
	assert.True(t, s.State().CanUndo)

	assert.Error(t, s.Import([]byte(`not json`)))
}

func TestSession_UndoPersists(t *testing.T) {
	t.Run("Should save the undone graph on close", func(t *testing.T) {
		stored := twoNodes()
		api := &fakeAPI{stored: &stored}
		s := newTestSession(t, api, flow.Empty())
		require.NoError(t, s.Start(context.Background()))

		_, err := s.AddNode("C", "", "")
		require.NoError(t, err)
		assert.Eventually(t, func() bool { return api.saveCount() == 1 }, time.Second, time.Millisecond)
		assert.Len(t, api.lastSave().Nodes, 3)

		require.True(t, s.Undo())
		time.Sleep(4 * saveDelay)
		assert.Equal(t, 1, api.saveCount())

		require.NoError(t, s.Close())
		require.Equal(t, 2, api.saveCount())
		assert.Equal(t, idsOf(twoNodes()), idsOf(api.lastSave()))
	})

	t.Run("Should save the undone graph with the next edit", func(t *testing.T) {
		stored := twoNodes()
		api := &fakeAPI{stored: &stored}
		s := newTestSession(t, api, flow.Empty())
		require.NoError(t, s.Start(context.Background()))

		require.NoError(t, s.Select("a"))
		require.True(t, s.DeleteSelected())
		assert.Eventually(t, func() bool { return api.saveCount() == 1 }, time.Second, time.Millisecond)
		require.True(t, s.Undo())

		require.NoError(t, s.Select("b"))
		require.NoError(t, s.UpdateSelected(flow.FieldLabel, "B2"))
		assert.Eventually(t, func() bool { return api.saveCount() == 2 }, time.Second, time.Millisecond)
		assert.Equal(t, []string{"a", "b"}, idsOf(api.lastSave()))
		assert.Eventually(t, func() bool { return !s.saver.Dirty() }, time.Second, time.Millisecond)

		require.NoError(t, s.Close())
		assert.Equal(t, 2, api.saveCount())
	})

	t.Run("Should persist the default graph when undo ran before start", func(t *testing.T) {
		api := &fakeAPI{}
		s := newTestSession(t, api, twoNodes())
		_, err := s.AddNode("C", "", "")
		require.NoError(t, err)
		require.True(t, s.Undo())

		require.NoError(t, s.Start(context.Background()))
		assert.Eventually(t, func() bool { return api.saveCount() == 1 }, time.Second, time.Millisecond)
		assert.Equal(t, idsOf(twoNodes()), idsOf(api.lastSave()))
	})

	t.Run("Should not save on close when the load failed", func(t *testing.T) {
		api := &fakeAPI{fetchErr: errors.New("offline")}
		s := newTestSession(t, api, twoNodes())
		_, err := s.AddNode("C", "", "")
		require.NoError(t, err)
		require.True(t, s.Undo())

		assert.Error(t, s.Start(context.Background()))
		require.NoError(t, s.Close())
		assert.Equal(t, 0, api.saveCount())
	})
}

func TestSession_Close(t *testing.T) {
	s := newTestSession(t, &fakeAPI{}, twoNodes())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Start(context.Background()), ErrClosed)

	s.ApplyRemote(graphOf("x"))
	assert.Equal(t, idsOf(twoNodes()), idsOf(s.Graph()))
}

func ptr(g flow.Graph) *flow.Graph { return &g }
