package livesync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"gameflow/internal/domain/flow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantErr   bool
		ignored   bool
		wantNodes int
		wantEdges int
	}{
		{
			name:      "Should accept a flow snapshot",
			payload:   `{"type":"flow","nodes":[{"id":"a","position":{"x":0,"y":0},"data":{"label":"A"}}],"edges":[{"id":"e1","source":"a","target":"a"}]}`,
			wantNodes: 1,
			wantEdges: 1,
		},
		{
			name:      "Should drop edges without endpoints",
			payload:   `{"type":"flow","nodes":[],"edges":[{"id":"e1","source":"a"}]}`,
			wantNodes: 0,
			wantEdges: 0,
		},
		{name: "Should reject invalid json", payload: `{"type":`, wantErr: true},
		{name: "Should reject a missing edges array", payload: `{"type":"flow","nodes":[]}`, wantErr: true},
		{name: "Should reject non-array nodes", payload: `{"type":"flow","nodes":{},"edges":[]}`, wantErr: true},
		{name: "Should ignore other message types", payload: `{"type":"ping","nodes":[],"edges":[]}`, wantErr: true, ignored: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := ParseMessage([]byte(tt.payload))
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.ignored, errors.Is(err, ErrIgnoredMessage))
				return
			}
			require.NoError(t, err)
			assert.Len(t, g.Nodes, tt.wantNodes)
			assert.Len(t, g.Edges, tt.wantEdges)
		})
	}
}

func TestMessageEncode(t *testing.T) {
	data, err := NewFlowMessage(flow.Graph{}).Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"flow","nodes":[],"edges":[]}`, string(data))
}

func TestMerge(t *testing.T) {
	remote := flow.Graph{
		Nodes: []flow.Node{
			{ID: "a", Data: flow.NodeData{Label: "B", Comment: "remote", Extra: map[string]json.RawMessage{"color": json.RawMessage(`"red"`)}}},
			{ID: "b", Position: flow.Position{X: 5, Y: 5}, Data: flow.NodeData{Label: "other"}},
		},
		Edges: []flow.Edge{{ID: "eab", Source: "a", Target: "b"}},
	}

	t.Run("Should keep local data for the selected node", func(t *testing.T) {
		local := flow.NodeData{Label: "A"}
		merged, keep := Merge(remote, "a", &local)

		assert.True(t, keep)
		n, _ := merged.Node("a")
		assert.Equal(t, "A", n.Data.Label)
		assert.Equal(t, "remote", n.Data.Comment)
		assert.JSONEq(t, `"red"`, string(n.Data.Extra["color"]))

		other, _ := merged.Node("b")
		assert.Equal(t, remote.Nodes[1], other)
		assert.Equal(t, remote.Edges, merged.Edges)
	})

	t.Run("Should keep remote fields the selected node never set", func(t *testing.T) {
		incoming := flow.Graph{Nodes: []flow.Node{{ID: "a", Data: flow.NodeData{
			Label:     "B",
			Comment:   "remote note",
			Character: "Kara",
			NodeType:  flow.NodeTypeChoice,
		}}}}
		local := flow.NodeData{Label: "A", Character: "Lena"}

		merged, _ := Merge(incoming, "a", &local)

		n, _ := merged.Node("a")
		assert.Equal(t, "A", n.Data.Label)
		assert.Equal(t, "remote note", n.Data.Comment)
		assert.Equal(t, "Lena", n.Data.Character)
		assert.Equal(t, flow.NodeTypeChoice, n.Data.NodeType)
	})

	t.Run("Should let local extra keys win", func(t *testing.T) {
		local := flow.NodeData{Label: "A", Extra: map[string]json.RawMessage{"color": json.RawMessage(`"blue"`)}}

		merged, _ := Merge(remote, "a", &local)

		n, _ := merged.Node("a")
		assert.JSONEq(t, `"blue"`, string(n.Data.Extra["color"]))
		assert.JSONEq(t, `"red"`, string(remote.Nodes[0].Data.Extra["color"]))
	})

	t.Run("Should take remote data when nothing is selected", func(t *testing.T) {
		merged, keep := Merge(remote, "", nil)
		assert.False(t, keep)
		assert.Equal(t, remote, merged)
	})

	t.Run("Should drop the selection when the node vanished remotely", func(t *testing.T) {
		local := flow.NodeData{Label: "gone"}
		merged, keep := Merge(remote, "zzz", &local)
		assert.False(t, keep)
		assert.Equal(t, remote, merged)
	})

	t.Run("Should not alias the remote graph", func(t *testing.T) {
		local := flow.NodeData{Label: "A"}
		merged, _ := Merge(remote, "a", &local)
		merged.Nodes[0].Data.Extra["color"] = json.RawMessage(`"blue"`)
		assert.JSONEq(t, `"red"`, string(remote.Nodes[0].Data.Extra["color"]))
	})
}

type recordingHandler struct {
	mu         sync.Mutex
	connection []bool
	remotes    []flow.Graph
}

func (h *recordingHandler) ConnectionChanged(connected bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connection = append(h.connection, connected)
}

func (h *recordingHandler) ApplyRemote(g flow.Graph) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remotes = append(h.remotes, g)
}

func (h *recordingHandler) snapshot() ([]bool, []flow.Graph) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]bool(nil), h.connection...), append([]flow.Graph(nil), h.remotes...)
}

type fakeConn struct {
	messages  chan []byte
	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{messages: make(chan []byte, 8), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-c.messages:
		return 1, msg, nil
	case <-c.closed:
		return 0, nil, io.EOF
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	fail  int
	dials int
}

func (d *fakeDialer) Dial(ctx context.Context, _ string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.fail > 0 {
		d.fail--
		return nil, errors.New("connection refused")
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

func TestClient_Transitions(t *testing.T) {
	h := &recordingHandler{}
	c := NewClient("ws://test/ws", &fakeDialer{}, h, time.Millisecond, nil)

	assert.Equal(t, StateDisconnected, c.State())

	c.onOpen(newFakeConn())
	assert.Equal(t, StateConnected, c.State())

	c.onMessage([]byte(`garbage`))
	c.onMessage([]byte(`{"type":"flow","nodes":[],"edges":[]}`))

	c.onClose(io.EOF)
	assert.Equal(t, StateDisconnected, c.State())

	conn, remotes := h.snapshot()
	assert.Equal(t, []bool{true, false}, conn)
	assert.Len(t, remotes, 1)
}

func TestClient_Run(t *testing.T) {
	t.Run("Should deliver snapshots and reconnect after a drop", func(t *testing.T) {
		h := &recordingHandler{}
		d := &fakeDialer{}
		c := NewClient("ws://test/ws", d, h, 10*time.Millisecond, nil)
		c.Start(context.Background())
		defer c.Close()

		require.Eventually(t, func() bool { return d.conn(0) != nil }, time.Second, time.Millisecond)
		d.conn(0).messages <- []byte(`{"type":"flow","nodes":[{"id":"x","data":{"label":"X"}}],"edges":[]}`)

		require.Eventually(t, func() bool {
			_, remotes := h.snapshot()
			return len(remotes) == 1
		}, time.Second, time.Millisecond)

		d.conn(0).Close()
		require.Eventually(t, func() bool { return d.conn(1) != nil }, time.Second, time.Millisecond)
		assert.Eventually(t, func() bool {
			conn, _ := h.snapshot()
			return len(conn) == 3
		}, time.Second, time.Millisecond)

		conn, _ := h.snapshot()
		assert.Equal(t, []bool{true, false, true}, conn)
		assert.Equal(t, StateConnected, c.State())
	})

	t.Run("Should retry failed dials", func(t *testing.T) {
		h := &recordingHandler{}
		d := &fakeDialer{fail: 2}
		c := NewClient("ws://test/ws", d, h, 5*time.Millisecond, nil)
		c.Start(context.Background())
		defer c.Close()

		assert.Eventually(t, func() bool { return c.State() == StateConnected }, time.Second, time.Millisecond)
		assert.Equal(t, 3, d.dialCount())
	})

	t.Run("Should stop reconnecting after close", func(t *testing.T) {
		h := &recordingHandler{}
		d := &fakeDialer{}
		c := NewClient("ws://test/ws", d, h, 5*time.Millisecond, nil)
		c.Start(context.Background())

		require.Eventually(t, func() bool { return c.State() == StateConnected }, time.Second, time.Millisecond)
		require.NoError(t, c.Close())

		dials := d.dialCount()
		time.Sleep(30 * time.Millisecond)
		assert.Equal(t, dials, d.dialCount())
		assert.Equal(t, StateDisconnected, c.State())
		assert.NoError(t, c.Close())
	})
}
