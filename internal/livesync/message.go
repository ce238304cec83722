// Package livesync keeps an editor session in step with the flow server's
// broadcast channel: it dials the websocket, reconnects after drops, decodes
// "flow" snapshots and merges them with in-progress local edits.
package livesync

import (
	"encoding/json"
	"errors"
	"fmt"

	"gameflow/internal/domain/flow"
)

// MessageTypeFlow tags a full-graph snapshot on the push channel.
const MessageTypeFlow = "flow"

// ErrIgnoredMessage marks a well-formed message that is not a flow snapshot.
var ErrIgnoredMessage = errors.New("not a flow message")

// Message is the push channel envelope.
type Message struct {
	Type  string      `json:"type"`
	Nodes []flow.Node `json:"nodes"`
	Edges []flow.Edge `json:"edges"`
}

// NewFlowMessage wraps g for broadcast.
func NewFlowMessage(g flow.Graph) Message {
	g = flow.Normalize(g)
	return Message{Type: MessageTypeFlow, Nodes: g.Nodes, Edges: g.Edges}
}

// Encode renders the message as JSON.
func (m Message) Encode() ([]byte, error) {
	if m.Nodes == nil {
		m.Nodes = []flow.Node{}
	}
	if m.Edges == nil {
		m.Edges = []flow.Edge{}
	}
	return json.Marshal(m)
}

// ParseMessage extracts the graph from a push payload. Only messages with
// type "flow" carrying both nodes and edges arrays are accepted.
func ParseMessage(payload []byte) (flow.Graph, error) {
	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return flow.Graph{}, fmt.Errorf("decode message: %w", err)
	}
	if m.Type != MessageTypeFlow {
		return flow.Graph{}, fmt.Errorf("%w: type %q", ErrIgnoredMessage, m.Type)
	}
	if m.Nodes == nil || m.Edges == nil {
		return flow.Graph{}, fmt.Errorf("decode message: expected nodes and edges arrays")
	}
	return flow.Normalize(flow.Graph{Nodes: m.Nodes, Edges: m.Edges}), nil
}
