// Package flow holds the narrative graph data model shared by the editor,
// the sync and persistence clients, and the persistence server.
package flow

import "encoding/json"

// DefaultLabel is assigned to nodes that arrive without a label.
const DefaultLabel = "Узел"

// NodeType classifies a node on the narrative map.
type NodeType string

const (
	NodeTypeMainScene        NodeType = "main-scene"
	NodeTypeCharacterMeeting NodeType = "character-meeting"
	NodeTypeChoice           NodeType = "choice"
)

// Valid reports whether t is one of the known node types. The empty type is
// valid and means "unclassified".
func (t NodeType) Valid() bool {
	switch t {
	case "", NodeTypeMainScene, NodeTypeCharacterMeeting, NodeTypeChoice:
		return true
	}
	return false
}

// Position is a node's canvas coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeData is the user-editable payload of a node.
//
// Extra carries any data fields this package does not model so that they
// survive a decode/encode round trip untouched.
type NodeData struct {
	Label       string
	Description string
	Comment     string
	Character   string
	SceneNumber string
	NodeType    NodeType
	Extra       map[string]json.RawMessage
}

// Node is a vertex of the flow. Attrs holds the presentation fields owned by
// the UI (style, width, selected, ...).
type Node struct {
	ID       string
	Position Position
	Data     NodeData
	Attrs    map[string]json.RawMessage
}

// Edge connects two nodes by id. Dangling edges are allowed in storage.
type Edge struct {
	ID     string
	Source string
	Target string
	Attrs  map[string]json.RawMessage
}

// Field names a user-editable text field of NodeData.
type Field string

const (
	FieldLabel   Field = "label"
	FieldComment Field = "comment"
)
