package flow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

var (
	nodeKeys = []string{"id", "position", "data"}
	edgeKeys = []string{"id", "source", "target"}
	dataKeys = []string{"label", "description", "comment", "character", "sceneNumber", "nodeType"}
)

// UnmarshalJSON decodes a node leniently. A missing or malformed position
// decodes as the origin and a missing label decodes as DefaultLabel. Only a
// node that is not a JSON object, or whose id is not a string, is rejected.
func (n *Node) UnmarshalJSON(b []byte) error {
	fields, err := decodeObject(b)
	if err != nil {
		return fmt.Errorf("node: %w", err)
	}

	*n = Node{}
	if raw, ok := fields["id"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &n.ID); err != nil {
			return fmt.Errorf("node: id must be a string: %w", err)
		}
	}
	n.Position = decodePosition(fields["position"])
	n.Data = decodeNodeData(fields["data"])
	n.Attrs = remainder(fields, nodeKeys)
	return nil
}

// MarshalJSON encodes the node with its passthrough attributes.
func (n Node) MarshalJSON() ([]byte, error) {
	out := copyRaw(n.Attrs)
	if err := putJSON(out, "id", n.ID); err != nil {
		return nil, err
	}
	if err := putJSON(out, "position", n.Position); err != nil {
		return nil, err
	}
	if err := putJSON(out, "data", n.Data); err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes an edge. A non-zero numeric reference is kept in its
// text form; anything else that is not a string is left empty so that
// Normalize can drop the edge instead of failing the whole payload.
func (e *Edge) UnmarshalJSON(b []byte) error {
	fields, err := decodeObject(b)
	if err != nil {
		return fmt.Errorf("edge: %w", err)
	}

	*e = Edge{}
	e.ID = decodeRef(fields["id"])
	e.Source = decodeRef(fields["source"])
	e.Target = decodeRef(fields["target"])
	e.Attrs = remainder(fields, edgeKeys)
	return nil
}

// MarshalJSON encodes the edge with its passthrough attributes.
func (e Edge) MarshalJSON() ([]byte, error) {
	out := copyRaw(e.Attrs)
	for key, value := range map[string]string{"id": e.ID, "source": e.Source, "target": e.Target} {
		if err := putJSON(out, key, value); err != nil {
			return nil, err
		}
	}
	return json.Marshal(out)
}

// MarshalJSON writes label unconditionally and the other known fields only
// when set.
func (d NodeData) MarshalJSON() ([]byte, error) {
	out := copyRaw(d.Extra)
	if err := putJSON(out, "label", d.Label); err != nil {
		return nil, err
	}
	optional := map[string]string{
		"description": d.Description,
		"comment":     d.Comment,
		"character":   d.Character,
		"sceneNumber": d.SceneNumber,
		"nodeType":    string(d.NodeType),
	}
	for key, value := range optional {
		if value == "" {
			delete(out, key)
			continue
		}
		if err := putJSON(out, key, value); err != nil {
			return nil, err
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON applies the same defaulting as node decoding.
func (d *NodeData) UnmarshalJSON(b []byte) error {
	*d = decodeNodeData(b)
	return nil
}

func decodeNodeData(raw json.RawMessage) NodeData {
	data := NodeData{Label: DefaultLabel}
	fields, err := decodeObject(raw)
	if err != nil {
		return data
	}

	if v, ok := fields["label"]; ok && !isNull(v) {
		if label, ok := decodeScalar(v); ok {
			data.Label = label
		}
	}
	data.Description = decodeString(fields["description"])
	data.Comment = decodeString(fields["comment"])
	data.Character = decodeString(fields["character"])
	data.SceneNumber = decodeString(fields["sceneNumber"])
	data.NodeType = NodeType(decodeString(fields["nodeType"]))
	data.Extra = remainder(fields, dataKeys)
	return data
}

func decodePosition(raw json.RawMessage) Position {
	var p struct {
		X *float64 `json:"x"`
		Y *float64 `json:"y"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &p) != nil || p.X == nil || p.Y == nil {
		return Position{}
	}
	return Position{X: *p.X, Y: *p.Y}
}

func decodeObject(raw json.RawMessage) (map[string]json.RawMessage, error) {
	if len(raw) == 0 || isNull(raw) {
		return nil, fmt.Errorf("expected object, got nothing")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func decodeString(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// decodeScalar returns a string as is and a number or boolean as its JSON
// literal. Objects and arrays are not scalars.
func decodeScalar(raw json.RawMessage) (string, bool) {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s, true
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String(), true
	}
	var b bool
	if json.Unmarshal(raw, &b) == nil {
		return strconv.FormatBool(b), true
	}
	return "", false
}

// decodeRef reads an edge reference. Zero and false count as missing.
func decodeRef(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		if f, err := n.Float64(); err == nil && f != 0 {
			return n.String()
		}
	}
	return ""
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func remainder(fields map[string]json.RawMessage, known []string) map[string]json.RawMessage {
	for _, k := range known {
		delete(fields, k)
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func putJSON(out map[string]json.RawMessage, key string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	out[key] = b
	return nil
}
