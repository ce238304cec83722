package livesync

import (
	"encoding/json"

	"gameflow/internal/domain/flow"
)

// Merge folds a remote snapshot into local state. The node the user has
// selected keeps its local label, and every other local field that is set
// wins over the remote one. Fields the local node leaves empty keep their
// remote value. Everything else comes from remote.
//
// The second result reports whether the selection still refers to a node in
// the merged graph.
func Merge(remote flow.Graph, selectedID string, local *flow.NodeData) (flow.Graph, bool) {
	merged := remote.Clone()
	if selectedID == "" {
		return merged, false
	}

	i := merged.NodeIndex(selectedID)
	if i < 0 {
		return merged, false
	}
	if local != nil {
		merged.Nodes[i].Data = overlay(merged.Nodes[i].Data, *local)
	}
	return merged, true
}

func overlay(remote, local flow.NodeData) flow.NodeData {
	out := remote.Clone()
	out.Label = local.Label
	for _, f := range []struct{ dst, src *string }{
		{&out.Description, &local.Description},
		{&out.Comment, &local.Comment},
		{&out.Character, &local.Character},
		{&out.SceneNumber, &local.SceneNumber},
	} {
		if *f.src != "" {
			*f.dst = *f.src
		}
	}
	if local.NodeType != "" {
		out.NodeType = local.NodeType
	}

	if len(local.Extra) > 0 && out.Extra == nil {
		out.Extra = make(map[string]json.RawMessage, len(local.Extra))
	}
	for k, v := range local.Extra {
		out.Extra[k] = append(json.RawMessage(nil), v...)
	}
	return out
}
