// Package layout arranges flow nodes into non-overlapping horizontal layers.
package layout

import (
	"errors"
	"fmt"
	"sort"

	"gameflow/internal/domain/flow"
)

// Geometry of a laid-out node box.
const (
	NodeWidth  = 220
	NodeHeight = 80
	GapX       = 50
	GapY       = 60
)

// ErrCycle is returned when the predecessor chain of a node loops back on
// itself. Layering is undefined for such graphs.
var ErrCycle = errors.New("layout: predecessor cycle")

// Layers assigns each node a layer: 0 when no edge points at it, otherwise one
// more than the deepest of its distinct predecessors. Edges whose source or
// target is not among nodes are ignored.
func Layers(nodes []flow.Node, edges []flow.Edge) (map[string]int, error) {
	present := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		present[n.ID] = true
	}

	preds := make(map[string][]string)
	seen := make(map[[2]string]bool)
	for _, e := range edges {
		if !present[e.Source] || !present[e.Target] {
			continue
		}
		key := [2]string{e.Source, e.Target}
		if seen[key] {
			continue
		}
		seen[key] = true
		preds[e.Target] = append(preds[e.Target], e.Source)
	}

	layer := make(map[string]int, len(nodes))
	visiting := make(map[string]bool)

	var assign func(id string) (int, error)
	assign = func(id string) (int, error) {
		if l, ok := layer[id]; ok {
			return l, nil
		}
		if visiting[id] {
			return 0, fmt.Errorf("%w through node %q", ErrCycle, id)
		}
		visiting[id] = true
		defer delete(visiting, id)

		l := 0
		for _, p := range preds[id] {
			pl, err := assign(p)
			if err != nil {
				return 0, err
			}
			if pl+1 > l {
				l = pl + 1
			}
		}
		layer[id] = l
		return l, nil
	}

	for _, n := range nodes {
		if _, err := assign(n.ID); err != nil {
			return nil, err
		}
	}
	return layer, nil
}

// Layout returns copies of nodes with new positions. Within a layer nodes are
// ordered by id and centered around x=0; layer L sits at y = L*(NodeHeight+GapY).
// Every field except Position is preserved. An empty input is returned as is.
// On ErrCycle the input is returned unchanged together with the error.
func Layout(nodes []flow.Node, edges []flow.Edge) ([]flow.Node, error) {
	if len(nodes) == 0 {
		return nodes, nil
	}

	layers, err := Layers(nodes, edges)
	if err != nil {
		return nodes, err
	}

	rows := make(map[int][]int)
	for i, n := range nodes {
		l := layers[n.ID]
		rows[l] = append(rows[l], i)
	}

	out := make([]flow.Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}

	for l, idx := range rows {
		sort.SliceStable(idx, func(a, b int) bool {
			return nodes[idx[a]].ID < nodes[idx[b]].ID
		})
		firstX := RowStart(len(idx))
		for col, i := range idx {
			out[i].Position = flow.Position{
				X: firstX + float64(col)*(NodeWidth+GapX),
				Y: float64(l) * (NodeHeight + GapY),
			}
		}
	}
	return out, nil
}

// RowStart is the x of the first node of a centered row of count nodes.
func RowStart(count int) float64 {
	width := float64(count*NodeWidth + (count-1)*GapX)
	return -width/2 + NodeWidth/2
}
