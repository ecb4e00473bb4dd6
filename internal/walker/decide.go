// Package walker implements a headless explorer that grows the mosaic
// through the HTTP API: observe the mosaic, decide the next hex, act.
package walker

import (
	"cmp"
	"slices"

	"github.com/talgya/hex-mosaic/internal/hexgrid"
)

// Actions a plan can take.
const (
	ActionSeed   = "seed"
	ActionExtend = "extend"
	ActionWait   = "wait"
)

// View mirrors GET /api/v1/mosaic.
type View struct {
	Generated  []hexgrid.HexCoord `json:"generated"`
	Expandable []hexgrid.HexCoord `json:"expandable"`
	Loading    []hexgrid.HexCoord `json:"loading"`
	Selected   *hexgrid.HexCoord  `json:"selected,omitempty"`
	Prompt     string             `json:"prompt"`
}

// Plan is the next step of a walk. Select, when set, must be selected before
// Target is extended.
type Plan struct {
	Action string
	Select *hexgrid.HexCoord
	Target hexgrid.HexCoord
}

// Decide picks the next step. The walk prefers the frontier next to the
// selected tile, taking the hex closest to the origin and breaking ties in
// direction order (E, NE, NW, W, SW, SE). When the selected tile is boxed in,
// it moves the selection to the generated tile nearest the origin that still
// has room.
func Decide(v View) Plan {
	if len(v.Generated) == 0 {
		if len(v.Loading) > 0 {
			return Plan{Action: ActionWait}
		}
		return Plan{Action: ActionSeed}
	}

	expandable := make(map[hexgrid.HexCoord]bool, len(v.Expandable))
	for _, c := range v.Expandable {
		expandable[c] = true
	}
	for _, c := range v.Loading {
		delete(expandable, c)
	}

	if v.Selected != nil {
		if t, ok := bestNeighbor(*v.Selected, expandable); ok {
			return Plan{Action: ActionExtend, Target: t}
		}
	}

	sources := slices.Clone(v.Generated)
	slices.SortStableFunc(sources, func(a, b hexgrid.HexCoord) int {
		return cmp.Compare(hexgrid.Distance(a, hexgrid.HexCoord{}), hexgrid.Distance(b, hexgrid.HexCoord{}))
	})
	for _, src := range sources {
		if t, ok := bestNeighbor(src, expandable); ok {
			sel := src
			return Plan{Action: ActionExtend, Select: &sel, Target: t}
		}
	}
	return Plan{Action: ActionWait}
}

func bestNeighbor(src hexgrid.HexCoord, expandable map[hexgrid.HexCoord]bool) (hexgrid.HexCoord, bool) {
	var (
		best  hexgrid.HexCoord
		found bool
	)
	origin := hexgrid.HexCoord{}
	for _, n := range src.Neighbors() {
		if !expandable[n] {
			continue
		}
		if !found || hexgrid.Distance(n, origin) < hexgrid.Distance(best, origin) {
			best, found = n, true
		}
	}
	return best, found
}
