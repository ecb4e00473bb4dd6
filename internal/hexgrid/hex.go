// Package hexgrid provides the axial hex grid used by the mosaic.
// Uses axial coordinates (q, r) for pointy-top hexes.
package hexgrid

import "fmt"

// HexCoord represents a position on the hex grid using axial coordinates.
// The third cube coordinate s is derived: s = -q - r.
type HexCoord struct {
	Q int `json:"q"`
	R int `json:"r"`
}

// S returns the implicit third cube coordinate.
func (h HexCoord) S() int {
	return -h.Q - h.R
}

// Add returns h+d in axial space.
func (h HexCoord) Add(d HexCoord) HexCoord {
	return HexCoord{Q: h.Q + d.Q, R: h.R + d.R}
}

// Sub returns h-d in axial space.
func (h HexCoord) Sub(d HexCoord) HexCoord {
	return HexCoord{Q: h.Q - d.Q, R: h.R - d.R}
}

// Key returns the packed container key for h.
func (h HexCoord) Key() Key {
	return KeyOf(h.Q, h.R)
}

func (h HexCoord) String() string {
	return fmt.Sprintf("(%d,%d)", h.Q, h.R)
}

// HexNeighborDirections defines the six neighbor offsets in axial coordinates,
// indexed by Direction.
var HexNeighborDirections = [6]HexCoord{
	{Q: 1, R: 0},
	{Q: 1, R: -1},
	{Q: 0, R: -1},
	{Q: -1, R: 0},
	{Q: -1, R: 1},
	{Q: 0, R: 1},
}

// Neighbors returns the six adjacent hex coordinates.
func (h HexCoord) Neighbors() [6]HexCoord {
	var result [6]HexCoord
	for i, dir := range HexNeighborDirections {
		result[i] = h.Add(dir)
	}
	return result
}

// Distance returns the hex distance between two coordinates.
func Distance(a, b HexCoord) int {
	dq := abs(a.Q - b.Q)
	dr := abs(a.R - b.R)
	ds := abs(a.S() - b.S())
	// Max of the three absolute differences in cube coordinates.
	return max(dq, dr, ds)
}

// Ring returns the coordinates at exact distance k from center c,
// starting from the southwest corner. If k == 0, returns [c].
func Ring(c HexCoord, k int) []HexCoord {
	if k <= 0 {
		return []HexCoord{c}
	}
	res := make([]HexCoord, 0, 6*k)
	step := HexNeighborDirections[Southwest]
	cur := HexCoord{Q: c.Q + step.Q*k, R: c.R + step.R*k}
	for side := 0; side < 6; side++ {
		for i := 0; i < k; i++ {
			res = append(res, cur)
			cur = cur.Add(HexNeighborDirections[side])
		}
	}
	return res
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
