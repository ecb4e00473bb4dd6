// Package tile handles tile images: pixel geometry, PNG/base64 encoding, and
// building rotated context images for the generation service.
package tile

import "math"

// Bleed is the extra margin, in pixels, drawn around a tile on every side to
// hide hairline seams between neighbors.
const Bleed = 1.0

// Geometry is the pixel contract for tiles of hex radius Size.
type Geometry struct {
	Size float64
}

// HexWidth is the unrounded tile width, √3·size.
func (g Geometry) HexWidth() float64 { return math.Sqrt(3) * g.Size }

// HexHeight is the unrounded tile height, 2·size.
func (g Geometry) HexHeight() float64 { return 2 * g.Size }

// Width is the tile width in whole pixels.
func (g Geometry) Width() int { return int(math.Ceil(g.HexWidth())) }

// Height is the tile height in whole pixels.
func (g Geometry) Height() int { return int(math.Ceil(g.HexHeight())) }
