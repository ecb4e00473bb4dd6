// Package render rasterizes a mosaic snapshot and drives the spinner
// animation while tiles are loading.
package render

import (
	"image"
	"image/color"
	"math"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/image/vector"

	"github.com/talgya/hex-mosaic/internal/hexgrid"
	"github.com/talgya/hex-mosaic/internal/mosaic"
	"github.com/talgya/hex-mosaic/internal/tile"
)

// Palette.
var (
	ExpandableColor = color.NRGBA{0x3a, 0x3d, 0x48, 0xff}
	TileFillColor   = color.NRGBA{0x10, 0x12, 0x18, 0xff}
	BorderColor     = color.NRGBA{0x20, 0x22, 0x2b, 0xff}
	SelectedColor   = color.NRGBA{0xff, 0xd8, 0x4a, 0xff}
	OverlayColor    = color.NRGBA{0xff, 0xff, 0xff, 0x26} // white at 0.15
)

const (
	expandableWidth = 2.0
	borderWidth     = 2.0
	selectedWidth   = 3.0
	spinnerWidth    = 4.0
	dashOn, dashOff = 6.0, 6.0
	spinnerSpan     = 1.5 * math.Pi
	spinnerPeriod   = time.Second
)

// Renderer draws snapshots with a fixed layout. It holds no mutable state and
// is safe for concurrent use.
type Renderer struct {
	Layout     hexgrid.Layout
	Background color.Color // nil leaves dst transparent
}

// NewRenderer returns a renderer for hexes of the given size with the origin
// hex centered in a width×height viewport.
func NewRenderer(size float64, width, height int) *Renderer {
	return &Renderer{Layout: hexgrid.NewLayout(size, float64(width)/2, float64(height)/2)}
}

// Draw paints snap into dst: dashed outlines for expandable hexes, clipped
// rotated images for generated hexes, and a spinner for each loading hex
// whose phase follows elapsed.
func (r *Renderer) Draw(dst *image.RGBA, snap *mosaic.Snapshot, elapsed time.Duration) {
	bg := r.Background
	if bg == nil {
		bg = color.Transparent
	}
	draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	for _, c := range snap.Expandable {
		if !r.visible(dst, c) {
			continue
		}
		pts := r.Layout.Polygon(c)
		strokeDashed(dst, closed(pts[:]), expandableWidth, ExpandableColor)
	}

	for _, t := range snap.Tiles {
		if !r.visible(dst, t.Coord) {
			continue
		}
		pts := r.Layout.Polygon(t.Coord)
		fillPolygon(dst, pts[:], TileFillColor)
		if t.Image != nil {
			r.drawTile(dst, t)
		}
		col, w := BorderColor, borderWidth
		if snap.Selected != nil && *snap.Selected == t.Coord {
			col, w = SelectedColor, selectedWidth
		}
		stroke(dst, closed(pts[:]), w, col)
	}

	if len(snap.Loading) == 0 {
		return
	}
	phase := float64(elapsed%spinnerPeriod) / float64(spinnerPeriod)
	start := phase * 2 * math.Pi
	radius := math.Min(r.Layout.Size*0.55, 28)
	for _, c := range snap.Loading {
		if !r.visible(dst, c) {
			continue
		}
		pts := r.Layout.Polygon(c)
		fillPolygon(dst, pts[:], OverlayColor)
		x, y := r.Layout.AxialToPixel(c)
		stroke(dst, arc(x, y, radius, start, start+spinnerSpan), spinnerWidth, SelectedColor)
	}
}

// visible reports whether the hex at c can touch dst.
func (r *Renderer) visible(dst *image.RGBA, c hexgrid.HexCoord) bool {
	x, y := r.Layout.AxialToPixel(c)
	m := r.Layout.Size * 2
	b := dst.Bounds()
	return x+m >= float64(b.Min.X) && x-m <= float64(b.Max.X) &&
		y+m >= float64(b.Min.Y) && y-m <= float64(b.Max.Y)
}

// drawTile draws the tile image rotated into world orientation, clipped to
// the hex polygon.
func (r *Renderer) drawTile(dst *image.RGBA, t *mosaic.Tile) {
	cx, cy := r.Layout.AxialToPixel(t.Coord)
	w, h := r.Layout.HexWidth(), r.Layout.HexHeight()
	ox := int(math.Floor(cx - w/2 - 2))
	oy := int(math.Floor(cy - h/2 - 2))
	bw, bh := int(math.Ceil(w))+4, int(math.Ceil(h))+4

	scratch := image.NewRGBA(image.Rect(0, 0, bw, bh))
	lx, ly := cx-float64(ox), cy-float64(oy)
	tile.DrawRotated(scratch, t.Image, lx, ly, w, h, tile.Bleed, t.Rotation)

	mask := image.NewAlpha(scratch.Bounds())
	var z vector.Rasterizer
	z.Reset(bw, bh)
	z.DrawOp = draw.Src
	pts := hexgrid.PolygonAt(lx, ly, r.Layout.Size)
	path(&z, pts[:], true)
	z.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})

	area := image.Rect(ox, oy, ox+bw, oy+bh)
	draw.DrawMask(dst, area, scratch, image.Point{}, mask, image.Point{}, draw.Over)
}

func closed(pts []hexgrid.Point) []hexgrid.Point {
	out := make([]hexgrid.Point, 0, len(pts)+1)
	out = append(out, pts...)
	return append(out, pts[0])
}

func path(z *vector.Rasterizer, pts []hexgrid.Point, close bool) {
	z.MoveTo(float32(pts[0].X), float32(pts[0].Y))
	for _, p := range pts[1:] {
		z.LineTo(float32(p.X), float32(p.Y))
	}
	if close {
		z.ClosePath()
	}
}

func fillPolygon(dst *image.RGBA, pts []hexgrid.Point, c color.Color) {
	b := dst.Bounds()
	var z vector.Rasterizer
	z.Reset(b.Dx(), b.Dy())
	path(&z, shift(pts, b.Min), true)
	z.Draw(dst, b, image.NewUniform(c), image.Point{})
}

// shift moves pts into rasterizer space, which starts at the dst origin.
func shift(pts []hexgrid.Point, min image.Point) []hexgrid.Point {
	if min == (image.Point{}) {
		return pts
	}
	out := make([]hexgrid.Point, len(pts))
	for i, p := range pts {
		out[i] = hexgrid.Point{X: p.X - float64(min.X), Y: p.Y - float64(min.Y)}
	}
	return out
}
