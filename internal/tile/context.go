package tile

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/talgya/hex-mosaic/internal/hexgrid"
)

// Context is the payload sent to the generation service for one extension.
type Context struct {
	Payload  string // base64 PNG of the rotated source tile
	Rotation int    // rotation to apply to the returned image when drawn
}

// DrawRotated draws src scaled to w×h (plus bleed on every side), centered on
// (cx, cy) and rotated deg degrees counter-clockwise as seen on screen.
func DrawRotated(dst draw.Image, src image.Image, cx, cy, w, h, bleed float64, deg int) {
	sb := src.Bounds()
	if sb.Empty() {
		return
	}
	kx := (w + 2*bleed) / float64(sb.Dx())
	ky := (h + 2*bleed) / float64(sb.Dy())
	// Source pixel (sx, sy) lands at (u, v) relative to the center before rotation.
	ox := -w/2 - bleed - kx*float64(sb.Min.X)
	oy := -h/2 - bleed - ky*float64(sb.Min.Y)

	// Counter-clockwise on screen with y pointing down.
	rad := float64(deg) * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	if math.Abs(cos) < 1e-12 {
		cos = 0
	}
	if math.Abs(sin) < 1e-12 {
		sin = 0
	}
	m := f64.Aff3{
		cos * kx, sin * ky, cos*ox + sin*oy + cx,
		-sin * kx, cos * ky, -sin*ox + cos*oy + cy,
	}
	draw.BiLinear.Transform(dst, m, src, sb, draw.Over, nil)
}

// BuildContext renders the source tile into a canonical frame where the edge
// facing dir is the east edge. srcRotation is the source tile's own world
// rotation, so the edge picked is the one facing dir in world orientation.
func BuildContext(src image.Image, srcRotation int, dir hexgrid.Direction, g Geometry) (Context, error) {
	if src == nil {
		return Context{}, fmt.Errorf("build context: nil source image")
	}
	w, h := g.Width(), g.Height()
	canvas := image.NewNRGBA(image.Rect(0, 0, w, h))
	DrawRotated(canvas, src, float64(w)/2, float64(h)/2, g.HexWidth(), g.HexHeight(), Bleed, srcRotation-dir.Angle())

	payload, err := Encode(canvas)
	if err != nil {
		return Context{}, fmt.Errorf("build context: %w", err)
	}
	return Context{Payload: payload, Rotation: dir.Angle()}, nil
}

// NormalizeRotation maps any angle onto [0, 360).
func NormalizeRotation(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return deg
}
