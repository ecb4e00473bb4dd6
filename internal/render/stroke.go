package render

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/vector"

	"github.com/talgya/hex-mosaic/internal/hexgrid"
)

// stroke draws the polyline pts with round joins and caps.
func stroke(dst *image.RGBA, pts []hexgrid.Point, width float64, c color.Color) {
	strokeWith(dst, [][]hexgrid.Point{pts}, width, c, true)
}

// strokeDashed draws pts with a dash pattern carried across vertices and
// butt ends on each dash.
func strokeDashed(dst *image.RGBA, pts []hexgrid.Point, width float64, c color.Color) {
	strokeWith(dst, dashes(pts, dashOn, dashOff), width, c, false)
}

// strokeWith accumulates every piece into one coverage mask so overlapping
// segments do not double-blend translucent colors.
func strokeWith(dst *image.RGBA, pieces [][]hexgrid.Point, width float64, c color.Color, caps bool) {
	var all []hexgrid.Point
	for _, p := range pieces {
		all = append(all, p...)
	}
	if len(all) == 0 {
		return
	}
	area := bounds(all, width).Intersect(dst.Bounds())
	if area.Empty() {
		return
	}
	mask := image.NewAlpha(area)
	half := width / 2
	for _, p := range pieces {
		if len(p) < 2 {
			continue
		}
		for i := 0; i+1 < len(p); i++ {
			cover(mask, segment(p[i], p[i+1], half))
		}
		for i, v := range p {
			if !caps && (i == 0 || i == len(p)-1) {
				continue
			}
			cover(mask, disc(v, half))
		}
	}
	draw.DrawMask(dst, area, image.NewUniform(c), image.Point{}, mask, area.Min, draw.Over)
}

// cover adds the closed polygon pts to mask.
func cover(mask *image.Alpha, pts []hexgrid.Point) {
	if len(pts) < 3 {
		return
	}
	b := mask.Bounds()
	var z vector.Rasterizer
	z.Reset(b.Dx(), b.Dy())
	path(&z, shift(pts, b.Min), true)
	z.Draw(mask, b, image.Opaque, image.Point{})
}

func segment(a, b hexgrid.Point, half float64) []hexgrid.Point {
	dx, dy := b.X-a.X, b.Y-a.Y
	l := math.Hypot(dx, dy)
	if l == 0 {
		return nil
	}
	nx, ny := -dy/l*half, dx/l*half
	return []hexgrid.Point{
		{X: a.X + nx, Y: a.Y + ny},
		{X: b.X + nx, Y: b.Y + ny},
		{X: b.X - nx, Y: b.Y - ny},
		{X: a.X - nx, Y: a.Y - ny},
	}
}

func disc(c hexgrid.Point, radius float64) []hexgrid.Point {
	const n = 16
	pts := make([]hexgrid.Point, n)
	for i := range pts {
		a := 2 * math.Pi * float64(i) / n
		pts[i] = hexgrid.Point{X: c.X + radius*math.Cos(a), Y: c.Y + radius*math.Sin(a)}
	}
	return pts
}

// arc samples a circular arc from start to end radians, clockwise on screen.
func arc(cx, cy, radius, start, end float64) []hexgrid.Point {
	steps := int(math.Ceil((end - start) / (math.Pi / 24)))
	if steps < 1 {
		steps = 1
	}
	pts := make([]hexgrid.Point, 0, steps+1)
	for i := 0; i <= steps; i++ {
		a := start + (end-start)*float64(i)/float64(steps)
		pts = append(pts, hexgrid.Point{X: cx + radius*math.Cos(a), Y: cy + radius*math.Sin(a)})
	}
	return pts
}

// dashes splits a polyline into on-segments of the given pattern.
func dashes(pts []hexgrid.Point, on, off float64) [][]hexgrid.Point {
	var out [][]hexgrid.Point
	var cur []hexgrid.Point
	drawing, remain := true, on
	for i := 0; i+1 < len(pts); i++ {
		a, b := pts[i], pts[i+1]
		l := math.Hypot(b.X-a.X, b.Y-a.Y)
		pos := 0.0
		if drawing && len(cur) == 0 {
			cur = append(cur, a)
		}
		for l-pos > 1e-9 {
			step := math.Min(remain, l-pos)
			pos += step
			remain -= step
			p := hexgrid.Point{X: a.X + (b.X-a.X)*pos/l, Y: a.Y + (b.Y-a.Y)*pos/l}
			if drawing {
				cur = append(cur, p)
			}
			if remain <= 1e-9 {
				if drawing {
					out = append(out, cur)
					cur = nil
					remain = off
				} else {
					cur = []hexgrid.Point{p}
					remain = on
				}
				drawing = !drawing
			}
		}
	}
	if drawing && len(cur) > 1 {
		out = append(out, cur)
	}
	return out
}

func bounds(pts []hexgrid.Point, width float64) image.Rectangle {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range pts {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	pad := width + 1
	return image.Rect(
		int(math.Floor(minX-pad)), int(math.Floor(minY-pad)),
		int(math.Ceil(maxX+pad)), int(math.Ceil(maxY+pad)),
	)
}
