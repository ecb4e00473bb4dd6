package hexgrid

import "math"

// Point is a position in pixel space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Cube represents cube coordinates (x, y, z) with x+y+z=0.
type Cube struct {
	X int
	Y int
	Z int
}

// ToAxial converts cube to axial.
func (c Cube) ToAxial() HexCoord { return HexCoord{Q: c.X, R: c.Z} }

// Layout maps pointy-top hexes of radius Size onto pixels, with hex (0,0)
// centered on Origin.
type Layout struct {
	Size   float64
	Origin Point
}

// NewLayout returns a layout with hex (0,0) at (cx, cy).
func NewLayout(size, cx, cy float64) Layout {
	return Layout{Size: size, Origin: Point{X: cx, Y: cy}}
}

// HexWidth is the distance between opposite edges (√3·size).
func (l Layout) HexWidth() float64 { return math.Sqrt(3) * l.Size }

// HexHeight is the distance between opposite vertices (2·size).
func (l Layout) HexHeight() float64 { return 2 * l.Size }

// AxialToPixel returns the center of hex h.
func (l Layout) AxialToPixel(h HexCoord) (x, y float64) {
	x = l.Origin.X + l.Size*math.Sqrt(3)*(float64(h.Q)+float64(h.R)/2.0)
	y = l.Origin.Y + l.Size*1.5*float64(h.R)
	return
}

// PixelToAxial returns the hex containing pixel (x, y).
func (l Layout) PixelToAxial(x, y float64) HexCoord {
	px := x - l.Origin.X
	py := y - l.Origin.Y
	qf := (math.Sqrt(3)/3*px - py/3) / l.Size
	rf := (2.0 / 3 * py) / l.Size
	return CubeRound(qf, -qf-rf, rf).ToAxial()
}

// CubeRound rounds fractional cube coordinates to the nearest hex. The axis
// with the largest rounding error is recomputed from the other two so the
// result keeps x+y+z=0.
func CubeRound(x, y, z float64) Cube {
	rx, ry, rz := math.Round(x), math.Round(y), math.Round(z)
	dx := math.Abs(rx - x)
	dy := math.Abs(ry - y)
	dz := math.Abs(rz - z)
	switch {
	case dx > dy && dx > dz:
		rx = -ry - rz
	case dy > dz:
		ry = -rx - rz
	default:
		rz = -rx - ry
	}
	return Cube{X: int(rx), Y: int(ry), Z: int(rz)}
}

// Polygon returns the six vertices of hex h, vertex i at 60°·i + 30°.
func (l Layout) Polygon(h HexCoord) [6]Point {
	cx, cy := l.AxialToPixel(h)
	return PolygonAt(cx, cy, l.Size)
}

// PolygonAt returns a pointy-top hexagon of the given radius around (cx, cy).
func PolygonAt(cx, cy, radius float64) [6]Point {
	var pts [6]Point
	for i := range pts {
		angle := math.Pi/3*float64(i) + math.Pi/6
		pts[i] = Point{X: cx + radius*math.Cos(angle), Y: cy + radius*math.Sin(angle)}
	}
	return pts
}

// PointInPolygon reports whether (x, y) lies inside pts (even-odd ray casting).
func PointInPolygon(x, y float64, pts []Point) bool {
	inside := false
	for i, j := 0, len(pts)-1; i < len(pts); j, i = i, i+1 {
		xi, yi := pts[i].X, pts[i].Y
		xj, yj := pts[j].X, pts[j].Y
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// HitTest returns the hex whose polygon contains (x, y). The rounded guess
// is tried first, then its neighbors to absorb rounding at shared edges.
func (l Layout) HitTest(x, y float64) (HexCoord, bool) {
	guess := l.PixelToAxial(x, y)
	candidates := make([]HexCoord, 0, 7)
	candidates = append(candidates, guess)
	for _, n := range guess.Neighbors() {
		candidates = append(candidates, n)
	}
	for _, c := range candidates {
		pts := l.Polygon(c)
		if PointInPolygon(x, y, pts[:]) {
			return c, true
		}
	}
	return HexCoord{}, false
}
