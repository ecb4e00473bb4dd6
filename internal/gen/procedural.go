// Offline tile generation using layered simplex noise.
// Used when no API key is configured so the mosaic can be explored locally.
package gen

import (
	"context"
	"hash/fnv"
	"image"
	"image/color"
	"math"
	"sync"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/hex-mosaic/internal/hexgrid"
	"github.com/talgya/hex-mosaic/internal/tile"
)

// Procedural produces noise-textured hex tiles. Extensions blend the context
// tile's east edge into the new tile's west edge so seams stay continuous.
type Procedural struct {
	Geometry tile.Geometry
	Seed     int64

	mu    sync.Mutex
	calls int
}

// NewProcedural creates a procedural generator for tiles of the given geometry.
func NewProcedural(g tile.Geometry, seed int64) *Procedural {
	return &Procedural{Geometry: g, Seed: seed}
}

// Generate satisfies the same contract as Client.Generate.
func (p *Procedural) Generate(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, &ServiceError{Details: err.Error(), Err: err}
	}

	var ctxImg image.Image
	if len(req.ContextImages) > 0 {
		img, err := tile.Decode(req.ContextImages[0])
		if err != nil {
			return Result{}, &ServiceError{Details: "context image: " + err.Error(), Err: err}
		}
		ctxImg = img
	}

	p.mu.Lock()
	call := p.calls
	p.calls++
	p.mu.Unlock()

	h := fnv.New64a()
	h.Write([]byte(req.Prompt))
	promptHash := h.Sum64()
	hue := float64(promptHash%360) / 360

	noise := opensimplex.NewNormalized(p.Seed + int64(promptHash>>1))
	w, ht := p.Geometry.Width(), p.Geometry.Height()
	img := image.NewNRGBA(image.Rect(0, 0, w, ht))
	hexPts := hexgrid.PolygonAt(float64(w)/2, float64(ht)/2, p.Geometry.Size+tile.Bleed)
	// Offset each tile in noise space so neighbors differ.
	offset := float64(call) * 7.31
	blendW := float64(w) / 3

	for y := 0; y < ht; y++ {
		for x := 0; x < w; x++ {
			if !hexgrid.PointInPolygon(float64(x)+0.5, float64(y)+0.5, hexPts[:]) {
				continue
			}
			n := octaveNoise(noise, float64(x)/float64(w)+offset, float64(y)/float64(ht), 4, 2.0, 0.5)
			c := hsvToRGB(math.Mod(hue+n*0.15, 1), 0.45+0.3*n, 0.35+0.55*n)

			if ctxImg != nil && float64(x) < blendW {
				mx := ctxImg.Bounds().Min.X + (w - 1 - x)
				my := ctxImg.Bounds().Min.Y + y
				src := color.NRGBAModel.Convert(ctxImg.At(mx, my)).(color.NRGBA)
				if src.A > 0 {
					t := 1 - float64(x)/blendW
					c = lerpColor(c, src, t)
				}
			}
			img.SetNRGBA(x, y, c)
		}
	}

	payload, err := tile.Encode(img)
	if err != nil {
		return Result{}, &ServiceError{Details: err.Error(), Err: err}
	}
	return Result{ImageData: payload}, nil
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

func hsvToRGB(h, s, v float64) color.NRGBA {
	i := math.Floor(h * 6)
	f := h*6 - i
	p := v * (1 - s)
	q := v * (1 - f*s)
	t := v * (1 - (1-f)*s)
	var r, g, b float64
	switch int(i) % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	default:
		r, g, b = v, p, q
	}
	return color.NRGBA{R: uint8(r * 255), G: uint8(g * 255), B: uint8(b * 255), A: 255}
}

func lerpColor(a, b color.NRGBA, t float64) color.NRGBA {
	mix := func(x, y uint8) uint8 { return uint8(float64(x)*(1-t) + float64(y)*t) }
	return color.NRGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: 255}
}
