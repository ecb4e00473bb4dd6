// Package mosaic owns the state of one hex mosaic: which hexes are generated,
// which are expandable, which are waiting on the generation service, and
// which tile is selected as the source of the next extension.
package mosaic

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/zyedidia/generic/mapset"

	"github.com/talgya/hex-mosaic/internal/gen"
	"github.com/talgya/hex-mosaic/internal/hexgrid"
	"github.com/talgya/hex-mosaic/internal/tile"
)

// ErrDiscarded is returned when a generation finished after the mosaic was
// cleared; its result is dropped.
var ErrDiscarded = errors.New("mosaic: result discarded, mosaic was cleared")

// Generator is the generation service as seen by the mosaic.
type Generator interface {
	Generate(ctx context.Context, req gen.Request) (gen.Result, error)
}

// Tile is a generated hex.
type Tile struct {
	Coord     hexgrid.HexCoord
	Image     image.Image
	Payload   string // base64 PNG as returned by the service, reused as context
	Rotation  int    // degrees counter-clockwise to apply when drawing
	CreatedAt time.Time
}

// Mosaic is the authoritative mosaic state. All methods are safe for
// concurrent use; each state transition happens in one critical section.
type Mosaic struct {
	gen      Generator
	geom     tile.Geometry
	model    string
	mimeType string
	recorder Recorder
	onLoad   func()
	now      func() time.Time

	mu          sync.Mutex
	epoch       uint64 // bumped by Clear
	tiles       map[hexgrid.Key]*Tile
	generated   mapset.Set[hexgrid.Key]
	expandable  mapset.Set[hexgrid.Key]
	loading     mapset.Set[hexgrid.Key]
	selected    hexgrid.Key
	hasSelected bool
	prompt      string

	subsMu  sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// Option configures a Mosaic.
type Option func(*Mosaic)

// WithRecorder journals every generation attempt.
func WithRecorder(r Recorder) Option {
	return func(m *Mosaic) { m.recorder = r }
}

// WithLoadingHook registers fn to run whenever a hex starts loading.
func WithLoadingHook(fn func()) Option {
	return func(m *Mosaic) { m.onLoad = fn }
}

// WithModel sets the model id and mime type sent with each request.
func WithModel(model, mimeType string) Option {
	return func(m *Mosaic) {
		m.model = model
		m.mimeType = mimeType
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Mosaic) { m.now = now }
}

// New creates an empty mosaic backed by g.
func New(g Generator, geom tile.Geometry, opts ...Option) *Mosaic {
	m := &Mosaic{
		gen:      g,
		geom:     geom,
		model:    gen.DefaultModel,
		mimeType: gen.DefaultMimeType,
		now:      time.Now,
		subs:     make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.reset()
	return m
}

func (m *Mosaic) reset() {
	m.tiles = make(map[hexgrid.Key]*Tile)
	m.generated = mapset.New[hexgrid.Key]()
	m.expandable = mapset.New[hexgrid.Key]()
	m.loading = mapset.New[hexgrid.Key]()
	m.selected = 0
	m.hasSelected = false
}

// Geometry returns the tile geometry.
func (m *Mosaic) Geometry() tile.Geometry { return m.geom }

// Seed generates the first tile at origin. It is a no-op returning (nil, nil)
// unless the mosaic is empty and nothing is loading. An origin outside
// hexgrid.MaxCoord yields hexgrid.ErrOutOfRange.
func (m *Mosaic) Seed(ctx context.Context, origin hexgrid.HexCoord, prompt string) (*Tile, error) {
	if !origin.InRange() {
		return nil, fmt.Errorf("seed %s: %w", origin, hexgrid.ErrOutOfRange)
	}
	prompt = gen.SeedPrompt(prompt)
	key := origin.Key()

	m.mu.Lock()
	if m.generated.Size() > 0 || m.loading.Size() > 0 {
		m.mu.Unlock()
		slog.Debug("seed ignored", "origin", origin)
		return nil, nil
	}
	m.loading.Put(key)
	epoch := m.epoch
	m.mu.Unlock()
	m.started(origin)

	f := flight{
		kind:  KindSeed,
		key:   key,
		coord: origin,
		epoch: epoch,
		req:   gen.Request{Prompt: prompt, MimeType: m.mimeType, Model: m.model},
	}
	return m.fly(ctx, f, func(t *Tile) {
		m.tiles[key] = t
		m.generated.Put(key)
		m.expandable.Remove(key)
		m.selected, m.hasSelected = key, true
		m.prompt = prompt
		// Full ring so the first tile is explorable in every direction.
		for _, n := range hexgrid.Ring(origin, 1) {
			if n.InRange() {
				m.expandable.Put(n.Key())
			}
		}
	})
}

// Extend generates target from the selected tile using the current prompt.
func (m *Mosaic) Extend(ctx context.Context, target hexgrid.HexCoord) (*Tile, error) {
	return m.ExtendWithPrompt(ctx, target, "")
}

// ExtendWithPrompt generates target from the selected tile. A non-empty
// prompt replaces the mosaic's base prompt once the tile is committed. It is
// a no-op returning (nil, nil) when target is not expandable, is already
// loading, or nothing is selected. A target not adjacent to the selection
// yields hexgrid.ErrInvalidDirection without changing state.
func (m *Mosaic) ExtendWithPrompt(ctx context.Context, target hexgrid.HexCoord, prompt string) (*Tile, error) {
	if !target.InRange() {
		return nil, fmt.Errorf("extend %s: %w", target, hexgrid.ErrOutOfRange)
	}
	key := target.Key()

	m.mu.Lock()
	if !m.expandable.Has(key) || m.loading.Has(key) || !m.hasSelected {
		m.mu.Unlock()
		slog.Debug("extend ignored", "target", target)
		return nil, nil
	}
	src := m.tiles[m.selected]
	dir, err := hexgrid.DirectionOf(src.Coord, target)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	base := m.prompt
	if prompt != "" {
		base = prompt
	}
	m.loading.Put(key)
	epoch := m.epoch
	m.mu.Unlock()
	m.started(target)

	f := flight{
		kind:      KindExtend,
		key:       key,
		coord:     target,
		epoch:     epoch,
		direction: dir.String(),
	}

	sctx, err := tile.BuildContext(src.Image, src.Rotation, dir, m.geom)
	if err != nil {
		m.abort(f, err)
		return nil, err
	}
	rotation := tile.NormalizeRotation(sctx.Rotation)
	f.rotation = rotation
	f.req = gen.Request{
		Prompt: gen.ExtendPrompt(base,
			int(math.Round(m.geom.HexWidth())), int(math.Round(m.geom.HexHeight()))),
		ContextImages: []string{sctx.Payload},
		MimeType:      m.mimeType,
		Model:         m.model,
	}

	return m.fly(ctx, f, func(t *Tile) {
		m.tiles[key] = t
		m.generated.Put(key)
		m.expandable.Remove(key)
		m.growFrontier(target)
		m.selected, m.hasSelected = key, true
		if prompt != "" {
			m.prompt = prompt
		}
	})
}

// growFrontier adds every non-generated, in-range neighbor of c to
// expandable. Caller holds m.mu.
func (m *Mosaic) growFrontier(c hexgrid.HexCoord) {
	for _, n := range c.Neighbors() {
		if !n.InRange() {
			continue
		}
		if nk := n.Key(); !m.generated.Has(nk) {
			m.expandable.Put(nk)
		}
	}
}

// Select makes coord the source of the next extension. Returns false, and
// changes nothing, if coord is not generated.
func (m *Mosaic) Select(coord hexgrid.HexCoord) bool {
	if !coord.InRange() {
		return false
	}
	key := coord.Key()
	m.mu.Lock()
	if !m.generated.Has(key) {
		m.mu.Unlock()
		return false
	}
	m.selected, m.hasSelected = key, true
	m.mu.Unlock()
	m.publish(Event{Kind: EventSelected, Coord: &coord})
	return true
}

// Clear empties the mosaic. Generations still in flight are discarded when
// they return.
func (m *Mosaic) Clear() {
	m.mu.Lock()
	m.epoch++
	m.reset()
	m.mu.Unlock()
	slog.Info("mosaic cleared")
	m.publish(Event{Kind: EventCleared})
}

// Prompt returns the base prompt used for extensions.
func (m *Mosaic) Prompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prompt
}

// Tile returns the tile at coord, if generated.
func (m *Mosaic) Tile(coord hexgrid.HexCoord) (*Tile, bool) {
	if !coord.InRange() {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tiles[coord.Key()]
	return t, ok
}

// Selected returns the selected coordinate, if any.
func (m *Mosaic) Selected() (hexgrid.HexCoord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selected.Coord(), m.hasSelected
}

// LoadingCount returns the number of hexes waiting on the service.
func (m *Mosaic) LoadingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading.Size()
}

// GeneratedCount returns the number of generated tiles.
func (m *Mosaic) GeneratedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generated.Size()
}

// Snapshot is a consistent copy of the mosaic state.
type Snapshot struct {
	Generated  []hexgrid.HexCoord `json:"generated"`
	Expandable []hexgrid.HexCoord `json:"expandable"`
	Loading    []hexgrid.HexCoord `json:"loading"`
	Selected   *hexgrid.HexCoord  `json:"selected,omitempty"`
	Prompt     string             `json:"prompt"`
	Tiles      []*Tile            `json:"-"`
}

// IsLoading reports whether c is in the loading set of the snapshot.
func (s *Snapshot) IsLoading(c hexgrid.HexCoord) bool {
	return slices.Contains(s.Loading, c)
}

// Snapshot copies the current state. Coordinates are sorted by (r, q).
func (m *Mosaic) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &Snapshot{
		Generated:  coords(m.generated),
		Expandable: coords(m.expandable),
		Loading:    coords(m.loading),
		Prompt:     m.prompt,
	}
	if m.hasSelected {
		sel := m.selected.Coord()
		s.Selected = &sel
	}
	s.Tiles = make([]*Tile, 0, len(s.Generated))
	for _, c := range s.Generated {
		s.Tiles = append(s.Tiles, m.tiles[c.Key()])
	}
	return s
}

func coords(set mapset.Set[hexgrid.Key]) []hexgrid.HexCoord {
	out := make([]hexgrid.HexCoord, 0, set.Size())
	set.Each(func(k hexgrid.Key) {
		out = append(out, k.Coord())
	})
	slices.SortFunc(out, func(a, b hexgrid.HexCoord) int {
		if c := cmp.Compare(a.R, b.R); c != 0 {
			return c
		}
		return cmp.Compare(a.Q, b.Q)
	})
	return out
}
