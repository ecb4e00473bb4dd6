package mosaic

import (
	"context"

	"github.com/talgya/hex-mosaic/internal/hexgrid"
)

// Click actions.
const (
	ClickNone   = "none"
	ClickSelect = "select"
	ClickExtend = "extend"
)

// ClickResult describes what a pointer press did.
type ClickResult struct {
	Coord  hexgrid.HexCoord `json:"coord"`
	Hit    bool             `json:"hit"`
	Action string           `json:"action"`
	Tile   *Tile            `json:"-"`
}

// Click applies a pointer press at pixel (x, y): a generated hex becomes the
// selection, an expandable hex that is not loading is extended.
func (m *Mosaic) Click(ctx context.Context, layout hexgrid.Layout, x, y float64) (ClickResult, error) {
	c, ok := layout.HitTest(x, y)
	if !ok || !c.InRange() {
		return ClickResult{Action: ClickNone}, nil
	}
	res := ClickResult{Coord: c, Hit: true, Action: ClickNone}
	if m.Select(c) {
		res.Action = ClickSelect
		return res, nil
	}

	key := c.Key()
	m.mu.Lock()
	eligible := m.expandable.Has(key) && !m.loading.Has(key)
	m.mu.Unlock()
	if !eligible {
		return res, nil
	}

	t, err := m.Extend(ctx, c)
	if err != nil {
		return res, err
	}
	if t != nil {
		res.Action = ClickExtend
		res.Tile = t
	}
	return res, nil
}
