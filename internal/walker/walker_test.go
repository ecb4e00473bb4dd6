package walker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/talgya/hex-mosaic/internal/api"
	"github.com/talgya/hex-mosaic/internal/gen"
	"github.com/talgya/hex-mosaic/internal/hexgrid"
	"github.com/talgya/hex-mosaic/internal/mosaic"
	"github.com/talgya/hex-mosaic/internal/render"
	"github.com/talgya/hex-mosaic/internal/tile"
)

func hc(q, r int) hexgrid.HexCoord { return hexgrid.HexCoord{Q: q, R: r} }

func ring(c hexgrid.HexCoord) []hexgrid.HexCoord {
	n := c.Neighbors()
	return n[:]
}

func TestDecide(t *testing.T) {
	origin := hc(0, 0)
	east := hc(1, 0)
	boxed := append([]hexgrid.HexCoord{origin}, ring(origin)...)

	tests := []struct {
		name   string
		view   View
		action string
		sel    *hexgrid.HexCoord
		target hexgrid.HexCoord
	}{
		{
			name:   "empty mosaic seeds",
			view:   View{},
			action: ActionSeed,
		},
		{
			name:   "seed in flight waits",
			view:   View{Loading: []hexgrid.HexCoord{origin}},
			action: ActionWait,
		},
		{
			name:   "ties break in direction order",
			view:   View{Generated: []hexgrid.HexCoord{origin}, Expandable: ring(origin), Selected: &origin},
			action: ActionExtend,
			target: east,
		},
		{
			name: "loading hexes are skipped",
			view: View{Generated: []hexgrid.HexCoord{origin}, Expandable: ring(origin), Selected: &origin,
				Loading: []hexgrid.HexCoord{east}},
			action: ActionExtend,
			target: hc(1, -1),
		},
		{
			name: "closest to origin wins",
			view: View{
				Generated:  []hexgrid.HexCoord{origin, east},
				Expandable: []hexgrid.HexCoord{hc(2, 0), hc(2, -1), hc(1, -1), hc(0, 1), hc(1, 1)},
				Selected:   &east,
			},
			action: ActionExtend,
			target: hc(1, -1),
		},
		{
			name: "boxed-in selection moves",
			view: View{
				Generated:  boxed,
				Expandable: []hexgrid.HexCoord{hc(2, -1)},
				Selected:   &origin,
			},
			action: ActionExtend,
			sel:    &east,
			target: hc(2, -1),
		},
		{
			name:   "no frontier waits",
			view:   View{Generated: []hexgrid.HexCoord{origin}, Selected: &origin},
			action: ActionWait,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Decide(tt.view)
			if p.Action != tt.action {
				t.Fatalf("action = %s, want %s", p.Action, tt.action)
			}
			if p.Action != ActionExtend {
				return
			}
			if p.Target != tt.target {
				t.Fatalf("target = %v, want %v", p.Target, tt.target)
			}
			if (p.Select == nil) != (tt.sel == nil) || (p.Select != nil && *p.Select != *tt.sel) {
				t.Fatalf("select = %v, want %v", p.Select, tt.sel)
			}
		})
	}
}

func newAPI(t *testing.T) (*mosaic.Mosaic, string) {
	t.Helper()
	geom := tile.Geometry{Size: 10}
	m := mosaic.New(gen.NewProcedural(geom, 3), geom)
	s := &api.Server{
		Mosaic:   m,
		Renderer: render.NewRenderer(geom.Size, 100, 100),
		Width:    100,
		Height:   100,
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return m, ts.URL
}

func TestCyclesGrowMosaic(t *testing.T) {
	m, url := newAPI(t)
	w := &Walker{Client: NewClient(url), Prompt: "tidepools"}
	ctx := context.Background()

	if !w.Client.Healthy(ctx) {
		t.Fatalf("API not healthy")
	}

	want := []struct {
		action string
		target hexgrid.HexCoord
	}{
		{ActionSeed, hc(0, 0)},
		{ActionExtend, hc(1, 0)},
		{ActionExtend, hc(1, -1)},
	}
	for i, step := range want {
		p, err := w.Cycle(ctx)
		if err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
		if p.Action != step.action || (p.Action == ActionExtend && p.Target != step.target) {
			t.Fatalf("cycle %d: plan %+v, want %s %v", i, p, step.action, step.target)
		}
	}
	if m.GeneratedCount() != 3 {
		t.Fatalf("generated = %d, want 3", m.GeneratedCount())
	}
	if m.Prompt() != "tidepools" {
		t.Fatalf("prompt = %q", m.Prompt())
	}
	if sel, _ := m.Selected(); sel != hc(1, -1) {
		t.Fatalf("selection = %v", sel)
	}
}

func TestClientStatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusConflict)
	}))
	defer ts.Close()

	err := NewClient(ts.URL).Extend(context.Background(), hc(1, 0))
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusConflict || se.Body != "nope" {
		t.Fatalf("expected StatusError 409, got %v", err)
	}
	if NewClient(ts.URL).Healthy(context.Background()) {
		t.Fatalf("non-200 health must not count as healthy")
	}
}
