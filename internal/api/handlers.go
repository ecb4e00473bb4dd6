package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"github.com/talgya/hex-mosaic/internal/hexgrid"
	"github.com/talgya/hex-mosaic/internal/mosaic"
	"github.com/talgya/hex-mosaic/internal/tile"
)

type tileInfo struct {
	Q         int       `json:"q"`
	R         int       `json:"r"`
	Rotation  int       `json:"rotation"`
	CreatedAt time.Time `json:"created_at"`
	URL       string    `json:"url"`
}

type mosaicView struct {
	Generated  []hexgrid.HexCoord `json:"generated"`
	Expandable []hexgrid.HexCoord `json:"expandable"`
	Loading    []hexgrid.HexCoord `json:"loading"`
	Selected   *hexgrid.HexCoord  `json:"selected,omitempty"`
	Prompt     string             `json:"prompt"`
	Tiles      []tileInfo         `json:"tiles"`
}

func newTileInfo(t *mosaic.Tile) tileInfo {
	return tileInfo{
		Q:         t.Coord.Q,
		R:         t.Coord.R,
		Rotation:  t.Rotation,
		CreatedAt: t.CreatedAt,
		URL:       "/api/v1/tiles/" + strconv.Itoa(t.Coord.Q) + "/" + strconv.Itoa(t.Coord.R),
	}
}

func (s *Server) view() mosaicView {
	snap := s.Mosaic.Snapshot()
	v := mosaicView{
		Generated:  snap.Generated,
		Expandable: snap.Expandable,
		Loading:    snap.Loading,
		Selected:   snap.Selected,
		Prompt:     snap.Prompt,
		Tiles:      make([]tileInfo, 0, len(snap.Tiles)),
	}
	for _, t := range snap.Tiles {
		v.Tiles = append(v.Tiles, newTileInfo(t))
	}
	return v
}

func (s *Server) handleMosaic(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.view())
}

type hexRequest struct {
	Q         *int   `json:"q"`
	R         *int   `json:"r"`
	Direction string `json:"direction"` // extend only, relative to the selection
	Prompt    string `json:"prompt"`
}

// validCoord rejects coordinates the mosaic cannot key.
func validCoord(w http.ResponseWriter, c hexgrid.HexCoord) bool {
	if !c.InRange() {
		writeError(w, http.StatusBadRequest, errorBody{
			Error:   "coordinate out of range",
			Details: fmt.Sprintf("q and r must be within ±%d", hexgrid.MaxCoord),
		})
		return false
	}
	return true
}

func (h hexRequest) coord() hexgrid.HexCoord {
	var c hexgrid.HexCoord
	if h.Q != nil {
		c.Q = *h.Q
	}
	if h.R != nil {
		c.R = *h.R
	}
	return c
}

// tileResponse answers a seed or extend. A nil tile means the call was a
// no-op because its preconditions did not hold.
func (s *Server) tileResponse(w http.ResponseWriter, t *mosaic.Tile, err error, noop string) {
	if err != nil {
		status, body := generationFailure(err)
		writeError(w, status, body)
		return
	}
	if t == nil {
		writeError(w, http.StatusConflict, errorBody{Error: noop})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tile":   newTileInfo(t),
		"mosaic": s.view(),
	})
}

// handleSeed generates the first tile, at the origin unless q/r are given.
func (s *Server) handleSeed(w http.ResponseWriter, r *http.Request) {
	var req hexRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Prompt == "" {
		req.Prompt = s.Prompt
	}
	if !validCoord(w, req.coord()) {
		return
	}
	t, err := s.Mosaic.Seed(context.WithoutCancel(r.Context()), req.coord(), req.Prompt)
	s.tileResponse(w, t, err, "mosaic is already seeded or seeding")
}

// handleExtend generates q/r, or the neighbor of the selection named by
// direction, from the selected tile.
func (s *Server) handleExtend(w http.ResponseWriter, r *http.Request) {
	var req hexRequest
	if !decodeBody(w, r, &req) {
		return
	}
	target := req.coord()
	switch {
	case req.Direction != "":
		dir, err := hexgrid.ParseDirection(req.Direction)
		if err != nil {
			writeError(w, http.StatusBadRequest, errorBody{Error: "invalid direction", Details: err.Error()})
			return
		}
		sel, ok := s.Mosaic.Selected()
		if !ok {
			writeError(w, http.StatusConflict, errorBody{Error: "nothing is selected"})
			return
		}
		target = sel.Add(dir.Delta())
	case req.Q == nil || req.R == nil:
		writeError(w, http.StatusBadRequest, errorBody{Error: "q and r, or direction, are required"})
		return
	}
	if !validCoord(w, target) {
		return
	}
	t, err := s.Mosaic.ExtendWithPrompt(context.WithoutCancel(r.Context()), target, req.Prompt)
	s.tileResponse(w, t, err, "hex is not expandable, already loading, or nothing is selected")
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req hexRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Q == nil || req.R == nil {
		writeError(w, http.StatusBadRequest, errorBody{Error: "q and r are required"})
		return
	}
	if !validCoord(w, req.coord()) {
		return
	}
	if !s.Mosaic.Select(req.coord()) {
		writeError(w, http.StatusNotFound, errorBody{Error: "hex is not generated"})
		return
	}
	writeJSON(w, http.StatusOK, s.view())
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.Mosaic.Clear()
	writeJSON(w, http.StatusOK, s.view())
}

type clickRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// handleClick applies a press at viewport pixel (x, y) of the rendered frame.
func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	var req clickRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.Mosaic.Click(context.WithoutCancel(r.Context()), s.Renderer.Layout, req.X, req.Y)
	if err != nil {
		status, body := generationFailure(err)
		writeError(w, status, body)
		return
	}
	out := map[string]any{
		"hit":    res.Hit,
		"action": res.Action,
		"mosaic": s.view(),
	}
	if res.Hit {
		out["coord"] = res.Coord
	}
	if res.Tile != nil {
		out["tile"] = newTileInfo(res.Tile)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleTile serves a tile as PNG in its stored orientation; the rotation to
// apply when drawing is in X-Tile-Rotation.
func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	q, errQ := strconv.Atoi(chi.URLParam(r, "q"))
	rr, errR := strconv.Atoi(chi.URLParam(r, "r"))
	if errQ != nil || errR != nil {
		writeError(w, http.StatusBadRequest, errorBody{Error: "invalid coordinate"})
		return
	}
	t, ok := s.Mosaic.Tile(hexgrid.HexCoord{Q: q, R: rr})
	if !ok {
		writeError(w, http.StatusNotFound, errorBody{Error: "tile not found"})
		return
	}
	data, err := tile.EncodePNG(t.Image)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errorBody{Error: "encode tile", Details: err.Error()})
		return
	}
	w.Header().Set("X-Tile-Rotation", strconv.Itoa(t.Rotation))
	w.Header().Set("X-Tile-Created", t.CreatedAt.UTC().Format(time.RFC3339))
	writePNG(w, data)
}

type historyEntry struct {
	mosaic.Record
	Payload string `json:"payload"`
	Age     string `json:"age"`
}

// handleHistory lists recent generation attempts from the journal.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, errorBody{Error: "invalid limit"})
			return
		}
		limit = min(n, 500)
	}
	if s.DB == nil {
		writeJSON(w, http.StatusOK, map[string]any{"generations": []historyEntry{}})
		return
	}

	recs, err := s.DB.RecentGenerations(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errorBody{Error: "read journal", Details: err.Error()})
		return
	}
	stats, err := s.DB.GenerationStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, errorBody{Error: "read journal", Details: err.Error()})
		return
	}
	entries := make([]historyEntry, len(recs))
	for i, rec := range recs {
		entries[i] = historyEntry{
			Record:  rec,
			Payload: humanize.Bytes(uint64(rec.PayloadBytes)),
			Age:     humanize.Time(rec.CreatedAt),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"generations":   entries,
		"stats":         stats,
		"payload_total": humanize.Bytes(uint64(stats.PayloadBytes)),
	})
}
