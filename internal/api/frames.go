package api

import (
	"image"
	"log/slog"
	"net/http"
	"time"

	"github.com/talgya/hex-mosaic/internal/tile"
)

// DrawFrame renders the current mosaic into the cached frame. It is the
// animator's per-frame callback.
func (s *Server) DrawFrame(elapsed time.Duration) []byte {
	data, err := s.draw(elapsed)
	if err != nil {
		slog.Error("frame render failed", "error", err)
		return nil
	}
	s.frame.Store(&data)
	return data
}

func (s *Server) draw(elapsed time.Duration) ([]byte, error) {
	dst := image.NewRGBA(image.Rect(0, 0, s.Width, s.Height))
	s.Renderer.Draw(dst, s.Mosaic.Snapshot(), elapsed)
	return tile.EncodePNG(dst)
}

// handleRender draws the mosaic on demand.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	data, err := s.draw(time.Since(s.started))
	if err != nil {
		writeError(w, http.StatusInternalServerError, errorBody{Error: "render", Details: err.Error()})
		return
	}
	writePNG(w, data)
}

// handleFrame serves the last frame drawn, rendering one if none exists yet.
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	if p := s.frame.Load(); p != nil {
		writePNG(w, *p)
		return
	}
	data := s.DrawFrame(time.Since(s.started))
	if data == nil {
		writeError(w, http.StatusInternalServerError, errorBody{Error: "render"})
		return
	}
	writePNG(w, data)
}
