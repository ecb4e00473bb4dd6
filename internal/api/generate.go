package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/talgya/hex-mosaic/internal/gen"
	"github.com/talgya/hex-mosaic/internal/hexgrid"
	"github.com/talgya/hex-mosaic/internal/mosaic"
	"github.com/talgya/hex-mosaic/internal/tile"
)

// handleGenerate proxies one generation call: {prompt, imageParts, mimeType,
// model} in, {imageData, retry?} out.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req gen.Request
	if !decodeBody(w, r, &req) {
		return
	}
	slog.Info("generate", "model", req.Model, "prompt_len", len(req.Prompt), "parts", len(req.ContextImages))

	if s.Generator == nil {
		writeError(w, http.StatusServiceUnavailable, errorBody{Error: "Server missing GEMINI_API_KEY"})
		return
	}
	res, err := s.Generator.Generate(context.WithoutCancel(r.Context()), req)
	if err != nil {
		status, body := generationFailure(err)
		writeError(w, status, body)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// generationFailure maps the generation error taxonomy onto HTTP.
func generationFailure(err error) (int, errorBody) {
	var (
		te *gen.TextResponseError
		se *gen.ServiceError
		de *tile.DecodeError
	)
	switch {
	case errors.As(err, &te):
		return http.StatusBadRequest, errorBody{Error: "Model returned text instead of image", Text: te.Text}
	case errors.Is(err, gen.ErrNoCandidate):
		return http.StatusInternalServerError, errorBody{Error: "No candidates in response"}
	case errors.Is(err, gen.ErrNoImage):
		return http.StatusInternalServerError, errorBody{Error: "No image or text in response"}
	case errors.Is(err, gen.ErrNotConfigured):
		return http.StatusServiceUnavailable, errorBody{Error: "Server missing GEMINI_API_KEY"}
	case errors.Is(err, mosaic.ErrDiscarded):
		return http.StatusConflict, errorBody{Error: "mosaic was cleared while generating"}
	case errors.Is(err, hexgrid.ErrInvalidDirection):
		return http.StatusBadRequest, errorBody{Error: "target is not adjacent to the selected tile"}
	case errors.Is(err, hexgrid.ErrOutOfRange):
		return http.StatusBadRequest, errorBody{Error: "coordinate out of range"}
	case errors.As(err, &se):
		if se.Status == http.StatusTooManyRequests {
			return http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded", Details: se.Details}
		}
		return http.StatusInternalServerError, errorBody{Error: "Unexpected server error", Details: se.Details}
	case errors.As(err, &de):
		return http.StatusBadGateway, errorBody{Error: "generated image could not be decoded", Details: de.Err.Error()}
	}
	return http.StatusInternalServerError, errorBody{Error: "Unexpected server error", Details: err.Error()}
}
