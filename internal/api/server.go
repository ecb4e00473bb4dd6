// Package api serves the mosaic over HTTP: the generation proxy, mosaic
// operations, rendered frames and a live event stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/talgya/hex-mosaic/internal/mosaic"
	"github.com/talgya/hex-mosaic/internal/persistence"
	"github.com/talgya/hex-mosaic/internal/render"
)

const (
	maxSSEConns  = 8
	maxBodyBytes = 10 << 20
)

// Server serves the mosaic over HTTP.
type Server struct {
	Mosaic    *mosaic.Mosaic
	Generator mosaic.Generator // backs POST /api/generate; nil answers 503
	DB        *persistence.DB  // generation journal; nil disables history
	Renderer  *render.Renderer
	Width     int // viewport for rendered frames
	Height    int
	Prompt    string // seed prompt when a request leaves it empty

	Addr        string
	CORSOrigins []string
	RateLimit   int // generation requests per minute per client, 0 = unlimited

	// Active SSE connection count (atomic).
	sseConns int32

	// Latest PNG frame drawn by the animator or after a state change.
	frame   atomic.Pointer[[]byte]
	started time.Time

	srv *http.Server
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	if s.started.IsZero() {
		s.started = time.Now()
	}
	limiter := NewRateLimiter(s.RateLimit, time.Minute)

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(s.CORSOrigins))

	r.Get("/api/health", s.handleHealth)
	r.With(limiter.Middleware).Post("/api/generate", s.handleGenerate)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/mosaic", s.handleMosaic)
		r.Get("/tiles/{q}/{r}", s.handleTile)
		r.Get("/history", s.handleHistory)
		r.Get("/render.png", s.handleRender)
		r.Get("/frame.png", s.handleFrame)
		r.Get("/stream", s.handleStream)

		r.Post("/select", s.handleSelect)
		r.Post("/clear", s.handleClear)
		r.Group(func(r chi.Router) {
			r.Use(limiter.Middleware)
			r.Post("/seed", s.handleSeed)
			r.Post("/extend", s.handleExtend)
			r.Post("/click", s.handleClick)
		})
	})
	return r
}

// Start begins serving the HTTP API in a goroutine, and keeps the cached
// frame current by redrawing after every mosaic change.
func (s *Server) Start() {
	s.srv = &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", s.Addr, "generation", s.Generator != nil, "journal", s.DB != nil)

	go s.watch()
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// watch redraws the cached frame after each state change so an idle mosaic
// still serves a current picture without the animation loop.
func (s *Server) watch() {
	id, ch := s.Mosaic.Subscribe()
	defer s.Mosaic.Unsubscribe(id)
	s.DrawFrame(time.Since(s.started))
	for range ch {
		s.DrawFrame(time.Since(s.started))
	}
}

// requestID tags every request with a uuid, reusing an incoming X-Request-ID.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Localhost dev servers are always allowed.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:5174": true,
		"http://localhost:3000": true,
	}
	for _, o := range origins {
		allowedOrigins[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowedOrigins[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// errorBody is the JSON error shape shared by every endpoint.
type errorBody struct {
	Error   string `json:"error"`
	Text    string `json:"text,omitempty"`
	Details string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, body errorBody) {
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}

// decodeBody reads a JSON body; an empty body leaves v zero.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, errorBody{Error: "invalid request body", Details: err.Error()})
		return false
	}
	return true
}

func writePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	w.Write(data)
}
