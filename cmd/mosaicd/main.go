// Command mosaicd serves an infinite hexagonal image mosaic over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/talgya/hex-mosaic/internal/api"
	"github.com/talgya/hex-mosaic/internal/config"
	"github.com/talgya/hex-mosaic/internal/gen"
	"github.com/talgya/hex-mosaic/internal/mosaic"
	"github.com/talgya/hex-mosaic/internal/persistence"
	"github.com/talgya/hex-mosaic/internal/render"
	"github.com/talgya/hex-mosaic/internal/tile"
)

func main() {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if isatty.IsTerminal(os.Stdout.Fd()) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))

	cfgPath := config.Path()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	// ── Journal ───────────────────────────────────────────────────────
	var db *persistence.DB
	if cfg.Database.Path != "" {
		db, err = persistence.Open(cfg.Database.Path)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		slog.Info("database opened", "path", cfg.Database.Path)
	}

	// ── Generator ─────────────────────────────────────────────────────
	geom := tile.Geometry{Size: cfg.Mosaic.HexSize}
	var generator mosaic.Generator
	switch {
	case cfg.Generation.APIKey != "":
		generator = gen.NewClient(gen.ClientConfig{
			APIKey:       cfg.Generation.APIKey,
			BaseURL:      cfg.Generation.BaseURL,
			Timeout:      cfg.Generation.Timeout,
			MaxPerMinute: cfg.Generation.MaxPerMinute,
		})
		slog.Info("image service enabled", "model", cfg.Generation.Model)
	case cfg.Generation.ProceduralFallback:
		generator = gen.NewProcedural(geom, cfg.Generation.Seed)
		slog.Warn("GEMINI_API_KEY not set, using procedural tiles")
	default:
		slog.Warn("GEMINI_API_KEY not set, generation disabled")
	}

	// ── Mosaic ────────────────────────────────────────────────────────
	animator := render.NewAnimator(render.FrameClock{}, cfg.Render.FrameInterval)
	mopts := []mosaic.Option{
		mosaic.WithModel(cfg.Generation.Model, cfg.Generation.MimeType),
		mosaic.WithLoadingHook(animator.Ensure),
	}
	if db != nil {
		mopts = append(mopts, mosaic.WithRecorder(db))
	}
	m := mosaic.New(generator, geom, mopts...)

	// ── HTTP API ──────────────────────────────────────────────────────
	server := &api.Server{
		Mosaic:      m,
		Generator:   generator,
		DB:          db,
		Renderer:    render.NewRenderer(geom.Size, cfg.Render.Width, cfg.Render.Height),
		Width:       cfg.Render.Width,
		Height:      cfg.Render.Height,
		Prompt:      cfg.Mosaic.Prompt,
		Addr:        cfg.Addr(),
		CORSOrigins: cfg.Server.CORSOrigins,
		RateLimit:   cfg.Server.RateLimit,
	}
	animator.Loading = m.LoadingCount
	animator.OnFrame = func(elapsed time.Duration) { server.DrawFrame(elapsed) }
	server.Start()

	fmt.Printf("\nMosaic API: http://localhost:%d/api/v1/mosaic\n", cfg.Server.Port)
	fmt.Println("Serving... (Ctrl+C to stop)")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("received signal, shutting down", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("shutdown failed", "error", err)
	}
	fmt.Println("Mosaic stopped.")
}
