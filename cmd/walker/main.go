// Command walker grows a running mosaic on its own. Each cycle it observes
// the mosaic through the HTTP API, picks the next hex and extends it.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/talgya/hex-mosaic/internal/walker"
)

func main() {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if isatty.IsTerminal(os.Stdout.Fd()) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))

	// Configuration from environment.
	apiURL := envOrDefault("MOSAIC_API_URL", "http://localhost:5174")
	prompt := os.Getenv("WALKER_PROMPT")
	intervalSec := envIntOrDefault("WALKER_INTERVAL", 30)
	if intervalSec <= 0 {
		intervalSec = 30
	}
	interval := time.Duration(intervalSec) * time.Second

	slog.Info("mosaic walker starting",
		"api_url", apiURL,
		"interval", interval,
	)

	w := &walker.Walker{Client: walker.NewClient(apiURL), Prompt: prompt}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("waiting for mosaic API...")
	if !waitForAPI(ctx, w.Client) {
		return
	}

	runCycle(ctx, w)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			runCycle(ctx, w)
		case <-ctx.Done():
			slog.Info("received signal, shutting down")
			fmt.Println("Walker stopped.")
			return
		}
	}
}

func runCycle(ctx context.Context, w *walker.Walker) {
	plan, err := w.Cycle(ctx)
	if err != nil {
		slog.Error("cycle failed", "action", plan.Action, "error", err)
		return
	}
	slog.Info("cycle complete", "action", plan.Action)
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

// waitForAPI polls the health endpoint with exponential backoff until it
// responds. Exits after 5 minutes if the API never becomes ready.
func waitForAPI(ctx context.Context, c *walker.Client) bool {
	backoff := 2 * time.Second
	maxBackoff := 30 * time.Second
	deadline := time.Now().Add(5 * time.Minute)

	for {
		if c.Healthy(ctx) {
			slog.Info("mosaic API is ready")
			return true
		}
		if time.Now().After(deadline) {
			slog.Error("mosaic API did not become ready within 5 minutes")
			os.Exit(1)
		}
		slog.Info("mosaic API not ready, retrying...", "backoff", backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return false
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
