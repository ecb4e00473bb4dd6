package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/talgya/hex-mosaic/internal/gen"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"GEMINI_API_KEY", "PORT", "MOSAIC_DB", "MOSAIC_CORS_ORIGINS", "MOSAIC_CONFIG"} {
		t.Setenv(k, "")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 5174 || cfg.Mosaic.HexSize != 72 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Generation.Model != gen.DefaultModel || cfg.Generation.MimeType != "image/png" {
		t.Fatalf("unexpected generation defaults %+v", cfg.Generation)
	}
	if cfg.Generation.Timeout != 0 || !cfg.Generation.ProceduralFallback {
		t.Fatalf("timeout should default to none and fallback on")
	}
	if cfg.Render.FrameInterval != 33*time.Millisecond || cfg.Render.Width != 1280 || cfg.Render.Height != 800 {
		t.Fatalf("unexpected render defaults %+v", cfg.Render)
	}
	if cfg.Database.Path != "data/mosaic.db" || cfg.Mosaic.Prompt != gen.DefaultPrompt {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "mosaic.yaml")
	body := `
server:
  port: 9000
  cors_origins: ["http://localhost:3000"]
generation:
  model: custom-model
  timeout: 45s
  procedural_fallback: false
mosaic:
  hex_size: 40
render:
  frame_interval: 50ms
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9000 || len(cfg.Server.CORSOrigins) != 1 {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if cfg.Generation.Model != "custom-model" || cfg.Generation.Timeout != 45*time.Second || cfg.Generation.ProceduralFallback {
		t.Fatalf("generation = %+v", cfg.Generation)
	}
	if cfg.Generation.MimeType != "image/png" || cfg.Server.RateLimit != 20 {
		t.Fatalf("unset fields should keep defaults: %+v", cfg)
	}
	if cfg.Mosaic.HexSize != 40 || cfg.Render.FrameInterval != 50*time.Millisecond {
		t.Fatalf("unexpected %+v %+v", cfg.Mosaic, cfg.Render)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "k")
	t.Setenv("PORT", "8088")
	t.Setenv("MOSAIC_DB", "/tmp/x.db")
	t.Setenv("MOSAIC_CORS_ORIGINS", "http://a, http://b,")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Generation.APIKey != "k" || cfg.Server.Port != 8088 || cfg.Database.Path != "/tmp/x.db" {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "http://b" {
		t.Fatalf("origins = %v", cfg.Server.CORSOrigins)
	}
	if cfg.Addr() != ":8088" {
		t.Fatalf("addr = %s", cfg.Addr())
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "eighty")
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for non-numeric PORT")
	}

	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("mosaic:\n  hex_size: -3\n"), 0o644)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for negative hex size")
	}

	os.WriteFile(path, []byte("server: [unclosed"), 0o644)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestPath(t *testing.T) {
	clearEnv(t)
	if Path() != DefaultPath {
		t.Fatalf("Path() = %s", Path())
	}
	t.Setenv("MOSAIC_CONFIG", "/etc/mosaic.yaml")
	if Path() != "/etc/mosaic.yaml" {
		t.Fatalf("Path() = %s", Path())
	}
}
