// Package config loads server settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/hex-mosaic/internal/gen"
)

// DefaultPath is read when MOSAIC_CONFIG is unset.
const DefaultPath = "mosaic.yaml"

// Config holds all server configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Generation GenerationConfig `yaml:"generation"`
	Mosaic     MosaicConfig     `yaml:"mosaic"`
	Render     RenderConfig     `yaml:"render"`
	Database   DatabaseConfig   `yaml:"database"`
}

// ServerConfig holds HTTP settings
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
	RateLimit   int      `yaml:"rate_limit"` // generation requests per minute per client
}

// GenerationConfig holds image service settings
type GenerationConfig struct {
	APIKey             string        `yaml:"api_key"`
	BaseURL            string        `yaml:"base_url"`
	Model              string        `yaml:"model"`
	MimeType           string        `yaml:"mime_type"`
	Timeout            time.Duration `yaml:"timeout"` // 0 means none
	MaxPerMinute       int           `yaml:"max_per_minute"`
	ProceduralFallback bool          `yaml:"procedural_fallback"`
	Seed               int64         `yaml:"seed"`
}

// MosaicConfig holds tile settings
type MosaicConfig struct {
	HexSize float64 `yaml:"hex_size"`
	Prompt  string  `yaml:"prompt"`
}

// RenderConfig holds server-side render settings
type RenderConfig struct {
	FrameInterval time.Duration `yaml:"frame_interval"`
	Width         int           `yaml:"width"`
	Height        int           `yaml:"height"`
}

// DatabaseConfig holds the journal location
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:      5174,
			RateLimit: 20,
		},
		Generation: GenerationConfig{
			Model:              gen.DefaultModel,
			MimeType:           gen.DefaultMimeType,
			MaxPerMinute:       20,
			ProceduralFallback: true,
			Seed:               1,
		},
		Mosaic: MosaicConfig{
			HexSize: 72,
			Prompt:  gen.DefaultPrompt,
		},
		Render: RenderConfig{
			FrameInterval: 33 * time.Millisecond,
			Width:         1280,
			Height:        800,
		},
		Database: DatabaseConfig{Path: "data/mosaic.db"},
	}
}

// Path returns the config file location from MOSAIC_CONFIG or DefaultPath.
func Path() string {
	if p := os.Getenv("MOSAIC_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.fillZeroes()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Generation.APIKey = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("MOSAIC_DB"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("MOSAIC_CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.Server.CORSOrigins = append(c.Server.CORSOrigins, o)
			}
		}
	}
	return nil
}

// fillZeroes restores defaults for fields a file explicitly zeroed.
func (c *Config) fillZeroes() {
	d := Default()
	if c.Generation.Model == "" {
		c.Generation.Model = d.Generation.Model
	}
	if c.Generation.MimeType == "" {
		c.Generation.MimeType = d.Generation.MimeType
	}
	if c.Mosaic.Prompt == "" {
		c.Mosaic.Prompt = d.Mosaic.Prompt
	}
	if c.Render.FrameInterval <= 0 {
		c.Render.FrameInterval = d.Render.FrameInterval
	}
	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		c.Render.Width, c.Render.Height = d.Render.Width, d.Render.Height
	}
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Mosaic.HexSize <= 0 {
		return fmt.Errorf("mosaic.hex_size must be positive, got %v", c.Mosaic.HexSize)
	}
	if c.Generation.Timeout < 0 {
		return fmt.Errorf("generation.timeout must not be negative")
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
