package walker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/talgya/hex-mosaic/internal/hexgrid"
)

// Client talks to the mosaic API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a Client targeting the given API base URL. Generation
// calls can take a while, so the timeout is generous.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

// Observe fetches the current mosaic.
func (c *Client) Observe(ctx context.Context) (*View, error) {
	var v View
	if err := c.do(ctx, http.MethodGet, "/api/v1/mosaic", nil, &v); err != nil {
		return nil, fmt.Errorf("fetch mosaic: %w", err)
	}
	return &v, nil
}

// Healthy reports whether the API answers its health check.
func (c *Client) Healthy(ctx context.Context) bool {
	var body struct {
		OK bool `json:"ok"`
	}
	return c.do(ctx, http.MethodGet, "/api/health", nil, &body) == nil && body.OK
}

// Seed asks for the first tile.
func (c *Client) Seed(ctx context.Context, prompt string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/seed", map[string]any{"prompt": prompt}, nil)
}

// Select moves the selection to coord.
func (c *Client) Select(ctx context.Context, coord hexgrid.HexCoord) error {
	return c.do(ctx, http.MethodPost, "/api/v1/select", map[string]any{"q": coord.Q, "r": coord.R}, nil)
}

// Extend generates coord from the selected tile.
func (c *Client) Extend(ctx context.Context, coord hexgrid.HexCoord) error {
	return c.do(ctx, http.MethodPost, "/api/v1/extend", map[string]any{"q": coord.Q, "r": coord.R}, nil)
}

// StatusError is a non-200 answer from the API.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.Path, e.Status, e.Body)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", path, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: string(bytes.TrimSpace(b))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
