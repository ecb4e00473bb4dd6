// Package gen provides the image generation transport: a Gemini API client
// and an offline procedural generator with the same contract.
package gen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	defaultBaseURL  = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel    = "gemini-2.5-flash-image-preview"
	DefaultMimeType = "image/png"
)

// Request is one generation call.
type Request struct {
	Prompt        string   `json:"prompt"`
	ContextImages []string `json:"imageParts"` // base64 images, sent before the prompt
	MimeType      string   `json:"mimeType"`
	Model         string   `json:"model"`
}

// Result is a successful generation.
type Result struct {
	ImageData string `json:"imageData"` // base64 image
	Retried   bool   `json:"retry,omitempty"`
}

// ClientConfig configures a Client.
type ClientConfig struct {
	APIKey       string
	BaseURL      string        // defaults to the public Gemini endpoint
	Timeout      time.Duration // 0 means no HTTP timeout
	MaxPerMinute int           // 0 disables local rate limiting
}

// Client wraps the Gemini generateContent API for image generation.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client

	// Rate limiting: max calls per minute.
	mu        sync.Mutex
	callCount int
	resetAt   time.Time
	maxPerMin int
}

// NewClient creates a new Gemini client.
// Returns nil if the API key is empty (remote generation disabled).
func NewClient(cfg ClientConfig) *Client {
	if cfg.APIKey == "" {
		return nil
	}
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: base,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		maxPerMin: cfg.MaxPerMinute,
	}
}

// Enabled returns true if the client has a valid API key.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

type inlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature        float64  `json:"temperature"`
	CandidateCount     int      `json:"candidateCount"`
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

// request is the API request body.
type request struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

// response is the API response body.
type response struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// Generate sends the prompt and context images and returns the generated image.
// A text-only answer is retried once with an image-only instruction.
func (c *Client) Generate(ctx context.Context, req Request) (Result, error) {
	if !c.Enabled() {
		return Result{}, ErrNotConfigured
	}
	if req.MimeType == "" {
		req.MimeType = DefaultMimeType
	}
	if req.Model == "" {
		req.Model = DefaultModel
	}

	parts, err := c.call(ctx, req, req.Prompt)
	if err != nil {
		return Result{}, err
	}
	if img, ok := pickImage(parts, req.ContextImages); ok {
		return Result{ImageData: img}, nil
	}

	text, hasText := firstText(parts)
	if !hasText {
		return Result{}, ErrNoImage
	}

	slog.Debug("model answered with text, retrying image-only", "model", req.Model, "text_len", len(text))
	parts, err = c.call(ctx, req, imageOnlyPrefix+req.Prompt)
	if errors.Is(err, ErrNoCandidate) {
		return Result{}, &TextResponseError{Text: text}
	}
	if err != nil {
		return Result{}, err
	}
	if img, ok := pickImage(parts, req.ContextImages); ok {
		return Result{ImageData: img, Retried: true}, nil
	}
	return Result{}, &TextResponseError{Text: text}
}

// call performs one generateContent round trip and returns the first
// candidate's parts.
func (c *Client) call(ctx context.Context, req Request, prompt string) ([]part, error) {
	if err := c.allow(); err != nil {
		return nil, err
	}

	var body request
	msg := content{}
	for _, img := range req.ContextImages {
		msg.Parts = append(msg.Parts, part{InlineData: &inlineData{MimeType: req.MimeType, Data: img}})
	}
	if prompt != "" {
		msg.Parts = append(msg.Parts, part{Text: prompt})
	}
	body.Contents = []content{msg}
	body.GenerationConfig = generationConfig{
		Temperature:        0.01,
		CandidateCount:     1,
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, req.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &ServiceError{Details: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ServiceError{Status: resp.StatusCode, Details: "read response: " + err.Error(), Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ServiceError{Status: resp.StatusCode, Details: string(respBody)}
	}

	var apiResp response
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, &ServiceError{Status: resp.StatusCode, Details: "unmarshal response: " + err.Error(), Err: err}
	}

	slog.Debug("gemini call",
		"model", req.Model,
		"context_images", len(req.ContextImages),
		"request_size", humanize.Bytes(uint64(len(data))),
		"response_size", humanize.Bytes(uint64(len(respBody))),
		"prompt_tokens", apiResp.UsageMetadata.PromptTokenCount,
		"candidate_tokens", apiResp.UsageMetadata.CandidatesTokenCount,
		"elapsed", time.Since(start),
	)

	if len(apiResp.Candidates) == 0 {
		return nil, ErrNoCandidate
	}
	return apiResp.Candidates[0].Content.Parts, nil
}

func (c *Client) allow() error {
	if c.maxPerMin <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	if now.After(c.resetAt) {
		c.callCount = 0
		c.resetAt = now.Add(time.Minute)
	}
	if c.callCount >= c.maxPerMin {
		return &ServiceError{
			Status:  http.StatusTooManyRequests,
			Details: fmt.Sprintf("rate limit exceeded (%d calls/min)", c.maxPerMin),
		}
	}
	c.callCount++
	return nil
}

// pickImage prefers the last inline image that is not one of the inputs,
// falling back to the last inline image of any kind.
func pickImage(parts []part, inputs []string) (string, bool) {
	seen := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		if in != "" {
			seen[in] = true
		}
	}
	for i := len(parts) - 1; i >= 0; i-- {
		if d := parts[i].InlineData; d != nil && d.Data != "" && !seen[d.Data] {
			return d.Data, true
		}
	}
	for i := len(parts) - 1; i >= 0; i-- {
		if d := parts[i].InlineData; d != nil && d.Data != "" {
			return d.Data, true
		}
	}
	return "", false
}

func firstText(parts []part) (string, bool) {
	for _, p := range parts {
		if p.Text != "" {
			return p.Text, true
		}
	}
	return "", false
}
