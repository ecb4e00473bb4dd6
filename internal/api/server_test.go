package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/talgya/hex-mosaic/internal/gen"
	"github.com/talgya/hex-mosaic/internal/hexgrid"
	"github.com/talgya/hex-mosaic/internal/mosaic"
	"github.com/talgya/hex-mosaic/internal/persistence"
	"github.com/talgya/hex-mosaic/internal/render"
	"github.com/talgya/hex-mosaic/internal/tile"
)

var testGeom = tile.Geometry{Size: 12}

type fakeGen struct {
	mu      sync.Mutex
	calls   int
	payload string
	err     error
}

func (f *fakeGen) Generate(ctx context.Context, req gen.Request) (gen.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return gen.Result{}, f.err
	}
	return gen.Result{ImageData: f.payload}, nil
}

func (f *fakeGen) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeGen) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func payload(t *testing.T) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, testGeom.Width(), testGeom.Height()))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.NRGBA{G: 200, A: 255}}, image.Point{}, draw.Src)
	p, err := tile.Encode(img)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

type fixture struct {
	srv    *Server
	gen    *fakeGen
	url    string
	db     *persistence.DB
	client *http.Client
}

func newFixture(t *testing.T, rateLimit int) *fixture {
	t.Helper()
	db, err := persistence.Open(filepath.Join(t.TempDir(), "mosaic.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	g := &fakeGen{payload: payload(t)}
	s := &Server{
		Mosaic:    mosaic.New(g, testGeom, mosaic.WithRecorder(db)),
		Generator: g,
		DB:        db,
		Renderer:  render.NewRenderer(testGeom.Size, 200, 200),
		Width:     200,
		Height:    200,
		RateLimit: rateLimit,
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return &fixture{srv: s, gen: g, url: ts.URL, db: db, client: ts.Client()}
}

func (f *fixture) post(t *testing.T, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	data, _ := json.Marshal(body)
	resp, err := f.client.Post(f.url+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (f *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := f.client.Get(f.url + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	f := newFixture(t, 0)
	resp := f.get(t, "/api/health")
	var body map[string]bool
	json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode != http.StatusOK || !body["ok"] {
		t.Fatalf("health = %d %v", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("missing request id")
	}
}

func TestGenerateProxy(t *testing.T) {
	f := newFixture(t, 0)
	resp, body := f.post(t, "/api/generate", gen.Request{Prompt: "p", ContextImages: []string{"abc"}})
	if resp.StatusCode != http.StatusOK || body["imageData"] == "" {
		t.Fatalf("generate = %d %v", resp.StatusCode, body)
	}
	if _, ok := body["retry"]; ok {
		t.Fatalf("retry flag should be omitted when false")
	}

	f.gen.fail(&gen.TextResponseError{Text: "a poem"})
	resp, body = f.post(t, "/api/generate", gen.Request{Prompt: "p"})
	if resp.StatusCode != http.StatusBadRequest || body["text"] != "a poem" {
		t.Fatalf("text answer = %d %v", resp.StatusCode, body)
	}

	f.gen.fail(gen.ErrNoCandidate)
	resp, body = f.post(t, "/api/generate", gen.Request{Prompt: "p"})
	if resp.StatusCode != http.StatusInternalServerError || body["error"] != "No candidates in response" {
		t.Fatalf("no candidate = %d %v", resp.StatusCode, body)
	}

	f.srv.Generator = nil
	resp, _ = f.post(t, "/api/generate", gen.Request{Prompt: "p"})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("missing generator = %d", resp.StatusCode)
	}
}

func TestSeedExtendSelectClear(t *testing.T) {
	f := newFixture(t, 0)

	resp, body := f.post(t, "/api/v1/seed", map[string]any{"prompt": "reef"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("seed = %d %v", resp.StatusCode, body)
	}
	resp, _ = f.post(t, "/api/v1/seed", map[string]any{})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second seed = %d, want 409", resp.StatusCode)
	}

	resp, body = f.post(t, "/api/v1/extend", map[string]any{"q": 1, "r": 0})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("extend = %d %v", resp.StatusCode, body)
	}
	if tl := body["tile"].(map[string]any); tl["rotation"].(float64) != 0 {
		t.Fatalf("east tile rotation = %v", tl["rotation"])
	}

	resp, _ = f.post(t, "/api/v1/extend", map[string]any{"q": 1, "r": 0})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("extend generated hex = %d, want 409", resp.StatusCode)
	}
	resp, _ = f.post(t, "/api/v1/extend", map[string]any{"q": 1})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("extend without r = %d, want 400", resp.StatusCode)
	}

	resp, _ = f.post(t, "/api/v1/select", map[string]any{"q": 0, "r": 0})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("select = %d", resp.StatusCode)
	}
	resp, _ = f.post(t, "/api/v1/extend", map[string]any{"q": 2, "r": 0})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("non-adjacent extend = %d, want 400", resp.StatusCode)
	}
	resp, _ = f.post(t, "/api/v1/select", map[string]any{"q": 9, "r": 9})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("select empty hex = %d, want 404", resp.StatusCode)
	}

	var view mosaicView
	json.NewDecoder(f.get(t, "/api/v1/mosaic").Body).Decode(&view)
	if len(view.Generated) != 2 || len(view.Tiles) != 2 || view.Selected == nil || *view.Selected != (hexgrid.HexCoord{}) {
		t.Fatalf("mosaic = %+v", view)
	}
	if view.Prompt != "reef" {
		t.Fatalf("prompt = %q", view.Prompt)
	}

	resp, body = f.post(t, "/api/v1/clear", nil)
	if resp.StatusCode != http.StatusOK || len(body["generated"].([]any)) != 0 {
		t.Fatalf("clear = %d %v", resp.StatusCode, body)
	}
}

func TestExtendFailureMapsError(t *testing.T) {
	f := newFixture(t, 0)
	f.post(t, "/api/v1/seed", map[string]any{})
	f.gen.fail(&gen.TextResponseError{Text: "sorry"})
	resp, body := f.post(t, "/api/v1/extend", map[string]any{"q": 0, "r": 1})
	if resp.StatusCode != http.StatusBadRequest || body["text"] != "sorry" {
		t.Fatalf("failed extend = %d %v", resp.StatusCode, body)
	}
	if f.srv.Mosaic.LoadingCount() != 0 {
		t.Fatalf("loading not released after failure")
	}
}

func TestClick(t *testing.T) {
	f := newFixture(t, 0)
	f.post(t, "/api/v1/seed", map[string]any{})

	x, y := f.srv.Renderer.Layout.AxialToPixel(hexgrid.HexCoord{Q: -1, R: 1})
	resp, body := f.post(t, "/api/v1/click", map[string]any{"x": x, "y": y})
	if resp.StatusCode != http.StatusOK || body["action"] != mosaic.ClickExtend {
		t.Fatalf("click frontier = %d %v", resp.StatusCode, body)
	}

	x, y = f.srv.Renderer.Layout.AxialToPixel(hexgrid.HexCoord{})
	_, body = f.post(t, "/api/v1/click", map[string]any{"x": x, "y": y})
	if body["action"] != mosaic.ClickSelect {
		t.Fatalf("click tile = %v", body)
	}
}

func TestTileAndRender(t *testing.T) {
	f := newFixture(t, 0)
	f.post(t, "/api/v1/seed", map[string]any{})

	resp := f.get(t, "/api/v1/tiles/0/0")
	if resp.StatusCode != http.StatusOK || resp.Header.Get("X-Tile-Rotation") != "0" {
		t.Fatalf("tile = %d rotation %q", resp.StatusCode, resp.Header.Get("X-Tile-Rotation"))
	}
	img, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatalf("tile is not a PNG: %v", err)
	}
	if img.Bounds().Dx() != testGeom.Width() {
		t.Fatalf("tile width = %d", img.Bounds().Dx())
	}

	if resp := f.get(t, "/api/v1/tiles/4/4"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing tile = %d", resp.StatusCode)
	}
	if resp := f.get(t, "/api/v1/tiles/x/0"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad coordinate = %d", resp.StatusCode)
	}

	for _, path := range []string{"/api/v1/render.png", "/api/v1/frame.png"} {
		resp := f.get(t, path)
		frame, err := png.Decode(resp.Body)
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		if frame.Bounds().Dx() != 200 || frame.Bounds().Dy() != 200 {
			t.Fatalf("%s is %v", path, frame.Bounds())
		}
		// Origin tile is drawn at the viewport center.
		if _, g, _, _ := frame.At(100, 100).RGBA(); g>>8 < 150 {
			t.Fatalf("%s: center not painted with the tile", path)
		}
	}
}

func TestHistory(t *testing.T) {
	f := newFixture(t, 0)
	f.post(t, "/api/v1/seed", map[string]any{})
	f.gen.fail(gen.ErrNoImage)
	f.post(t, "/api/v1/extend", map[string]any{"q": 1, "r": 0})

	var body struct {
		Generations []historyEntry `json:"generations"`
		Stats       persistence.Stats
	}
	json.NewDecoder(f.get(t, "/api/v1/history?limit=10").Body).Decode(&body)
	if len(body.Generations) != 2 {
		t.Fatalf("history = %+v", body)
	}
	if body.Generations[0].Status != mosaic.StatusFailed || body.Generations[1].Status != mosaic.StatusOK {
		t.Fatalf("unexpected order or status: %+v", body.Generations)
	}
	if body.Generations[1].Payload == "" {
		t.Fatalf("payload size not humanized")
	}
	if body.Stats.Total != 2 || body.Stats.Failed != 1 {
		t.Fatalf("stats = %+v", body.Stats)
	}

	if resp := f.get(t, "/api/v1/history?limit=zero"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad limit = %d", resp.StatusCode)
	}
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, 1)
	if resp, _ := f.post(t, "/api/generate", gen.Request{Prompt: "p"}); resp.StatusCode != http.StatusOK {
		t.Fatalf("first call = %d", resp.StatusCode)
	}
	resp, _ := f.post(t, "/api/generate", gen.Request{Prompt: "p"})
	if resp.StatusCode != http.StatusTooManyRequests || resp.Header.Get("Retry-After") == "" {
		t.Fatalf("second call = %d", resp.StatusCode)
	}
	// Read-only endpoints are not limited.
	if resp := f.get(t, "/api/v1/mosaic"); resp.StatusCode != http.StatusOK {
		t.Fatalf("mosaic = %d", resp.StatusCode)
	}
}

func TestRateLimitIgnoresForwardedFor(t *testing.T) {
	f := newFixture(t, 1)
	for i := 0; i < 5; i++ {
		data, _ := json.Marshal(gen.Request{Prompt: "p"})
		req, _ := http.NewRequest(http.MethodPost, f.url+"/api/generate", bytes.NewReader(data))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		resp, err := f.client.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		want := http.StatusTooManyRequests
		if i == 0 {
			want = http.StatusOK
		}
		if resp.StatusCode != want {
			t.Fatalf("call %d with a fresh X-Forwarded-For = %d, want %d", i, resp.StatusCode, want)
		}
	}
}

func TestCoordinateRange(t *testing.T) {
	f := newFixture(t, 0)
	far := hexgrid.MaxCoord + 1
	for _, path := range []string{"/api/v1/seed", "/api/v1/extend", "/api/v1/select"} {
		resp, body := f.post(t, path, map[string]any{"q": far, "r": 0})
		if resp.StatusCode != http.StatusBadRequest || body["error"] != "coordinate out of range" {
			t.Fatalf("%s far = %d %v", path, resp.StatusCode, body)
		}
	}
	if f.gen.callCount() != 0 || f.srv.Mosaic.GeneratedCount() != 0 {
		t.Fatalf("out-of-range requests must not reach the mosaic")
	}
}

func TestExtendByDirection(t *testing.T) {
	f := newFixture(t, 0)
	resp, _ := f.post(t, "/api/v1/extend", map[string]any{"direction": "northeast"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("extend before seed = %d", resp.StatusCode)
	}
	if resp, _ := f.post(t, "/api/v1/seed", map[string]any{}); resp.StatusCode != http.StatusOK {
		t.Fatalf("seed = %d", resp.StatusCode)
	}
	if resp, _ := f.post(t, "/api/v1/extend", map[string]any{"direction": "up"}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad direction = %d", resp.StatusCode)
	}
	resp, body := f.post(t, "/api/v1/extend", map[string]any{"direction": "northeast"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("extend northeast = %d %v", resp.StatusCode, body)
	}
	tl, ok := body["tile"].(map[string]any)
	if !ok || tl["q"] != float64(1) || tl["r"] != float64(-1) || tl["rotation"] != float64(60) {
		t.Fatalf("tile = %v", body["tile"])
	}
}

func TestCORS(t *testing.T) {
	f := newFixture(t, 0)
	req, _ := http.NewRequest(http.MethodOptions, f.url+"/api/v1/seed", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := f.client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent || resp.Header.Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("preflight = %d %q", resp.StatusCode, resp.Header.Get("Access-Control-Allow-Origin"))
	}

	req, _ = http.NewRequest(http.MethodGet, f.url+"/api/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	resp, err = f.client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.Header.Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unknown origin must not be allowed")
	}
}

func TestStream(t *testing.T) {
	f := newFixture(t, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, f.url+"/api/v1/stream", nil)
	resp, err := f.client.Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	events := make(chan string, 16)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			if name, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
				events <- name
			}
		}
		close(events)
	}()

	next := func() string {
		select {
		case e := <-events:
			return e
		case <-ctx.Done():
			t.Fatalf("timed out waiting for event")
		}
		return ""
	}
	if e := next(); e != "mosaic" {
		t.Fatalf("first event = %q, want mosaic", e)
	}
	f.post(t, "/api/v1/seed", map[string]any{})
	if e := next(); e != string(mosaic.EventLoading) {
		t.Fatalf("event = %q, want loading", e)
	}
	if e := next(); e != string(mosaic.EventGenerated) {
		t.Fatalf("event = %q, want generated", e)
	}
}
