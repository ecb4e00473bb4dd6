package mosaic

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/hex-mosaic/internal/gen"
	"github.com/talgya/hex-mosaic/internal/hexgrid"
	"github.com/talgya/hex-mosaic/internal/tile"
)

// Generation kinds.
const (
	KindSeed   = "seed"
	KindExtend = "extend"
)

// Generation outcomes.
const (
	StatusOK        = "ok"
	StatusFailed    = "failed"
	StatusDiscarded = "discarded"
)

// GenerationError wraps a failed generation for one hex. Err is one of the
// gen errors (ErrNoCandidate, ErrNoImage, *TextResponseError, *ServiceError)
// or a *tile.DecodeError.
type GenerationError struct {
	Coord hexgrid.HexCoord
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate %s: %v", e.Coord, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Record is one journaled generation attempt.
type Record struct {
	ID           string        `json:"id"`
	Kind         string        `json:"kind"`
	Q            int           `json:"q"`
	R            int           `json:"r"`
	Direction    string        `json:"direction,omitempty"`
	Prompt       string        `json:"prompt"`
	Status       string        `json:"status"`
	Error        string        `json:"error,omitempty"`
	PayloadBytes int           `json:"payload_bytes"`
	Duration     time.Duration `json:"duration_ns"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Recorder journals generation attempts.
type Recorder interface {
	RecordGeneration(ctx context.Context, rec Record) error
}

// flight is one accepted generation: the key is already in loading.
type flight struct {
	kind      string
	key       hexgrid.Key
	coord     hexgrid.HexCoord
	epoch     uint64
	direction string
	rotation  int
	req       gen.Request
}

// started notifies listeners that a hex entered loading.
func (m *Mosaic) started(c hexgrid.HexCoord) {
	m.publish(Event{Kind: EventLoading, Coord: &c})
	if m.onLoad != nil {
		m.onLoad()
	}
}

// fly runs the generation call outside the lock, then resolves the flight in
// a single critical section: the key leaves loading exactly once and commit
// runs only on success. Results from before a Clear are dropped.
func (m *Mosaic) fly(ctx context.Context, f flight, commit func(*Tile)) (*Tile, error) {
	start := m.now()
	res, err := m.invoke(ctx, f.req)
	var img image.Image
	if err == nil {
		img, err = tile.Decode(res.ImageData)
	}

	m.mu.Lock()
	stale := f.epoch != m.epoch
	if !stale {
		m.loading.Remove(f.key)
	}
	var t *Tile
	if err == nil && !stale {
		t = &Tile{
			Coord:     f.coord,
			Image:     img,
			Payload:   res.ImageData,
			Rotation:  f.rotation,
			CreatedAt: m.now(),
		}
		commit(t)
	}
	m.mu.Unlock()

	rec := Record{
		ID:           uuid.NewString(),
		Kind:         f.kind,
		Q:            f.coord.Q,
		R:            f.coord.R,
		Direction:    f.direction,
		Prompt:       f.req.Prompt,
		PayloadBytes: len(res.ImageData),
		Duration:     m.now().Sub(start),
		CreatedAt:    start,
	}

	switch {
	case err != nil:
		rec.Status, rec.Error = StatusFailed, err.Error()
		m.record(ctx, rec)
		slog.Warn("generation failed", "kind", f.kind, "coord", f.coord, "error", err)
		if !stale {
			m.publish(Event{Kind: EventFailed, Coord: &f.coord, Error: err.Error()})
		}
		return nil, &GenerationError{Coord: f.coord, Err: err}
	case stale:
		rec.Status = StatusDiscarded
		m.record(ctx, rec)
		slog.Info("generation discarded after clear", "kind", f.kind, "coord", f.coord)
		return nil, ErrDiscarded
	}

	rec.Status = StatusOK
	m.record(ctx, rec)
	slog.Info("tile generated",
		"kind", f.kind,
		"coord", f.coord,
		"direction", f.direction,
		"rotation", f.rotation,
		"retried", res.Retried,
		"elapsed", rec.Duration,
	)
	m.publish(Event{Kind: EventGenerated, Coord: &f.coord})
	return t, nil
}

// abort releases a flight that failed before the call was issued.
func (m *Mosaic) abort(f flight, err error) {
	m.mu.Lock()
	if f.epoch == m.epoch {
		m.loading.Remove(f.key)
	}
	m.mu.Unlock()
	slog.Error("generation aborted", "coord", f.coord, "error", err)
	m.publish(Event{Kind: EventFailed, Coord: &f.coord, Error: err.Error()})
}

// invoke calls the generator, turning a panic into a ServiceError so the
// flight still resolves.
func (m *Mosaic) invoke(ctx context.Context, req gen.Request) (res gen.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = gen.Result{}, &gen.ServiceError{Details: fmt.Sprintf("generator panic: %v", r)}
		}
	}()
	if m.gen == nil {
		return gen.Result{}, gen.ErrNotConfigured
	}
	return m.gen.Generate(ctx, req)
}

func (m *Mosaic) record(ctx context.Context, rec Record) {
	if m.recorder == nil {
		return
	}
	if err := m.recorder.RecordGeneration(context.WithoutCancel(ctx), rec); err != nil {
		slog.Warn("journal write failed", "id", rec.ID, "error", err)
	}
}
