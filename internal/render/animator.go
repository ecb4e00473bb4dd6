package render

import (
	"log/slog"
	"sync"
	"time"
)

// Scheduler runs fn once after roughly d.
type Scheduler interface {
	Schedule(d time.Duration, fn func())
}

// FrameClock is a Scheduler backed by runtime timers.
type FrameClock struct{}

// Schedule implements Scheduler.
func (FrameClock) Schedule(d time.Duration, fn func()) { time.AfterFunc(d, fn) }

// Animator redraws frames while something is loading. Each frame schedules
// the next only if Loading still reports work; once it drains the loop stops
// and nothing runs until the next Ensure.
type Animator struct {
	Interval time.Duration

	// Loading reports the number of pending hexes.
	Loading func() int
	// OnFrame draws one frame.
	OnFrame func(elapsed time.Duration)

	sched Scheduler
	now   func() time.Time
	start time.Time

	mu      sync.Mutex
	running bool
	frames  uint64
}

// NewAnimator creates an animator. Interval defaults to ~30 fps.
func NewAnimator(s Scheduler, interval time.Duration) *Animator {
	if interval <= 0 {
		interval = 33 * time.Millisecond
	}
	return &Animator{
		Interval: interval,
		sched:    s,
		now:      time.Now,
		start:    time.Now(),
	}
}

// Ensure starts the loop if it is not already running.
func (a *Animator) Ensure() {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return
	}
	a.running = true
	a.mu.Unlock()
	slog.Debug("animation started")
	a.sched.Schedule(a.Interval, a.tick)
}

// Running reports whether a frame is scheduled.
func (a *Animator) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Frames returns the number of frames drawn so far.
func (a *Animator) Frames() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.frames
}

func (a *Animator) tick() {
	if a.OnFrame != nil {
		a.OnFrame(a.now().Sub(a.start))
	}

	a.mu.Lock()
	a.frames++
	more := a.Loading != nil && a.Loading() > 0
	if !more {
		a.running = false
	}
	a.mu.Unlock()

	if more {
		a.sched.Schedule(a.Interval, a.tick)
		return
	}
	slog.Debug("animation stopped", "frames", a.Frames())
}
