package mosaic

import (
	"time"

	"github.com/talgya/hex-mosaic/internal/hexgrid"
)

// EventKind names a mosaic change.
type EventKind string

const (
	EventLoading   EventKind = "loading"
	EventGenerated EventKind = "generated"
	EventFailed    EventKind = "failed"
	EventSelected  EventKind = "selected"
	EventCleared   EventKind = "cleared"
)

// Event is a notable change to the mosaic.
type Event struct {
	Kind  EventKind         `json:"kind"`
	Coord *hexgrid.HexCoord `json:"coord,omitempty"`
	Error string            `json:"error,omitempty"`
	Time  time.Time         `json:"time"`
}

const subscriberBuffer = 64

// Subscribe returns a channel receiving every subsequent event. Slow
// subscribers miss events rather than block the mosaic.
func (m *Mosaic) Subscribe() (int, <-chan Event) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	id := m.nextSub
	m.nextSub++
	ch := make(chan Event, subscriberBuffer)
	m.subs[id] = ch
	return id, ch
}

// Unsubscribe closes and removes a subscription.
func (m *Mosaic) Unsubscribe(id int) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	if ch, ok := m.subs[id]; ok {
		close(ch)
		delete(m.subs, id)
	}
}

func (m *Mosaic) publish(e Event) {
	if e.Time.IsZero() {
		e.Time = m.now()
	}
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
