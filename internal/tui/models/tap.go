package models

import (
	"sync"

	"github.com/allbin/bkmeter/internal/trace"
)

// Tap is a trace.Logger that buffers events for the frame log. Events are
// logged from the poll goroutine and drained from the UI goroutine.
type Tap struct {
	mu     sync.Mutex
	events []trace.Event
	max    int
}

func NewTap(max int) *Tap {
	if max <= 0 {
		max = 256
	}
	return &Tap{max: max}
}

func (t *Tap) Log(e trace.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, e)
	if n := len(t.events) - t.max; n > 0 {
		t.events = t.events[n:]
	}
}

// Drain returns and forgets the buffered events.
func (t *Tap) Drain() []trace.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	events := t.events
	t.events = nil
	return events
}

var _ trace.Logger = (*Tap)(nil)
