// Package trigger turns physical or simulated inputs into events for the
// device loop.
package trigger

import (
	"context"
	"errors"
	"sync"

	"github.com/majorcontext/ephemera/internal/payload"
)

// DebounceMS is the window in which repeat presses of one pin are ignored.
const DebounceMS = 50

// ErrQuit is returned by a source when the operator asked to stop.
var ErrQuit = errors.New("quit requested")

// Trigger is one observed input.
type Trigger struct {
	Event payload.Event
	// At is the clock reading, in ms since boot, when the input was seen.
	At uint64
}

// Source produces triggers until ctx is done, the input ends, or the
// operator quits. Run returns nil when the input ends normally.
type Source interface {
	Run(ctx context.Context, out chan<- Trigger) error
}

// send delivers t unless ctx is done first.
func send(ctx context.Context, out chan<- Trigger, t Trigger) error {
	select {
	case out <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Debouncer drops repeat presses of the same pin that arrive within the
// window of the last accepted one. Other event kinds pass through.
type Debouncer struct {
	window uint64

	mu   sync.Mutex
	last map[uint8]uint64
}

// NewDebouncer returns a debouncer with the given window in ms.
func NewDebouncer(windowMS uint64) *Debouncer {
	return &Debouncer{window: windowMS, last: make(map[uint8]uint64)}
}

// Allow reports whether t should be acted on, and records it if so.
func (d *Debouncer) Allow(t Trigger) bool {
	bp, ok := t.Event.(payload.ButtonPress)
	if !ok {
		return true
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if last, seen := d.last[bp.GPIO]; seen && t.At >= last && t.At-last < d.window {
		return false
	}
	d.last[bp.GPIO] = t.At
	return true
}
