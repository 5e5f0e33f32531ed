// Package clock supplies millisecond timestamps measured from process start.
package clock

import (
	"sync/atomic"
	"time"
)

// Clock returns the current time in milliseconds since boot.
type Clock interface {
	NowMS() uint64
}

// Boot measures elapsed time from its creation using the monotonic clock, so
// wall-clock adjustments never move it backwards. Its zero point plays the
// role of device power-on.
type Boot struct {
	start time.Time
}

// NewBoot starts a clock at zero.
func NewBoot() *Boot {
	return &Boot{start: time.Now()}
}

// NowMS implements Clock.
func (b *Boot) NowMS() uint64 {
	return uint64(time.Since(b.start).Milliseconds()) //nolint:gosec // monotonic, never negative
}

// Fake is a manually driven Clock for tests.
type Fake struct {
	ms atomic.Uint64
}

// NewFake returns a Fake reading ms.
func NewFake(ms uint64) *Fake {
	f := &Fake{}
	f.ms.Store(ms)
	return f
}

// NowMS implements Clock.
func (f *Fake) NowMS() uint64 { return f.ms.Load() }

// Set moves the clock to ms.
func (f *Fake) Set(ms uint64) { f.ms.Store(ms) }

// Advance moves the clock forward by d milliseconds.
func (f *Fake) Advance(d uint64) { f.ms.Add(d) }
