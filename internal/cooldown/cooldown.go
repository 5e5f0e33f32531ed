// Package cooldown enforces a minimum interval between attestations using
// local state only.
//
// An attacker without physical access cannot trigger attestations faster
// than the interval allows, and waiting never accumulates credit for a
// later burst.
package cooldown

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// DefaultInterval is the minimum spacing between successful attestations,
// in milliseconds.
const DefaultInterval uint64 = 1000

// ErrActive matches any *ActiveError.
var ErrActive = errors.New("cooldown active")

// ActiveError reports that the gate is closed. It is an expected outcome,
// not a fault.
type ActiveError struct {
	RemainingMS uint64
}

func (e *ActiveError) Error() string {
	return fmt.Sprintf("cooldown active: wait %dms", e.RemainingMS)
}

// Is makes errors.Is(err, ErrActive) true.
func (e *ActiveError) Is(target error) bool {
	return target == ErrActive
}

// Result is the outcome of Check: Ready, or Wait with RemainingMS > 0.
type Result struct {
	Ready       bool
	RemainingMS uint64
}

// Gate tracks the timestamp of the last successful attestation. Its zero
// value is not usable; create one with New.
type Gate struct {
	interval uint64
	// last points at the last success timestamp; nil until the first one.
	last atomic.Pointer[uint64]
}

// New returns a gate with the given interval in milliseconds.
func New(interval uint64) *Gate {
	return &Gate{interval: interval}
}

// Interval returns the configured interval in milliseconds.
func (g *Gate) Interval() uint64 {
	return g.interval
}

// Check reports whether an attestation at now would be allowed. It does not
// change state.
func (g *Gate) Check(now uint64) Result {
	return g.evaluate(g.last.Load(), now)
}

// Record sets the last success to now unconditionally.
func (g *Gate) Record(now uint64) {
	g.last.Store(&now)
}

// Acquire checks and records as one atomic step: when the gate is ready it
// records now and returns nil, otherwise it returns an *ActiveError. Among
// concurrent callers at most one succeeds per interval.
func (g *Gate) Acquire(now uint64) error {
	for {
		prev := g.last.Load()
		r := g.evaluate(prev, now)
		if !r.Ready {
			return &ActiveError{RemainingMS: r.RemainingMS}
		}
		if g.last.CompareAndSwap(prev, &now) {
			return nil
		}
	}
}

// LastSuccess returns the last recorded success, if any.
func (g *Gate) LastSuccess() (uint64, bool) {
	v := g.last.Load()
	if v == nil {
		return 0, false
	}
	return *v, true
}

func (g *Gate) evaluate(last *uint64, now uint64) Result {
	if last == nil {
		return Result{Ready: true}
	}
	elapsed := saturatingSub(now, *last)
	if elapsed >= g.interval {
		return Result{Ready: true}
	}
	return Result{RemainingMS: g.interval - elapsed}
}

func saturatingSub(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}
