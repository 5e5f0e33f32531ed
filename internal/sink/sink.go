// Package sink delivers finished attestations to wherever they are read:
// a terminal, a pipe, a log, or the local journal.
package sink

import (
	"context"

	"github.com/majorcontext/ephemera/internal/attest"
)

// Sink receives attestations. Implementations must be safe for concurrent
// use. An Emit error means the attestation may not have been delivered; it
// is never retried.
type Sink interface {
	Emit(ctx context.Context, att *attest.Attestation) error
}

// Func adapts a function to a Sink.
type Func func(ctx context.Context, att *attest.Attestation) error

// Emit implements Sink.
func (f Func) Emit(ctx context.Context, att *attest.Attestation) error { return f(ctx, att) }

// Multi fans each attestation out to every sink in order. Every sink is
// attempted; the first error is returned.
type Multi []Sink

// Emit implements Sink.
func (m Multi) Emit(ctx context.Context, att *attest.Attestation) error {
	var first error
	for _, s := range m {
		if err := s.Emit(ctx, att); err != nil && first == nil {
			first = err
		}
	}
	return first
}
