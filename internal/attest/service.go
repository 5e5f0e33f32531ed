// Package attest creates attestations: proofs that a physical event
// happened, each signed by a key that exists only for that proof.
package attest

import (
	"fmt"

	"github.com/majorcontext/ephemera/internal/clock"
	"github.com/majorcontext/ephemera/internal/entropy"
	"github.com/majorcontext/ephemera/internal/ephemeral"
	"github.com/majorcontext/ephemera/internal/payload"
)

// Service turns events into attestations. It is safe for concurrent use;
// the counter it shares with the composition root is atomic.
type Service struct {
	entropy entropy.Source
	clock   clock.Clock
	counter *Counter

	// generate is replaced in tests to observe key destruction.
	generate func(entropy.Source) (*ephemeral.Keypair, error)
}

// NewService returns a service drawing keys from src, timestamps from clk
// and counter values from counter.
func NewService(src entropy.Source, clk clock.Clock, counter *Counter) *Service {
	return &Service{
		entropy:  src,
		clock:    clk,
		counter:  counter,
		generate: ephemeral.Generate,
	}
}

// Create produces an attestation for event.
//
// The counter advances before any signing is attempted, so a failed
// attempt still consumes its value. The ephemeral key is destroyed before
// Create returns on every path. Failures wrap entropy.ErrFault or
// payload.ErrEncoding. Create never retries.
func (s *Service) Create(event payload.Event) (*Attestation, error) {
	ts := s.clock.NowMS()
	n, err := s.counter.Next()
	if err != nil {
		return nil, err
	}

	p := payload.Payload{
		Version:     payload.Version,
		Event:       event,
		TimestampMS: ts,
		Counter:     n,
	}
	msg, err := payload.Encode(p)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}

	key, err := s.generate(s.entropy)
	if err != nil {
		return nil, fmt.Errorf("generating ephemeral key: %w", err)
	}
	defer key.Destroy()

	sig, err := key.Sign(msg)
	if err != nil {
		return nil, fmt.Errorf("signing payload: %w", err)
	}

	return FromParts(p, key.PublicKey(), sig), nil
}
