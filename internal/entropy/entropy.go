// Package entropy provides random byte sources suitable for key material.
//
// A Source wraps one noise generator: the kernel CSPRNG, a TPM 2.0 RNG, or
// a raw hardware RNG device. Check performs the start-up self test that
// rejects a broken generator before any key is derived from it.
package entropy

import (
	"errors"
	"fmt"
)

// ErrFault indicates the random source is unavailable or failed its sanity
// check. It is fatal for the current attempt; callers may retry.
var ErrFault = errors.New("entropy fault")

// sampleSize is the number of bytes read by Check.
const sampleSize = 8

// Source fills buffers with cryptographically secure random bytes.
// Implementations must be safe for concurrent use.
type Source interface {
	// Fill fills p entirely or returns an error.
	Fill(p []byte) error
}

// Check reads a small sample from src and fails with ErrFault when the read
// fails or the sample is degenerate (every byte identical, as produced by a
// generator stuck at zero or at one).
func Check(src Source) error {
	sample := make([]byte, sampleSize)
	if err := src.Fill(sample); err != nil {
		return fmt.Errorf("%w: reading sample: %w", ErrFault, err)
	}
	if degenerate(sample) {
		return fmt.Errorf("%w: sample is degenerate (%#x repeated)", ErrFault, sample[0])
	}
	return nil
}

func degenerate(sample []byte) bool {
	for _, b := range sample[1:] {
		if b != sample[0] {
			return false
		}
	}
	return true
}
