//go:build !linux

package entropy

import (
	"crypto/rand"
	"fmt"
)

// System reads from the operating system CSPRNG.
type System struct{}

// NewSystem returns the OS-backed source.
func NewSystem() *System {
	return &System{}
}

// Fill implements Source.
func (*System) Fill(p []byte) error {
	if _, err := rand.Read(p); err != nil {
		return fmt.Errorf("reading os random: %w", err)
	}
	return nil
}

func (*System) String() string { return "system" }
