//go:build linux

package entropy

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// System reads from the kernel CSPRNG with getrandom(2), blocking until the
// pool is initialized.
type System struct{}

// NewSystem returns the kernel-backed source.
func NewSystem() *System {
	return &System{}
}

// Fill implements Source.
func (*System) Fill(p []byte) error {
	for len(p) > 0 {
		n, err := unix.Getrandom(p, 0)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return fmt.Errorf("getrandom: %w", err)
		}
		p = p[n:]
	}
	return nil
}

func (*System) String() string { return "system" }
