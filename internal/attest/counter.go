package attest

import (
	"errors"
	"math"
	"sync/atomic"
)

// ErrCounterExhausted is returned once every 32-bit counter value has been
// handed out in this power cycle.
var ErrCounterExhausted = errors.New("attestation counter exhausted")

// Counter is the per power cycle attestation counter. The zero value starts
// at 0. Values are never handed out twice, including under concurrent use.
type Counter struct {
	next atomic.Uint64
}

// Next returns the next unused value.
func (c *Counter) Next() (uint32, error) {
	v := c.next.Add(1) - 1
	if v > math.MaxUint32 {
		return 0, ErrCounterExhausted
	}
	return uint32(v), nil
}

// Issued returns how many values have been requested so far.
func (c *Counter) Issued() uint64 {
	return c.next.Load()
}
