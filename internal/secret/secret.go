// Package secret holds short-lived key material in buffers that are
// overwritten with zeros when released.
package secret

import "runtime"

// Buffer is a fixed-size byte buffer for secret material.
//
// Callers must pair New with a deferred Release so the bytes are wiped on
// every exit path, including early error returns and panics.
type Buffer struct {
	b        []byte
	released bool
}

// New allocates a zeroed buffer of the given size.
func New(size int) *Buffer {
	return &Buffer{b: make([]byte, size)}
}

// Bytes returns the backing slice. The slice must not be retained after
// Release; once released it only ever contains zeros.
func (s *Buffer) Bytes() []byte {
	return s.b
}

// Len returns the buffer size in bytes.
func (s *Buffer) Len() int {
	return len(s.b)
}

// Release overwrites the buffer with zeros. It may be called more than once.
func (s *Buffer) Release() {
	Wipe(s.b)
	s.released = true
}

// Released reports whether Release has been called.
func (s *Buffer) Released() bool {
	return s.released
}

// IsZero reports whether every byte in the buffer is zero.
func (s *Buffer) IsZero() bool {
	return IsZero(s.b)
}

// Wipe overwrites b with zeros.
//
// The function is kept out of line and the slice is kept alive past the
// loop so the stores cannot be dropped as dead writes.
//
//go:noinline
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}

// IsZero reports whether b contains only zero bytes. It reads every byte
// regardless of where the first non-zero byte is.
func IsZero(b []byte) bool {
	var acc byte
	for _, v := range b {
		acc |= v
	}
	return acc == 0
}
