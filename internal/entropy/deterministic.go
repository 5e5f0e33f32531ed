package entropy

import (
	"encoding/binary"
	"sync"

	"golang.org/x/crypto/chacha20"
)

// Deterministic is a reproducible Source: a ChaCha20 keystream keyed by a
// seed. Two sources built from the same seed produce the same bytes, which
// makes it useful for tests and simulations and useless for real keys.
type Deterministic struct {
	mu sync.Mutex
	c  *chacha20.Cipher
}

// NewDeterministic returns a source whose output is fixed by seed.
func NewDeterministic(seed uint64) *Deterministic {
	var key [chacha20.KeySize]byte
	binary.BigEndian.PutUint64(key[:8], seed)
	nonce := make([]byte, chacha20.NonceSize)
	c, err := chacha20.NewUnauthenticatedCipher(key[:], nonce)
	if err != nil {
		panic(err) // key and nonce sizes are constants
	}
	return &Deterministic{c: c}
}

// Fill implements Source.
func (d *Deterministic) Fill(p []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(p)
	d.c.XORKeyStream(p, p)
	return nil
}

func (*Deterministic) String() string { return "deterministic" }
