// Package ephemeral manages one-shot Ed25519 signing keys.
//
// A Keypair is derived from fresh entropy, signs exactly one message and is
// destroyed. Derivation and signing follow RFC 8032 on top of
// filippo.io/edwards25519 so that every intermediate secret (the seed, its
// SHA-512 expansion, the clamped scalar, the nonce prefix and the per
// signature nonce) lives in memory this package owns and wipes.
package ephemeral

import (
	"crypto/ed25519"
	"crypto/sha512"
	"errors"
	"fmt"
	"hash"

	"filippo.io/edwards25519"

	"github.com/majorcontext/ephemera/internal/entropy"
	"github.com/majorcontext/ephemera/internal/secret"
)

const (
	// SeedSize is the number of entropy bytes drawn per key.
	SeedSize = ed25519.SeedSize
	// PublicKeySize is the size of an encoded public key.
	PublicKeySize = ed25519.PublicKeySize
	// SignatureSize is the size of a signature.
	SignatureSize = ed25519.SignatureSize

	prefixSize = sha512.Size - SeedSize
)

var (
	// ErrDestroyed is returned when signing with a destroyed key.
	ErrDestroyed = errors.New("ephemeral key destroyed")
	// ErrUsed is returned when a key is asked to sign a second message.
	ErrUsed = errors.New("ephemeral key already used")
)

// Keypair is a single-use Ed25519 keypair. It is not safe for concurrent use.
type Keypair struct {
	seed   *secret.Buffer
	prefix *secret.Buffer
	scalar *edwards25519.Scalar
	public [PublicKeySize]byte
	used   bool
}

// Generate draws SeedSize bytes from src and derives a keypair from them
// (RFC 8032 section 5.1.5). The seed and its SHA-512 expansion are wiped
// before Generate returns on every path.
//
// Read failures are reported as entropy.ErrFault.
func Generate(src entropy.Source) (*Keypair, error) {
	seed := secret.New(SeedSize)
	defer seed.Release()

	if err := src.Fill(seed.Bytes()); err != nil {
		return nil, fmt.Errorf("%w: drawing seed: %w", entropy.ErrFault, err)
	}

	expanded := secret.New(sha512.Size)
	defer expanded.Release()
	sum512(expanded.Bytes(), seed.Bytes())
	seed.Release()

	k := &Keypair{
		seed:   seed,
		prefix: secret.New(prefixSize),
		scalar: edwards25519.NewScalar(),
	}
	if _, err := k.scalar.SetBytesWithClamping(expanded.Bytes()[:SeedSize]); err != nil {
		k.Destroy()
		return nil, fmt.Errorf("deriving scalar: %w", err)
	}
	copy(k.prefix.Bytes(), expanded.Bytes()[SeedSize:])
	expanded.Release()

	a := new(edwards25519.Point).ScalarBaseMult(k.scalar)
	copy(k.public[:], a.Bytes())
	return k, nil
}

// PublicKey returns the encoded public key.
func (k *Keypair) PublicKey() [PublicKeySize]byte {
	return k.public
}

// Sign returns the deterministic Ed25519 signature of message. It consumes
// no randomness and succeeds at most once per keypair.
func (k *Keypair) Sign(message []byte) ([SignatureSize]byte, error) {
	var sig [SignatureSize]byte
	if k.prefix.Released() {
		return sig, ErrDestroyed
	}
	if k.used {
		return sig, ErrUsed
	}
	k.used = true

	// r = SHA-512(prefix || M) mod l
	nonce := secret.New(sha512.Size)
	defer nonce.Release()
	sum512(nonce.Bytes(), k.prefix.Bytes(), message)

	r := edwards25519.NewScalar()
	defer wipeScalar(r)
	if _, err := r.SetUniformBytes(nonce.Bytes()); err != nil {
		return sig, fmt.Errorf("deriving nonce: %w", err)
	}
	nonce.Release()

	R := new(edwards25519.Point).ScalarBaseMult(r)
	copy(sig[:32], R.Bytes())

	// c = SHA-512(R || A || M) mod l; S = r + c*s mod l
	var challenge [sha512.Size]byte
	h := sha512.New()
	h.Write(sig[:32])
	h.Write(k.public[:])
	h.Write(message)
	h.Sum(challenge[:0])

	c, err := edwards25519.NewScalar().SetUniformBytes(challenge[:])
	if err != nil {
		return sig, fmt.Errorf("deriving challenge: %w", err)
	}
	S := edwards25519.NewScalar().MultiplyAdd(c, k.scalar, r)
	copy(sig[32:], S.Bytes())
	return sig, nil
}

// Destroy wipes the scalar and the nonce prefix. It is safe to call more
// than once.
func (k *Keypair) Destroy() {
	wipeScalar(k.scalar)
	k.prefix.Release()
	k.seed.Release()
}

// Zeroized reports whether every secret this keypair held has been
// overwritten: the seed buffer, the nonce prefix and the private scalar.
func (k *Keypair) Zeroized() bool {
	return k.seed.Released() && k.seed.IsZero() &&
		k.prefix.Released() && k.prefix.IsZero() &&
		k.scalar.Equal(edwards25519.NewScalar()) == 1
}

func wipeScalar(s *edwards25519.Scalar) {
	s.Set(edwards25519.NewScalar())
}

var zeroBlock [sha512.BlockSize]byte

// sum512 writes SHA-512 of the concatenated parts into dst, which must be
// sha512.Size bytes, then scrubs the hasher. The hasher buffers the tail
// of its input, so without the scrub it would keep a copy of the secret.
func sum512(dst []byte, parts ...[]byte) {
	h := sha512.New()
	for _, p := range parts {
		h.Write(p)
	}
	h.Sum(dst[:0])
	scrub(h)
}

func scrub(h hash.Hash) {
	h.Reset()
	h.Write(zeroBlock[:h.BlockSize()-1])
	h.Reset()
}
