package device

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/majorcontext/ephemera/internal/entropy"
	"github.com/majorcontext/ephemera/internal/ephemeral"
)

// ErrSelfTest is wrapped by every self-test failure.
var ErrSelfTest = errors.New("self-test failed")

var selfTestMessage = []byte("ephemera self-test")

// SelfTestReport describes a passing self-test.
type SelfTestReport struct {
	Source   string `json:"source"`
	Entropy  bool   `json:"entropy"`
	SignOnce bool   `json:"sign_once"`
	Verify   bool   `json:"verify"`
	Zeroized bool   `json:"zeroized"`
	Unique   bool   `json:"unique"`
}

// SelfTest checks src and walks two throwaway keys through their whole
// lifecycle, confirming they sign once, verify, zeroize and differ.
func SelfTest(src entropy.Source) (*SelfTestReport, error) {
	r := &SelfTestReport{Source: fmt.Sprint(src)}

	if err := entropy.Check(src); err != nil {
		return r, fmt.Errorf("%w: %w", ErrSelfTest, err)
	}
	r.Entropy = true

	var keys [2][ephemeral.PublicKeySize]byte
	for i := range keys {
		pk, err := exercise(src, r)
		if err != nil {
			return r, fmt.Errorf("%w: %w", ErrSelfTest, err)
		}
		keys[i] = pk
	}
	if keys[0] == keys[1] {
		return r, fmt.Errorf("%w: two keys were identical", ErrSelfTest)
	}
	r.Unique = true
	return r, nil
}

func exercise(src entropy.Source, r *SelfTestReport) ([ephemeral.PublicKeySize]byte, error) {
	key, err := ephemeral.Generate(src)
	if err != nil {
		return [ephemeral.PublicKeySize]byte{}, err
	}
	defer key.Destroy()
	pk := key.PublicKey()

	sig, err := key.Sign(selfTestMessage)
	if err != nil {
		return pk, err
	}
	if _, err := key.Sign(selfTestMessage); !errors.Is(err, ephemeral.ErrUsed) {
		return pk, errors.New("key signed twice")
	}
	r.SignOnce = true

	if !ed25519.Verify(pk[:], selfTestMessage, sig[:]) {
		return pk, errors.New("signature did not verify")
	}
	r.Verify = true

	key.Destroy()
	if !key.Zeroized() {
		return pk, errors.New("key material survived destroy")
	}
	r.Zeroized = true
	return pk, nil
}
