package attest

import (
	"crypto/ed25519"
	"fmt"

	"golang.org/x/crypto/ssh"

	"github.com/majorcontext/ephemera/internal/payload"
)

// Verify checks an attestation received from elsewhere, such as a JSON
// line or a journal row.
func Verify(a *Attestation) error {
	if a == nil {
		return ErrInvalidSignature
	}
	return a.Verify()
}

// VerifySignature checks signature over message using only the public key.
func VerifySignature(publicKey, message, signature []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(publicKey, message, signature)
}

// VerifyEncoded checks signature over the raw payload bytes and then decodes
// them. A valid signature over a payload with an event this build does not
// know returns the decoded payload together with
// payload.ErrUnrecognizedEvent.
func VerifyEncoded(publicKey, signature, encoded []byte) (payload.Payload, error) {
	if !VerifySignature(publicKey, encoded, signature) {
		return payload.Payload{}, ErrInvalidSignature
	}
	return payload.Decode(encoded)
}

// VerifySSH checks signature over message against an OpenSSH
// authorized_keys line such as the one returned by AuthorizedKey.
func VerifySSH(authorizedKey string, message, signature []byte) error {
	pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(authorizedKey))
	if err != nil {
		return fmt.Errorf("parsing authorized key: %w", err)
	}
	if pub.Type() != ssh.KeyAlgoED25519 {
		return fmt.Errorf("unsupported key type %q", pub.Type())
	}
	if err := pub.Verify(message, &ssh.Signature{Format: ssh.KeyAlgoED25519, Blob: signature}); err != nil {
		return ErrInvalidSignature
	}
	return nil
}
