package attest

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/majorcontext/ephemera/internal/ephemeral"
	"github.com/majorcontext/ephemera/internal/payload"
)

// ErrInvalidSignature is returned when a signature does not verify.
var ErrInvalidSignature = errors.New("invalid signature")

// Attestation is the public result of one Create call. It holds no secret
// material and may be copied, logged and transmitted freely.
type Attestation struct {
	version     uint8
	event       payload.Event
	timestampMS uint64
	counter     uint32
	publicKey   [ephemeral.PublicKeySize]byte
	signature   [ephemeral.SignatureSize]byte
}

// FromParts assembles an attestation received from elsewhere, for example
// decoded from a sink's output. It does not verify anything; call Verify.
func FromParts(p payload.Payload, publicKey [ephemeral.PublicKeySize]byte, signature [ephemeral.SignatureSize]byte) *Attestation {
	return &Attestation{
		version:     p.Version,
		event:       p.Event,
		timestampMS: p.TimestampMS,
		counter:     p.Counter,
		publicKey:   publicKey,
		signature:   signature,
	}
}

// Event returns the attested event.
func (a *Attestation) Event() payload.Event { return a.event }

// TimestampMS returns milliseconds since boot at creation.
func (a *Attestation) TimestampMS() uint64 { return a.timestampMS }

// Counter returns the power cycle counter value that was signed.
func (a *Attestation) Counter() uint32 { return a.counter }

// Version returns the payload protocol version that was signed.
func (a *Attestation) Version() uint8 { return a.version }

// PublicKey returns the raw ephemeral public key.
func (a *Attestation) PublicKey() [ephemeral.PublicKeySize]byte { return a.publicKey }

// PublicKeyHex returns the public key as lowercase hex.
func (a *Attestation) PublicKeyHex() string { return payload.HexEncode(a.publicKey[:]) }

// Signature returns the raw signature.
func (a *Attestation) Signature() [ephemeral.SignatureSize]byte { return a.signature }

// SignatureHex returns the signature as lowercase hex.
func (a *Attestation) SignatureHex() string { return payload.HexEncode(a.signature[:]) }

// Payload returns the logical payload that was signed.
func (a *Attestation) Payload() payload.Payload {
	return payload.Payload{
		Version:     a.version,
		Event:       a.event,
		TimestampMS: a.timestampMS,
		Counter:     a.counter,
	}
}

// EncodedPayload rebuilds the exact bytes that were signed.
func (a *Attestation) EncodedPayload() ([]byte, error) {
	return payload.Encode(a.Payload())
}

// Verify re-encodes the payload and checks the signature against the
// embedded public key.
func (a *Attestation) Verify() error {
	msg, err := a.EncodedPayload()
	if err != nil {
		return fmt.Errorf("rebuilding payload: %w", err)
	}
	if !ed25519.Verify(a.publicKey[:], msg, a.signature[:]) {
		return ErrInvalidSignature
	}
	return nil
}

// AuthorizedKey renders the ephemeral public key as an OpenSSH
// authorized_keys line, so standard SSH tooling can check the signature.
func (a *Attestation) AuthorizedKey() (string, error) {
	pub, err := ssh.NewPublicKey(ed25519.PublicKey(a.publicKey[:]))
	if err != nil {
		return "", fmt.Errorf("encoding ssh public key: %w", err)
	}
	return strings.TrimSpace(string(ssh.MarshalAuthorizedKey(pub))), nil
}

func (a *Attestation) String() string {
	return fmt.Sprintf("Attestation{%v ts=%d counter=%d pk=%s}", a.event, a.timestampMS, a.counter, a.PublicKeyHex())
}

// attestationJSON is the line format emitted by the JSON sink. The short
// keys match the firmware's serial output.
type attestationJSON struct {
	Version   uint8           `json:"version"`
	Event     json.RawMessage `json:"event"`
	Timestamp uint64          `json:"ts"`
	Counter   uint32          `json:"counter"`
	PublicKey string          `json:"pk"`
	Signature string          `json:"sig"`
}

// MarshalJSON implements json.Marshaler.
func (a *Attestation) MarshalJSON() ([]byte, error) {
	ev, err := json.Marshal(a.event)
	if err != nil {
		return nil, err
	}
	return json.Marshal(attestationJSON{
		Version:   a.version,
		Event:     ev,
		Timestamp: a.timestampMS,
		Counter:   a.counter,
		PublicKey: a.PublicKeyHex(),
		Signature: a.SignatureHex(),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Attestation) UnmarshalJSON(data []byte) error {
	var raw attestationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ev, err := payload.ParseEventJSON(raw.Event)
	if err != nil {
		return err
	}
	pk, err := decodeFixed(raw.PublicKey, ephemeral.PublicKeySize, "pk")
	if err != nil {
		return err
	}
	sig, err := decodeFixed(raw.Signature, ephemeral.SignatureSize, "sig")
	if err != nil {
		return err
	}

	*a = Attestation{
		version:     raw.Version,
		event:       ev,
		timestampMS: raw.Timestamp,
		counter:     raw.Counter,
	}
	copy(a.publicKey[:], pk)
	copy(a.signature[:], sig)
	return nil
}

func decodeFixed(s string, size int, field string) ([]byte, error) {
	b, err := payload.HexDecode(s)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", field, err)
	}
	if len(b) != size {
		return nil, fmt.Errorf("decoding %s: got %d bytes, want %d", field, len(b), size)
	}
	return b, nil
}
