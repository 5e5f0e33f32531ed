package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/majorcontext/ephemera/internal/attest"
	"github.com/majorcontext/ephemera/internal/ephemeral"
	"github.com/majorcontext/ephemera/internal/payload"
)

// cborRecord carries the exact signed bytes rather than the decoded
// fields, so a reader can verify without knowing the event variant.
type cborRecord struct {
	Payload   []byte `cbor:"1,keyasint"`
	PublicKey []byte `cbor:"2,keyasint"`
	Signature []byte `cbor:"3,keyasint"`
}

var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// CBOR writes a sequence of core deterministic CBOR maps, one per
// attestation, suitable for framed links such as USB or BLE.
type CBOR struct {
	mu  sync.Mutex
	enc *cbor.Encoder
}

// NewCBOR returns a CBOR sink writing to w.
func NewCBOR(w io.Writer) *CBOR {
	return &CBOR{enc: encMode.NewEncoder(w)}
}

// Emit implements Sink.
func (s *CBOR) Emit(ctx context.Context, att *attest.Attestation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec, err := toRecord(att)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(rec); err != nil {
		return fmt.Errorf("writing attestation: %w", err)
	}
	return nil
}

// MarshalCBOR returns the CBOR encoding of a single attestation.
func MarshalCBOR(att *attest.Attestation) ([]byte, error) {
	rec, err := toRecord(att)
	if err != nil {
		return nil, err
	}
	return encMode.Marshal(rec)
}

// UnmarshalCBOR decodes a single attestation. Signatures are not checked.
// An attestation carrying an event unknown to this build is returned
// together with payload.ErrUnrecognizedEvent.
func UnmarshalCBOR(data []byte) (*attest.Attestation, error) {
	var rec cborRecord
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding cbor: %w", err)
	}
	return fromRecord(rec)
}

// CBORReader reads attestations written by a CBOR sink.
type CBORReader struct {
	dec *cbor.Decoder
}

// NewCBORReader returns a reader over r.
func NewCBORReader(r io.Reader) *CBORReader {
	return &CBORReader{dec: cbor.NewDecoder(r)}
}

// Next returns the next attestation, or io.EOF at the end of the stream.
func (r *CBORReader) Next() (*attest.Attestation, error) {
	var rec cborRecord
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("decoding cbor: %w", err)
	}
	return fromRecord(rec)
}

func toRecord(att *attest.Attestation) (cborRecord, error) {
	msg, err := att.EncodedPayload()
	if err != nil {
		return cborRecord{}, fmt.Errorf("encoding payload: %w", err)
	}
	pk, sig := att.PublicKey(), att.Signature()
	return cborRecord{Payload: msg, PublicKey: pk[:], Signature: sig[:]}, nil
}

func fromRecord(rec cborRecord) (*attest.Attestation, error) {
	if len(rec.PublicKey) != ephemeral.PublicKeySize {
		return nil, fmt.Errorf("decoding cbor: public key is %d bytes", len(rec.PublicKey))
	}
	if len(rec.Signature) != ephemeral.SignatureSize {
		return nil, fmt.Errorf("decoding cbor: signature is %d bytes", len(rec.Signature))
	}
	p, decodeErr := payload.Decode(rec.Payload)
	if decodeErr != nil && !errors.Is(decodeErr, payload.ErrUnrecognizedEvent) {
		return nil, decodeErr
	}

	var pk [ephemeral.PublicKeySize]byte
	var sig [ephemeral.SignatureSize]byte
	copy(pk[:], rec.PublicKey)
	copy(sig[:], rec.Signature)
	return attest.FromParts(p, pk, sig), decodeErr
}
