// Package payload defines attestation payloads and their canonical encoding.
//
// The encoding is the byte string that gets signed, so it is a wire
// contract with independent verifiers. Version 1 layout, all integers
// big-endian:
//
//	offset  size  field
//	0       1     version
//	1       1     event discriminant (Kind)
//	2       2     event body length n
//	4       n     event body
//	4+n     8     timestamp in ms since boot
//	12+n    4     counter
//
// Field order, widths and discriminants never change without bumping
// Version. The length prefix lets a reader skip the body of a variant it
// does not know.
package payload

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Version is the protocol version this build produces.
const Version uint8 = 1

const (
	headerSize  = 4
	trailerSize = 12
)

var (
	// ErrEncoding means a payload could not be canonically encoded.
	ErrEncoding = errors.New("encoding fault")
	// ErrUnsupportedVersion is returned when decoding a payload whose version
	// this build does not implement.
	ErrUnsupportedVersion = errors.New("unsupported payload version")
	// ErrMalformed is returned for truncated input, trailing bytes, or a body
	// that does not match its variant.
	ErrMalformed = errors.New("malformed payload")
	// ErrUnrecognizedEvent accompanies a successfully framed payload whose
	// event variant is unknown to this build.
	ErrUnrecognizedEvent = errors.New("unrecognized event")
)

// Payload is the structured content signed for one attestation.
type Payload struct {
	Version     uint8
	Event       Event
	TimestampMS uint64
	Counter     uint32
}

// Encode returns the canonical bytes of p. The output is a pure function of
// the logical value.
func Encode(p Payload) ([]byte, error) {
	if p.Version != Version {
		return nil, fmt.Errorf("%w: version %d", ErrEncoding, p.Version)
	}
	body, err := EventBody(p.Event)
	if err != nil {
		return nil, err
	}
	if len(body) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: event body of %d bytes", ErrEncoding, len(body))
	}

	buf := make([]byte, 0, headerSize+len(body)+trailerSize)
	buf = append(buf, p.Version, byte(p.Event.Kind()))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(body))) //nolint:gosec // bounded above
	buf = append(buf, body...)
	buf = binary.BigEndian.AppendUint64(buf, p.TimestampMS)
	buf = binary.BigEndian.AppendUint32(buf, p.Counter)
	return buf, nil
}

// EventBody returns the variant-specific body bytes of e.
func EventBody(e Event) ([]byte, error) {
	switch e := e.(type) {
	case ButtonPress:
		return []byte{e.GPIO}, nil
	case nil:
		return nil, fmt.Errorf("%w: no event", ErrEncoding)
	default:
		return nil, fmt.Errorf("%w: cannot encode %v", ErrEncoding, e)
	}
}

// Decode parses canonical bytes.
//
// An unknown event variant is not a framing error: Decode returns the
// payload with an Unrecognized event together with ErrUnrecognizedEvent, so
// callers can report it explicitly instead of misreading the body.
func Decode(b []byte) (Payload, error) {
	if len(b) == 0 {
		return Payload{}, fmt.Errorf("%w: empty", ErrMalformed)
	}
	if b[0] != Version {
		return Payload{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, b[0])
	}
	if len(b) < headerSize+trailerSize {
		return Payload{}, fmt.Errorf("%w: %d bytes is shorter than the fixed fields", ErrMalformed, len(b))
	}

	kind := Kind(b[1])
	n := int(binary.BigEndian.Uint16(b[2:headerSize]))
	if want := headerSize + n + trailerSize; len(b) != want {
		return Payload{}, fmt.Errorf("%w: have %d bytes, framing says %d", ErrMalformed, len(b), want)
	}
	body := b[headerSize : headerSize+n]
	tail := b[headerSize+n:]

	p := Payload{
		Version:     b[0],
		TimestampMS: binary.BigEndian.Uint64(tail[:8]),
		Counter:     binary.BigEndian.Uint32(tail[8:]),
	}

	switch kind {
	case KindButtonPress:
		if n != 1 {
			return Payload{}, fmt.Errorf("%w: button press body is %d bytes", ErrMalformed, n)
		}
		p.Event = ButtonPress{GPIO: body[0]}
		return p, nil
	default:
		p.Event = Unrecognized{Tag: uint8(kind)}
		return p, fmt.Errorf("%w: discriminant 0x%02x", ErrUnrecognizedEvent, uint8(kind))
	}
}
