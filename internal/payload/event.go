package payload

import (
	"encoding/json"
	"fmt"
)

// Kind is the wire discriminant of an Event variant. Values are part of the
// version 1 wire contract and must never be renumbered.
type Kind uint8

const (
	// KindReserved is never emitted; it decodes as Unrecognized.
	KindReserved Kind = 0x00
	// KindButtonPress identifies ButtonPress.
	KindButtonPress Kind = 0x01
)

// String returns the JSON type name of known kinds.
func (k Kind) String() string {
	switch k {
	case KindButtonPress:
		return "button_press"
	default:
		return fmt.Sprintf("kind(0x%02x)", uint8(k))
	}
}

// Event is the physical trigger an attestation is about. The set of
// implementations is closed: ButtonPress and Unrecognized.
type Event interface {
	Kind() Kind
	String() string
	isEvent()
}

// ButtonPress is a press of the button wired to a GPIO pin.
type ButtonPress struct {
	GPIO uint8
}

// Kind implements Event.
func (ButtonPress) Kind() Kind { return KindButtonPress }

func (e ButtonPress) String() string { return fmt.Sprintf("ButtonPress{gpio: %d}", e.GPIO) }

func (ButtonPress) isEvent() {}

// MarshalJSON encodes the event as {"type":"button_press","gpio":N}.
func (e ButtonPress) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventJSON{Type: KindButtonPress.String(), GPIO: &e.GPIO})
}

// Unrecognized is an event variant this build does not know, as produced by
// newer firmware. It can be decoded and displayed but never encoded or signed.
type Unrecognized struct {
	Tag uint8
}

// Kind implements Event.
func (e Unrecognized) Kind() Kind { return Kind(e.Tag) }

func (e Unrecognized) String() string { return fmt.Sprintf("Unrecognized{tag: 0x%02x}", e.Tag) }

func (Unrecognized) isEvent() {}

// MarshalJSON encodes the event as {"type":"unrecognized","tag":N}.
func (e Unrecognized) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventJSON{Type: typeUnrecognized, Tag: &e.Tag})
}

const typeUnrecognized = "unrecognized"

type eventJSON struct {
	Type string `json:"type"`
	GPIO *uint8 `json:"gpio,omitempty"`
	Tag  *uint8 `json:"tag,omitempty"`
}

// ParseEventJSON decodes the JSON form produced by the events' MarshalJSON.
func ParseEventJSON(data []byte) (Event, error) {
	var raw eventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing event: %w", err)
	}
	switch raw.Type {
	case KindButtonPress.String():
		if raw.GPIO == nil {
			return nil, fmt.Errorf("parsing event: %s without gpio", raw.Type)
		}
		return ButtonPress{GPIO: *raw.GPIO}, nil
	case typeUnrecognized:
		if raw.Tag == nil {
			return nil, fmt.Errorf("parsing event: %s without tag", raw.Type)
		}
		return Unrecognized{Tag: *raw.Tag}, nil
	default:
		return nil, fmt.Errorf("%w: event type %q", ErrUnrecognizedEvent, raw.Type)
	}
}
