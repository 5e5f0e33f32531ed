package payload

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_GoldenVectors(t *testing.T) {
	tests := []struct {
		name string
		p    Payload
		want string
	}{
		{
			name: "fresh boot button press",
			p:    Payload{Version: 1, Event: ButtonPress{GPIO: 0}, TimestampMS: 12345, Counter: 0},
			want: "0101000100" + "0000000000003039" + "00000000",
		},
		{
			name: "wide fields",
			p:    Payload{Version: 1, Event: ButtonPress{GPIO: 7}, TimestampMS: 0x0102030405060708, Counter: 0xdeadbeef},
			want: "0101000107" + "0102030405060708" + "deadbeef",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.p)
			require.NoError(t, err)
			assert.Equal(t, tt.want, HexEncode(got))
		})
	}
}

func TestEncode_Deterministic(t *testing.T) {
	p := Payload{Version: Version, Event: ButtonPress{GPIO: 4}, TimestampMS: 987654321, Counter: 42}
	a, err := Encode(p)
	require.NoError(t, err)
	b, err := Encode(p)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEncode_Faults(t *testing.T) {
	tests := []struct {
		name string
		p    Payload
	}{
		{"nil event", Payload{Version: Version}},
		{"unrecognized event", Payload{Version: Version, Event: Unrecognized{Tag: 9}}},
		{"pointer event", Payload{Version: Version, Event: &ButtonPress{}}},
		{"unknown version", Payload{Version: 2, Event: ButtonPress{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Encode(tt.p)
			assert.ErrorIs(t, err, ErrEncoding)
			assert.Nil(t, out)
		})
	}
}

func TestDecode_RoundTrip(t *testing.T) {
	p := Payload{Version: Version, Event: ButtonPress{GPIO: 255}, TimestampMS: 1 << 40, Counter: 1 << 31}
	b, err := Encode(p)
	require.NoError(t, err)

	got, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestDecode_UnrecognizedVariant(t *testing.T) {
	// A newer producer's variant 0x02 with a three byte body.
	b, err := HexDecode("01020003aabbcc" + "0000000000000064" + "00000005")
	require.NoError(t, err)

	got, err := Decode(b)
	assert.ErrorIs(t, err, ErrUnrecognizedEvent)
	assert.Equal(t, Unrecognized{Tag: 2}, got.Event)
	assert.Equal(t, uint64(100), got.TimestampMS, "fields after the skipped body are still framed correctly")
	assert.Equal(t, uint32(5), got.Counter)
}

func TestDecode_ReservedDiscriminant(t *testing.T) {
	b, err := HexDecode("01000000" + "0000000000000000" + "00000000")
	require.NoError(t, err)

	got, err := Decode(b)
	assert.ErrorIs(t, err, ErrUnrecognizedEvent)
	assert.Equal(t, Unrecognized{Tag: 0}, got.Event)
}

func TestDecode_Rejects(t *testing.T) {
	valid := "0101000100" + "0000000000003039" + "00000000"
	tests := []struct {
		name string
		hex  string
		want error
	}{
		{"empty", "", ErrMalformed},
		{"newer version", "02" + valid[2:], ErrUnsupportedVersion},
		{"truncated", valid[:len(valid)-2], ErrMalformed},
		{"trailing byte", valid + "00", ErrMalformed},
		{"short fixed fields", "01010001", ErrMalformed},
		{"button body too long", "0101000200ff" + "0000000000003039" + "00000000", ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := HexDecode(tt.hex)
			require.NoError(t, err)
			_, err = Decode(b)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestHexEncode(t *testing.T) {
	assert.Equal(t, "deadbeef", HexEncode([]byte{0xde, 0xad, 0xbe, 0xef}))
	assert.Equal(t, "00ff", HexEncode([]byte{0x00, 0xff}))
	assert.Equal(t, "", HexEncode(nil))
}

func TestEventJSON(t *testing.T) {
	data, err := json.Marshal(ButtonPress{GPIO: 0})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"button_press","gpio":0}`, string(data))

	ev, err := ParseEventJSON(data)
	require.NoError(t, err)
	assert.Equal(t, ButtonPress{GPIO: 0}, ev)

	data, err = json.Marshal(Unrecognized{Tag: 3})
	require.NoError(t, err)
	ev, err = ParseEventJSON(data)
	require.NoError(t, err)
	assert.Equal(t, Unrecognized{Tag: 3}, ev)
}

func TestParseEventJSON_Errors(t *testing.T) {
	_, err := ParseEventJSON([]byte(`{"type":"lever_pull"}`))
	assert.ErrorIs(t, err, ErrUnrecognizedEvent)

	_, err = ParseEventJSON([]byte(`{"type":"button_press"}`))
	assert.Error(t, err)

	_, err = ParseEventJSON([]byte(`not json`))
	assert.Error(t, err)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "button_press", KindButtonPress.String())
	assert.Equal(t, "kind(0x09)", Kind(9).String())
}
