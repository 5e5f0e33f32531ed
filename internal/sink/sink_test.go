package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majorcontext/ephemera/internal/attest"
	"github.com/majorcontext/ephemera/internal/clock"
	"github.com/majorcontext/ephemera/internal/entropy"
	"github.com/majorcontext/ephemera/internal/payload"
)

func newAttestations(t *testing.T, n int) []*attest.Attestation {
	t.Helper()
	clk := clock.NewFake(12345)
	svc := attest.NewService(entropy.NewDeterministic(99), clk, &attest.Counter{})
	out := make([]*attest.Attestation, n)
	for i := range out {
		att, err := svc.Create(payload.ButtonPress{GPIO: uint8(i)})
		require.NoError(t, err)
		out[i] = att
		clk.Advance(1000)
	}
	return out
}

func TestJSON_OneObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	s := NewJSON(&buf)
	atts := newAttestations(t, 3)
	for _, a := range atts {
		require.NoError(t, s.Emit(context.Background(), a))
	}

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	for i, line := range lines {
		var got attest.Attestation
		require.NoError(t, json.Unmarshal([]byte(line), &got))
		assert.Equal(t, *atts[i], got)
		assert.NoError(t, got.Verify())
	}
}

func TestJSON_CanceledContext(t *testing.T) {
	var buf bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewJSON(&buf).Emit(ctx, newAttestations(t, 1)[0])
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, buf.Len(), "nothing is written after cancellation")
}

func TestText_Banner(t *testing.T) {
	var buf bytes.Buffer
	att := newAttestations(t, 1)[0]
	require.NoError(t, NewText(&buf).Emit(context.Background(), att))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "=== ATTESTATION ===\n"))
	assert.Contains(t, out, "Event:      ButtonPress{gpio: 0}\n")
	assert.Contains(t, out, "Timestamp:  12345\n")
	assert.Contains(t, out, "Counter:    0\n")
	assert.Contains(t, out, "Public Key: "+att.PublicKeyHex())
	assert.Contains(t, out, "Signature:  "+att.SignatureHex())
	assert.Contains(t, out, "SSH Key:    ssh-ed25519 ")
}

func TestCBOR_StreamRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	s := NewCBOR(&buf)
	atts := newAttestations(t, 4)
	for _, a := range atts {
		require.NoError(t, s.Emit(context.Background(), a))
	}

	r := NewCBORReader(&buf)
	for _, want := range atts {
		got, err := r.Next()
		require.NoError(t, err)
		assert.Equal(t, *want, *got)
		assert.NoError(t, got.Verify())
	}
	_, err := r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestCBOR_Deterministic(t *testing.T) {
	att := newAttestations(t, 1)[0]
	a, err := MarshalCBOR(att)
	require.NoError(t, err)
	b, err := MarshalCBOR(att)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	// Map with integer keys 1..3: 0xa3 header, first key 0x01.
	assert.Equal(t, byte(0xa3), a[0])
	assert.Equal(t, byte(0x01), a[1])

	got, err := UnmarshalCBOR(a)
	require.NoError(t, err)
	assert.Equal(t, *att, *got)
}

func TestCBOR_UnrecognizedEventSurvivesDecoding(t *testing.T) {
	// Version 1, discriminant 0x09, 2 byte body, ts 1, counter 2.
	msg := []byte{1, 9, 0, 2, 0xaa, 0xbb, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 2}
	data, err := cbor.Marshal(cborRecord{Payload: msg, PublicKey: make([]byte, 32), Signature: make([]byte, 64)})
	require.NoError(t, err)

	got, err := UnmarshalCBOR(data)
	assert.ErrorIs(t, err, payload.ErrUnrecognizedEvent)
	require.NotNil(t, got)
	assert.Equal(t, payload.Unrecognized{Tag: 9}, got.Event())
	assert.Equal(t, uint64(1), got.TimestampMS())
	assert.Equal(t, uint32(2), got.Counter())
}

func TestCBOR_RejectsShortKey(t *testing.T) {
	data, err := cbor.Marshal(cborRecord{Payload: []byte{1}, PublicKey: make([]byte, 31), Signature: make([]byte, 64)})
	require.NoError(t, err)
	_, err = UnmarshalCBOR(data)
	assert.ErrorContains(t, err, "public key is 31 bytes")
}

func TestMulti_AttemptsEverySink(t *testing.T) {
	errFirst := errors.New("first")
	errSecond := errors.New("second")
	var calls []string
	record := func(name string, err error) Sink {
		return Func(func(context.Context, *attest.Attestation) error {
			calls = append(calls, name)
			return err
		})
	}

	m := Multi{record("a", nil), record("b", errFirst), record("c", errSecond), record("d", nil)}
	err := m.Emit(context.Background(), newAttestations(t, 1)[0])

	assert.ErrorIs(t, err, errFirst)
	assert.Equal(t, []string{"a", "b", "c", "d"}, calls)
}

func TestLog_NeverFails(t *testing.T) {
	assert.NoError(t, Log{}.Emit(context.Background(), newAttestations(t, 1)[0]))
}
