package attest

import (
	"crypto/ed25519"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majorcontext/ephemera/internal/clock"
	"github.com/majorcontext/ephemera/internal/entropy"
	"github.com/majorcontext/ephemera/internal/ephemeral"
	"github.com/majorcontext/ephemera/internal/payload"
)

type failingSource struct{}

func (failingSource) Fill([]byte) error { return errors.New("rng offline") }

// observe wraps the service's key generator and collects every keypair it
// hands out, so tests can inspect them after Create returns.
func observe(s *Service, before func(*ephemeral.Keypair)) *[]*ephemeral.Keypair {
	var keys []*ephemeral.Keypair
	s.generate = func(src entropy.Source) (*ephemeral.Keypair, error) {
		k, err := ephemeral.Generate(src)
		if err == nil {
			keys = append(keys, k)
			if before != nil {
				before(k)
			}
		}
		return k, err
	}
	return &keys
}

func TestCreate_FreshBootScenario(t *testing.T) {
	svc := NewService(entropy.NewSystem(), clock.NewFake(12345), &Counter{})

	att, err := svc.Create(payload.ButtonPress{GPIO: 0})
	require.NoError(t, err)

	assert.Equal(t, payload.ButtonPress{GPIO: 0}, att.Event())
	assert.Equal(t, uint64(12345), att.TimestampMS())
	assert.Equal(t, uint32(0), att.Counter())
	assert.Equal(t, uint8(1), att.Version())
	assert.Len(t, att.PublicKeyHex(), 64)
	assert.Len(t, att.SignatureHex(), 128)

	msg, err := payload.Encode(payload.Payload{Version: 1, Event: payload.ButtonPress{GPIO: 0}, TimestampMS: 12345, Counter: 0})
	require.NoError(t, err)
	pk, sig := att.PublicKey(), att.Signature()
	assert.True(t, ed25519.Verify(pk[:], msg, sig[:]))
	assert.NoError(t, att.Verify())
}

func TestCreate_ThousandAttestationsUnlinkable(t *testing.T) {
	clk := clock.NewFake(0)
	svc := NewService(entropy.NewSystem(), clk, &Counter{})

	keys := make(map[[ephemeral.PublicKeySize]byte]bool)
	var prev uint32
	for i := range 1000 {
		clk.Advance(1000)
		att, err := svc.Create(payload.ButtonPress{GPIO: 2})
		require.NoError(t, err)
		require.NoError(t, att.Verify())

		pk := att.PublicKey()
		require.False(t, keys[pk], "public key reused at attempt %d", i)
		keys[pk] = true

		if i > 0 {
			require.Greater(t, att.Counter(), prev)
		}
		prev = att.Counter()
	}
	assert.Len(t, keys, 1000)
}

func TestCreate_KeyZeroizedOnSuccess(t *testing.T) {
	svc := NewService(entropy.NewDeterministic(5), clock.NewFake(1), &Counter{})
	keys := observe(svc, nil)

	_, err := svc.Create(payload.ButtonPress{GPIO: 1})
	require.NoError(t, err)

	require.Len(t, *keys, 1)
	assert.True(t, (*keys)[0].Zeroized())
}

func TestCreate_KeyZeroizedWhenSigningFails(t *testing.T) {
	svc := NewService(entropy.NewDeterministic(6), clock.NewFake(1), &Counter{})
	// Spend the key before Create gets it so its Sign call fails.
	keys := observe(svc, func(k *ephemeral.Keypair) { _, _ = k.Sign(nil) })

	att, err := svc.Create(payload.ButtonPress{GPIO: 1})
	require.Error(t, err)
	assert.Nil(t, att)
	assert.ErrorIs(t, err, ephemeral.ErrUsed)

	require.Len(t, *keys, 1)
	assert.True(t, (*keys)[0].Zeroized())
}

func TestCreate_EntropyFault(t *testing.T) {
	counter := &Counter{}
	svc := NewService(failingSource{}, clock.NewFake(1), counter)

	att, err := svc.Create(payload.ButtonPress{GPIO: 0})
	assert.Nil(t, att)
	assert.ErrorIs(t, err, entropy.ErrFault)
	assert.Equal(t, uint64(1), counter.Issued(), "failed attempts consume a counter value")

	svc.entropy = entropy.NewSystem()
	att, err = svc.Create(payload.ButtonPress{GPIO: 0})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), att.Counter())
}

func TestCreate_EncodingFaultGeneratesNoKey(t *testing.T) {
	svc := NewService(entropy.NewSystem(), clock.NewFake(1), &Counter{})
	keys := observe(svc, nil)

	att, err := svc.Create(payload.Unrecognized{Tag: 7})
	assert.Nil(t, att)
	assert.ErrorIs(t, err, payload.ErrEncoding)
	assert.Empty(t, *keys)
}

func TestCreate_ConcurrentCallersGetDistinctCounters(t *testing.T) {
	svc := NewService(entropy.NewSystem(), clock.NewBoot(), &Counter{})

	const workers, each = 8, 25
	var mu sync.Mutex
	seen := make(map[uint32]bool)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range each {
				att, err := svc.Create(payload.ButtonPress{GPIO: 3})
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				assert.False(t, seen[att.Counter()], "counter %d repeated", att.Counter())
				seen[att.Counter()] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, workers*each)
}

func TestVerify_DetectsTampering(t *testing.T) {
	svc := NewService(entropy.NewSystem(), clock.NewFake(77), &Counter{})
	att, err := svc.Create(payload.ButtonPress{GPIO: 0})
	require.NoError(t, err)

	forged := *att
	forged.timestampMS++
	assert.ErrorIs(t, forged.Verify(), ErrInvalidSignature)

	forged = *att
	forged.event = payload.ButtonPress{GPIO: 1}
	assert.ErrorIs(t, forged.Verify(), ErrInvalidSignature)
}

func TestVerify_PackageLevel(t *testing.T) {
	svc := NewService(entropy.NewDeterministic(11), clock.NewFake(5), &Counter{})
	att, err := svc.Create(payload.ButtonPress{GPIO: 2})
	require.NoError(t, err)

	assert.NoError(t, Verify(att))
	assert.ErrorIs(t, Verify(nil), ErrInvalidSignature)

	forged := *att
	forged.counter++
	assert.ErrorIs(t, Verify(&forged), ErrInvalidSignature)
}

func TestVerifyEncoded(t *testing.T) {
	svc := NewService(entropy.NewSystem(), clock.NewFake(10), &Counter{})
	att, err := svc.Create(payload.ButtonPress{GPIO: 9})
	require.NoError(t, err)

	msg, err := att.EncodedPayload()
	require.NoError(t, err)
	pk, sig := att.PublicKey(), att.Signature()

	p, err := VerifyEncoded(pk[:], sig[:], msg)
	require.NoError(t, err)
	assert.Equal(t, att.Payload(), p)

	msg[len(msg)-1] ^= 0x01
	_, err = VerifyEncoded(pk[:], sig[:], msg)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	assert.False(t, VerifySignature(pk[:3], msg, sig[:]))
}

func TestCounter_StartsAtZero(t *testing.T) {
	var c Counter
	for want := range uint32(5) {
		got, err := c.Next()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestCounter_Exhausted(t *testing.T) {
	var c Counter
	c.next.Store(1 << 32)
	_, err := c.Next()
	assert.ErrorIs(t, err, ErrCounterExhausted)
}
