package cooldown

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_Sequence(t *testing.T) {
	g := New(DefaultInterval)

	require.NoError(t, g.Acquire(0))

	err := g.Acquire(500)
	var active *ActiveError
	require.ErrorAs(t, err, &active)
	assert.Equal(t, uint64(500), active.RemainingMS)
	assert.ErrorIs(t, err, ErrActive)

	assert.NoError(t, g.Acquire(1000))
}

func TestAcquire_WaitDoesNotRecord(t *testing.T) {
	g := New(DefaultInterval)
	require.NoError(t, g.Acquire(0))
	require.Error(t, g.Acquire(900))

	last, ok := g.LastSuccess()
	require.True(t, ok)
	assert.Equal(t, uint64(0), last, "a rejected attempt must not move the window")
	assert.NoError(t, g.Acquire(1000))
}

func TestCheck_NoPriorSuccess(t *testing.T) {
	g := New(DefaultInterval)
	assert.Equal(t, Result{Ready: true}, g.Check(0))

	_, ok := g.LastSuccess()
	assert.False(t, ok)
}

func TestCheck_Remaining(t *testing.T) {
	g := New(DefaultInterval)
	g.Record(0)
	assert.Equal(t, Result{RemainingMS: 1}, g.Check(999))
	assert.Equal(t, Result{Ready: true}, g.Check(1000))
}

func TestCheck_ClockBehindLastSuccess(t *testing.T) {
	g := New(DefaultInterval)
	g.Record(5000)
	assert.Equal(t, Result{RemainingMS: DefaultInterval}, g.Check(4000))
}

func TestRecord_Unconditional(t *testing.T) {
	g := New(DefaultInterval)
	g.Record(100)
	g.Record(150)
	last, ok := g.LastSuccess()
	require.True(t, ok)
	assert.Equal(t, uint64(150), last)
}

func TestRecord_MaxTimestamp(t *testing.T) {
	g := New(DefaultInterval)
	g.Record(math.MaxUint64)
	assert.False(t, g.Check(math.MaxUint64).Ready)
	last, ok := g.LastSuccess()
	require.True(t, ok)
	assert.Equal(t, uint64(math.MaxUint64), last)

	g.Record(math.MaxUint64 - 1)
	last, _ = g.LastSuccess()
	assert.Equal(t, uint64(math.MaxUint64-1), last, "adjacent timestamps near the top must stay distinct")
	assert.Equal(t, Result{RemainingMS: DefaultInterval - 1}, g.Check(math.MaxUint64))
}

func TestAcquire_AtTimestampZero(t *testing.T) {
	g := New(DefaultInterval)
	require.NoError(t, g.Acquire(0))
	last, ok := g.LastSuccess()
	require.True(t, ok)
	assert.Equal(t, uint64(0), last)
	assert.ErrorIs(t, g.Acquire(999), ErrActive)
	assert.NoError(t, g.Acquire(1000))
}

func TestActiveError_Message(t *testing.T) {
	err := error(&ActiveError{RemainingMS: 250})
	assert.Equal(t, "cooldown active: wait 250ms", err.Error())
	assert.False(t, errors.Is(errors.New("other"), ErrActive))
}

func TestAcquire_ConcurrentCallersOneWinner(t *testing.T) {
	for round := range 50 {
		g := New(DefaultInterval)
		now := uint64(round) * 10_000

		var wins atomic.Int32
		var wg sync.WaitGroup
		start := make(chan struct{})
		for range 32 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if g.Acquire(now) == nil {
					wins.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		require.Equal(t, int32(1), wins.Load(), "round %d", round)
	}
}
