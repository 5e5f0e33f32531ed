package trigger

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majorcontext/ephemera/internal/clock"
	"github.com/majorcontext/ephemera/internal/payload"
)

func collect(t *testing.T, ctx context.Context, src Source) ([]Trigger, error) {
	t.Helper()
	out := make(chan Trigger, 16)
	err := src.Run(ctx, out)
	close(out)
	var got []Trigger
	for tr := range out {
		got = append(got, tr)
	}
	return got, err
}

func TestDebouncer(t *testing.T) {
	d := NewDebouncer(DebounceMS)
	press := func(gpio uint8, at uint64) Trigger {
		return Trigger{Event: payload.ButtonPress{GPIO: gpio}, At: at}
	}

	assert.True(t, d.Allow(press(0, 100)))
	assert.False(t, d.Allow(press(0, 120)), "bounce inside the window")
	assert.False(t, d.Allow(press(0, 149)))
	assert.True(t, d.Allow(press(0, 150)), "window is measured from the last accepted press")
	assert.True(t, d.Allow(press(1, 151)), "pins are independent")
	assert.True(t, d.Allow(press(1, 10)), "a clock that went backwards is not a bounce")
	assert.True(t, d.Allow(Trigger{Event: payload.Unrecognized{Tag: 5}, At: 11}))
}

func TestKeypress_Lines(t *testing.T) {
	src := &Keypress{
		In:    strings.NewReader("\n7\nbogus\n\n"),
		GPIO:  2,
		Clock: clock.NewFake(40),
	}
	got, err := collect(t, context.Background(), src)
	require.NoError(t, err)

	want := []payload.Event{
		payload.ButtonPress{GPIO: 2},
		payload.ButtonPress{GPIO: 7},
		payload.ButtonPress{GPIO: 2},
	}
	require.Len(t, got, len(want))
	for i, tr := range got {
		assert.Equal(t, want[i], tr.Event)
		assert.Equal(t, uint64(40), tr.At)
	}
}

func TestKeypress_Quit(t *testing.T) {
	src := &Keypress{In: strings.NewReader("\nq\n\n"), Clock: clock.NewFake(0)}
	got, err := collect(t, context.Background(), src)
	assert.ErrorIs(t, err, ErrQuit)
	assert.Len(t, got, 1)
}

func TestKeypress_CanceledContext(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- (&Keypress{In: r, Clock: clock.NewFake(0)}).Run(ctx, make(chan Trigger))
	}()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestInterval_Limit(t *testing.T) {
	src := &Interval{Period: time.Millisecond, GPIO: 4, Limit: 3, Clock: clock.NewFake(9)}
	got, err := collect(t, context.Background(), src)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for _, tr := range got {
		assert.Equal(t, payload.ButtonPress{GPIO: 4}, tr.Event)
	}
}

func TestInterval_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	src := &Interval{Period: time.Hour, Clock: clock.NewFake(0)}
	got, err := collect(t, ctx, src)
	assert.NoError(t, err)
	assert.Empty(t, got)
}

// shortSocketPath avoids the Unix socket path length limit on macOS.
func shortSocketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "trg")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "s")
}

func TestSocket_DeliversButtonPresses(t *testing.T) {
	path := shortSocketPath(t)
	src := &Socket{Path: path, Clock: clock.NewFake(500)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan Trigger, 4)
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, out) }()

	select {
	case <-src.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("socket never became ready")
	}

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0222), info.Mode().Perm())

	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	enc := json.NewEncoder(conn)
	require.NoError(t, enc.Encode(SocketMessage{Event: "door_open"}))
	_, err = conn.Write([]byte("not json\n"))
	require.NoError(t, err)
	require.NoError(t, enc.Encode(SocketMessage{Event: "button_press", GPIO: 3}))

	select {
	case tr := <-out:
		assert.Equal(t, payload.ButtonPress{GPIO: 3}, tr.Event)
		assert.Equal(t, uint64(500), tr.At)
	case <-time.After(5 * time.Second):
		t.Fatal("no trigger received")
	}

	// An open client connection must not hold up shutdown.
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	conn.Close()

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "socket file removed on shutdown")
}
