package trigger

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/majorcontext/ephemera/internal/clock"
	"github.com/majorcontext/ephemera/internal/log"
	"github.com/majorcontext/ephemera/internal/payload"
)

const (
	keyCtrlC = 0x03
	keyCtrlD = 0x04
)

// Keypress treats the terminal as the button. On a TTY it switches to raw
// mode and every key is a press; 'q', Ctrl-C and Ctrl-D quit. Otherwise it
// reads lines: an empty line presses GPIO, a number presses that pin, and
// "q" quits.
type Keypress struct {
	In    io.Reader
	GPIO  uint8
	Clock clock.Clock
}

// Run implements Source.
func (s *Keypress) Run(ctx context.Context, out chan<- Trigger) error {
	if f, ok := s.In.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		state, err := term.MakeRaw(int(f.Fd()))
		if err != nil {
			return fmt.Errorf("entering raw mode: %w", err)
		}
		defer func() {
			if err := term.Restore(int(f.Fd()), state); err != nil {
				log.Warn("restoring terminal", "error", err)
			}
		}()
		return s.runRaw(ctx, out)
	}
	return s.runLines(ctx, out)
}

type readResult struct {
	line string
	b    byte
	err  error
}

// The reads below block without regard to ctx, so they run in their own
// goroutine and Run returns as soon as ctx is done.

func (s *Keypress) runRaw(ctx context.Context, out chan<- Trigger) error {
	reads := make(chan readResult)
	go func() {
		buf := make([]byte, 1)
		for {
			n, err := s.In.Read(buf)
			if n == 0 && err == nil {
				continue
			}
			select {
			case reads <- readResult{b: buf[0], err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		var r readResult
		select {
		case <-ctx.Done():
			return nil
		case r = <-reads:
		}
		if r.err == io.EOF {
			return nil
		}
		if r.err != nil {
			return fmt.Errorf("reading terminal: %w", r.err)
		}
		switch r.b {
		case 'q', 'Q', keyCtrlC, keyCtrlD:
			return ErrQuit
		}
		if err := send(ctx, out, s.press(s.GPIO)); err != nil {
			return nil
		}
	}
}

func (s *Keypress) runLines(ctx context.Context, out chan<- Trigger) error {
	reads := make(chan readResult)
	go func() {
		defer close(reads)
		sc := bufio.NewScanner(s.In)
		for sc.Scan() {
			select {
			case reads <- readResult{line: sc.Text()}:
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			select {
			case reads <- readResult{err: err}:
			case <-ctx.Done():
			}
		}
	}()

	for {
		var r readResult
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case r, ok = <-reads:
		}
		if !ok {
			return nil
		}
		if r.err != nil {
			return fmt.Errorf("reading input: %w", r.err)
		}

		line := strings.TrimSpace(r.line)
		gpio := s.GPIO
		switch {
		case line == "":
		case strings.EqualFold(line, "q"), strings.EqualFold(line, "quit"):
			return ErrQuit
		default:
			n, err := strconv.ParseUint(line, 10, 8)
			if err != nil {
				log.Warn("ignoring input line", "line", line)
				continue
			}
			gpio = uint8(n)
		}
		if err := send(ctx, out, s.press(gpio)); err != nil {
			return nil
		}
	}
}

func (s *Keypress) press(gpio uint8) Trigger {
	return Trigger{Event: payload.ButtonPress{GPIO: gpio}, At: s.Clock.NowMS()}
}
