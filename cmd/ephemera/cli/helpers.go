package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/majorcontext/ephemera/internal/attest"
	"github.com/majorcontext/ephemera/internal/clock"
	"github.com/majorcontext/ephemera/internal/config"
	"github.com/majorcontext/ephemera/internal/cooldown"
	"github.com/majorcontext/ephemera/internal/device"
	"github.com/majorcontext/ephemera/internal/entropy"
	"github.com/majorcontext/ephemera/internal/journal"
	"github.com/majorcontext/ephemera/internal/log"
	"github.com/majorcontext/ephemera/internal/sink"
	"github.com/majorcontext/ephemera/internal/trigger"
)

// session owns the state that lives for one power cycle of the device:
// the entropy source, the boot clock, the attestation counter and the
// cooldown gate. Nothing in it is persisted.
type session struct {
	source  entropy.Source
	clock   clock.Clock
	counter *attest.Counter
	gate    *cooldown.Gate
	service *attest.Service
}

func openSession(ctx context.Context) (*session, error) {
	open, err := device.OpenerFor(cfg.Entropy)
	if err != nil {
		return nil, err
	}
	src, err := device.OpenEntropy(ctx, open, cfg.Entropy.Retries)
	if err != nil {
		return nil, err
	}

	clk := clock.NewBoot()
	counter := &attest.Counter{}
	return &session{
		source:  src,
		clock:   clk,
		counter: counter,
		gate:    cooldown.New(cooldown.DefaultInterval),
		service: attest.NewService(src, clk, counter),
	}, nil
}

func (s *session) loop(out sink.Sink, debounce bool) *device.Loop {
	l := &device.Loop{
		Gate:    s.gate,
		Service: s.service,
		Clock:   s.clock,
		Sink:    out,
	}
	if debounce {
		l.Debouncer = trigger.NewDebouncer(trigger.DebounceMS)
	}
	return l
}

func (s *session) Close() {
	if err := device.CloseSource(s.source); err != nil {
		log.Debug("closing entropy source", "error", err)
	}
}

// applyFormat overrides the configured output format when the flag is set.
func applyFormat(format string) error {
	if format == "" {
		return nil
	}
	cfg.Output.Format = format
	return cfg.Validate()
}

// openSinks builds the output chain for w: the formatted stream, a log
// record when verbose, and the journal when enabled. The returned function
// closes whatever was opened.
func openSinks(w io.Writer) (sink.Sink, func(), error) {
	var out sink.Multi
	switch cfg.Output.Format {
	case config.FormatText:
		out = append(out, sink.NewText(w))
	case config.FormatCBOR:
		out = append(out, sink.NewCBOR(w))
	default:
		out = append(out, sink.NewJSON(w))
	}
	if verbose {
		out = append(out, sink.Log{})
	}

	closeAll := func() {}
	if cfg.Output.Journal {
		store, err := openJournal(cfg.Output.JournalPath)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, store)
		closeAll = func() {
			if err := store.Close(); err != nil {
				log.Warn("closing journal", "error", err)
			}
		}
	}
	return out, closeAll, nil
}

func openJournal(path string) (*journal.Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}
	store, err := journal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	return store, nil
}

// existingJournal opens the journal for reading, failing if there is none.
func existingJournal() (*journal.Store, error) {
	path := cfg.Output.JournalPath
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("no journal at %s (enable output.journal)", path)
	}
	return journal.Open(path)
}

// crlfWriter turns \n into \r\n, for output written while the terminal is
// in raw mode.
type crlfWriter struct {
	w io.Writer
}

func (c crlfWriter) Write(p []byte) (int, error) {
	if _, err := c.w.Write(bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))); err != nil {
		return 0, err
	}
	return len(p), nil
}
