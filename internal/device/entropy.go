package device

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/majorcontext/ephemera/internal/config"
	"github.com/majorcontext/ephemera/internal/entropy"
	"github.com/majorcontext/ephemera/internal/log"
)

// Opener opens an entropy source.
type Opener func() (entropy.Source, error)

// OpenerFor returns the opener for the configured source kind.
func OpenerFor(cfg config.EntropyConfig) (Opener, error) {
	switch cfg.Source {
	case config.SourceSystem:
		return func() (entropy.Source, error) { return entropy.NewSystem(), nil }, nil
	case config.SourceTPM:
		return func() (entropy.Source, error) { return entropy.OpenTPM(cfg.TPMPath) }, nil
	case config.SourceHWRNG:
		return func() (entropy.Source, error) { return entropy.OpenDevice(cfg.HWRNGPath) }, nil
	default:
		return nil, &config.InvalidValueError{Key: "entropy.source", Value: cfg.Source}
	}
}

// newBackOff is replaced in tests.
var newBackOff = func() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// OpenEntropy opens a source and runs the entropy self-check on it,
// retrying both up to retries times with exponential backoff. A source
// that fails the check is closed before the next attempt.
func OpenEntropy(ctx context.Context, open Opener, retries uint64) (entropy.Source, error) {
	var src entropy.Source
	attempt := 0
	op := func() error {
		attempt++
		s, err := open()
		if err != nil {
			return err
		}
		if err := entropy.Check(s); err != nil {
			closeSource(s)
			return err
		}
		src = s
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("entropy source not ready", "attempt", attempt, "retry_in", wait, "error", err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), retries), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, fmt.Errorf("opening entropy source after %d attempts: %w", attempt, err)
	}
	log.Debug("entropy source ready", "source", fmt.Sprint(src), "attempts", attempt)
	return src, nil
}

// CloseSource closes src if it holds resources.
func CloseSource(src entropy.Source) error {
	if c, ok := src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func closeSource(src entropy.Source) {
	if err := CloseSource(src); err != nil {
		log.Debug("closing entropy source", "error", err)
	}
}
