// Package device runs the attestation device: it waits for triggers,
// applies the cooldown gate, creates attestations and hands them to sinks.
//
//	Idle -> CooldownCheck -> Ready: Signing -> Output -> Idle
//	                      -> Wait:  Idle
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/majorcontext/ephemera/internal/attest"
	"github.com/majorcontext/ephemera/internal/clock"
	"github.com/majorcontext/ephemera/internal/cooldown"
	"github.com/majorcontext/ephemera/internal/log"
	"github.com/majorcontext/ephemera/internal/sink"
	"github.com/majorcontext/ephemera/internal/trigger"
)

// ErrDebounced is returned by Handle for a trigger dropped as switch bounce.
var ErrDebounced = errors.New("trigger debounced")

// Loop owns the per-boot device state. Gate and Service share their state
// with whoever constructed them; Loop adds no state of its own beyond Stats.
type Loop struct {
	Gate    *cooldown.Gate
	Service *attest.Service
	Clock   clock.Clock
	Sink    sink.Sink
	// Debouncer is optional.
	Debouncer *trigger.Debouncer

	mu    sync.Mutex
	state State
	stats Stats
}

// Handle runs one trigger through the state machine and returns the
// attestation that was emitted. The trigger is dropped when it bounced,
// when the cooldown is active (a *cooldown.ActiveError) or when creation
// fails; nothing is emitted in those cases. A sink error is returned with
// the attestation, since it was created and may have partially reached
// other sinks.
func (l *Loop) Handle(ctx context.Context, t trigger.Trigger) (*attest.Attestation, error) {
	l.count(func(s *Stats) { s.Triggers++ })
	defer l.enter(StateIdle)

	if l.Debouncer != nil && !l.Debouncer.Allow(t) {
		l.count(func(s *Stats) { s.Debounced++ })
		log.Debug("trigger debounced", "event", t.Event.String(), "at", t.At)
		return nil, ErrDebounced
	}

	l.enter(StateCooldownCheck)
	if err := l.Gate.Acquire(l.Clock.NowMS()); err != nil {
		l.count(func(s *Stats) { s.CooledDown++ })
		var active *cooldown.ActiveError
		if errors.As(err, &active) {
			log.Info("cooldown active", "remaining_ms", active.RemainingMS)
		}
		return nil, err
	}

	l.enter(StateSigning)
	att, err := l.Service.Create(t.Event)
	if err != nil {
		l.count(func(s *Stats) { s.Failed++ })
		log.Warn("attestation failed", "event", t.Event.String(), "error", err)
		return nil, err
	}

	l.enter(StateOutput)
	if err := l.Sink.Emit(ctx, att); err != nil {
		l.count(func(s *Stats) { s.OutputFailed++ })
		log.Error("emitting attestation", "counter", att.Counter(), "error", err)
		return att, fmt.Errorf("emitting attestation: %w", err)
	}
	l.count(func(s *Stats) { s.Created++ })
	return att, nil
}

// Run feeds every source into Handle until ctx is done, all sources end,
// or one of them fails. A source returning trigger.ErrQuit stops the loop
// cleanly.
func (l *Loop) Run(ctx context.Context, sources ...trigger.Source) error {
	g, gctx := errgroup.WithContext(ctx)
	triggers := make(chan trigger.Trigger)

	var producers sync.WaitGroup
	for _, src := range sources {
		producers.Add(1)
		g.Go(func() error {
			defer producers.Done()
			return src.Run(gctx, triggers)
		})
	}
	go func() {
		producers.Wait()
		close(triggers)
	}()

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case t, ok := <-triggers:
				if !ok {
					return nil
				}
				// Handle logs its own failures; a dropped trigger never
				// stops the loop.
				_, _ = l.Handle(gctx, t)
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, trigger.ErrQuit) {
		return nil
	}
	return err
}

// State returns the current state of the machine.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Stats returns a snapshot of the counters.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

func (l *Loop) enter(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

func (l *Loop) count(f func(*Stats)) {
	l.mu.Lock()
	f(&l.stats)
	l.mu.Unlock()
}
