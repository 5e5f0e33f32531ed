package trigger

import (
	"context"
	"time"

	"github.com/majorcontext/ephemera/internal/clock"
	"github.com/majorcontext/ephemera/internal/payload"
)

// Interval presses a button on a fixed period. It is meant for soak tests
// and demos.
type Interval struct {
	Period time.Duration
	GPIO   uint8
	// Limit stops the source after that many presses. Zero means no limit.
	Limit int
	Clock clock.Clock
}

// Run implements Source.
func (s *Interval) Run(ctx context.Context, out chan<- Trigger) error {
	ticker := time.NewTicker(s.Period)
	defer ticker.Stop()

	for n := 0; s.Limit == 0 || n < s.Limit; n++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		t := Trigger{Event: payload.ButtonPress{GPIO: s.GPIO}, At: s.Clock.NowMS()}
		if err := send(ctx, out, t); err != nil {
			return nil
		}
	}
	return nil
}
