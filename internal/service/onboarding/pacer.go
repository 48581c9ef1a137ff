package onboarding

import (
	"context"
	"time"
)

// Pacer spaces out consecutive assistant messages. Pause returns early with
// the context's error once ctx is done.
type Pacer interface {
	Pause(ctx context.Context) error
}

// DelayPacer waits a fixed delay between messages.
type DelayPacer struct {
	Delay time.Duration
}

func (p DelayPacer) Pause(ctx context.Context) error {
	if p.Delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(p.Delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NoDelay never waits.
type NoDelay struct{}

func (NoDelay) Pause(ctx context.Context) error {
	return ctx.Err()
}
