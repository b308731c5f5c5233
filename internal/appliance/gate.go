package appliance

import (
	"context"
	"fmt"
	"time"
)

// Gate defaults.
const (
	DefaultPollInterval = time.Second
	DefaultGraceDelay   = 300 * time.Second
)

// GuestProber reports guest-agent readiness.
type GuestProber interface {
	GuestReady(ctx context.Context, m Machine) (bool, error)
}

// Gate waits for a freshly deployed machine's guest agent.
//
// The appliance OS re-customizes itself shortly after its agent first comes
// up, so the gate holds for GraceDelay after readiness before letting the
// workflow power the machine off.
type Gate struct {
	// PollInterval is the delay between readiness checks.
	PollInterval time.Duration

	// GraceDelay is waited once after the agent first reports ready.
	GraceDelay time.Duration

	// Timeout bounds the polling phase. Zero waits forever.
	Timeout time.Duration

	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error

	// Observe, if set, receives the total time spent in the gate.
	Observe func(time.Duration)
}

// DefaultGate returns an unbounded gate with the standard interval and
// grace delay.
func DefaultGate() Gate {
	return Gate{PollInterval: DefaultPollInterval, GraceDelay: DefaultGraceDelay}
}

// WaitUntilBooted polls until the guest agent is ready, then waits out the
// grace delay.
func (g Gate) WaitUntilBooted(ctx context.Context, p GuestProber, m Machine) error {
	sleep := g.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var waited time.Duration
	if g.Observe != nil {
		defer func() { g.Observe(waited) }()
	}

	for {
		ready, err := p.GuestReady(ctx, m)
		if err != nil {
			return platformError(fmt.Errorf("failed to read guest agent status: %w", err))
		}
		if ready {
			break
		}
		if g.Timeout > 0 && waited >= g.Timeout {
			return platformError(fmt.Errorf("guest agent on %s not ready after %s", m.Name, waited))
		}
		if err := sleep(ctx, g.PollInterval); err != nil {
			return err
		}
		waited += g.PollInterval
	}

	if err := sleep(ctx, g.GraceDelay); err != nil {
		return err
	}
	waited += g.GraceDelay
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
