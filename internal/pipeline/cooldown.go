package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/trip-planner/internal/resilience"
)

// Cooldown is applied before each stage group after the first. group is the
// index of the group about to start (1 for the first group after the gate).
type Cooldown interface {
	Wait(ctx context.Context, group int) error
}

// TimerCooldown pauses for a per-group duration to stay under provider rate
// limits.
type TimerCooldown struct {
	// Delays[i] applies before group i+1. Groups beyond the slice use Default.
	Delays  []time.Duration
	Default time.Duration
	Sleep   resilience.Sleeper
}

// Wait implements Cooldown.
func (c TimerCooldown) Wait(ctx context.Context, group int) error {
	d := c.Default
	if i := group - 1; i >= 0 && i < len(c.Delays) {
		d = c.Delays[i]
	}
	if d <= 0 {
		return ctx.Err()
	}
	sleep := c.Sleep
	if sleep == nil {
		sleep = resilience.TimerSleep
	}
	zap.L().Debug("pipeline: cooldown", zap.Int("group", group), zap.Duration("delay", d))
	return sleep(ctx, d)
}

// NoCooldown never waits.
type NoCooldown struct{}

// Wait implements Cooldown.
func (NoCooldown) Wait(ctx context.Context, _ int) error { return ctx.Err() }
