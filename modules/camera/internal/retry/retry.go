package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Config contains configuration for bounded open retries.
type Config struct {
	MaxAttempts int           // Total attempts including the first (minimum 1)
	Delay       time.Duration // Fixed pause between attempts
}

// State tracks the outcome of a Run.
type State struct {
	Attempts  int
	LastError error
}

// AttemptFunc performs one attempt. attempt is 1-based.
type AttemptFunc func(ctx context.Context, attempt int) error

// Run calls fn until it succeeds, MaxAttempts is reached, or ctx is done.
//
// The pause happens only between attempts, never after the last one.
// Returns nil on success, ctx.Err() on cancellation, otherwise an error
// wrapping the last attempt's error.
func Run(ctx context.Context, fn AttemptFunc, cfg Config, state *State) error {
	if state == nil {
		state = &State{}
	}
	attempts := max(cfg.MaxAttempts, 1)

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		state.Attempts = attempt
		err := fn(ctx, attempt)
		if err == nil {
			state.LastError = nil
			return nil
		}
		state.LastError = err

		if attempt >= attempts {
			return fmt.Errorf("retry: %d attempts exhausted: %w", attempt, err)
		}

		slog.Warn("camera: open attempt failed, retrying",
			"attempt", attempt,
			"max_attempts", attempts,
			"delay", cfg.Delay,
			"error", err,
		)

		timer := time.NewTimer(cfg.Delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}
