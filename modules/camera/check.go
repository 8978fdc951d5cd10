package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// CheckResult reports a quick device test.
type CheckResult struct {
	Backend    string
	Resolution Resolution
	Requested  int
	Frames     int
	Failures   int
	Elapsed    time.Duration
	FPS        FPSStats
}

// Check opens the configured source, reads up to frames frames as fast as
// the device delivers them and closes it again. It does not need an Engine.
func Check(ctx context.Context, cfg Config, frames int) (CheckResult, error) {
	return check(ctx, cfg, frames, OpenSource)
}

func check(ctx context.Context, cfg Config, frames int, open SourceFactory) (CheckResult, error) {
	if err := cfg.Validate(); err != nil {
		return CheckResult{}, err
	}
	if frames <= 0 {
		return CheckResult{}, fmt.Errorf("camera: check needs a positive frame count, got %d", frames)
	}

	src, err := open(cfg)
	if err != nil {
		return CheckResult{}, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
	defer src.Close()

	w, h := src.Resolution()
	result := CheckResult{
		Backend:    src.Name(),
		Resolution: Resolution{Width: w, Height: h},
		Requested:  frames,
	}

	// Failures are bounded so a dead device cannot spin forever.
	maxFailures := frames * 10
	times := make([]time.Time, 0, frames)
	start := time.Now()

	for result.Frames < frames && result.Failures < maxFailures {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		f, err := src.Read()
		if err != nil {
			if errors.Is(err, ErrSourceClosed) {
				break
			}
			result.Failures++
			sleepCtx(ctx, cfg.ReadRetryDelay)
			continue
		}
		result.Frames++
		times = append(times, f.Timestamp)
	}

	result.Elapsed = time.Since(start)
	result.FPS = CalculateFPSStats(times, 0)

	slog.Info("camera: check finished",
		"backend", result.Backend,
		"resolution", result.Resolution.String(),
		"frames", result.Frames,
		"failures", result.Failures,
		"fps_mean", result.FPS.FPSMean,
	)

	if result.Frames == 0 {
		return result, fmt.Errorf("%w: no frame read in %d attempts", ErrFrameTimeout, result.Failures)
	}
	return result, nil
}
