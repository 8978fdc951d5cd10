package camera

import (
	"time"

	"github.com/e7canasta/orion-ticket-capture/modules/camera/internal/fps"
)

// FPSStats summarizes frame pacing.
type FPSStats struct {
	// FramesReceived is the number of timestamps in the window
	FramesReceived int
	// Duration spanned by the window
	Duration time.Duration
	// FPSMean is the mean FPS across all frames
	FPSMean float64
	// FPSStdDev is the standard deviation of instantaneous FPS
	FPSStdDev float64
	// FPSMin is the minimum instantaneous FPS
	FPSMin float64
	// FPSMax is the maximum instantaneous FPS
	FPSMax float64
	// IsStable is true if stddev < 15% of mean and jitter < 20% of the interval
	IsStable bool
	// JitterMean is the mean deviation from the expected interval (seconds)
	JitterMean float64
	// JitterStdDev is the standard deviation of jitter (seconds)
	JitterStdDev float64
	// JitterMax is the largest deviation observed (seconds)
	JitterMax float64
}

// CalculateFPSStats calculates FPS statistics from frame timestamps.
//
// totalDuration is the observation window; zero means "first to last
// timestamp". Stability: FPS stddev < 15% of the mean AND mean jitter < 20%
// of the expected interval.
//
// Example: 30 FPS mean → stable if stddev < 4.5 AND jitter < 0.0066s
func CalculateFPSStats(frameTimes []time.Time, totalDuration time.Duration) FPSStats {
	return fromInternal(fps.Calculate(frameTimes, totalDuration))
}

func fromInternal(s fps.Stats) FPSStats {
	return FPSStats{
		FramesReceived: s.FramesReceived,
		Duration:       s.Duration,
		FPSMean:        s.FPSMean,
		FPSStdDev:      s.FPSStdDev,
		FPSMin:         s.FPSMin,
		FPSMax:         s.FPSMax,
		IsStable:       s.IsStable,
		JitterMean:     s.JitterMean,
		JitterStdDev:   s.JitterStdDev,
		JitterMax:      s.JitterMax,
	}
}
