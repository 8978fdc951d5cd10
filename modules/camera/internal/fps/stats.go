package fps

import (
	"math"
	"time"
)

const (
	// fpsStabilityThreshold is the maximum allowed FPS standard deviation as a fraction of mean FPS.
	// A camera is considered stable if stddev < 15% of mean FPS.
	// Example: 30 FPS mean → stable if stddev < 4.5 FPS
	fpsStabilityThreshold = 0.15

	// jitterStabilityThreshold is the maximum allowed mean jitter as a fraction of expected interval.
	// A camera is considered stable if mean jitter < 20% of expected inter-frame interval.
	// Example: 30 FPS (33ms interval) → stable if jitter < 6.6ms
	jitterStabilityThreshold = 0.20
)

// Stats summarizes frame pacing over a window of frame timestamps.
type Stats struct {
	FramesReceived int
	Duration       time.Duration
	FPSMean        float64
	FPSStdDev      float64
	FPSMin         float64
	FPSMax         float64
	IsStable       bool
	JitterMean     float64 // seconds
	JitterStdDev   float64 // seconds
	JitterMax      float64 // seconds
}

// Calculate computes FPS statistics from frame timestamps.
//
// This function:
//  1. Calculates mean FPS (overall)
//  2. Calculates instantaneous FPS for each frame interval
//  3. Finds min/max instantaneous FPS
//  4. Calculates standard deviation of instantaneous FPS
//  5. Calculates jitter statistics (inter-frame interval variance)
//  6. Determines stability (stddev < 15% of mean AND jitter < 20%)
//
// totalDuration is the observation window; when zero, the span between the
// first and last timestamp is used.
func Calculate(frameTimes []time.Time, totalDuration time.Duration) Stats {
	n := len(frameTimes)
	if totalDuration <= 0 && n > 1 {
		totalDuration = frameTimes[n-1].Sub(frameTimes[0])
	}

	// Handle edge case: no frames
	if n == 0 || totalDuration <= 0 {
		return Stats{FramesReceived: n, Duration: totalDuration}
	}

	fpsMean := float64(n) / totalDuration.Seconds()
	if n > 1 {
		// n timestamps bound n-1 intervals.
		fpsMean = float64(n-1) / totalDuration.Seconds()
	}

	instantaneous := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		interval := frameTimes[i].Sub(frameTimes[i-1]).Seconds()
		if interval > 0 {
			instantaneous = append(instantaneous, 1.0/interval)
		}
	}

	// Handle edge case: no valid intervals
	if len(instantaneous) == 0 {
		return Stats{FramesReceived: n, Duration: totalDuration, FPSMean: fpsMean}
	}

	fpsMin, fpsMax := instantaneous[0], instantaneous[0]
	for _, v := range instantaneous {
		fpsMin = math.Min(fpsMin, v)
		fpsMax = math.Max(fpsMax, v)
	}

	var sumSquares float64
	for _, v := range instantaneous {
		diff := v - fpsMean
		sumSquares += diff * diff
	}
	fpsStdDev := math.Sqrt(sumSquares / float64(len(instantaneous)))

	// Jitter = deviation from expected inter-frame interval
	expectedInterval := 1.0 / fpsMean
	jitters := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		actual := frameTimes[i].Sub(frameTimes[i-1]).Seconds()
		jitters = append(jitters, math.Abs(actual-expectedInterval))
	}

	var jitterSum, jitterMax float64
	for _, j := range jitters {
		jitterSum += j
		jitterMax = math.Max(jitterMax, j)
	}
	jitterMean := jitterSum / float64(len(jitters))

	var jitterSumSquares float64
	for _, j := range jitters {
		diff := j - jitterMean
		jitterSumSquares += diff * diff
	}
	jitterStdDev := math.Sqrt(jitterSumSquares / float64(len(jitters)))

	fpsStable := fpsStdDev < fpsMean*fpsStabilityThreshold
	jitterStable := jitterMean < expectedInterval*jitterStabilityThreshold

	return Stats{
		FramesReceived: n,
		Duration:       totalDuration,
		FPSMean:        fpsMean,
		FPSStdDev:      fpsStdDev,
		FPSMin:         fpsMin,
		FPSMax:         fpsMax,
		IsStable:       fpsStable && jitterStable,
		JitterMean:     jitterMean,
		JitterStdDev:   jitterStdDev,
		JitterMax:      jitterMax,
	}
}
