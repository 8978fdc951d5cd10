package fps

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func generateFrameTimes(n int, fps float64, jitter float64, rng *rand.Rand) []time.Time {
	interval := time.Duration(float64(time.Second) / fps)
	start := time.Unix(1700000000, 0)
	times := make([]time.Time, n)
	at := start
	for i := range times {
		times[i] = at
		dev := (rng.Float64()*2 - 1) * jitter * float64(interval)
		at = at.Add(interval + time.Duration(dev))
	}
	return times
}

// TestCalculate_Property1_StabilityThresholds tests the stability criteria
//
// Property: FPS stddev < 15% of mean AND jitter < 20% of expected interval → IsStable = true
func TestCalculate_Property1_StabilityThresholds(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	t.Run("steady 30fps", func(t *testing.T) {
		stats := Calculate(generateFrameTimes(60, 30, 0.02, rng), 0)
		assert.True(t, stats.IsStable)
		assert.InDelta(t, 30, stats.FPSMean, 1.0)
	})

	t.Run("erratic 30fps", func(t *testing.T) {
		stats := Calculate(generateFrameTimes(60, 30, 0.9, rng), 0)
		assert.False(t, stats.IsStable)
	})
}

func TestCalculate_EdgeCases(t *testing.T) {
	empty := Calculate(nil, time.Second)
	assert.Equal(t, 0, empty.FramesReceived)
	assert.False(t, empty.IsStable)

	same := time.Now()
	dup := Calculate([]time.Time{same, same}, time.Second)
	assert.Equal(t, 2, dup.FramesReceived)
	assert.Zero(t, dup.FPSMax)
}

func TestWindowKeepsNewest(t *testing.T) {
	w := NewWindow(3)
	base := time.Unix(0, 0)
	for i := 0; i < 5; i++ {
		w.Add(base.Add(time.Duration(i) * time.Second))
	}

	snap := w.Snapshot()
	assert.Equal(t, []time.Time{
		base.Add(2 * time.Second),
		base.Add(3 * time.Second),
		base.Add(4 * time.Second),
	}, snap)

	assert.InDelta(t, 1.0, w.Stats().FPSMean, 1e-9)

	w.Reset()
	assert.Empty(t, w.Snapshot())
}
