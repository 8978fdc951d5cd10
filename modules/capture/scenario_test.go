package capture

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/orion-ticket-capture/internal/synth"
	"github.com/e7canasta/orion-ticket-capture/modules/camera"
	"github.com/e7canasta/orion-ticket-capture/modules/decoder"
	"github.com/e7canasta/orion-ticket-capture/modules/detector"
	"github.com/e7canasta/orion-ticket-capture/modules/storage"
)

// A simulated 4K camera shows a white ticket with a symbol in its lower
// band; front and back captures must end in BackCaptured with the code read
// from the native frame, and Finalize must write it to disk.
func TestSimulatedStation(t *testing.T) {
	if testing.Short() {
		t.Skip("4K simulation in -short mode")
	}

	cfg := camera.DefaultConfig()
	cfg.Simulation = true
	cfg.TargetFPS = 10
	cfg.SimulationResolution = camera.Resolution{Width: 3840, Height: 2160}
	cfg.SimulationRegion = synth.Region{X: 0.1, Y: 0.75, W: 0.8, H: 0.12}
	cfg.SimulationPayload = "7501234567890"
	cfg.WarmupAttempts = 100
	cfg.WarmupInterval = 50 * time.Millisecond

	cam, err := camera.NewEngine(cfg)
	require.NoError(t, err)
	defer cam.Close()
	require.NoError(t, cam.Start(context.Background(), 1))

	scfg := storage.DefaultConfig()
	scfg.BaseDir = t.TempDir()
	store, err := storage.New(scfg)
	require.NoError(t, err)

	o := New(cam, detector.New(detector.DefaultConfig()), decoder.New(decoder.DefaultConfig()), store,
		WithFailureSink(store))

	ctx := context.Background()
	require.NoError(t, o.CaptureFront(ctx))
	assert.Equal(t, StateFrontCaptured, o.State())

	start := time.Now()
	require.NoError(t, o.CaptureBack(ctx))
	t.Logf("back capture took %v", time.Since(start))

	assert.Equal(t, StateBackCaptured, o.State())
	a := o.Artifacts()
	assert.Equal(t, "7501234567890", a.Code)
	require.NotNil(t, a.Back)
	assert.Equal(t, 3840, a.Back.Width)
	assert.Equal(t, 2160, a.Back.Height)
	require.NotNil(t, a.ROI)
	assert.True(t, a.Region.In(a.Back.Bounds()))

	receipt, err := o.Finalize(ctx)
	require.NoError(t, err)
	assert.Equal(t, "7501234567890", receipt.Code)
	assert.FileExists(t, scfg.BaseDir+"/"+receipt.Metadata)
	assert.Equal(t, StateReady, o.State())
	assert.True(t, o.Artifacts().Empty())
}
