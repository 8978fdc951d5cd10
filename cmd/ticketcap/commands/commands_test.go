package commands

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/orion-ticket-capture/internal/printer"
	"github.com/e7canasta/orion-ticket-capture/modules/camera"
	"github.com/e7canasta/orion-ticket-capture/modules/capture"
	"github.com/e7canasta/orion-ticket-capture/modules/config"
	"github.com/e7canasta/orion-ticket-capture/modules/storage"
)

func TestRootCommand_RegistersSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"capture", "scan", "camera-test", "cleanup", "serve", "config"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("explicit file", func(t *testing.T) {
		c, err := loadConfig("../../../config/ticketcap.yaml")
		require.NoError(t, err)
		assert.Equal(t, "caja-01", c.StationID)
	})

	t.Run("no default file falls back to built-in defaults", func(t *testing.T) {
		// Tests run in the package directory, where config/ does not exist.
		c, err := loadConfig("")
		require.NoError(t, err)
		assert.Equal(t, config.Default(), c)
	})

	t.Run("missing explicit file is an error", func(t *testing.T) {
		_, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestSetupLogging(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logPath := filepath.Join(t.TempDir(), "ticketcap.log")
	var console bytes.Buffer

	closer, err := setupLogging(config.LoggingConfig{Format: "json", File: logPath}, slog.LevelInfo, &console)
	require.NoError(t, err)
	require.NotNil(t, closer)

	slog.Debug("ticketcap: hidden")
	slog.Info("ticketcap: visible", "code", "7501234567890")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, console.String(), string(data))
	assert.Contains(t, string(data), `"msg":"ticketcap: visible"`)
	assert.NotContains(t, string(data), "hidden")

	closer, err = setupLogging(config.LoggingConfig{Format: "text"}, slog.LevelDebug, &console)
	require.NoError(t, err)
	assert.Nil(t, closer)
}

type fakeOperator struct {
	state   capture.State
	backErr error
	calls   []string
}

func (f *fakeOperator) CaptureFront(context.Context) error {
	f.calls = append(f.calls, "front")
	f.state = capture.StateFrontCaptured
	return nil
}

func (f *fakeOperator) CaptureBack(context.Context) error {
	f.calls = append(f.calls, "back")
	if f.backErr != nil {
		return f.backErr
	}
	f.state = capture.StateBackCaptured
	return nil
}

func (f *fakeOperator) Finalize(context.Context) (storage.Receipt, error) {
	f.calls = append(f.calls, "save")
	f.state = capture.StateReady
	return storage.Receipt{Code: "7501234567890", Dir: "2025-01-15"}, nil
}

func (f *fakeOperator) Reset() error {
	f.calls = append(f.calls, "reset")
	f.state = capture.StateReady
	return nil
}

func (f *fakeOperator) Assist() (capture.Assist, bool) { return capture.Assist{}, false }
func (f *fakeOperator) State() capture.State           { return f.state }
func (f *fakeOperator) Stats() capture.Stats           { return capture.Stats{State: f.state} }

func (f *fakeOperator) Artifacts() capture.Artifacts {
	return capture.Artifacts{Code: "7501234567890", Strategy: "direct_symbol_scan", Confidence: 0.95}
}

func capturePrinter(t *testing.T) *bytes.Buffer {
	t.Helper()
	var out bytes.Buffer
	prevOut, prevNoColor := printer.Out, color.NoColor
	printer.Out, color.NoColor = &out, true
	t.Cleanup(func() { printer.Out, color.NoColor = prevOut, prevNoColor })
	return &out
}

func TestCaptureLoop(t *testing.T) {
	out := capturePrinter(t)
	op := &fakeOperator{}

	in := strings.NewReader("front\n\nB\nsave\nbogus\nq\nreset\n")
	require.NoError(t, captureLoop(context.Background(), op, in))

	assert.Equal(t, []string{"front", "back", "save"}, op.calls, "nothing runs after quit")
	assert.Contains(t, out.String(), "[ready] > ")
	assert.Contains(t, out.String(), "✓ code 7501234567890 read")
	assert.Contains(t, out.String(), "✓ ticket 7501234567890 saved")
	assert.Contains(t, out.String(), `unknown command "bogus"`)
}

func TestCaptureLoop_EndOfInput(t *testing.T) {
	capturePrinter(t)
	op := &fakeOperator{}
	require.NoError(t, captureLoop(context.Background(), op, strings.NewReader("f\n")))
	assert.Equal(t, capture.StateFrontCaptured, op.state)
}

func TestDispatch_BackMiss(t *testing.T) {
	out := capturePrinter(t)
	op := &fakeOperator{
		state:   capture.StateFrontCaptured,
		backErr: fmt.Errorf("%w: no strategy matched", capture.ErrNoDetection),
	}

	assert.False(t, dispatch(context.Background(), op, "back"))
	assert.Equal(t, capture.StateFrontCaptured, op.state)
	assert.Contains(t, out.String(), "barcode not found")
	assert.NotContains(t, out.String(), "✓")
}

func TestOnAdvisoryCode(t *testing.T) {
	var reported []string
	fn := onAdvisoryCode(func(code string) { reported = append(reported, code) })

	for _, a := range []capture.Assist{
		{},
		{Code: "7501234567890"},
		{Code: "7501234567890"},
		{},
		{Code: "7501234567890"},
		{Code: "4006381333931"},
	} {
		fn(a)
	}

	assert.Equal(t, []string{"7501234567890", "4006381333931"}, reported, "only changes are reported")
}

func TestAnnotatedPath(t *testing.T) {
	assert.Equal(t, "tickets/reverso_annotated.jpg", annotatedPath("tickets/reverso.jpg"))
	assert.Equal(t, "scan_annotated", annotatedPath("scan"))
}

func TestDispatch_CameraLost(t *testing.T) {
	out := capturePrinter(t)
	op := &fakeOperator{
		state:   capture.StateFrontCaptured,
		backErr: fmt.Errorf("capture: %w", camera.ErrSourceClosed),
	}

	assert.False(t, dispatch(context.Background(), op, "back"))
	assert.Contains(t, out.String(), "camera lost")
}
