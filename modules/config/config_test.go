package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/orion-ticket-capture/modules/camera"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "station-01", cfg.StationID)
	assert.Equal(t, "opencv", cfg.Camera.Backend)
	assert.Equal(t, "1080p", cfg.Camera.Resolution)
	assert.Equal(t, 30.0, cfg.Camera.FPS)
	assert.Equal(t, 0.4, cfg.Processing.MinConfidence)
	assert.Equal(t, 1.0, cfg.Processing.Extension.Down)
	assert.Equal(t, "jpg", cfg.Files.ImageFormat)
	require.NotNil(t, cfg.Files.SaveFailed)
	assert.True(t, *cfg.Files.SaveFailed)
	assert.Equal(t, "tickets/station-01/captured", cfg.MQTT.Topics.Tickets)
	assert.Equal(t, "127.0.0.1:8080", cfg.Control.Listen)
	assert.Equal(t, 100, cfg.UI.AssistIntervalMS)
	require.NotNil(t, cfg.UI.Color)
	assert.True(t, *cfg.UI.Color)

	// Module snapshots built from defaults must validate in their packages.
	eng, err := camera.NewEngine(cfg.CameraConfig())
	require.NoError(t, err)
	eng.Close()
	assert.NoError(t, cfg.DetectorConfig().Validate())
	assert.NoError(t, cfg.DecoderConfig().Validate())
	assert.NoError(t, cfg.CaptureConfig().Validate())
	sc := cfg.StorageConfig("test")
	assert.NoError(t, sc.Validate())
}

func TestLoadExampleFile(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config", "ticketcap.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "caja-01", cfg.StationID)
	assert.Equal(t, 90, cfg.Files.RetentionDays)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)

	cc := cfg.CameraConfig()
	assert.Equal(t, camera.Resolution{Width: 1920, Height: 1080}, cc.Resolution)
	assert.Equal(t, camera.Resolution{Width: 3840, Height: 2160}, cc.SimulationResolution)
	assert.Equal(t, time.Second, cc.RetryDelay)
	assert.Equal(t, 0.75, cc.SimulationRegion.Y)
}

func TestParse_PartialFileKeepsDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
station_id: caja-02
camera:
  resolution: 1280x960
  fps: 15
files:
  save_failed: false
ui:
  color: false
development:
  simulation: true
`))
	require.NoError(t, err)

	assert.Equal(t, 15.0, cfg.Camera.FPS)
	assert.Equal(t, 1280, cfg.Camera.PreviewMaxDim)
	assert.False(t, *cfg.Files.SaveFailed)
	assert.False(t, cfg.StorageConfig("x").SaveFailed)
	assert.False(t, *cfg.UI.Color)
	assert.True(t, cfg.CameraConfig().Simulation)
	assert.Equal(t, camera.Resolution{Width: 1280, Height: 960}, cfg.CameraConfig().Resolution)
	assert.Equal(t, "ticketcap-caja-02", cfg.MQTT.ClientID)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"station id", "station_id: Caja 01"},
		{"backend", "camera: {backend: directshow}"},
		{"resolution", "camera: {resolution: huge}"},
		{"fps", "camera: {fps: -5}"},
		{"confidence", "processing: {min_confidence: 1.5}"},
		{"region", "processing: {barcode_region: {x: 0.5, y: 0.5, w: 0.8, h: 0.1}}"},
		{"format", "files: {image_format: gif}"},
		{"quality", "files: {jpeg_quality: 101}"},
		{"assist interval", "ui: {assist_interval_ms: 5}"},
		{"log level", "logging: {level: trace}"},
		{"log format", "logging: {format: xml}"},
		{"mqtt broker", "mqtt: {enabled: true, broker: ''}"},
		{"mqtt qos", "mqtt: {qos: 3}"},
		{"yaml syntax", "camera: ["},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.StationID = "caja-09"
	cfg.Files.Overwrite = true

	data, err := cfg.Marshal()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "ticketcap.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseResolution(t *testing.T) {
	tests := []struct {
		in   string
		w, h int
	}{
		{"720p", 1280, 720},
		{"1080P", 1920, 1080},
		{"4k", 3840, 2160},
		{"640x480", 640, 480},
	}
	for _, tt := range tests {
		w, h, err := ParseResolution(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.w, w)
		assert.Equal(t, tt.h, h)
	}

	_, _, err := ParseResolution("0x10")
	assert.Error(t, err)
}

func TestLogLevel(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "debug"
	assert.Equal(t, "DEBUG", cfg.LogLevel().String())
}
