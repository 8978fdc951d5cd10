package config

import (
	"log/slog"
	"time"

	"github.com/e7canasta/orion-ticket-capture/internal/synth"
	"github.com/e7canasta/orion-ticket-capture/modules/camera"
	"github.com/e7canasta/orion-ticket-capture/modules/capture"
	"github.com/e7canasta/orion-ticket-capture/modules/decoder"
	"github.com/e7canasta/orion-ticket-capture/modules/detector"
	"github.com/e7canasta/orion-ticket-capture/modules/emitter"
	"github.com/e7canasta/orion-ticket-capture/modules/storage"
)

// The accessors below translate a validated Config into module snapshots.

// CameraConfig returns the camera engine configuration.
func (c *Config) CameraConfig() camera.Config {
	cc := camera.DefaultConfig()
	w, h, _ := ParseResolution(c.Camera.Resolution)
	sw, sh, _ := ParseResolution(c.Development.SimulationResolution)

	cc.DeviceID = c.Camera.DeviceID
	cc.Backend = camera.Backend(c.Camera.Backend)
	cc.Resolution = camera.Resolution{Width: w, Height: h}
	cc.TargetFPS = c.Camera.FPS
	cc.Brightness = c.Camera.Brightness
	cc.Contrast = c.Camera.Contrast
	cc.PreviewMaxDim = c.Camera.PreviewMaxDim
	cc.RetryDelay = time.Duration(c.Camera.RetryDelayMS) * time.Millisecond
	cc.WarmupAttempts = c.Camera.WarmupAttempts
	cc.JoinTimeout = time.Duration(c.Camera.JoinTimeoutMS) * time.Millisecond

	cc.Simulation = c.Development.Simulation
	cc.SimulationImage = c.Development.SimulationImage
	cc.SimulationResolution = camera.Resolution{Width: sw, Height: sh}
	cc.SimulationPayload = c.Development.SimulationPayload
	r := c.Development.SimulationRegion
	cc.SimulationRegion = synth.Region{X: r.X, Y: r.Y, W: r.W, H: r.H}
	return cc
}

// DetectorConfig returns the detection thresholds.
func (c *Config) DetectorConfig() detector.Config {
	p := c.Processing
	return detector.Config{
		MinWidth:       p.MinWidth,
		MinHeight:      p.MinHeight,
		MinConfidence:  p.MinConfidence,
		FastConfidence: p.FastConfidence,
		Extension: detector.Extension{
			Down:    p.Extension.Down,
			Top:     p.Extension.Top,
			Lateral: p.Extension.Lateral,
		},
	}
}

// DecoderConfig returns the decoder settings.
func (c *Config) DecoderConfig() decoder.Config {
	return decoder.Config{MinLength: c.Processing.MinCodeLength, TryHarder: true}
}

// CaptureConfig returns the orchestrator settings.
func (c *Config) CaptureConfig() capture.Config {
	cc := capture.DefaultConfig()
	r := c.Processing.BarcodeRegion
	cc.AssistDecodeEvery = c.Processing.AssistDecodeEvery
	cc.DefaultRegion = capture.RelativeRegion{X: r.X, Y: r.Y, W: r.W, H: r.H}
	return cc
}

// StorageConfig returns the persistence settings.
func (c *Config) StorageConfig(appVersion string) storage.Config {
	f := c.Files
	sc := storage.DefaultConfig()
	sc.BaseDir = f.BaseDir
	sc.Format = f.ImageFormat
	sc.JPEGQuality = f.JPEGQuality
	sc.FrontPattern = f.FrontPattern
	sc.BackPattern = f.BackPattern
	sc.ROIPattern = f.ROIPattern
	sc.MetadataPattern = f.MetadataPattern
	sc.Overwrite = f.Overwrite
	sc.SaveFailed = f.SaveFailed != nil && *f.SaveFailed
	sc.AppVersion = appVersion
	return sc
}

// EmitterConfig returns the MQTT settings.
func (c *Config) EmitterConfig() emitter.Config {
	ec := emitter.DefaultConfig(c.StationID)
	ec.Broker = c.MQTT.Broker
	ec.ClientID = c.MQTT.ClientID
	ec.Username = c.MQTT.Username
	ec.Password = c.MQTT.Password
	ec.TicketsTopic = c.MQTT.Topics.Tickets
	ec.HealthTopic = c.MQTT.Topics.Health
	ec.QoS = c.MQTT.QoS
	return ec
}

// LogLevel returns the slog level for logging.level.
func (c *Config) LogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
