// Package config loads the station configuration from YAML.
//
// Every section has defaults; a missing file section, or a zero field,
// takes the value from Default. Load validates once and returns an
// immutable snapshot that the command wires into each module.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the complete station configuration.
type Config struct {
	StationID   string            `yaml:"station_id"`
	Camera      CameraConfig      `yaml:"camera"`
	Processing  ProcessingConfig  `yaml:"processing"`
	Files       FilesConfig       `yaml:"files"`
	UI          UIConfig          `yaml:"ui"`
	Logging     LoggingConfig     `yaml:"logging"`
	Development DevelopmentConfig `yaml:"development"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Control     ControlConfig     `yaml:"control"`
}

// CameraConfig contains capture device settings.
type CameraConfig struct {
	DeviceID      int     `yaml:"device_id"`
	Backend       string  `yaml:"backend"`    // opencv, gstreamer
	Resolution    string  `yaml:"resolution"` // 720p, 1080p, 4k or WxH
	FPS           float64 `yaml:"fps"`
	Brightness    float64 `yaml:"brightness"` // 0 keeps the driver value
	Contrast      float64 `yaml:"contrast"`   // 0 keeps the driver value
	PreviewMaxDim int     `yaml:"preview_max_dim"`

	StartAttempts  int `yaml:"start_attempts"`
	RetryDelayMS   int `yaml:"retry_delay_ms"`
	WarmupAttempts int `yaml:"warmup_attempts"`
	JoinTimeoutMS  int `yaml:"join_timeout_ms"`
}

// ProcessingConfig contains detection and decoding thresholds.
type ProcessingConfig struct {
	MinWidth          int             `yaml:"min_width"`
	MinHeight         int             `yaml:"min_height"`
	MinConfidence     float64         `yaml:"min_confidence"`
	FastConfidence    float64         `yaml:"fast_confidence"`
	Extension         ExtensionConfig `yaml:"extension"`
	MinCodeLength     int             `yaml:"min_code_length"`
	BarcodeRegion     RegionConfig    `yaml:"barcode_region"` // overlay fallback, relative
	AssistDecodeEvery int             `yaml:"assist_decode_every"`
}

// ExtensionConfig grows detected boxes, as fractions of their size.
type ExtensionConfig struct {
	Down    float64 `yaml:"down"`
	Top     float64 `yaml:"top"`
	Lateral float64 `yaml:"lateral"`
}

// RegionConfig is a rectangle in fractions of the frame.
type RegionConfig struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	W float64 `yaml:"w"`
	H float64 `yaml:"h"`
}

// FilesConfig controls persistence.
type FilesConfig struct {
	BaseDir         string `yaml:"base_dir"`
	ImageFormat     string `yaml:"image_format"` // jpg, png
	JPEGQuality     int    `yaml:"jpeg_quality"`
	FrontPattern    string `yaml:"front_pattern"`
	BackPattern     string `yaml:"back_pattern"`
	ROIPattern      string `yaml:"roi_pattern"`
	MetadataPattern string `yaml:"metadata_pattern"`
	Overwrite       bool   `yaml:"overwrite"`
	SaveFailed      *bool  `yaml:"save_failed"`
	RetentionDays   int    `yaml:"retention_days"` // 0 disables cleanup
}

// UIConfig contains operator-facing settings.
type UIConfig struct {
	AssistIntervalMS int   `yaml:"assist_interval_ms"` // live-assist polling period
	Color            *bool `yaml:"color"`              // colored console output, default true
	Annotate         bool  `yaml:"annotate"`           // scan writes <image>_annotated.<ext> by default
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
	File   string `yaml:"file"`   // optional tee
}

// DevelopmentConfig enables the simulated camera.
type DevelopmentConfig struct {
	Simulation           bool         `yaml:"simulation"`
	SimulationImage      string       `yaml:"simulation_image"`
	SimulationResolution string       `yaml:"simulation_resolution"`
	SimulationPayload    string       `yaml:"simulation_payload"`
	SimulationRegion     RegionConfig `yaml:"simulation_region"`
}

// MQTTConfig contains broker settings for ticket events.
type MQTTConfig struct {
	Enabled  bool       `yaml:"enabled"`
	Broker   string     `yaml:"broker"`
	ClientID string     `yaml:"client_id"`
	Username string     `yaml:"username"`
	Password string     `yaml:"password"`
	Topics   MQTTTopics `yaml:"topics"`
	QoS      byte       `yaml:"qos"`
}

// MQTTTopics contains topic names.
type MQTTTopics struct {
	Tickets string `yaml:"tickets"`
	Health  string `yaml:"health"`
}

// ControlConfig configures the HTTP control API. serve always runs it;
// Enabled also starts it next to the interactive capture command.
type ControlConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Load reads, parses and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML over an empty Config and validates it.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Default returns a validated configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	if err := Validate(cfg); err != nil {
		panic(fmt.Sprintf("config: defaults do not validate: %v", err))
	}
	return cfg
}

// Marshal renders cfg as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
