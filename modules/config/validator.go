package config

import (
	"fmt"
	"regexp"
	"strings"
)

var stationIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate fills zero fields with defaults and rejects invalid values.
func Validate(cfg *Config) error {
	if cfg.StationID == "" {
		cfg.StationID = "station-01"
	}
	if !stationIDPattern.MatchString(cfg.StationID) {
		return fmt.Errorf("station_id must match pattern [a-z0-9-]+, got %q", cfg.StationID)
	}

	if err := validateCamera(&cfg.Camera); err != nil {
		return err
	}
	if err := validateProcessing(&cfg.Processing); err != nil {
		return err
	}
	if err := validateFiles(&cfg.Files); err != nil {
		return err
	}
	if err := validateUI(&cfg.UI); err != nil {
		return err
	}
	if err := validateLogging(&cfg.Logging); err != nil {
		return err
	}
	if err := validateDevelopment(&cfg.Development); err != nil {
		return err
	}
	if err := validateMQTT(&cfg.MQTT, cfg.StationID); err != nil {
		return err
	}
	if cfg.Control.Listen == "" {
		cfg.Control.Listen = "127.0.0.1:8080"
	}
	return nil
}

func validateCamera(c *CameraConfig) error {
	if c.DeviceID < 0 {
		return fmt.Errorf("camera.device_id must be >= 0, got %d", c.DeviceID)
	}
	switch c.Backend {
	case "":
		c.Backend = "opencv"
	case "opencv", "gstreamer":
	default:
		return fmt.Errorf("camera.backend must be opencv or gstreamer, got %q", c.Backend)
	}
	if c.Resolution == "" {
		c.Resolution = "1080p"
	}
	if _, _, err := ParseResolution(c.Resolution); err != nil {
		return fmt.Errorf("camera.resolution: %w", err)
	}
	if c.FPS == 0 {
		c.FPS = 30
	}
	if c.FPS < 0 || c.FPS > 240 {
		return fmt.Errorf("camera.fps must be in (0, 240], got %v", c.FPS)
	}
	if c.Brightness < 0 || c.Contrast < 0 {
		return fmt.Errorf("camera.brightness and camera.contrast must be >= 0")
	}
	defaultInt(&c.PreviewMaxDim, 1280)
	defaultInt(&c.StartAttempts, 3)
	defaultInt(&c.RetryDelayMS, 1000)
	defaultInt(&c.WarmupAttempts, 30)
	defaultInt(&c.JoinTimeoutMS, 1000)
	if c.PreviewMaxDim < 64 {
		return fmt.Errorf("camera.preview_max_dim must be >= 64, got %d", c.PreviewMaxDim)
	}
	if c.StartAttempts < 1 || c.RetryDelayMS < 0 || c.WarmupAttempts < 1 || c.JoinTimeoutMS < 1 {
		return fmt.Errorf("camera retry settings must be positive")
	}
	return nil
}

func validateProcessing(p *ProcessingConfig) error {
	defaultInt(&p.MinWidth, 100)
	defaultInt(&p.MinHeight, 30)
	defaultFloat(&p.MinConfidence, 0.4)
	defaultFloat(&p.FastConfidence, 0.3)
	defaultFloat(&p.Extension.Down, 1.0)
	defaultFloat(&p.Extension.Top, 0.2)
	defaultFloat(&p.Extension.Lateral, 0.1)
	defaultInt(&p.MinCodeLength, 8)
	defaultInt(&p.AssistDecodeEvery, 20)
	if p.BarcodeRegion == (RegionConfig{}) {
		p.BarcodeRegion = RegionConfig{X: 0.1, Y: 0.75, W: 0.8, H: 0.12}
	}

	if p.MinWidth < 1 || p.MinHeight < 1 {
		return fmt.Errorf("processing.min_width and min_height must be > 0")
	}
	if p.MinConfidence > 1 || p.MinConfidence < 0 || p.FastConfidence > 1 || p.FastConfidence < 0 {
		return fmt.Errorf("processing confidences must be in [0, 1], got %v and %v", p.MinConfidence, p.FastConfidence)
	}
	if p.Extension.Down < 0 || p.Extension.Top < 0 || p.Extension.Lateral < 0 {
		return fmt.Errorf("processing.extension margins must be >= 0")
	}
	if p.MinCodeLength < 1 || p.AssistDecodeEvery < 1 {
		return fmt.Errorf("processing.min_code_length and assist_decode_every must be > 0")
	}
	if err := validateRegion("processing.barcode_region", p.BarcodeRegion); err != nil {
		return err
	}
	return nil
}

func validateFiles(f *FilesConfig) error {
	if f.BaseDir == "" {
		f.BaseDir = "boletos"
	}
	f.ImageFormat = strings.ToLower(f.ImageFormat)
	switch f.ImageFormat {
	case "":
		f.ImageFormat = "jpg"
	case "jpg", "jpeg", "png":
	default:
		return fmt.Errorf("files.image_format must be jpg or png, got %q", f.ImageFormat)
	}
	defaultInt(&f.JPEGQuality, 95)
	if f.JPEGQuality < 1 || f.JPEGQuality > 100 {
		return fmt.Errorf("files.jpeg_quality must be in [1, 100], got %d", f.JPEGQuality)
	}
	defaultString(&f.FrontPattern, "frente_{codigo}_{timestamp}")
	defaultString(&f.BackPattern, "reverso_{codigo}_{timestamp}")
	defaultString(&f.ROIPattern, "roi_{codigo}_{timestamp}")
	defaultString(&f.MetadataPattern, "metadata_{codigo}_{timestamp}")
	if f.SaveFailed == nil {
		enabled := true
		f.SaveFailed = &enabled
	}
	if f.RetentionDays < 0 {
		return fmt.Errorf("files.retention_days must be >= 0, got %d", f.RetentionDays)
	}
	return nil
}

func validateUI(u *UIConfig) error {
	defaultInt(&u.AssistIntervalMS, 100)
	if u.AssistIntervalMS < 10 {
		return fmt.Errorf("ui.assist_interval_ms must be >= 10, got %d", u.AssistIntervalMS)
	}
	if u.Color == nil {
		enabled := true
		u.Color = &enabled
	}
	return nil
}

func validateLogging(l *LoggingConfig) error {
	l.Level = strings.ToLower(l.Level)
	switch l.Level {
	case "":
		l.Level = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", l.Level)
	}
	switch l.Format {
	case "":
		l.Format = "text"
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", l.Format)
	}
	return nil
}

func validateDevelopment(d *DevelopmentConfig) error {
	defaultString(&d.SimulationResolution, "4k")
	if _, _, err := ParseResolution(d.SimulationResolution); err != nil {
		return fmt.Errorf("development.simulation_resolution: %w", err)
	}
	if d.SimulationImage == "" {
		defaultString(&d.SimulationPayload, "7501234567890")
	}
	if d.SimulationRegion == (RegionConfig{}) {
		d.SimulationRegion = RegionConfig{X: 0.1, Y: 0.75, W: 0.8, H: 0.12}
	}
	return validateRegion("development.simulation_region", d.SimulationRegion)
}

func validateMQTT(m *MQTTConfig, stationID string) error {
	if m.Enabled && m.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if m.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", m.QoS)
	}
	defaultString(&m.ClientID, "ticketcap-"+stationID)
	defaultString(&m.Topics.Tickets, fmt.Sprintf("tickets/%s/captured", stationID))
	defaultString(&m.Topics.Health, fmt.Sprintf("tickets/%s/health", stationID))
	return nil
}

func validateRegion(name string, r RegionConfig) error {
	if r.X < 0 || r.Y < 0 || r.W <= 0 || r.H <= 0 || r.X+r.W > 1 || r.Y+r.H > 1 {
		return fmt.Errorf("%s must lie inside the unit square, got %+v", name, r)
	}
	return nil
}

// ParseResolution accepts 720p, 1080p, 1440p, 4k (or 2160p) and WxH.
func ParseResolution(s string) (int, int, error) {
	switch strings.ToLower(s) {
	case "720p":
		return 1280, 720, nil
	case "1080p":
		return 1920, 1080, nil
	case "1440p":
		return 2560, 1440, nil
	case "4k", "2160p":
		return 3840, 2160, nil
	}
	var w, h int
	if n, err := fmt.Sscanf(strings.ToLower(s), "%dx%d", &w, &h); err != nil || n != 2 {
		return 0, 0, fmt.Errorf("unknown resolution %q (use 720p, 1080p, 1440p, 4k or WxH)", s)
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("resolution %q must be positive", s)
	}
	return w, h, nil
}

func defaultInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

func defaultFloat(v *float64, def float64) {
	if *v == 0 {
		*v = def
	}
}

func defaultString(v *string, def string) {
	if *v == "" {
		*v = def
	}
}
