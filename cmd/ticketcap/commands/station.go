package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/e7canasta/orion-ticket-capture/internal/printer"
	"github.com/e7canasta/orion-ticket-capture/modules/camera"
	"github.com/e7canasta/orion-ticket-capture/modules/capture"
	"github.com/e7canasta/orion-ticket-capture/modules/config"
	"github.com/e7canasta/orion-ticket-capture/modules/decoder"
	"github.com/e7canasta/orion-ticket-capture/modules/detector"
	"github.com/e7canasta/orion-ticket-capture/modules/emitter"
	"github.com/e7canasta/orion-ticket-capture/modules/storage"
)

// station is every long-lived component of one capture station.
type station struct {
	cam     *camera.Engine
	det     *detector.Detector
	dec     *decoder.Decoder
	store   *storage.Store
	emitter *emitter.MQTTEmitter // nil when MQTT is disabled or unreachable
	orch    *capture.Orchestrator
}

// openStation builds the station from c and starts the camera.
func openStation(ctx context.Context, c *config.Config) (*station, error) {
	store, err := storage.New(c.StorageConfig(version))
	if err != nil {
		return nil, printer.Error("cannot prepare the capture directory", err.Error(),
			fmt.Sprintf("check that %q is writable", c.Files.BaseDir))
	}

	cam, err := camera.NewEngine(c.CameraConfig())
	if err != nil {
		return nil, printer.Error("invalid camera configuration", err.Error())
	}

	printer.Step("starting camera (%s)", describeCamera(c))
	if err := cam.Start(ctx, c.Camera.StartAttempts); err != nil {
		cam.Close()
		if errors.Is(err, camera.ErrDeviceUnavailable) {
			return nil, printer.Error("camera unavailable", err.Error(),
				"check that the webcam is connected and not used by another program",
				"run 'ticketcap camera-test' to test the device",
				"use --simulate to run without a camera")
		}
		return nil, fmt.Errorf("start camera: %w", err)
	}
	if res, ok := cam.Resolution(); ok {
		printer.Success("camera ready at %s", res)
	}

	s := &station{
		cam:   cam,
		det:   detector.New(c.DetectorConfig()),
		dec:   decoder.New(c.DecoderConfig()),
		store: store,
	}

	opts := []capture.Option{
		capture.WithConfig(c.CaptureConfig()),
		capture.WithFailureSink(store),
	}
	if c.MQTT.Enabled {
		em := emitter.New(c.EmitterConfig())
		if err := em.Connect(ctx); err != nil {
			printer.Warning("MQTT disabled: %v", err)
			slog.Warn("ticketcap: mqtt unavailable, continuing without events", "error", err)
		} else {
			s.emitter = em
			opts = append(opts, capture.WithNotifier(em))
		}
	}

	s.orch = capture.New(cam, s.det, s.dec, store, opts...)
	return s, nil
}

func (s *station) Close() {
	if s.emitter != nil {
		s.emitter.Disconnect()
	}
	if err := s.cam.Close(); err != nil {
		slog.Warn("ticketcap: camera close", "error", err)
	}
}

// healthReport is the snapshot published on the MQTT health topic and /stats.
type healthReport struct {
	State    string         `json:"state"`
	Capture  capture.Stats  `json:"capture"`
	Camera   camera.Stats   `json:"camera"`
	Detector detector.Stats `json:"detector"`
	Decoder  decoder.Stats  `json:"decoder"`
	Storage  storage.Stats  `json:"storage"`
	MQTT     *emitter.Stats `json:"mqtt,omitempty"`
}

func (s *station) health() healthReport {
	h := healthReport{
		State:    s.orch.State().String(),
		Capture:  s.orch.Stats(),
		Camera:   s.cam.Stats(),
		Detector: s.det.Stats(),
		Decoder:  s.dec.Stats(),
		Storage:  s.store.Stats(),
	}
	if s.emitter != nil {
		st := s.emitter.Stats()
		h.MQTT = &st
	}
	return h
}

func describeCamera(c *config.Config) string {
	if c.Development.Simulation {
		return "simulation " + c.Development.SimulationResolution
	}
	return fmt.Sprintf("%s device %d, %s", c.Camera.Backend, c.Camera.DeviceID, c.Camera.Resolution)
}
