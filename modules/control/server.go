// Package control exposes the capture station over HTTP.
//
//	GET  /health           liveness
//	GET  /state            current capture state
//	GET  /stats            orchestrator counters plus extra sources
//	GET  /assist           one live-preview detection
//	GET  /overlay          region to draw on the preview
//	GET  /preview.jpg      latest preview frame (?overlay=1 draws the region)
//	POST /capture/front    Ready → FrontCaptured
//	POST /capture/back     FrontCaptured → BackCaptured
//	POST /finalize         BackCaptured → Saving → Ready
//	POST /reset            back to Ready
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/e7canasta/orion-ticket-capture/modules/camera"
	"github.com/e7canasta/orion-ticket-capture/modules/capture"
	"github.com/e7canasta/orion-ticket-capture/modules/framesupplier"
	"github.com/e7canasta/orion-ticket-capture/modules/storage"
)

// Station is the part of the orchestrator the API drives.
type Station interface {
	CaptureFront(ctx context.Context) error
	CaptureBack(ctx context.Context) error
	Finalize(ctx context.Context) (storage.Receipt, error)
	Reset() error
	Assist() (capture.Assist, bool)
	OverlayRegion() (image.Rectangle, bool)
	State() capture.State
	Stats() capture.Stats
}

// Preview supplies frames for /preview.jpg.
type Preview interface {
	ReadPreview() (*framesupplier.Frame, bool)
}

// Response is the JSON envelope of every endpoint except /preview.jpg.
type Response struct {
	Status    string        `json:"status"` // ok, error
	State     capture.State `json:"state"`
	Data      any           `json:"data,omitempty"`
	Error     string        `json:"error,omitempty"`
	Timestamp string        `json:"timestamp"`
}

// Server routes HTTP requests to a Station.
type Server struct {
	station Station
	preview Preview
	extra   map[string]func() any
	quality int
	router  *mux.Router
}

// Option configures a Server.
type Option func(*Server)

// WithStats adds a named section to /stats.
func WithStats(name string, fn func() any) Option {
	return func(s *Server) { s.extra[name] = fn }
}

// WithPreviewQuality sets the JPEG quality of /preview.jpg (default 80).
func WithPreviewQuality(q int) Option {
	return func(s *Server) {
		if q >= 1 && q <= 100 {
			s.quality = q
		}
	}
}

// New builds the router.
func New(station Station, preview Preview, opts ...Option) *Server {
	s := &Server{
		station: station,
		preview: preview,
		extra:   make(map[string]func() any),
		quality: 80,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/assist", s.handleAssist).Methods(http.MethodGet)
	r.HandleFunc("/overlay", s.handleOverlay).Methods(http.MethodGet)
	r.HandleFunc("/preview.jpg", s.handlePreview).Methods(http.MethodGet)
	r.HandleFunc("/capture/{side:front|back}", s.handleCapture).Methods(http.MethodPost)
	r.HandleFunc("/finalize", s.handleFinalize).Methods(http.MethodPost)
	r.HandleFunc("/reset", s.handleReset).Methods(http.MethodPost)
	r.Use(logRequests)
	return r
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("control: http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("control: listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("control: shutdown: %w", err)
	}
	slog.Info("control: http server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.reply(w, http.StatusOK, nil)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.reply(w, http.StatusOK, map[string]string{"state": s.station.State().String()})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{"capture": s.station.Stats()}
	for name, fn := range s.extra {
		data[name] = fn()
	}
	s.reply(w, http.StatusOK, data)
}

type regionJSON struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

func toRegion(r image.Rectangle) regionJSON {
	return regionJSON{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

func (s *Server) handleAssist(w http.ResponseWriter, r *http.Request) {
	a, ok := s.station.Assist()
	if !ok {
		s.reply(w, http.StatusOK, map[string]any{"found": false})
		return
	}
	s.reply(w, http.StatusOK, map[string]any{
		"found":      true,
		"region":     toRegion(a.Region),
		"strategy":   a.Strategy,
		"confidence": a.Confidence,
		"code":       a.Code,
	})
}

func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	region, ok := s.station.OverlayRegion()
	if !ok {
		s.fail(w, http.StatusServiceUnavailable, errors.New("no preview frame available"))
		return
	}
	s.reply(w, http.StatusOK, toRegion(region))
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	f, ok := s.preview.ReadPreview()
	if !ok {
		s.fail(w, http.StatusServiceUnavailable, errors.New("no preview frame available"))
		return
	}
	var overlay image.Rectangle
	if r.URL.Query().Get("overlay") == "1" {
		overlay, _ = s.station.OverlayRegion()
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	if err := encodePreview(w, f, overlay, s.quality); err != nil {
		slog.Debug("control: preview encode failed", "error", err)
	}
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	side := mux.Vars(r)["side"]
	var err error
	if side == "front" {
		err = s.station.CaptureFront(r.Context())
	} else {
		err = s.station.CaptureBack(r.Context())
	}
	if err != nil {
		s.fail(w, statusFor(err), err)
		return
	}
	s.reply(w, http.StatusOK, map[string]string{"captured": side})
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.station.Finalize(r.Context())
	if err != nil {
		s.fail(w, statusFor(err), err)
		return
	}
	s.reply(w, http.StatusOK, receipt)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.station.Reset(); err != nil {
		s.fail(w, statusFor(err), err)
		return
	}
	s.reply(w, http.StatusOK, nil)
}

// statusFor maps orchestrator errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, capture.ErrInvalidTransition), errors.Is(err, capture.ErrSaveInFlight):
		return http.StatusConflict
	case errors.Is(err, capture.ErrNoDetection), errors.Is(err, capture.ErrNoCode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, camera.ErrFrameTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, camera.ErrSourceClosed), errors.Is(err, camera.ErrNotStarted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) reply(w http.ResponseWriter, code int, data any) {
	s.write(w, code, Response{Status: "ok", Data: data})
}

func (s *Server) fail(w http.ResponseWriter, code int, err error) {
	s.write(w, code, Response{Status: "error", Error: err.Error()})
}

func (s *Server) write(w http.ResponseWriter, code int, resp Response) {
	resp.State = s.station.State()
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Debug("control: write response failed", "error", err)
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("control: request", "method", r.Method, "path", r.URL.Path, "duration_ms", time.Since(start).Milliseconds())
	})
}
