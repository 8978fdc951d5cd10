package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/e7canasta/orion-ticket-capture/internal/printer"
	"github.com/e7canasta/orion-ticket-capture/modules/camera"
	"github.com/e7canasta/orion-ticket-capture/modules/capture"
	"github.com/e7canasta/orion-ticket-capture/modules/storage"
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture tickets interactively from the terminal",
	Long: `Runs the capture station with keyboard commands:

  f, front    capture the front side (Ready)
  b, back     capture the back side and read the barcode (front captured)
  s, save     store both images and the metadata (back captured)
  r, reset    discard the current ticket
  a, assist   show where the barcode is seen in the live preview
  st, status  print state and counters
  q, quit     exit`,
	Args: cobra.NoArgs,
	RunE: runCapture,
}

func init() {
	rootCmd.AddCommand(captureCmd)
}

func runCapture(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStation(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	// Cancelled before the station closes.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go st.orch.WatchAssist(ctx, assistInterval(), onAdvisoryCode(func(code string) {
		printer.Success("barcode visible, preview reads %s", code)
	}))
	if cfg.Control.Enabled {
		go serveControl(ctx, st, cfg.Control.Listen)
	}

	printer.Banner("Ticket capture: " + cfg.StationID)
	printer.Info("commands: front, back, save, reset, assist, status, quit")
	return captureLoop(ctx, st.orch, cmd.InOrStdin())
}

func assistInterval() time.Duration {
	return time.Duration(cfg.UI.AssistIntervalMS) * time.Millisecond
}

// onAdvisoryCode adapts report to WatchAssist: it fires once per new
// non-empty advisory code.
func onAdvisoryCode(report func(code string)) func(capture.Assist) {
	var last string
	return func(a capture.Assist) {
		if a.Code == "" || a.Code == last {
			return
		}
		last = a.Code
		report(a.Code)
	}
}

// operator is what the keyboard loop drives.
type operator interface {
	CaptureFront(ctx context.Context) error
	CaptureBack(ctx context.Context) error
	Finalize(ctx context.Context) (storage.Receipt, error)
	Reset() error
	Assist() (capture.Assist, bool)
	State() capture.State
	Stats() capture.Stats
	Artifacts() capture.Artifacts
}

func captureLoop(ctx context.Context, op operator, in io.Reader) error {
	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- strings.ToLower(strings.TrimSpace(sc.Text())):
			case <-done:
				return
			}
		}
	}()

	for {
		fmt.Fprintf(printer.Out, "[%s] > ", op.State())
		var line string
		select {
		case <-ctx.Done():
			printer.Info("")
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = l
		}

		if quit := dispatch(ctx, op, line); quit {
			return nil
		}
	}
}

// dispatch runs one keyboard command and reports whether to quit.
func dispatch(ctx context.Context, op operator, line string) bool {
	switch line {
	case "":
	case "f", "front":
		printer.Step("capturing front")
		if err := op.CaptureFront(ctx); err != nil {
			reportCaptureError(err)
			return false
		}
		printer.Success("front captured, turn the ticket over")
	case "b", "back":
		printer.Step("capturing back")
		if err := op.CaptureBack(ctx); err != nil {
			reportCaptureError(err)
			return false
		}
		a := op.Artifacts()
		printer.Success("code %s read", a.Code)
		printer.Field("strategy", a.Strategy)
		printer.Field("confidence", fmt.Sprintf("%.2f", a.Confidence))
		printer.Field("variant", a.Variant)
	case "s", "save":
		printer.Step("saving")
		r, err := op.Finalize(ctx)
		if err != nil {
			reportCaptureError(err)
			return false
		}
		printer.Success("ticket %s saved", r.Code)
		printer.Field("directory", r.Dir)
		printer.Field("metadata", r.Metadata)
	case "r", "reset":
		if err := op.Reset(); err != nil {
			reportCaptureError(err)
			return false
		}
		printer.Success("ready for the next ticket")
	case "a", "assist":
		a, ok := op.Assist()
		if !ok {
			printer.Warning("no barcode visible in the preview")
			return false
		}
		printer.Info("barcode near %v (%s, %.2f)", a.Region, a.Strategy, a.Confidence)
		if a.Code != "" {
			printer.Info("preview read: %s", a.Code)
		}
	case "st", "status":
		s := op.Stats()
		printer.Field("state", s.State)
		printer.Field("tickets", s.TicketsProcessed)
		printer.Field("detect misses", s.DetectionMisses)
		printer.Field("decode misses", s.DecodeMisses)
		if s.LastError != "" {
			printer.Field("last error", s.LastError)
		}
	case "q", "quit", "exit":
		return true
	default:
		printer.Warning("unknown command %q", line)
	}
	return false
}

// reportCaptureError prints an operator hint for err.
func reportCaptureError(err error) {
	switch {
	case errors.Is(err, capture.ErrNoDetection):
		printer.Warning("barcode not found: %v", err)
		printer.Info("  move the ticket so the barcode faces the camera and try 'back' again")
	case errors.Is(err, capture.ErrNoCode):
		printer.Warning("barcode found but unreadable: %v", err)
		printer.Info("  check focus and lighting and try 'back' again")
	case errors.Is(err, capture.ErrInvalidTransition):
		printer.Warning("%v", err)
	case errors.Is(err, camera.ErrFrameTimeout):
		printer.Warning("no frame from the camera, try again")
	case errors.Is(err, camera.ErrSourceClosed), errors.Is(err, camera.ErrNotStarted):
		printer.Warning("camera lost: %v", err)
		printer.Info("  reconnect the camera and restart ticketcap")
	case errors.Is(err, capture.ErrPersistence):
		printer.Warning("save failed: %v", err)
		printer.Info("  the images are kept; fix the problem and 'reset' to discard them")
	default:
		printer.Warning("%v", err)
	}
}
