package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/e7canasta/orion-ticket-capture/internal/printer"
	"github.com/e7canasta/orion-ticket-capture/modules/control"
)

var (
	serveListen         string
	serveHealthInterval time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the station headless behind the HTTP control API",
	Long: `Starts the camera and serves the capture workflow over HTTP
(see control.listen). When mqtt.enabled is set, every saved ticket and a
periodic health report are published to the broker. Old capture
directories are removed daily when files.retention_days is set.

Examples:
  ticketcap serve
  curl -X POST localhost:8080/capture/front
  curl -X POST localhost:8080/capture/back
  curl -X POST localhost:8080/finalize`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "override control.listen")
	serveCmd.Flags().DurationVar(&serveHealthInterval, "health-interval", 30*time.Second, "MQTT health report period")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStation(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	addr := cfg.Control.Listen
	if serveListen != "" {
		addr = serveListen
	}

	// Cancelled before the station closes.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go st.housekeeping(ctx, serveHealthInterval, cfg.Files.RetentionDays)
	go st.orch.WatchAssist(ctx, assistInterval(), onAdvisoryCode(func(code string) {
		slog.Info("ticketcap: barcode visible in preview", "code", code)
	}))

	printer.Success("station %s listening on http://%s", cfg.StationID, addr)
	if err := serveControl(ctx, st, addr); err != nil {
		return printer.Error("control API stopped", err.Error(),
			"check that "+addr+" is free or pass --listen")
	}
	printer.Info("shutting down")
	return nil
}

// serveControl runs the HTTP control API for st until ctx is done.
func serveControl(ctx context.Context, st *station, addr string) error {
	srv := control.New(st.orch, st.cam,
		control.WithStats("station", func() any { return st.health() }),
	)
	err := srv.ListenAndServe(ctx, addr)
	if err != nil {
		slog.Error("ticketcap: control API stopped", "addr", addr, "error", err)
	}
	return err
}

// housekeeping publishes health reports and prunes old directories until
// ctx is cancelled.
func (s *station) housekeeping(ctx context.Context, every time.Duration, retentionDays int) {
	prune := func() {
		if retentionDays < 1 {
			return
		}
		if n, err := s.store.Cleanup(retentionDays); err != nil {
			slog.Warn("ticketcap: cleanup failed", "error", err)
		} else if n > 0 {
			slog.Info("ticketcap: old capture directories removed", "count", n, "days", retentionDays)
		}
	}
	prune()

	if every <= 0 {
		every = 30 * time.Second
	}
	healthTick := time.NewTicker(every)
	defer healthTick.Stop()
	pruneTick := time.NewTicker(24 * time.Hour)
	defer pruneTick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-healthTick.C:
			if s.emitter == nil {
				continue
			}
			if err := s.emitter.PublishHealth(s.health()); err != nil {
				slog.Debug("ticketcap: health publish failed", "error", err)
			}
		case <-pruneTick.C:
			prune()
		}
	}
}
