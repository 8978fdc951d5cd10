package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/e7canasta/orion-ticket-capture/internal/printer"
	"github.com/e7canasta/orion-ticket-capture/modules/camera"
)

var checkFrames int

var cameraTestCmd = &cobra.Command{
	Use:   "camera-test",
	Short: "Open the configured camera, read some frames and report",
	Args:  cobra.NoArgs,
	RunE:  runCameraTest,
}

func init() {
	cameraTestCmd.Flags().IntVarP(&checkFrames, "frames", "n", 60, "number of frames to read")
	rootCmd.AddCommand(cameraTestCmd)
}

func runCameraTest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	printer.Step("probing %s", describeCamera(cfg))
	res, err := camera.Check(ctx, cfg.CameraConfig(), checkFrames)
	if err != nil {
		return printer.Error("camera test failed", err.Error(),
			"check that the device exists (ls /dev/video*)",
			"try another camera.backend or camera.device_id")
	}

	printer.Success("%d/%d frames in %s", res.Frames, res.Requested, res.Elapsed.Round(time.Millisecond))
	printer.Field("backend", res.Backend)
	printer.Field("resolution", res.Resolution)
	printer.Field("failures", res.Failures)
	printer.Field("fps", fmt.Sprintf("%.1f (min %.1f, max %.1f)", res.FPS.FPSMean, res.FPS.FPSMin, res.FPS.FPSMax))
	if res.Frames < res.Requested {
		printer.Warning("the device delivered fewer frames than requested")
	}
	return nil
}
