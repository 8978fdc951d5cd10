package commands

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gocv.io/x/gocv"

	"github.com/e7canasta/orion-ticket-capture/internal/printer"
	"github.com/e7canasta/orion-ticket-capture/internal/vision"
	"github.com/e7canasta/orion-ticket-capture/modules/decoder"
	"github.com/e7canasta/orion-ticket-capture/modules/detector"
)

var (
	scanAnnotate string
	scanROI      string
	scanFast     bool
)

var scanCmd = &cobra.Command{
	Use:   "scan <image>",
	Short: "Locate and read the barcode in an image file",
	Long: `Runs detection and decoding on a photograph without a camera, with the
thresholds from the configuration file.

Examples:
  ticketcap scan reverso.jpg
  ticketcap scan reverso.jpg --annotate out.jpg --roi roi.png`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanAnnotate, "annotate", "", "write the image with the detected regions drawn (default <image>_annotated.<ext> when ui.annotate is set)")
	scanCmd.Flags().StringVar(&scanROI, "roi", "", "write the extended barcode region")
	scanCmd.Flags().BoolVar(&scanFast, "fast", false, "use the preview cascade (symbol scan and gradient only)")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	path := args[0]
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		return printer.Error("cannot read image", fmt.Sprintf("%s is missing or not an image OpenCV can decode", path))
	}
	defer img.Close()

	det := detector.New(cfg.DetectorConfig())
	dec := decoder.New(cfg.DecoderConfig())

	start := time.Now()
	var (
		res detector.Result
		ok  bool
	)
	if scanFast {
		res, ok = det.DetectFast(img)
	} else {
		res, ok = det.Detect(img)
	}
	if !ok {
		return printer.Error("no barcode region found",
			fmt.Sprintf("none of the detection strategies found a region in %s (%dx%d)", path, img.Cols(), img.Rows()),
			"retake the photo with the barcode closer to the camera")
	}

	printer.Success("region found by %s", res.Strategy)
	printer.Field("confidence", fmt.Sprintf("%.2f", res.Confidence))
	printer.Field("original", res.Original)
	printer.Field("extended", res.Region)
	printer.Field("candidates", res.Candidates)

	if scanROI != "" && res.Crop != nil {
		roi, err := vision.FrameToMat(res.Crop)
		if err == nil {
			gocv.IMWrite(scanROI, roi)
			roi.Close()
			printer.Field("roi", scanROI)
		}
	}
	annotate := scanAnnotate
	if annotate == "" && cfg.UI.Annotate {
		annotate = annotatedPath(path)
	}
	if annotate != "" {
		detector.Annotate(&img, res)
		if gocv.IMWrite(annotate, img) {
			printer.Field("annotated", annotate)
		} else {
			printer.Warning("could not write %s", annotate)
		}
	}

	code, ok := dec.DecodeFrame(res.Crop)
	if !ok {
		return printer.Error("barcode unreadable",
			"the region was located but no image variant decoded",
			"check focus and lighting", "look at the --roi output to see what the reader got")
	}
	printer.Success("code %s", code.Text)
	printer.Field("format", code.Format)
	printer.Field("variant", code.Variant)
	printer.Field("attempts", code.Attempts)
	printer.Field("total", time.Since(start).Round(time.Millisecond))
	return nil
}

// annotatedPath places the annotated copy next to the input image.
func annotatedPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_annotated" + ext
}
