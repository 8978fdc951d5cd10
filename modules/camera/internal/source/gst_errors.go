package source

import (
	"strings"

	"github.com/tinyzimmer/go-gst/gst"
)

// ErrorCategory classifies pipeline errors for logs and stats.
type ErrorCategory int

const (
	// ErrCategoryDevice covers missing, busy or forbidden video devices.
	ErrCategoryDevice ErrorCategory = iota
	// ErrCategoryFormat covers caps negotiation and pixel format failures.
	ErrCategoryFormat
	// ErrCategoryUnknown indicates unclassified errors
	ErrCategoryUnknown
)

func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryDevice:
		return "device"
	case ErrCategoryFormat:
		return "format"
	default:
		return "unknown"
	}
}

var (
	deviceKeywords = []string{
		"no such file",
		"no such device",
		"could not open",
		"cannot identify device",
		"busy",
		"permission denied",
		"not a capture device",
		"v4l2",
	}
	formatKeywords = []string{
		"not negotiated",
		"negotiation",
		"caps",
		"format",
		"unsupported",
		"resolution",
	}
)

// ClassifyGStreamerError maps a bus error to a category by message heuristics
// (go-gst's GError does not expose the error domain).
func ClassifyGStreamerError(gerr *gst.GError) ErrorCategory {
	if gerr == nil {
		return ErrCategoryUnknown
	}
	return classifyMessage(gerr.Error() + " " + gerr.DebugString())
}

func classifyMessage(msg string) ErrorCategory {
	msg = strings.ToLower(msg)

	// Format first: v4l2src negotiation errors also mention "v4l2".
	if containsAny(msg, formatKeywords) {
		return ErrCategoryFormat
	}
	if containsAny(msg, deviceKeywords) {
		return ErrCategoryDevice
	}
	return ErrCategoryUnknown
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
