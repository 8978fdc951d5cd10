// Package framebus provides synchronous observer fan-out for preview frames.
//
// Core Philosophy: "A broken observer must never break the camera."
//
// Observers are plain callbacks registered under an opaque Handle:
//
//	bus := framebus.New()
//	defer bus.Close()
//
//	h, _ := bus.Subscribe("ui-preview", func(f *framebus.Frame) {
//		render(f)
//	})
//	defer bus.Unsubscribe(h)
//
//	bus.Publish(previewFrame) // runs every observer, recovers panics
package framebus

import "github.com/e7canasta/orion-ticket-capture/modules/framebus/internal/bus"

// New creates an empty observer bus.
func New() Bus {
	return bus.New()
}
