// Package framesupplier implements the conflation point between the camera
// producer and everything that looks at frames.
//
// # Philosophy
//
// "Drop frames, never queue. Latency > Completeness."
//
// A ticket station polls the camera at human speed (button presses) and at
// preview speed (UI refresh, live barcode assist). Neither consumer wants
// history: they want the newest frame, now. The buffer therefore keeps exactly
// one native frame and one preview, and every Publish replaces both.
//
// # Architecture
//
//	camera producer ──Publish──▶ Buffer ──ReadNative──▶ capture (front/back)
//	     (30fps)          native + preview  ──ReadPreview─▶ UI, live assist
//
// # Basic Usage
//
// Producer side (camera engine):
//
//	buf := framesupplier.New(framesupplier.Config{PreviewMaxDim: 1280})
//	preview := buf.Publish(&framesupplier.Frame{
//		Data: bgr, Width: 1920, Height: 1080, Channels: 3,
//	})
//	notifyObservers(preview)
//
// Consumer side:
//
//	if frame, ok := buf.ReadPreview(); ok {
//		render(frame)
//	}
//
// # Thread Safety
//
// The mutex guards a pointer swap only. Deep copies (in and out) and the
// preview resize run outside the critical section, so a reader never holds
// the producer for longer than a pointer load.
package framesupplier
