package framebus

import "github.com/e7canasta/orion-ticket-capture/modules/framebus/internal/bus"

// Public API - Re-export internal types as stable contract

// Frame is the frame type delivered to observers (framesupplier.Frame).
type Frame = bus.Frame

// Observer receives each published frame synchronously.
type Observer = bus.Observer

// Handle identifies an observer registration.
type Handle = bus.Handle

// SubscriberStats tracks delivery metrics for one observer.
type SubscriberStats = bus.SubscriberStats

// BusStats is a snapshot of bus-wide metrics.
type BusStats = bus.BusStats

// Bus fans frames out to registered observers with panic isolation.
type Bus = bus.Bus

// Public API errors - Re-export internal errors as stable contract
var (
	ErrBusClosed        = bus.ErrBusClosed
	ErrObserverNotFound = bus.ErrObserverNotFound
	ErrNilObserver      = bus.ErrNilObserver
)
