package bus

import (
	"errors"

	"github.com/e7canasta/orion-ticket-capture/modules/framesupplier"
)

// Internal errors - mapped to public errors in framebus package
var (
	ErrBusClosed        = errors.New("framebus: bus is closed")
	ErrObserverNotFound = errors.New("framebus: observer not found")
	ErrNilObserver      = errors.New("framebus: nil observer provided")
)

// Frame is the preview frame handed to observers.
type Frame = framesupplier.Frame

// Observer receives each published frame on the publisher's goroutine.
// The frame is a private copy; the observer may keep or mutate it.
type Observer func(frame *Frame)

// Handle identifies a registration. Returned by Subscribe, consumed by Unsubscribe.
type Handle string

// SubscriberStats tracks delivery metrics for one observer.
type SubscriberStats struct {
	Name      string
	Delivered uint64
	Panics    uint64
	LastPanic string
}

// BusStats is a snapshot of bus-wide metrics.
type BusStats struct {
	TotalPublished uint64
	TotalDelivered uint64
	TotalPanics    uint64
	Subscribers    map[Handle]SubscriberStats
}

// Bus fans frames out to registered observers.
type Bus interface {
	Subscribe(name string, fn Observer) (Handle, error)
	Unsubscribe(h Handle) error
	Publish(frame *Frame) int
	Len() int
	Stats() BusStats
	Close()
}
