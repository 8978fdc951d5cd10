package bus

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

type subscriberHolder struct {
	handle Handle
	name   string
	fn     Observer

	delivered uint64
	panics    uint64

	mu        sync.Mutex
	lastPanic string
}

type bus struct {
	mu          sync.RWMutex
	subscribers []*subscriberHolder
	closed      bool

	totalPublished uint64
	totalDelivered uint64
	totalPanics    uint64
}

// New creates a new observer bus.
func New() Bus {
	return &bus{}
}

// Subscribe registers fn under a fresh handle. Observers are invoked in
// registration order.
func (b *bus) Subscribe(name string, fn Observer) (Handle, error) {
	if fn == nil {
		return "", ErrNilObserver
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return "", ErrBusClosed
	}

	h := Handle(uuid.New().String())
	b.subscribers = append(b.subscribers, &subscriberHolder{
		handle: h,
		name:   name,
		fn:     fn,
	})

	slog.Debug("framebus: observer registered", "observer", name, "handle", h)
	return h, nil
}

// Unsubscribe removes an observer. Safe to call from inside an observer.
func (b *bus) Unsubscribe(h Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}

	for i, holder := range b.subscribers {
		if holder.handle == h {
			b.subscribers = append(b.subscribers[:i:i], b.subscribers[i+1:]...)
			slog.Debug("framebus: observer removed", "observer", holder.name, "handle", h)
			return nil
		}
	}
	return ErrObserverNotFound
}

// Publish invokes every observer synchronously with its own copy of frame and
// returns how many returned normally. A panicking observer is logged and
// skipped; the remaining observers still run.
func (b *bus) Publish(frame *Frame) int {
	if frame == nil {
		return 0
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return 0
	}
	// Snapshot so observers can (un)subscribe without deadlocking.
	holders := make([]*subscriberHolder, len(b.subscribers))
	copy(holders, b.subscribers)
	b.mu.RUnlock()

	atomic.AddUint64(&b.totalPublished, 1)

	delivered := 0
	for _, holder := range holders {
		if b.invoke(holder, frame.Clone()) {
			delivered++
		}
	}
	return delivered
}

func (b *bus) invoke(holder *subscriberHolder, frame *Frame) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			atomic.AddUint64(&holder.panics, 1)
			atomic.AddUint64(&b.totalPanics, 1)

			msg := fmt.Sprint(r)
			holder.mu.Lock()
			holder.lastPanic = msg
			holder.mu.Unlock()

			slog.Error("framebus: observer panicked",
				"observer", holder.name,
				"handle", holder.handle,
				"seq", frame.Seq,
				"panic", msg,
			)
		}
	}()

	holder.fn(frame)

	atomic.AddUint64(&holder.delivered, 1)
	atomic.AddUint64(&b.totalDelivered, 1)
	return true
}

// Len returns the number of registered observers.
func (b *bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Stats returns a snapshot of delivery metrics.
func (b *bus) Stats() BusStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := BusStats{
		TotalPublished: atomic.LoadUint64(&b.totalPublished),
		TotalDelivered: atomic.LoadUint64(&b.totalDelivered),
		TotalPanics:    atomic.LoadUint64(&b.totalPanics),
		Subscribers:    make(map[Handle]SubscriberStats, len(b.subscribers)),
	}

	for _, holder := range b.subscribers {
		holder.mu.Lock()
		lastPanic := holder.lastPanic
		holder.mu.Unlock()

		stats.Subscribers[holder.handle] = SubscriberStats{
			Name:      holder.name,
			Delivered: atomic.LoadUint64(&holder.delivered),
			Panics:    atomic.LoadUint64(&holder.panics),
			LastPanic: lastPanic,
		}
	}
	return stats
}

// Close drops all observers. Publish becomes a no-op.
func (b *bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	b.subscribers = nil
}
