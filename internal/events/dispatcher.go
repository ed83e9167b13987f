package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mbd888/riskoracle/internal/oracle"
)

const (
	dispatcherQueueSize  = 1024
	publishTimeout       = 10 * time.Second
	dispatcherDrainLimit = 5 * time.Second
)

// Dispatcher queues updates and publishes them from a single goroutine.
type Dispatcher struct {
	pub     Publisher
	logger  *slog.Logger
	ch      chan RiskUpdated
	dropped atomic.Int64
	onDrop  func()
	done    chan struct{}
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithQueueSize overrides the default queue capacity.
func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) { d.ch = make(chan RiskUpdated, n) }
}

// WithDropHook is called each time an event is dropped.
func WithDropHook(fn func()) DispatcherOption {
	return func(d *Dispatcher) { d.onDrop = fn }
}

// NewDispatcher creates a dispatcher publishing to pub.
func NewDispatcher(pub Publisher, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		pub:    pub,
		logger: logger,
		ch:     make(chan RiskUpdated, dispatcherQueueSize),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Listener returns a registry listener that enqueues accepted updates.
func (d *Dispatcher) Listener() oracle.Listener {
	return func(u oracle.Update) {
		d.Send(NewRiskUpdated(u))
	}
}

// Send enqueues an event. Non-blocking: drops and counts it if the queue
// is full.
func (d *Dispatcher) Send(ev RiskUpdated) {
	select {
	case d.ch <- ev:
	default:
		d.dropped.Add(1)
		if d.onDrop != nil {
			d.onDrop()
		}
	}
}

// Dropped returns the number of events dropped due to a full queue.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Start publishes queued events until ctx is cancelled, then drains what is
// left and closes the publisher. Call in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	defer close(d.done)

	for {
		select {
		case <-ctx.Done():
			d.drain()
			if err := d.pub.Close(); err != nil {
				d.logger.Warn("event publisher close failed", "error", err)
			}
			return
		case ev := <-d.ch:
			d.publish(context.Background(), ev)
		}
	}
}

// Done is closed when Start has returned.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *Dispatcher) drain() {
	deadline := time.After(dispatcherDrainLimit)
	for {
		select {
		case ev := <-d.ch:
			d.publish(context.Background(), ev)
		case <-deadline:
			d.logger.Warn("event drain timed out", "remaining", len(d.ch))
			return
		default:
			return
		}
	}
}

func (d *Dispatcher) publish(parent context.Context, ev RiskUpdated) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic in event publisher", "panic", fmt.Sprint(r))
		}
	}()

	ctx, cancel := context.WithTimeout(parent, publishTimeout)
	defer cancel()

	if err := d.pub.Publish(ctx, ev); err != nil {
		d.logger.Error("event publish failed",
			"error", err,
			"event_id", ev.ID,
			"validator", ev.ValidatorID,
		)
	}
}
