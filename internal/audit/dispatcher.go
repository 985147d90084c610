package audit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultDrainTimeout bounds Close when Config.DrainTimeout is zero.
const DefaultDrainTimeout = 5 * time.Second

// ErrDrainTimeout is returned by Close when the sink did not consume the
// buffered events in time. Undelivered events are counted as dropped.
var ErrDrainTimeout = errors.New("audit: drain timed out")

// Config controls buffering. With DropIfFull unset, Emit waits for buffer
// space until its context ends.
type Config struct {
	BufferSize   int
	DropIfFull   bool
	DrainTimeout time.Duration
}

// Dispatcher relays events to a Sink from a single goroutine, so the sink
// sees events in emission order. A nil *Dispatcher drops everything.
type Dispatcher struct {
	sink         Sink
	events       chan Event
	dropIfFull   bool
	drainTimeout time.Duration

	mu       sync.RWMutex
	closed   bool
	stop     chan struct{}
	stopOnce sync.Once
	idle     chan struct{}

	dropped   atomic.Uint64
	delivered atomic.Uint64
}

func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:         sink,
		events:       make(chan Event, cfg.BufferSize),
		dropIfFull:   cfg.DropIfFull,
		drainTimeout: cfg.DrainTimeout,
		stop:         make(chan struct{}),
		idle:         make(chan struct{}),
	}
	go d.deliver()
	return d
}

func (d *Dispatcher) deliver() {
	defer close(d.idle)
	for event := range d.events {
		d.sink.Emit(context.Background(), event)
		d.delivered.Add(1)
	}
}

// Emit queues event. It never blocks once the dispatcher is closed.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.dropIfFull {
		select {
		case d.events <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}
	select {
	case d.events <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.stop:
		d.dropped.Add(1)
	}
}

// Close stops intake and waits up to the drain timeout for the sink to
// consume what is buffered. It is safe to call more than once.
func (d *Dispatcher) Close() error {
	if d == nil {
		return nil
	}

	// Release emitters waiting for buffer space before taking the write lock.
	d.stopOnce.Do(func() { close(d.stop) })

	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.events)
	}
	d.mu.Unlock()

	timer := time.NewTimer(d.drainTimeout)
	defer timer.Stop()
	select {
	case <-d.idle:
		return nil
	case <-timer.C:
		d.dropped.Add(uint64(len(d.events)))
		return ErrDrainTimeout
	}
}

// Dropped counts events discarded on a full buffer, a cancelled Emit or a
// timed out drain.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Delivered counts events handed to the sink.
func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}
