package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull makes Emit non-blocking; overflow is counted in Dropped.
	DropIfFull bool
	// OnDrop, if set, is called once per dropped event.
	OnDrop func(Event)
	Now    func() time.Time
}

// Dispatcher forwards audit events to a sink from a single worker
// goroutine. A nil *Dispatcher is valid and discards everything.
type Dispatcher struct {
	sink       Sink
	now        func() time.Time
	dropIfFull bool
	onDrop     func(Event)

	// mu guards queue against a send racing Close. Emit holds it shared
	// while sending; Close takes it exclusively to close the queue.
	mu       sync.RWMutex
	queue    chan Event
	shutdown bool
	stopped  chan struct{}

	dropped   atomic.Uint64
	delivered atomic.Uint64
}

// NewDispatcher starts the delivery worker. It returns nil when auditing
// is disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:       sink,
		now:        now,
		dropIfFull: cfg.DropIfFull,
		onDrop:     cfg.OnDrop,
		queue:      make(chan Event, size),
		stopped:    make(chan struct{}),
	}
	go d.work()
	return d
}

// work delivers until the queue is closed and empty.
func (d *Dispatcher) work() {
	defer close(d.stopped)
	ctx := context.Background()
	for ev := range d.queue {
		d.sink.Emit(ctx, ev)
		d.delivered.Add(1)
	}
}

func (d *Dispatcher) stamp(ev Event) Event {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = d.now().UTC()
	}
	return ev
}

// Emit queues event, stamping a missing id or timestamp. Without
// DropIfFull it waits for buffer space or ctx. Events emitted after Close
// are discarded.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.shutdown {
		return
	}
	event = d.stamp(event)

	if !d.dropIfFull {
		select {
		case d.queue <- event:
		case <-ctx.Done():
		}
		return
	}

	select {
	case d.queue <- event:
	default:
		d.dropped.Add(1)
		if d.onDrop != nil {
			d.onDrop(event)
		}
	}
}

// Close stops accepting events and returns once every queued event has
// reached the sink. It is safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.shutdown {
		d.shutdown = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.stopped
}

func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Delivered returns how many events reached the sink.
func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}
