package signal

import (
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Type is the closed set of events a task emits.
type Type string

const (
	// TypeProgress carries a percentage and optional status text.
	TypeProgress Type = "progress"
	// TypePartial carries one intermediate result payload.
	TypePartial Type = "partial"
	// TypeError carries a human-readable failure message.
	TypeError Type = "error"
	// TypeFinished is the last event of every run.
	TypeFinished Type = "finished"
)

// Progress is the payload of a progress event.
type Progress struct {
	Percent int
	Status  string
}

// Event is one notification emitted by a worker and delivered on the controlling goroutine.
type Event struct {
	Type      Type
	Kind      string
	TaskID    string
	Seq       uint64
	Timestamp time.Time
	Progress  Progress
	Payload   any
	Message   string
}

// Handler consumes a delivered event.
type Handler func(Event)

// Logger captures debug logs for discarded events.
type Logger interface {
	Printf(format string, args ...any)
}

// Option customizes bus construction.
type Option func(*Bus)

// WithLogger configures the log sink used for discarded-event notices.
func WithLogger(logger Logger) Option {
	return func(bus *Bus) {
		if logger != nil {
			bus.logger = logger
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(bus *Bus) {
		if now != nil {
			bus.now = now
		}
	}
}

// Bus queues one task's events and delivers them on the loop's goroutine in emission
// order, exactly once. Publish may be called from any goroutine.
type Bus struct {
	loop   *Loop
	kind   string
	taskID string
	logger Logger
	now    func() time.Time

	mu         sync.Mutex
	subs       []Handler
	pending    []Event
	seq        uint64
	closed     bool
	delivering bool
	drainAll   bool
}

// NewBus creates a bus bound to loop for one task.
func NewBus(loop *Loop, kind, taskID string, options ...Option) *Bus {
	bus := &Bus{
		loop:   loop,
		kind:   kind,
		taskID: taskID,
		logger: log.New(io.Discard),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(bus)
	}
	return bus
}

// Subscribe registers a handler. Handlers run on the controlling goroutine.
func (b *Bus) Subscribe(handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	b.subs = append(b.subs, handler)
	b.mu.Unlock()
}

// Publish stamps and queues ev for delivery. It reports false when the bus is closed,
// in which case the event is discarded.
func (b *Bus) Publish(ev Event) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.logger.Printf("discarding %s event for closed %s task %s", ev.Type, b.kind, b.taskID)
		return false
	}
	b.seq++
	ev.Seq = b.seq
	ev.Kind = b.kind
	ev.TaskID = b.taskID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = b.now()
	}
	b.pending = append(b.pending, ev)
	b.mu.Unlock()

	if b.loop != nil {
		b.loop.Post(b.deliverNext)
	}
	return true
}

// Flush delivers every pending event on the calling goroutine. Called from inside a
// handler of this bus it defers to the outer delivery, which then drains the queue
// before returning.
func (b *Bus) Flush() int {
	return b.dispatch(true)
}

// Close stops accepting events. Events already queued are still delivered.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

// Closed reports whether Close was called.
func (b *Bus) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Pending reports the number of queued, undelivered events.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Bus) deliverNext() {
	b.dispatch(false)
}

func (b *Bus) dispatch(all bool) int {
	b.mu.Lock()
	if b.delivering {
		// Reentrant call from a handler: the outer dispatch finishes the queue.
		b.drainAll = true
		b.mu.Unlock()
		return 0
	}
	b.delivering = true
	b.drainAll = all
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.delivering = false
		b.drainAll = false
		b.mu.Unlock()
	}()

	delivered := 0
	for {
		b.mu.Lock()
		if len(b.pending) == 0 || (delivered > 0 && !b.drainAll) {
			b.mu.Unlock()
			return delivered
		}
		ev := b.pending[0]
		b.pending[0] = Event{}
		b.pending = b.pending[1:]
		subs := make([]Handler, len(b.subs))
		copy(subs, b.subs)
		b.mu.Unlock()

		for _, handler := range subs {
			handler(ev)
		}
		delivered++
	}
}
