package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/versal-debug/vdbg/internal/faults"
	"github.com/versal-debug/vdbg/internal/signal"
)

// ErrAlreadyStarted is returned when Start is called on a handle that already ran.
var ErrAlreadyStarted = errors.New("task already started")

// Operation is the device work a handle runs on its worker.
type Operation interface {
	Kind() Kind
	Run(ctx context.Context, h *Handle) error
}

type funcOperation struct {
	kind Kind
	fn   func(ctx context.Context, h *Handle) error
}

func (o funcOperation) Kind() Kind { return o.kind }

func (o funcOperation) Run(ctx context.Context, h *Handle) error { return o.fn(ctx, h) }

// Func adapts a function into an Operation of the given kind.
func Func(kind Kind, fn func(ctx context.Context, h *Handle) error) Operation {
	return funcOperation{kind: kind, fn: fn}
}

// StepFunc performs one poll iteration. Returned payloads are emitted as partial
// results in order. Returning no payloads means "nothing yet, try again" and does not
// end a single-shot poll.
type StepFunc func(ctx context.Context) ([]any, error)

// Option configures Handle construction.
type Option func(*Handle)

// WithLogger sets the structured logger used for lifecycle records.
func WithLogger(logger *log.Logger) Option {
	return func(h *Handle) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithTracer sets the tracer used for the task.run span.
func WithTracer(tracer trace.Tracer) Option {
	return func(h *Handle) {
		if tracer != nil {
			h.tracer = tracer
		}
	}
}

// WithID overrides the generated task id.
func WithID(id string) Option {
	return func(h *Handle) {
		if id != "" {
			h.id = id
		}
	}
}

// Handle is one run of an operation: its lifecycle state, stop flag and event bus.
// Start runs on a worker goroutine; every other method is safe from any goroutine.
type Handle struct {
	id     string
	op     Operation
	bus    *signal.Bus
	logger *log.Logger
	tracer trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc

	started atomic.Bool
	stop    atomic.Bool
	done    chan struct{}

	mu        sync.Mutex
	state     State
	startedAt time.Time
}

// New creates an idle handle whose events are delivered through loop.
func New(loop *signal.Loop, op Operation, options ...Option) *Handle {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		id:     uuid.NewString(),
		op:     op,
		logger: log.New(io.Discard),
		tracer: otel.Tracer("vdbg/task"),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		state:  StateIdle,
	}
	for _, option := range options {
		option(h)
	}
	h.logger = h.logger.With("task_id", h.id, "kind", string(op.Kind()))
	h.bus = signal.NewBus(loop, string(op.Kind()), h.id, signal.WithLogger(h.logger))
	return h
}

// ID returns the task id.
func (h *Handle) ID() string { return h.id }

// Kind returns the operation kind.
func (h *Handle) Kind() Kind { return h.op.Kind() }

// Bus returns the handle's event bus.
func (h *Handle) Bus() *signal.Bus { return h.bus }

// Logger returns the handle's logger, already tagged with task_id and kind.
func (h *Handle) Logger() *log.Logger { return h.logger }

// Done is closed once Start has returned.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Context is cancelled when a stop is requested or the run ends.
func (h *Handle) Context() context.Context { return h.ctx }

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// IsFinished reports whether the handle reached Finished or Failed.
func (h *Handle) IsFinished() bool {
	return h.State().Terminal()
}

// StartedAt returns when Start began, or the zero time before that.
func (h *Handle) StartedAt() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.startedAt
}

// StopRequested reports whether RequestStop has been called.
func (h *Handle) StopRequested() bool {
	return h.stop.Load()
}

// RequestStop asks the operation to end at its next check. It never blocks and may be
// called any number of times.
func (h *Handle) RequestStop() {
	if h.stop.Swap(true) {
		return
	}
	h.mu.Lock()
	if CanTransition(h.state, StateStopRequested) {
		h.state = StateStopRequested
	}
	h.mu.Unlock()
	h.cancel()
	h.logger.Debug("stop requested")
}

// Progress emits a progress event.
func (h *Handle) Progress(percent int, status string) bool {
	return h.emit(signal.Event{Type: signal.TypeProgress, Progress: signal.Progress{Percent: percent, Status: status}})
}

// Partial emits one intermediate result.
func (h *Handle) Partial(payload any) bool {
	return h.emit(signal.Event{Type: signal.TypePartial, Payload: payload})
}

// Sleep waits for d or until a stop is requested. It reports whether the caller
// should keep going.
func (h *Handle) Sleep(d time.Duration) bool {
	if h.StopRequested() {
		return false
	}
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return !h.StopRequested()
	case <-h.ctx.Done():
		return false
	}
}

// Poll runs step until a stop is requested, sleeping interval between iterations.
// Results of an iteration that raced with a stop request are discarded. With
// singleShot the loop ends after the first iteration that produced results.
func (h *Handle) Poll(interval time.Duration, singleShot bool, step StepFunc) error {
	for !h.StopRequested() {
		payloads, err := step(h.ctx)
		if h.StopRequested() {
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		}
		if err != nil {
			return err
		}
		for _, payload := range payloads {
			h.Partial(payload)
		}
		if singleShot && len(payloads) > 0 {
			return nil
		}
		if !h.Sleep(interval) {
			return nil
		}
	}
	return nil
}

// Start runs the operation on the calling goroutine and always ends with exactly one
// finished event. A failure is reported as an error event first and also returned.
func (h *Handle) Start() error {
	if !h.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	defer close(h.done)
	defer h.cancel()

	ctx, span := h.tracer.Start(
		h.ctx,
		"task.run",
		trace.WithAttributes(
			attribute.String("task.kind", string(h.Kind())),
			attribute.String("task.id", h.id),
		),
	)
	defer span.End()

	h.mu.Lock()
	if h.state == StateIdle {
		h.state = StateRunning
	}
	h.startedAt = time.Now()
	h.mu.Unlock()
	h.logger.Debug("task started")

	err := h.invoke(ctx)
	if err != nil && h.StopRequested() && errors.Is(err, context.Canceled) {
		err = nil
	}
	span.SetAttributes(attribute.Bool("task.stop_requested", h.StopRequested()))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.emit(signal.Event{Type: signal.TypeError, Message: err.Error()})
		h.finish(StateFailed)
		h.logger.Warn("task failed", "error", err)
		return err
	}

	span.SetStatus(codes.Ok, "")
	h.finish(StateFinished)
	h.logger.Debug("task finished")
	return nil
}

func (h *Handle) invoke(ctx context.Context) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = &faults.DeviceOperationError{
				Op:  h.Kind().Label(),
				Err: fmt.Errorf("panic: %v", recovered),
			}
		}
	}()
	return h.op.Run(ctx, h)
}

func (h *Handle) emit(ev signal.Event) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.Terminal() {
		return false
	}
	return h.bus.Publish(ev)
}

func (h *Handle) finish(to State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !CanTransition(h.state, to) {
		h.logger.Error("unexpected lifecycle step", "error", &IllegalTransitionError{
			Kind: h.Kind(), TaskID: h.id, From: h.state, To: to,
		})
	}
	h.state = to
	h.bus.Publish(signal.Event{Type: signal.TypeFinished})
}
