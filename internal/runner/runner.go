package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/versal-debug/vdbg/internal/signal"
	"github.com/versal-debug/vdbg/internal/task"
)

const defaultStuckWarnInterval = 5 * time.Second

var (
	// ErrRunnerBusy is returned by Run while a previous handle still owns the runner.
	ErrRunnerBusy = errors.New("runner already owns a task")
	// ErrWorkerStuck is returned by Teardown when its context ends before the worker exits.
	ErrWorkerStuck = errors.New("worker did not exit")
)

// Option configures Runner construction.
type Option func(*Runner)

// WithLogger sets the logger for teardown warnings.
func WithLogger(logger *log.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithStuckWarnInterval sets how often Teardown logs while a worker refuses to exit.
func WithStuckWarnInterval(interval time.Duration) Option {
	return func(r *Runner) {
		if interval > 0 {
			r.stuckWarn = interval
		}
	}
}

// Runner owns one worker goroutine and the handle running on it.
type Runner struct {
	logger    *log.Logger
	stuckWarn time.Duration

	mu        sync.Mutex
	handle    *task.Handle
	exited    chan struct{}
	startedAt time.Time
}

// New creates an empty runner.
func New(options ...Option) *Runner {
	r := &Runner{
		logger:    log.New(io.Discard),
		stuckWarn: defaultStuckWarnInterval,
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// Run subscribes the given handlers to the handle's bus and starts it on a new worker
// pinned to its own OS thread. Handlers run on the controlling goroutine.
func (r *Runner) Run(h *task.Handle, subscribers ...signal.Handler) error {
	if h == nil {
		return errors.New("handle is required")
	}

	r.mu.Lock()
	if r.handle != nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRunnerBusy, r.handle.Kind())
	}
	for _, subscriber := range subscribers {
		h.Bus().Subscribe(subscriber)
	}
	exited := make(chan struct{})
	r.handle = h
	r.exited = exited
	r.startedAt = time.Now()
	r.mu.Unlock()

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(exited)
		_ = h.Start()
	}()
	return nil
}

// Handle returns the owned handle, or nil.
func (r *Runner) Handle() *task.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handle
}

// Alive reports whether a worker is still executing.
func (r *Runner) Alive() bool {
	r.mu.Lock()
	exited := r.exited
	r.mu.Unlock()
	if exited == nil {
		return false
	}
	select {
	case <-exited:
		return false
	default:
		return true
	}
}

// Done is closed when the current worker exits. It is nil when the runner is empty.
func (r *Runner) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exited
}

// Teardown requests a stop, waits for the worker to exit, delivers every event still
// queued, closes the bus and empties the runner. It must be called on the controlling
// goroutine, including from inside a finished handler, and is a no-op on an empty
// runner. When ctx ends first it returns ErrWorkerStuck and keeps ownership.
func (r *Runner) Teardown(ctx context.Context) error {
	r.mu.Lock()
	h, exited, startedAt := r.handle, r.exited, r.startedAt
	r.mu.Unlock()
	if h == nil {
		return nil
	}

	h.RequestStop()
	if err := r.await(ctx, h, exited, startedAt); err != nil {
		return err
	}

	h.Bus().Flush()
	h.Bus().Close()

	r.mu.Lock()
	if r.handle == h {
		r.handle = nil
		r.exited = nil
	}
	r.mu.Unlock()
	return nil
}

func (r *Runner) await(ctx context.Context, h *task.Handle, exited <-chan struct{}, startedAt time.Time) error {
	select {
	case <-exited:
		return nil
	default:
	}

	ticker := time.NewTicker(r.stuckWarn)
	defer ticker.Stop()
	for {
		select {
		case <-exited:
			return nil
		case <-ticker.C:
			r.logger.Warn(
				"worker still running after stop request",
				"kind", string(h.Kind()),
				"task_id", h.ID(),
				"running_for", time.Since(startedAt).Round(time.Millisecond).String(),
			)
		case <-ctx.Done():
			return fmt.Errorf("%w: %s task %s: %v", ErrWorkerStuck, h.Kind(), h.ID(), ctx.Err())
		}
	}
}
