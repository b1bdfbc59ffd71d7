// Package controller is the controlling goroutine's side of every operation: it
// validates input, claims the kind in the registry, starts the task on a runner and,
// when the task finishes, tears the runner down and releases the kind.
package controller

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/versal-debug/vdbg/internal/config"
	"github.com/versal-debug/vdbg/internal/faults"
	"github.com/versal-debug/vdbg/internal/ops"
	"github.com/versal-debug/vdbg/internal/records"
	"github.com/versal-debug/vdbg/internal/registry"
	"github.com/versal-debug/vdbg/internal/render"
	"github.com/versal-debug/vdbg/internal/runner"
	"github.com/versal-debug/vdbg/internal/session"
	"github.com/versal-debug/vdbg/internal/signal"
	"github.com/versal-debug/vdbg/internal/task"
	"github.com/versal-debug/vdbg/internal/telemetry/invariants"
)

// TaskError is the failure reported by the last run of a kind.
type TaskError struct {
	Kind    task.Kind
	Message string
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Kind.Label(), e.Message)
}

// Option configures Controller construction.
type Option func(*Controller)

// WithLogger sets the structured logger passed to tasks and runners.
func WithLogger(logger *log.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTracer sets the tracer used for task spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Controller) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// WithRenderer replaces the default renderer.
func WithRenderer(r *render.Renderer) Option {
	return func(c *Controller) {
		if r != nil {
			c.renderer = r
		}
	}
}

// WithJournal writes register history through to j.
func WithJournal(j *records.Journal) Option {
	return func(c *Controller) {
		c.journal = j
	}
}

// Controller must only be used from the goroutine that drains its loop.
type Controller struct {
	facade   *session.Facade
	loop     *signal.Loop
	cfg      *config.Config
	registry *registry.Registry
	renderer *render.Renderer
	journal  *records.Journal
	logger   *log.Logger
	tracer   trace.Tracer

	lastErr map[task.Kind]string
	taskIDs map[task.Kind]string
}

// New creates a controller for facade whose events are delivered through loop.
func New(facade *session.Facade, loop *signal.Loop, cfg *config.Config, options ...Option) *Controller {
	if cfg == nil {
		defaults := config.Defaults()
		cfg = &defaults
	}
	c := &Controller{
		facade:   facade,
		loop:     loop,
		cfg:      cfg,
		registry: registry.New(),
		renderer: render.New(nil),
		logger:   log.New(io.Discard),
		tracer:   otel.Tracer("vdbg/task"),
		lastErr:  map[task.Kind]string{},
		taskIDs:  map[task.Kind]string{},
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Facade returns the session facade for state that needs no device I/O, such as ILA
// probe selection.
func (c *Controller) Facade() *session.Facade { return c.facade }

// Loop returns the mailbox the controller's events arrive on.
func (c *Controller) Loop() *signal.Loop { return c.loop }

// Logger returns the structured logger shared with tasks and runners.
func (c *Controller) Logger() *log.Logger { return c.logger }

// Renderer returns the view state.
func (c *Controller) Renderer() *render.Renderer { return c.renderer }

// Busy reports whether kind is running.
func (c *Controller) Busy(kind task.Kind) bool { return c.registry.Busy(kind) }

// Active lists the running kinds, oldest first.
func (c *Controller) Active() []registry.Slot { return c.registry.Active() }

// OnBusyChange registers fn for busy/idle flips, used to enable and disable controls.
func (c *Controller) OnBusyChange(fn registry.ChangeFunc) { c.registry.OnChange(fn) }

// LastError returns the error message of the last run of kind, or "".
func (c *Controller) LastError(kind task.Kind) string { return c.lastErr[kind] }

// TaskID returns the id of the last run of kind.
func (c *Controller) TaskID(kind task.Kind) string { return c.taskIDs[kind] }

// start validates through build, claims the kind and runs the operation.
func (c *Controller) start(kind task.Kind, build func() (task.Operation, error)) (string, error) {
	if c.registry.Busy(kind) {
		return "", fmt.Errorf("%w: %s", registry.ErrBusy, kind.Label())
	}
	op, err := build()
	if err != nil {
		c.rejected(kind, err)
		return "", err
	}
	if err := c.registry.Acquire(kind); err != nil {
		invariants.CheckOneTaskPerKind(context.Background(), "controller.start", string(kind), false)
		return "", err
	}

	h := task.New(c.loop, op, task.WithLogger(c.logger), task.WithTracer(c.tracer))
	run := runner.New(runner.WithLogger(c.logger), runner.WithStuckWarnInterval(c.cfg.StuckWarnInterval))
	if err := c.registry.Attach(kind, run); err != nil {
		c.registry.Release(kind)
		return "", err
	}

	delete(c.lastErr, kind)
	c.taskIDs[kind] = h.ID()
	c.renderer.Started(kind)
	if err := run.Run(h, func(ev signal.Event) { c.deliver(kind, run, ev) }); err != nil {
		c.registry.Release(kind)
		return "", err
	}
	c.logger.Info("task started", "kind", string(kind), "task_id", h.ID())
	return h.ID(), nil
}

func (c *Controller) rejected(kind task.Kind, err error) {
	c.renderer.Notify(kind, render.LevelError, err.Error())
	var invalid *faults.ValidationError
	if errors.As(err, &invalid) {
		c.logger.Debug("input rejected", "kind", string(kind), "field", invalid.Field, "error", err)
		return
	}
	c.logger.Warn("task not started", "kind", string(kind), "error", err)
}

func (c *Controller) deliver(kind task.Kind, run *runner.Runner, ev signal.Event) {
	c.renderer.Apply(ev)
	switch ev.Type {
	case signal.TypeError:
		c.lastErr[kind] = ev.Message
	case signal.TypeFinished:
		c.finish(kind, run)
	}
}

// finish runs inside the finished handler. The worker is about to exit, so teardown
// only waits for the goroutine to return.
func (c *Controller) finish(kind task.Kind, run *runner.Runner) {
	ctx, cancel := c.teardownContext()
	defer cancel()
	if err := run.Teardown(ctx); err != nil {
		c.logger.Error("runner teardown failed", "kind", string(kind), "error", err)
		invariants.CheckTeardownComplete(ctx, "controller.finish", string(kind), err)
		// The runner keeps the worker, so the kind stays claimed until it exits.
		if done := run.Done(); done != nil {
			go func() {
				<-done
				c.loop.Post(func() { c.finish(kind, run) })
			}()
		}
		return
	}
	if c.registry.Runner(kind) != run {
		return
	}
	c.registry.Release(kind)
	c.logger.Info("task finished", "kind", string(kind), "failed", c.lastErr[kind] != "")
}

func (c *Controller) teardownContext() (context.Context, context.CancelFunc) {
	if c.cfg.TeardownTimeout > 0 {
		return context.WithTimeout(context.Background(), c.cfg.TeardownTimeout)
	}
	return context.WithCancel(context.Background())
}

// Stop asks the running task of kind to end. It never blocks; the kind is released
// when the finished event is delivered.
func (c *Controller) Stop(kind task.Kind) bool {
	run := c.registry.Runner(kind)
	if run == nil {
		return false
	}
	h := run.Handle()
	if h == nil {
		return false
	}
	h.RequestStop()
	return true
}

// ResetToDefault tears down every running task and empties the facade. Links, eye
// scans and the session are then released by a session-reset task, so no device call
// runs on the controlling goroutine; Await(ctx, task.KindSessionReset) waits for it.
func (c *Controller) ResetToDefault(ctx context.Context) error {
	err := c.teardownAll(ctx)
	detached := c.facade.Detach()
	c.renderer.Reset()
	if detached.Empty() {
		return err
	}
	if _, startErr := c.start(task.KindSessionReset, func() (task.Operation, error) {
		return ops.SessionReset(c.facade, detached), nil
	}); startErr != nil {
		err = errors.Join(err, startErr)
	}
	return err
}

// Shutdown is ResetToDefault, waiting for the session release, followed by closing
// the journal.
func (c *Controller) Shutdown(ctx context.Context) error {
	err := c.ResetToDefault(ctx)
	if awaitErr := c.Await(ctx, task.KindSessionReset); awaitErr != nil {
		err = errors.Join(err, awaitErr)
	}
	if c.journal != nil {
		if closeErr := c.journal.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}
	return err
}

func (c *Controller) teardownAll(ctx context.Context) error {
	if c.cfg.TeardownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.TeardownTimeout)
		defer cancel()
	}
	err := c.registry.TeardownAll(ctx)
	if err != nil {
		c.logger.Error("tasks still running after reset", "error", err)
		invariants.CheckTeardownComplete(ctx, "controller.teardownAll", "all", err)
	}
	return err
}

// Await drains the loop on the calling goroutine until kind is idle. When ctx ends
// first the task is asked to stop and Await keeps draining until it finishes. It
// returns the task's failure, if any.
func (c *Controller) Await(ctx context.Context, kind task.Kind) error {
	done := ctx.Done()
	for {
		c.loop.Drain()
		if !c.registry.Busy(kind) {
			break
		}
		select {
		case <-c.loop.Ready():
		case <-done:
			c.Stop(kind)
			done = nil
		}
	}
	if msg := c.lastErr[kind]; msg != "" {
		return &TaskError{Kind: kind, Message: msg}
	}
	return nil
}
