package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/versal-debug/vdbg/internal/runner"
	"github.com/versal-debug/vdbg/internal/task"
)

var (
	// ErrBusy indicates an operation of the same kind is already running.
	ErrBusy = errors.New("operation already running")
	// ErrNotAcquired is returned when attaching a runner to a kind that was never acquired.
	ErrNotAcquired = errors.New("operation kind not acquired")
)

// ChangeFunc observes a kind becoming busy (true) or idle (false). It runs synchronously
// inside TryAcquire and Release, after the registry lock is released.
type ChangeFunc func(kind task.Kind, busy bool)

// Slot describes one busy kind.
type Slot struct {
	Kind       task.Kind
	AcquiredAt time.Time
	Runner     *runner.Runner
}

// Registry enforces "at most one running task per kind".
type Registry struct {
	now func() time.Time

	mu        sync.Mutex
	slots     map[task.Kind]*Slot
	listeners []ChangeFunc
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		now:   time.Now,
		slots: map[task.Kind]*Slot{},
	}
}

// OnChange registers a listener for busy/idle flips.
func (r *Registry) OnChange(listener ChangeFunc) {
	if listener == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, listener)
	r.mu.Unlock()
}

// TryAcquire marks kind busy. It reports false when kind is already busy.
func (r *Registry) TryAcquire(kind task.Kind) bool {
	r.mu.Lock()
	if _, busy := r.slots[kind]; busy {
		r.mu.Unlock()
		return false
	}
	r.slots[kind] = &Slot{Kind: kind, AcquiredAt: r.now()}
	listeners := r.snapshotListeners()
	r.mu.Unlock()

	notify(listeners, kind, true)
	return true
}

// Acquire is TryAcquire returning ErrBusy on conflict.
func (r *Registry) Acquire(kind task.Kind) error {
	if !r.TryAcquire(kind) {
		return fmt.Errorf("%w: %s", ErrBusy, kind.Label())
	}
	return nil
}

// Attach records the runner executing the acquired kind.
func (r *Registry) Attach(kind task.Kind, run *runner.Runner) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, ok := r.slots[kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotAcquired, kind)
	}
	slot.Runner = run
	return nil
}

// Release marks kind idle. Releasing an idle kind is a no-op.
func (r *Registry) Release(kind task.Kind) {
	r.mu.Lock()
	if _, busy := r.slots[kind]; !busy {
		r.mu.Unlock()
		return
	}
	delete(r.slots, kind)
	listeners := r.snapshotListeners()
	r.mu.Unlock()

	notify(listeners, kind, false)
}

// Busy reports whether kind is running.
func (r *Registry) Busy(kind task.Kind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, busy := r.slots[kind]
	return busy
}

// Runner returns the runner attached to kind, or nil.
func (r *Registry) Runner(kind task.Kind) *runner.Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slot, ok := r.slots[kind]; ok {
		return slot.Runner
	}
	return nil
}

// Active lists busy slots ordered by acquisition time.
func (r *Registry) Active() []Slot {
	r.mu.Lock()
	active := make([]Slot, 0, len(r.slots))
	for _, slot := range r.slots {
		active = append(active, *slot)
	}
	r.mu.Unlock()

	sort.Slice(active, func(i, j int) bool {
		if active[i].AcquiredAt.Equal(active[j].AcquiredAt) {
			return active[i].Kind < active[j].Kind
		}
		return active[i].AcquiredAt.Before(active[j].AcquiredAt)
	})
	return active
}

// TeardownAll tears down every attached runner and releases its kind. Kinds whose
// worker is stuck stay busy and their errors are joined into the result.
func (r *Registry) TeardownAll(ctx context.Context) error {
	var errs []error
	for _, slot := range r.Active() {
		if slot.Runner != nil {
			if err := slot.Runner.Teardown(ctx); err != nil {
				errs = append(errs, err)
				continue
			}
		}
		r.Release(slot.Kind)
	}
	return errors.Join(errs...)
}

func (r *Registry) snapshotListeners() []ChangeFunc {
	listeners := make([]ChangeFunc, len(r.listeners))
	copy(listeners, r.listeners)
	return listeners
}

func notify(listeners []ChangeFunc, kind task.Kind, busy bool) {
	for _, listener := range listeners {
		listener(kind, busy)
	}
}
