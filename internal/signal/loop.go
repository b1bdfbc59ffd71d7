package signal

import (
	"context"
	"sync"
)

// Loop is the controlling goroutine's mailbox. Workers Post closures; the owner of the
// loop runs them one at a time with Drain or Run. Posting never blocks and never drops.
type Loop struct {
	mu    sync.Mutex
	queue []func()
	ready chan struct{}
}

// NewLoop creates an empty mailbox.
func NewLoop() *Loop {
	return &Loop{ready: make(chan struct{}, 1)}
}

// Post queues fn for execution on the controlling goroutine.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.ready <- struct{}{}:
	default:
	}
}

// Ready fires at least once after work has been posted. The Bubble Tea program waits on
// it from a command and calls Drain in Update.
func (l *Loop) Ready() <-chan struct{} {
	return l.ready
}

// Pending reports the number of queued closures.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Drain runs queued closures in FIFO order until the queue is empty, including
// closures posted while draining. It returns how many ran.
func (l *Loop) Drain() int {
	ran := 0
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.queue = nil
			l.mu.Unlock()
			return ran
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		fn()
		ran++
	}
}

// Run drains the mailbox whenever work arrives until ctx is done. Headless commands call
// it on the main goroutine.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.Drain()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.ready:
		}
	}
}
