package task

import (
	"sync"
	"sync/atomic"
)

// Latch fires once after a fixed number of CountDown calls. Completion callbacks from
// any goroutine may count down.
type Latch struct {
	remaining atomic.Int64
	fired     chan struct{}
	once      sync.Once
}

// NewLatch creates a latch for n participants. A latch for zero participants is
// already fired.
func NewLatch(n int) *Latch {
	l := &Latch{fired: make(chan struct{})}
	l.remaining.Store(int64(n))
	if n <= 0 {
		l.fire()
	}
	return l
}

// CountDown records one completion and reports whether it was the last one.
func (l *Latch) CountDown() bool {
	if l.remaining.Add(-1) == 0 {
		l.fire()
		return true
	}
	return false
}

// Remaining returns the number of outstanding participants.
func (l *Latch) Remaining() int {
	if left := l.remaining.Load(); left > 0 {
		return int(left)
	}
	return 0
}

// Fired is closed when every participant has counted down.
func (l *Latch) Fired() <-chan struct{} {
	return l.fired
}

func (l *Latch) fire() {
	l.once.Do(func() { close(l.fired) })
}
