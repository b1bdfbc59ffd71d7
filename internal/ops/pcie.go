package ops

import (
	"context"
	"time"

	"github.com/versal-debug/vdbg/internal/session"
	"github.com/versal-debug/vdbg/internal/task"
)

// LtssmSource refreshes the PCIe core's LTSSM trace.
type LtssmSource interface {
	HasPcie() bool
	RefreshLtssm(ctx context.Context) ([]byte, error)
}

// PcieResetter resets the PCIe core.
type PcieResetter interface {
	ResetPcie(ctx context.Context) error
}

// LtssmScan refreshes and plots the LTSSM trace until stopped.
type LtssmScan struct {
	Facade     LtssmSource
	Interval   time.Duration
	SingleShot bool
}

func (l *LtssmScan) Kind() task.Kind { return task.KindLtssmScan }

func (l *LtssmScan) Run(_ context.Context, h *task.Handle) error {
	if !l.Facade.HasPcie() {
		return session.ErrNoPcieCore
	}
	return h.Poll(l.Interval, l.SingleShot, func(ctx context.Context) ([]any, error) {
		png, err := l.Facade.RefreshLtssm(ctx)
		if err != nil {
			return nil, err
		}
		return []any{LtssmFrame{PNG: png}}, nil
	})
}

// PcieReset resets the PCIe core once.
func PcieReset(f PcieResetter) task.Operation {
	return task.Func(task.KindPcieReset, func(ctx context.Context, h *task.Handle) error {
		if err := f.ResetPcie(ctx); err != nil {
			return err
		}
		h.Partial(PcieResetDone{})
		return nil
	})
}
