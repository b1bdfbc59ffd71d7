package ops

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/versal-debug/vdbg/internal/faults"
	"github.com/versal-debug/vdbg/internal/sdk"
	"github.com/versal-debug/vdbg/internal/task"
)

// EyeScanSource lists the eye scans created by link setup.
type EyeScanSource interface {
	EyeScans() []sdk.EyeScan
}

// EyeScan starts every scan at once and finishes when all of them reported done,
// whatever the completion order. Each scan's status and plot follow as results. With
// no scans it finishes without starting anything.
type EyeScan struct {
	Facade EyeScanSource
	Params sdk.EyeScanParams
}

func (e *EyeScan) Kind() task.Kind { return task.KindEyeScan }

func (e *EyeScan) Run(ctx context.Context, h *task.Handle) error {
	scans := e.Facade.EyeScans()
	if len(scans) == 0 {
		return nil
	}

	// Callbacks from earlier runs stay attached to the scans, and a restarted scan may
	// report the previous sweep until its Start returns. Progress counts only once the
	// scan is armed, and a done callback only prompts a status check made after every
	// Start returned, so each index counts down once for this run's sweep.
	latch := task.NewLatch(len(scans))
	armed := make([]atomic.Bool, len(scans))
	counted := make([]sync.Once, len(scans))
	wake := make(chan struct{}, 1)
	for i, scan := range scans {
		if err := scan.SetParams(e.Params); err != nil {
			return faults.Device(fmt.Sprintf("configure %s", scan.Name()), err)
		}
		index, scan := i, scan
		scan.OnProgress(func(percent float64) {
			if !armed[index].Load() {
				return
			}
			h.Partial(EyeScanProgress{
				Index:   index,
				Name:    scan.Name(),
				Percent: int(math.Round(percent)),
				Status:  scan.Status(),
			})
		})
		scan.OnDone(func() {
			select {
			case wake <- struct{}{}:
			default:
			}
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, scan := range scans {
		index, scan := i, scan
		g.Go(func() error {
			if err := scan.Start(gctx); err != nil {
				return faults.Device(fmt.Sprintf("start %s", scan.Name()), err)
			}
			armed[index].Store(true)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	settle := func() {
		for i, scan := range scans {
			if sdk.EyeScanSettled(scan.Status()) {
				counted[i].Do(func() { latch.CountDown() })
			}
		}
	}
	settle()
	for {
		select {
		case <-latch.Fired():
			return e.report(ctx, h, scans)
		case <-wake:
			settle()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (e *EyeScan) report(ctx context.Context, h *task.Handle, scans []sdk.EyeScan) error {
	for i, scan := range scans {
		result := EyeScanResult{Index: i, Name: scan.Name(), Status: scan.Status()}
		png, err := scan.Plot(ctx)
		if err != nil {
			h.Logger().Warn("eye scan plot failed", "scan", scan.Name(), "error", err)
		} else {
			result.PNG = png
		}
		h.Partial(result)
	}
	return nil
}
