package ops

import (
	"context"

	"github.com/versal-debug/vdbg/internal/session"
	"github.com/versal-debug/vdbg/internal/task"
)

// Connector opens sessions.
type Connector interface {
	Connect(ctx context.Context, hwURL, csURL string) (session.Info, error)
}

// Programmer loads designs and rediscovers cores.
type Programmer interface {
	ProgramDevice(ctx context.Context, pdi, ltx string, progress func(fraction float64)) (session.Discovery, error)
}

// LinkBuilder creates IBERT links and eye scans.
type LinkBuilder interface {
	SetupLinks(ctx context.Context) (session.LinkSetup, error)
}

// DeviceResetter resets the chip.
type DeviceResetter interface {
	ResetDevice(ctx context.Context) error
}

// SessionReleaser releases resources detached from the facade.
type SessionReleaser interface {
	Release(ctx context.Context, d session.Detached)
}

// Connect opens a session and reports the device as a partial result.
func Connect(f Connector, hwURL, csURL string) task.Operation {
	return task.Func(task.KindConnect, func(ctx context.Context, h *task.Handle) error {
		h.Progress(0, "Connecting")
		info, err := f.Connect(ctx, hwURL, csURL)
		if err != nil {
			return err
		}
		h.Partial(info)
		h.Progress(100, "Connected")
		return nil
	})
}

// Program loads a PDI (and remembers the LTX), then reports the cores discovered
// afterwards. Programming is finished only once discovery is.
type Program struct {
	Facade Programmer
	PDI    string
	LTX    string
}

func (p *Program) Kind() task.Kind { return task.KindProgram }

func (p *Program) Run(ctx context.Context, h *task.Handle) error {
	h.Progress(0, "Programming")
	report, err := p.Facade.ProgramDevice(ctx, p.PDI, p.LTX, func(fraction float64) {
		h.Progress(int(fraction*100), "Programming")
	})
	if err != nil {
		return err
	}
	h.Partial(report)
	h.Progress(100, "Programmed")
	return nil
}

// LinkSetup creates one link and eye scan per transceiver.
func LinkSetup(f LinkBuilder) task.Operation {
	return task.Func(task.KindLinkSetup, func(ctx context.Context, h *task.Handle) error {
		setup, err := f.SetupLinks(ctx)
		if err != nil {
			return err
		}
		h.Partial(setup)
		return nil
	})
}

// DeviceReset resets the chip. The session is dropped afterwards.
func DeviceReset(f DeviceResetter) task.Operation {
	return task.Func(task.KindDeviceReset, func(ctx context.Context, h *task.Handle) error {
		if err := f.ResetDevice(ctx); err != nil {
			return err
		}
		h.Partial(DeviceResetDone{})
		return nil
	})
}

// SessionReset releases resources already detached from the facade. A stop request
// does not abort the release: the resources are no longer reachable from anywhere
// else, so abandoning them would leak them on the server.
func SessionReset(f SessionReleaser, d session.Detached) task.Operation {
	return task.Func(task.KindSessionReset, func(ctx context.Context, h *task.Handle) error {
		h.Progress(0, "Releasing session")
		f.Release(context.WithoutCancel(ctx), d)
		h.Partial(SessionResetDone{})
		h.Progress(100, "Session released")
		return nil
	})
}
