package ops

import (
	"context"
	"time"

	"github.com/versal-debug/vdbg/internal/records"
	"github.com/versal-debug/vdbg/internal/sdk"
	"github.com/versal-debug/vdbg/internal/session"
	"github.com/versal-debug/vdbg/internal/task"
)

// IlaCapturer arms, waits on and uploads the selected ILA core.
type IlaCapturer interface {
	ArmIla(ctx context.Context, mode session.TriggerMode, settings sdk.TriggerSettings) error
	MonitorIla(ctx context.Context, maxWait time.Duration, onProgress func(sdk.IlaStatus)) (sdk.IlaStatus, error)
	UploadIla(ctx context.Context) (sdk.Waveform, error)
}

// IlaCapture captures until stopped, or once with SingleShot. A basic trigger waits in
// MaxWait slices so a stop is seen between them; an immediate trigger uploads right
// after arming. Each capture is appended to CSV when set.
type IlaCapture struct {
	Facade     IlaCapturer
	Mode       session.TriggerMode
	Settings   sdk.TriggerSettings
	SingleShot bool
	CSV        string
	Interval   time.Duration
	MaxWait    time.Duration
}

func (c *IlaCapture) Kind() task.Kind { return task.KindIlaCapture }

func (c *IlaCapture) Run(_ context.Context, h *task.Handle) error {
	armed := false
	captures := 0
	h.Progress(0, "")

	return h.Poll(c.Interval, c.SingleShot, func(ctx context.Context) ([]any, error) {
		if !armed {
			if err := c.Facade.ArmIla(ctx, c.Mode, c.Settings); err != nil {
				return nil, err
			}
			armed = true
		}
		if c.Mode == session.TriggerBasic {
			status, err := c.Facade.MonitorIla(ctx, c.MaxWait, func(st sdk.IlaStatus) {
				h.Progress(BufferFill(st), st.CaptureState)
			})
			if err != nil {
				return nil, err
			}
			h.Progress(BufferFill(status), status.CaptureState)
			if !status.Captured {
				return nil, nil
			}
		}

		wf, err := c.Facade.UploadIla(ctx)
		if err != nil {
			return nil, err
		}
		armed = false
		captures++
		frame := IlaFrame{Capture: captures, Waveform: wf, CSV: c.CSV}
		if c.CSV != "" {
			size, err := records.AppendWaveform(c.CSV, wf)
			if err != nil {
				return nil, err
			}
			frame.FileSize = records.FormatSize(size)
		}
		if c.Mode == session.TriggerBasic {
			h.Progress(100, "FULL")
		}
		return []any{frame}, nil
	})
}

// BufferFill is the capture buffer fill shown while a basic trigger is armed. Nothing
// captured yet reports the requested sample count, as the hardware tools do.
func BufferFill(st sdk.IlaStatus) int {
	if st.SamplesCaptured == 0 {
		return st.SamplesRequested
	}
	return int(100 / (float64(st.SamplesRequested) / float64(st.SamplesCaptured)))
}
