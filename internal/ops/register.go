package ops

import (
	"context"
	"time"

	"github.com/versal-debug/vdbg/internal/records"
	"github.com/versal-debug/vdbg/internal/sdk"
	"github.com/versal-debug/vdbg/internal/task"
)

// RegisterReader reads memory words.
type RegisterReader interface {
	ReadRegister(ctx context.Context, address uint64, size sdk.Size, target string) (uint64, error)
}

// RegisterWriter writes memory words.
type RegisterWriter interface {
	WriteRegister(ctx context.Context, address uint64, values []uint64, size sdk.Size, target string) error
}

// RegisterRead polls every address until stopped. New values go to History; when
// RecordsFile is set and no read failed, the history is exported once polling ends.
type RegisterRead struct {
	Facade      RegisterReader
	Addresses   []uint64
	Size        sdk.Size
	Target      string
	Interval    time.Duration
	SingleShot  bool
	RecordsFile string
	History     *records.History
	Now         func() time.Time
}

func (r *RegisterRead) Kind() task.Kind { return task.KindRegisterRead }

func (r *RegisterRead) Run(ctx context.Context, h *task.Handle) error {
	history := r.History
	if history == nil {
		history = records.NewHistory()
	}
	now := r.Now
	if now == nil {
		now = time.Now
	}

	err := h.Poll(r.Interval, r.SingleShot, func(ctx context.Context) ([]any, error) {
		snapshot := RegisterSnapshot{Readings: make([]RegisterReading, 0, len(r.Addresses))}
		for _, address := range r.Addresses {
			value, err := r.Facade.ReadRegister(ctx, address, r.Size, r.Target)
			if err != nil {
				return nil, err
			}
			reading := NewRegisterReading(address, value, r.Size)
			if _, err := history.Record(address, reading.Hex, now()); err != nil {
				h.Logger().Warn("register journal write failed", "address", reading.AddressHex(), "error", err)
			}
			snapshot.Readings = append(snapshot.Readings, reading)
		}
		return []any{snapshot}, nil
	})
	if err != nil {
		return err
	}
	if r.RecordsFile == "" {
		return nil
	}

	csvPath, htmlPath, err := records.Export(r.RecordsFile, history.Entries())
	if err != nil {
		return err
	}
	h.Partial(RecordsSaved{CSV: csvPath, HTML: htmlPath})
	return nil
}

// RegisterWrite writes Values to every address in turn.
type RegisterWrite struct {
	Facade    RegisterWriter
	Addresses []uint64
	Values    []uint64
	Size      sdk.Size
	Target    string
}

func (w *RegisterWrite) Kind() task.Kind { return task.KindRegisterWrite }

func (w *RegisterWrite) Run(ctx context.Context, h *task.Handle) error {
	for i, address := range w.Addresses {
		if h.StopRequested() {
			return nil
		}
		if err := w.Facade.WriteRegister(ctx, address, w.Values, w.Size, w.Target); err != nil {
			return err
		}
		h.Partial(WriteResult{Address: address, Values: append([]uint64(nil), w.Values...)})
		h.Progress((i+1)*100/len(w.Addresses), "Writing")
	}
	return nil
}
