package ops

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versal-debug/vdbg/internal/config"
	"github.com/versal-debug/vdbg/internal/records"
	"github.com/versal-debug/vdbg/internal/sdk"
	"github.com/versal-debug/vdbg/internal/sdk/sim"
	"github.com/versal-debug/vdbg/internal/session"
	"github.com/versal-debug/vdbg/internal/signal"
	"github.com/versal-debug/vdbg/internal/task"
)

type recorder struct {
	events []signal.Event
}

func (r *recorder) handle(ev signal.Event) { r.events = append(r.events, ev) }

func (r *recorder) types() []signal.Type {
	types := make([]signal.Type, 0, len(r.events))
	for _, ev := range r.events {
		types = append(types, ev.Type)
	}
	return types
}

func (r *recorder) partials() []any {
	var payloads []any
	for _, ev := range r.events {
		if ev.Type == signal.TypePartial {
			payloads = append(payloads, ev.Payload)
		}
	}
	return payloads
}

func (r *recorder) last() signal.Event { return r.events[len(r.events)-1] }

// runSync starts op on the test goroutine and delivers its events afterwards.
func runSync(t *testing.T, op task.Operation) (*recorder, error) {
	t.Helper()
	loop := signal.NewLoop()
	h := task.New(loop, op)
	rec := &recorder{}
	h.Bus().Subscribe(rec.handle)
	err := h.Start()
	loop.Drain()
	return rec, err
}

// runAsync starts op on a worker and drains events on the test goroutine until the
// worker exits. onEvent may stop the handle.
func runAsync(t *testing.T, op task.Operation, onEvent func(*task.Handle, signal.Event)) *recorder {
	t.Helper()
	loop := signal.NewLoop()
	h := task.New(loop, op)
	rec := &recorder{}
	h.Bus().Subscribe(func(ev signal.Event) {
		rec.handle(ev)
		if onEvent != nil {
			onEvent(h, ev)
		}
	})
	go func() { _ = h.Start() }()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-h.Done():
			loop.Drain()
			return rec
		case <-loop.Ready():
			loop.Drain()
		case <-deadline:
			t.Fatal("operation did not finish")
		}
	}
}

func programmedFacade(t *testing.T, opts sim.Options) (*session.Facade, *sim.Simulator) {
	t.Helper()
	t.Setenv(config.EnvHWServerURL, "")
	t.Setenv(config.EnvCSServerURL, "")
	board := sim.New(opts)
	f := session.New(board)
	ctx := context.Background()
	_, err := f.Connect(ctx, "TCP:localhost:3121", "TCP:localhost:3042")
	require.NoError(t, err)
	_, err = f.ProgramDevice(ctx, "design.pdi", "design.ltx", nil)
	require.NoError(t, err)
	return f, board
}

func TestRegisterReadingWidths(t *testing.T) {
	word := NewRegisterReading(0xF7212C0C, 0x11, sdk.SizeWord)
	assert.Equal(t, "0x00000011", word.Hex)
	assert.Len(t, word.Hex, 10)
	assert.Len(t, word.Bin, 32)

	b := NewRegisterReading(0xF7212C0C, 0x3, sdk.SizeByte)
	assert.Equal(t, "0x03", b.Hex)
	assert.Equal(t, "00000011", b.Bin)
	assert.Equal(t, "0xf7212c0c", b.AddressHex())
}

func TestRegisterReadSingleShotExportsHistory(t *testing.T) {
	f, board := programmedFacade(t, sim.Options{})
	board.Poke("DPC", 0xFCA50E90, 0x1)
	name := filepath.Join(t.TempDir(), "phy")

	rec, err := runSync(t, &RegisterRead{
		Facade:      f,
		Addresses:   []uint64{0xFCA50E90},
		Size:        sdk.SizeWord,
		Target:      "DPC",
		SingleShot:  true,
		RecordsFile: name,
	})
	require.NoError(t, err)

	partials := rec.partials()
	require.Len(t, partials, 2)
	snapshot := partials[0].(RegisterSnapshot)
	assert.Equal(t, "0x00000001", snapshot.Readings[0].Hex)
	saved := partials[1].(RecordsSaved)
	assert.Equal(t, name+".csv", saved.CSV)
	assert.Equal(t, name+".html", saved.HTML)
	assert.FileExists(t, saved.HTML)
	assert.Equal(t, signal.TypeFinished, rec.last().Type)
}

type failingReader struct{}

func (failingReader) ReadRegister(context.Context, uint64, sdk.Size, string) (uint64, error) {
	return 0, errors.New("memory read: target not accessible")
}

func TestRegisterReadErrorSkipsExport(t *testing.T) {
	name := filepath.Join(t.TempDir(), "phy")
	rec, err := runSync(t, &RegisterRead{
		Facade:      failingReader{},
		Addresses:   []uint64{0xFCA50E90},
		Size:        sdk.SizeWord,
		RecordsFile: name,
	})
	require.Error(t, err)
	assert.Equal(t, []signal.Type{signal.TypeError, signal.TypeFinished}, rec.types())
	assert.NoFileExists(t, name+".csv")
}

func TestRegisterReadRecordsOnlyChanges(t *testing.T) {
	f, board := programmedFacade(t, sim.Options{})
	board.Poke("DPC", 0xFCA50E90, 0x1)
	history := records.NewHistory()

	reads := 0
	runAsync(t, &RegisterRead{
		Facade:    f,
		Addresses: []uint64{0xFCA50E90},
		Size:      sdk.SizeWord,
		Target:    "DPC",
		Interval:  time.Millisecond,
		History:   history,
	}, func(h *task.Handle, ev signal.Event) {
		if ev.Type != signal.TypePartial {
			return
		}
		reads++
		switch reads {
		case 2:
			board.Poke("DPC", 0xFCA50E90, 0x2)
		case 5:
			h.RequestStop()
		}
	})

	entries := history.Entries()
	require.Len(t, entries, 1)
	var values []string
	for _, v := range entries[0].Values {
		values = append(values, v.Hex)
	}
	assert.Equal(t, []string{"0x00000001", "0x00000002"}, values)
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	f, _ := programmedFacade(t, sim.Options{})
	addresses := []uint64{0xF72121D8, 0xF72125D8}

	rec, err := runSync(t, &RegisterWrite{Facade: f, Addresses: addresses, Values: []uint64{0xA5}, Size: sdk.SizeHalf, Target: "DPC"})
	require.NoError(t, err)
	assert.Len(t, rec.partials(), 2)

	rec, err = runSync(t, &RegisterRead{Facade: f, Addresses: addresses, Size: sdk.SizeHalf, Target: "DPC", SingleShot: true})
	require.NoError(t, err)
	snapshot := rec.partials()[0].(RegisterSnapshot)
	for _, reading := range snapshot.Readings {
		assert.Equal(t, uint64(0xA5), reading.Value)
		assert.Equal(t, "0x00a5", reading.Hex)
	}
}

func TestLtssmScanWithoutPcieCore(t *testing.T) {
	f, _ := programmedFacade(t, sim.Options{})
	f.ResetToDefault(context.Background())

	rec, err := runSync(t, &LtssmScan{Facade: f})
	require.ErrorIs(t, err, session.ErrNoPcieCore)
	require.Equal(t, []signal.Type{signal.TypeError, signal.TypeFinished}, rec.types())
	assert.Equal(t, "No PCIe Core found in this design!", rec.events[0].Message)
}

func TestLtssmScanEmitsPlots(t *testing.T) {
	f, _ := programmedFacade(t, sim.Options{})
	frames := 0
	rec := runAsync(t, &LtssmScan{Facade: f, Interval: time.Millisecond}, func(h *task.Handle, ev signal.Event) {
		if ev.Type == signal.TypePartial {
			frames++
			if frames == 3 {
				h.RequestStop()
			}
		}
	})
	require.GreaterOrEqual(t, len(rec.partials()), 3)
	png := rec.partials()[0].(LtssmFrame).PNG
	assert.Equal(t, []byte("\x89PNG"), png[:4])
	assert.Equal(t, signal.TypeFinished, rec.last().Type)
}

func TestProgramReportsPercentThenDiscovery(t *testing.T) {
	t.Setenv(config.EnvHWServerURL, "")
	t.Setenv(config.EnvCSServerURL, "")
	f := session.New(sim.New(sim.Options{ProgramSteps: 4}))
	_, err := f.Connect(context.Background(), "TCP:localhost:3121", "TCP:localhost:3042")
	require.NoError(t, err)

	rec, err := runSync(t, &Program{Facade: f, PDI: "design.pdi", LTX: "design.ltx"})
	require.NoError(t, err)

	var percents []int
	for _, ev := range rec.events {
		if ev.Type == signal.TypeProgress {
			percents = append(percents, ev.Progress.Percent)
		}
	}
	assert.Equal(t, []int{0, 25, 50, 75, 100, 100}, percents)
	report := rec.partials()[0].(session.Discovery)
	assert.True(t, report.Pcie)
	assert.Equal(t, signal.TypeFinished, rec.last().Type)
}

func TestIlaSingleShotEmitsOneFrame(t *testing.T) {
	f, _ := programmedFacade(t, sim.Options{})
	csvPath := filepath.Join(t.TempDir(), "capture.csv")

	rec := runAsync(t, &IlaCapture{
		Facade:     f,
		Mode:       session.TriggerBasic,
		Settings:   sdk.TriggerSettings{Position: 0, WindowCount: 1, WindowSize: 64},
		SingleShot: true,
		CSV:        csvPath,
		MaxWait:    10 * time.Millisecond,
	}, nil)

	partials := rec.partials()
	require.Len(t, partials, 1)
	frame := partials[0].(IlaFrame)
	assert.Equal(t, 64, frame.Waveform.Rows())
	assert.Contains(t, frame.FileSize, "MegaBytes")
	assert.FileExists(t, csvPath)
	assert.Equal(t, signal.TypeFinished, rec.last().Type)
	assert.NotContains(t, rec.types(), signal.TypeError)
}

func TestIlaContinuousStopAfterSecondResult(t *testing.T) {
	f, _ := programmedFacade(t, sim.Options{Hook: func(ctx context.Context, call sim.Call) error {
		if call.Op == sim.OpIlaUpload && call.N >= 3 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}})

	frames := 0
	rec := runAsync(t, &IlaCapture{
		Facade:   f,
		Mode:     session.TriggerImmediate,
		Settings: sdk.TriggerSettings{WindowCount: 1, WindowSize: 32},
		Interval: time.Millisecond,
	}, func(h *task.Handle, ev signal.Event) {
		if ev.Type == signal.TypePartial {
			frames++
			if frames == 2 {
				h.RequestStop()
			}
		}
	})

	assert.Len(t, rec.partials(), 2)
	assert.NotContains(t, rec.types(), signal.TypeError)
	assert.Equal(t, signal.TypeFinished, rec.last().Type)
}

func TestIlaUploadFailureIsTerminal(t *testing.T) {
	f, _ := programmedFacade(t, sim.Options{Hook: func(_ context.Context, call sim.Call) error {
		if call.Op == sim.OpIlaUpload {
			return errors.New("JTAG chain broken")
		}
		return nil
	}})
	rec := runAsync(t, &IlaCapture{Facade: f, Mode: session.TriggerImmediate}, nil)
	assert.Equal(t, []signal.Type{signal.TypeProgress, signal.TypeError, signal.TypeFinished}, rec.types())
	assert.Contains(t, rec.events[1].Message, "JTAG chain broken")
}

func TestBufferFill(t *testing.T) {
	assert.Equal(t, 50, BufferFill(sdk.IlaStatus{SamplesRequested: 1024, SamplesCaptured: 512}))
	assert.Equal(t, 100, BufferFill(sdk.IlaStatus{SamplesRequested: 1024, SamplesCaptured: 1024}))
	assert.Equal(t, 1024, BufferFill(sdk.IlaStatus{SamplesRequested: 1024}))
}

type fakeScan struct {
	name    string
	started chan struct{}
	once    sync.Once

	mu     sync.Mutex
	status string
	done   []func()
}

func newFakeScan(name string) *fakeScan {
	return &fakeScan{name: name, started: make(chan struct{}), status: "Not Started"}
}

func (s *fakeScan) Name() string                      { return s.name }
func (s *fakeScan) SetParams(sdk.EyeScanParams) error { return nil }
func (s *fakeScan) OnProgress(func(float64))          {}

func (s *fakeScan) OnDone(fn func()) {
	s.mu.Lock()
	s.done = append(s.done, fn)
	s.mu.Unlock()
}

func (s *fakeScan) Start(context.Context) error {
	s.mu.Lock()
	s.status = sdk.EyeScanInProgress
	s.mu.Unlock()
	s.once.Do(func() { close(s.started) })
	return nil
}

func (s *fakeScan) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *fakeScan) Plot(context.Context) ([]byte, error) { return []byte("png:" + s.name), nil }

func (s *fakeScan) finish() {
	s.mu.Lock()
	s.status = sdk.EyeScanDone
	callbacks := append([]func(){}, s.done...)
	s.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}

type scanList []sdk.EyeScan

func (l scanList) EyeScans() []sdk.EyeScan { return l }

func TestEyeScanFinishesAfterEveryScanInAnyOrder(t *testing.T) {
	for _, order := range [][]int{{0, 1, 2}, {2, 0, 1}, {1, 2, 0}} {
		scans := []*fakeScan{newFakeScan("EyeScan_Link_0"), newFakeScan("EyeScan_Link_1"), newFakeScan("EyeScan_Link_2")}
		source := scanList{scans[0], scans[1], scans[2]}

		loop := signal.NewLoop()
		h := task.New(loop, &EyeScan{Facade: source})
		rec := &recorder{}
		h.Bus().Subscribe(rec.handle)
		go func() { _ = h.Start() }()

		for _, scan := range scans {
			<-scan.started
		}
		for _, i := range order[:2] {
			scans[i].finish()
		}
		select {
		case <-h.Done():
			t.Fatalf("order %v: finished before the last scan completed", order)
		case <-time.After(20 * time.Millisecond):
		}

		scans[order[2]].finish()
		select {
		case <-h.Done():
		case <-time.After(5 * time.Second):
			t.Fatalf("order %v: did not finish", order)
		}
		loop.Drain()

		require.Len(t, rec.partials(), 3, "order %v", order)
		for i, payload := range rec.partials() {
			result := payload.(EyeScanResult)
			assert.Equal(t, i, result.Index)
			assert.Equal(t, "Done", result.Status)
		}
		assert.Equal(t, signal.TypeFinished, rec.last().Type)
		assert.Equal(t, 1, countType(rec, signal.TypeFinished))
	}
}

func TestEyeScanWithoutScansFinishesImmediately(t *testing.T) {
	rec, err := runSync(t, &EyeScan{Facade: scanList{}})
	require.NoError(t, err)
	assert.Equal(t, []signal.Type{signal.TypeFinished}, rec.types())
}

func TestEyeScanOnSimulatedLinks(t *testing.T) {
	f, _ := programmedFacade(t, sim.Options{GTGroups: 1, GTsPerGroup: 2})
	_, err := f.SetupLinks(context.Background())
	require.NoError(t, err)

	rec := runAsync(t, &EyeScan{Facade: f, Params: sdk.EyeScanParams{HorizontalStep: 2, VerticalStep: 2}}, nil)

	var results []EyeScanResult
	progress := 0
	for _, payload := range rec.partials() {
		switch p := payload.(type) {
		case EyeScanResult:
			results = append(results, p)
		case EyeScanProgress:
			progress++
		}
	}
	require.Len(t, results, 2)
	assert.NotEmpty(t, results[0].PNG)
	assert.Positive(t, progress)
}

func TestEyeScanRestartIgnoresPreviousSweep(t *testing.T) {
	const steps, delay = 40, 3 * time.Millisecond
	f, _ := programmedFacade(t, sim.Options{GTGroups: 1, GTsPerGroup: 2, EyeScanSteps: steps, EyeScanStepDelay: delay})
	_, err := f.SetupLinks(context.Background())
	require.NoError(t, err)
	params := sdk.EyeScanParams{HorizontalStep: 2, VerticalStep: 2}

	first := runAsync(t, &EyeScan{Facade: f, Params: params}, func(h *task.Handle, ev signal.Event) {
		if p, ok := ev.Payload.(EyeScanProgress); ok && p.Percent >= 50 {
			h.RequestStop()
		}
	})
	assert.Equal(t, signal.TypeFinished, first.last().Type)
	for _, payload := range first.partials() {
		_, isResult := payload.(EyeScanResult)
		assert.False(t, isResult, "stopped run must not report results")
	}

	started := time.Now()
	second := runAsync(t, &EyeScan{Facade: f, Params: params}, nil)
	elapsed := time.Since(started)

	assert.GreaterOrEqual(t, elapsed, steps*delay, "finished before a full sweep could complete")
	var results []EyeScanResult
	for _, payload := range second.partials() {
		if result, ok := payload.(EyeScanResult); ok {
			results = append(results, result)
		}
	}
	require.Len(t, results, 2)
	for _, result := range results {
		assert.Equal(t, sdk.EyeScanDone, result.Status)
		assert.NotEmpty(t, result.PNG)
	}
	assert.Equal(t, 1, countType(second, signal.TypeFinished))
}

func TestEyeScanCountsEachScanOnce(t *testing.T) {
	scans := []*fakeScan{newFakeScan("EyeScan_Link_0"), newFakeScan("EyeScan_Link_1")}
	loop := signal.NewLoop()
	h := task.New(loop, &EyeScan{Facade: scanList{scans[0], scans[1]}})
	go func() { _ = h.Start() }()
	for _, scan := range scans {
		<-scan.started
	}

	scans[0].finish()
	scans[0].finish()
	select {
	case <-h.Done():
		t.Fatalf("repeated done from one scan must not complete the run")
	case <-time.After(20 * time.Millisecond):
	}

	scans[1].finish()
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("did not finish")
	}
	loop.Drain()
}

func TestConnectOperationReportsInfo(t *testing.T) {
	t.Setenv(config.EnvHWServerURL, "")
	t.Setenv(config.EnvCSServerURL, "")
	f := session.New(sim.New(sim.Options{}))

	rec, err := runSync(t, Connect(f, "TCP:localhost:3121", "TCP:localhost:3042"))
	require.NoError(t, err)
	info := rec.partials()[0].(session.Info)
	assert.Equal(t, "xcvc1902", info.Device)

	rec, err = runSync(t, Connect(f, "", ""))
	require.Error(t, err)
	assert.Equal(t, signal.TypeFinished, rec.last().Type)
}

func TestDeviceResetOperation(t *testing.T) {
	f, board := programmedFacade(t, sim.Options{})
	_, err := runSync(t, DeviceReset(f))
	require.NoError(t, err)
	assert.Zero(t, board.OpenSessions())
}

func countType(rec *recorder, typ signal.Type) int {
	n := 0
	for _, ev := range rec.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}
