package controller

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/versal-debug/vdbg/internal/config"
	"github.com/versal-debug/vdbg/internal/faults"
	"github.com/versal-debug/vdbg/internal/records"
	"github.com/versal-debug/vdbg/internal/registry"
	"github.com/versal-debug/vdbg/internal/render"
	"github.com/versal-debug/vdbg/internal/sdk/sim"
	"github.com/versal-debug/vdbg/internal/session"
	"github.com/versal-debug/vdbg/internal/signal"
	"github.com/versal-debug/vdbg/internal/task"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.RegisterPollInterval = time.Millisecond
	cfg.LtssmPollInterval = time.Millisecond
	cfg.IlaPollInterval = time.Millisecond
	cfg.IlaMonitorMaxWait = 5 * time.Millisecond
	cfg.TeardownTimeout = 5 * time.Second
	return &cfg
}

func newController(t *testing.T, opts sim.Options, options ...Option) (*Controller, *sim.Simulator) {
	t.Helper()
	t.Setenv(config.EnvHWServerURL, "")
	t.Setenv(config.EnvCSServerURL, "")
	board := sim.New(opts)
	c := New(session.New(board), signal.NewLoop(), testConfig(), options...)
	t.Cleanup(func() {
		_ = c.Shutdown(context.Background())
	})
	return c, board
}

func await(t *testing.T, c *Controller, kind task.Kind) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.Await(ctx, kind)
}

func connectAndProgram(t *testing.T, c *Controller) {
	t.Helper()
	_, err := c.Connect("TCP:localhost:3121", "TCP:localhost:3042")
	require.NoError(t, err)
	require.NoError(t, await(t, c, task.KindConnect))

	dir := t.TempDir()
	pdi := filepath.Join(dir, "design.pdi")
	ltx := filepath.Join(dir, "design.ltx")
	require.NoError(t, writeFile(pdi), "pdi")
	require.NoError(t, writeFile(ltx), "ltx")

	_, err = c.Program(pdi, ltx)
	require.NoError(t, err)
	require.NoError(t, await(t, c, task.KindProgram))
	require.True(t, c.Renderer().State().Discovery.Pcie)
}

func TestSecondStartOfSameKindIsRejected(t *testing.T) {
	c, _ := newController(t, sim.Options{})
	connectAndProgram(t, c)

	_, err := c.ScanLtssm(false)
	require.NoError(t, err)
	_, err = c.ScanLtssm(false)
	assert.ErrorIs(t, err, registry.ErrBusy)

	require.True(t, c.Stop(task.KindLtssmScan))
	require.NoError(t, await(t, c, task.KindLtssmScan))
	assert.False(t, c.Busy(task.KindLtssmScan))

	_, err = c.ScanLtssm(true)
	require.NoError(t, err, "the kind is free again after finished")
	require.NoError(t, await(t, c, task.KindLtssmScan))
}

func TestValidationFailsBeforeAnyTask(t *testing.T) {
	c, _ := newController(t, sim.Options{})
	connectAndProgram(t, c)

	_, err := c.ReadRegisters(RegisterReadRequest{Addresses: "", Size: "w", Target: "DPC"})
	assert.EqualError(t, err, "addresses: No register addresses entered!")
	assert.False(t, c.Busy(task.KindRegisterRead))
	assert.Empty(t, c.TaskID(task.KindRegisterRead))

	_, err = c.CaptureIla(IlaRequest{Mode: session.TriggerBasic, WindowCount: "", DataDepth: "1024", TriggerPosition: "0"})
	assert.ErrorIs(t, err, &faults.ValidationError{})

	notes := c.Renderer().Notifications()
	require.NotEmpty(t, notes)
	assert.Equal(t, render.LevelError, notes[len(notes)-1].Level)
}

func TestOperationsRequireConnection(t *testing.T) {
	c, _ := newController(t, sim.Options{})
	_, err := c.ReadRegisters(RegisterReadRequest{Addresses: "phy-ready", Size: "w", Target: "DPC"})
	assert.ErrorIs(t, err, faults.ErrNotConnected)
	_, err = c.Connect("", "")
	assert.ErrorIs(t, err, &faults.ValidationError{})
}

func TestTaskErrorReleasesKindAndNotifies(t *testing.T) {
	c, _ := newController(t, sim.Options{})
	_, err := c.Connect("TCP:localhost:3121", "TCP:localhost:3042")
	require.NoError(t, err)
	require.NoError(t, await(t, c, task.KindConnect))

	_, err = c.ScanLtssm(false)
	require.NoError(t, err)
	err = await(t, c, task.KindLtssmScan)

	var taskErr *TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, "No PCIe Core found in this design!", taskErr.Message)
	assert.False(t, c.Busy(task.KindLtssmScan))
	notes := c.Renderer().Notifications()
	assert.Equal(t, "The LTSSM scan failed: No PCIe Core found in this design!", notes[len(notes)-1].Message)
}

func TestAwaitStopsTaskWhenContextEnds(t *testing.T) {
	c, board := newController(t, sim.Options{})
	connectAndProgram(t, c)
	board.Poke("DPC", 0xFCA50E90, 0x1)
	name := filepath.Join(t.TempDir(), "phy")

	_, err := c.ReadRegisters(RegisterReadRequest{Addresses: "0xFCA50E90", Size: "w", Target: "DPC", RecordsFile: name})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	require.NoError(t, c.Await(ctx, task.KindRegisterRead))

	assert.False(t, c.Busy(task.KindRegisterRead))
	assert.Equal(t, name+".html", c.Renderer().State().RecordsHTML)
	assert.FileExists(t, name+".csv")
}

func TestConcurrentKindsRunIndependently(t *testing.T) {
	c, _ := newController(t, sim.Options{})
	connectAndProgram(t, c)

	_, err := c.ReadRegisters(RegisterReadRequest{Addresses: "ltssm", Size: "w", Target: "DPC"})
	require.NoError(t, err)
	_, err = c.ScanLtssm(false)
	require.NoError(t, err)
	_, err = c.CaptureIla(IlaRequest{Mode: session.TriggerImmediate, WindowCount: "1", DataDepth: "32", TriggerPosition: "0"})
	require.NoError(t, err)

	kinds := map[task.Kind]bool{}
	for _, slot := range c.Active() {
		kinds[slot.Kind] = true
	}
	assert.Equal(t, map[task.Kind]bool{task.KindRegisterRead: true, task.KindLtssmScan: true, task.KindIlaCapture: true}, kinds)

	require.Eventually(t, func() bool {
		c.Loop().Drain()
		state := c.Renderer().State()
		return len(state.Registers) == 4 && state.LtssmFrames > 0 && state.Ila.Captures > 0
	}, 5*time.Second, time.Millisecond)
}

func TestResetToDefaultTearsDownEveryTask(t *testing.T) {
	c, board := newController(t, sim.Options{})
	connectAndProgram(t, c)

	var flips []bool
	c.OnBusyChange(func(kind task.Kind, busy bool) {
		if kind == task.KindRegisterRead {
			flips = append(flips, busy)
		}
	})

	_, err := c.ReadRegisters(RegisterReadRequest{Addresses: "gt-reset-fsm", Size: "w", Target: "DPC"})
	require.NoError(t, err)
	_, err = c.ScanLtssm(false)
	require.NoError(t, err)

	require.NoError(t, c.ResetToDefault(context.Background()))
	assert.False(t, c.Facade().Connected())
	assert.Equal(t, []bool{true, false}, flips)
	require.NoError(t, await(t, c, task.KindSessionReset))
	assert.Empty(t, c.Active())
	assert.Zero(t, board.OpenSessions())

	require.NoError(t, c.ResetToDefault(context.Background()), "reset is idempotent")
	assert.False(t, c.Busy(task.KindSessionReset), "nothing left to release")
}

func TestSessionReleaseRunsOffTheControllingGoroutine(t *testing.T) {
	unblock := make(chan struct{})
	closing := make(chan struct{}, 1)
	c, board := newController(t, sim.Options{Hook: func(_ context.Context, call sim.Call) error {
		if call.Op == sim.OpSessionClose {
			closing <- struct{}{}
			<-unblock
		}
		return nil
	}})
	release := sync.OnceFunc(func() { close(unblock) })
	t.Cleanup(release)
	connectAndProgram(t, c)

	require.NoError(t, c.ResetToDefault(context.Background()))
	<-closing
	assert.False(t, c.Facade().Connected(), "facade is emptied before the release finishes")
	assert.True(t, c.Busy(task.KindSessionReset))
	assert.Equal(t, 1, board.OpenSessions())

	release()
	require.NoError(t, await(t, c, task.KindSessionReset))
	assert.Zero(t, board.OpenSessions())
}

func TestStuckTeardownKeepsKindClaimed(t *testing.T) {
	c, _ := newController(t, sim.Options{})
	c.cfg.TeardownTimeout = 10 * time.Millisecond
	unblock := make(chan struct{})
	release := sync.OnceFunc(func() { close(unblock) })
	t.Cleanup(release)

	_, err := c.start(task.KindPcieReset, func() (task.Operation, error) {
		return task.Func(task.KindPcieReset, func(context.Context, *task.Handle) error {
			<-unblock
			return nil
		}), nil
	})
	require.NoError(t, err)
	run := c.registry.Runner(task.KindPcieReset)
	require.NotNil(t, run)

	c.finish(task.KindPcieReset, run)
	assert.True(t, c.Busy(task.KindPcieReset), "kind must stay claimed while the worker runs")
	_, err = c.start(task.KindPcieReset, func() (task.Operation, error) {
		t.Fatalf("second run must be rejected before building")
		return nil, nil
	})
	require.ErrorIs(t, err, registry.ErrBusy)

	release()
	require.NoError(t, await(t, c, task.KindPcieReset))
	assert.False(t, c.Busy(task.KindPcieReset))
}

func TestEyeScanAfterLinkSetup(t *testing.T) {
	c, _ := newController(t, sim.Options{GTGroups: 1, GTsPerGroup: 3})
	connectAndProgram(t, c)

	_, err := c.SetupLinks()
	require.NoError(t, err)
	require.NoError(t, await(t, c, task.KindLinkSetup))
	require.Len(t, c.Renderer().State().EyeScans, 3)

	_, err = c.StartEyeScans(EyeScanRequest{})
	require.NoError(t, err)
	require.NoError(t, await(t, c, task.KindEyeScan))

	for _, scan := range c.Renderer().State().EyeScans {
		assert.Equal(t, "Done", scan.Status)
		assert.Equal(t, 100, scan.Percent)
		assert.NotEmpty(t, scan.PNG)
	}

	_, err = c.StartEyeScans(EyeScanRequest{TargetBER: 2})
	assert.ErrorIs(t, err, &faults.ValidationError{})
}

func TestIlaSingleShotThroughController(t *testing.T) {
	c, _ := newController(t, sim.Options{})
	connectAndProgram(t, c)
	require.NoError(t, c.Facade().AddProbeTrigger("counter"))
	require.NoError(t, c.Facade().SetProbeTrigger("counter", "==", "1"))
	csvPath := filepath.Join(t.TempDir(), "capture")

	_, err := c.CaptureIla(IlaRequest{
		Mode:            session.TriggerBasic,
		WindowCount:     "1",
		DataDepth:       "64",
		TriggerPosition: "0",
		SingleShot:      true,
		CSV:             csvPath,
	})
	require.NoError(t, err)
	require.NoError(t, await(t, c, task.KindIlaCapture))

	ila := c.Renderer().State().Ila
	assert.Equal(t, 1, ila.Captures)
	assert.Equal(t, csvPath+".csv", ila.CSV)
	assert.Contains(t, ila.FileSize, "MegaBytes")
}

func TestRegisterHistoryJournal(t *testing.T) {
	j, err := records.OpenJournal(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	c, board := newController(t, sim.Options{}, WithJournal(j))
	connectAndProgram(t, c)
	board.Poke("DPC", 0xFCA50E90, 0x7)

	_, err = c.ReadRegisters(RegisterReadRequest{Addresses: "phy-ready", Size: "w", Target: "DPC", SingleShot: true})
	require.NoError(t, err)
	require.NoError(t, await(t, c, task.KindRegisterRead))

	history, err := j.Replay()
	require.NoError(t, err)
	entries := history.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "0x00000007", entries[0].Values[0].Hex)
}

func TestDeviceResetDisconnects(t *testing.T) {
	c, _ := newController(t, sim.Options{})
	connectAndProgram(t, c)

	_, err := c.ResetDevice()
	require.NoError(t, err)
	require.NoError(t, await(t, c, task.KindDeviceReset))
	assert.False(t, c.Facade().Connected())
	assert.Equal(t, "", c.Renderer().State().Info.Device)
}
