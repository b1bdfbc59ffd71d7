package tui

import (
	"bytes"
	"context"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/versal-debug/vdbg/internal/config"
	"github.com/versal-debug/vdbg/internal/controller"
	"github.com/versal-debug/vdbg/internal/render"
	"github.com/versal-debug/vdbg/internal/sdk/sim"
	"github.com/versal-debug/vdbg/internal/session"
	"github.com/versal-debug/vdbg/internal/signal"
	"github.com/versal-debug/vdbg/internal/task"
)

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(value string) string {
	return ansiPattern.ReplaceAllString(value, "")
}

func newTestModel(t *testing.T, options ...Option) *AppModel {
	t.Helper()
	t.Setenv(config.EnvHWServerURL, "")
	t.Setenv(config.EnvCSServerURL, "")
	cfg := config.Defaults()
	cfg.RegisterPollInterval = time.Millisecond
	cfg.LtssmPollInterval = time.Millisecond
	ctrl := controller.New(session.New(sim.New(sim.Options{})), signal.NewLoop(), &cfg)
	t.Cleanup(func() {
		_ = ctrl.Shutdown(context.Background())
	})
	options = append([]Option{WithServers("TCP:localhost:3121", "TCP:localhost:3042")}, options...)
	return NewAppModel(ctrl, options...)
}

func press(m *AppModel, keyType tea.KeyType) tea.Cmd {
	_, cmd := m.Update(tea.KeyMsg{Type: keyType})
	return cmd
}

func pressRune(m *AppModel, r rune) {
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
}

func awaitKind(t *testing.T, m *AppModel, kind task.Kind) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.ctrl.Await(ctx, kind); err != nil {
		t.Fatalf("%s failed: %v", kind, err)
	}
}

func connect(t *testing.T, m *AppModel) {
	t.Helper()
	press(m, tea.KeyCtrlO)
	awaitKind(t, m, task.KindConnect)
	if !m.ctrl.Facade().Connected() {
		t.Fatalf("expected connected session after ctrl+o")
	}
}

func TestFunctionKeysSwitchTabs(t *testing.T) {
	m := newTestModel(t)

	tests := []struct {
		key  tea.KeyType
		want ViewID
	}{
		{key: tea.KeyF3, want: ViewRegisters},
		{key: tea.KeyF4, want: ViewPcie},
		{key: tea.KeyF5, want: ViewIla},
		{key: tea.KeyF6, want: ViewIbert},
		{key: tea.KeyF2, want: ViewSession},
	}
	for _, tt := range tests {
		press(m, tt.key)
		if got := m.CurrentView(); got != tt.want {
			t.Fatalf("after %v current view = %q, want %q", tt.key, got, tt.want)
		}
	}

	m.Update(SwitchViewMsg{View: "unknown"})
	if m.CurrentView() != ViewSession {
		t.Fatalf("unknown view must be ignored, got %q", m.CurrentView())
	}
}

func TestHelpOverlayOpensAndCloses(t *testing.T) {
	m := newTestModel(t)
	m.Update(tea.WindowSizeMsg{Width: 140, Height: 40})

	press(m, tea.KeyF1)
	overlay, ok := m.CurrentOverlay()
	if !ok || overlay != OverlayHelp {
		t.Fatalf("expected help overlay, got %q", overlay)
	}
	if view := m.View(); !strings.Contains(view, "Press F1 or Escape to close") {
		t.Fatalf("help overlay missing close hint:\n%s", view)
	}

	press(m, tea.KeyF3)
	if m.CurrentView() != ViewSession {
		t.Fatalf("tab keys must not leak through the help overlay")
	}

	press(m, tea.KeyEsc)
	if _, ok := m.CurrentOverlay(); ok {
		t.Fatalf("expected escape to close help")
	}
}

func TestWindowSizeSelectsLayout(t *testing.T) {
	m := newTestModel(t)

	m.Update(tea.WindowSizeMsg{Width: StandardLayoutMinWidth - 1, Height: 30})
	if m.LayoutMode() != LayoutCompact {
		t.Fatalf("layout = %q, want compact", m.LayoutMode())
	}
	m.Update(tea.WindowSizeMsg{Width: StandardLayoutMinWidth, Height: 30})
	if m.LayoutMode() != LayoutStandard {
		t.Fatalf("layout = %q, want standard", m.LayoutMode())
	}
}

func TestTabCyclesFormFocus(t *testing.T) {
	m := newTestModel(t)
	form := m.Form(ViewSession)

	if form.Focused() != fieldHWServer {
		t.Fatalf("initial focus = %q", form.Focused())
	}
	press(m, tea.KeyTab)
	if form.Focused() != fieldCSServer {
		t.Fatalf("focus after tab = %q", form.Focused())
	}
	press(m, tea.KeyShiftTab)
	press(m, tea.KeyShiftTab)
	if form.Focused() != fieldLTX {
		t.Fatalf("focus after wrapping back = %q", form.Focused())
	}
}

func TestConnectThroughToolbarKey(t *testing.T) {
	m := newTestModel(t)
	connect(t, m)

	view := m.View()
	if !strings.Contains(view, "connected") {
		t.Fatalf("session tab should report the connection:\n%s", view)
	}
}

func TestProgramButtonDisabledUntilConnected(t *testing.T) {
	m := newTestModel(t, WithFiles("missing.pdi", ""))

	press(m, tea.KeyCtrlP)
	if m.ctrl.Busy(task.KindProgram) || m.ctrl.TaskID(task.KindProgram) != "" {
		t.Fatalf("program must not start without a session")
	}
}

func TestContinuousReadDisablesReadAndStops(t *testing.T) {
	m := newTestModel(t)
	connect(t, m)
	press(m, tea.KeyF3)
	form := m.Form(ViewRegisters)
	form.SetValue(fieldAddresses, "phy-ready")
	form.SetValue(fieldRecords, filepath.Join(t.TempDir(), "history"))

	press(m, tea.KeyCtrlR)
	if !m.ctrl.Busy(task.KindRegisterRead) {
		t.Fatalf("expected register read to be running")
	}
	first := m.ctrl.TaskID(task.KindRegisterRead)

	press(m, tea.KeyCtrlR)
	if got := m.ctrl.TaskID(task.KindRegisterRead); got != first {
		t.Fatalf("read button should be disabled while reading, task id changed to %q", got)
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(m.ctrl.Renderer().State().Registers) == 0 && time.Now().Before(deadline) {
		m.ctrl.Loop().Drain()
		time.Sleep(time.Millisecond)
	}

	press(m, tea.KeyCtrlX)
	if !m.Stopping(task.KindRegisterRead) {
		t.Fatalf("expected stop to be pending")
	}
	awaitKind(t, m, task.KindRegisterRead)
	if m.Stopping(task.KindRegisterRead) {
		t.Fatalf("stopping flag must clear once the read finished")
	}
	if len(m.ctrl.Renderer().State().Registers) != 1 {
		t.Fatalf("expected one register reading, got %d", len(m.ctrl.Renderer().State().Registers))
	}
	if !strings.HasSuffix(m.ctrl.Renderer().State().RecordsHTML, "history.html") {
		t.Fatalf("expected the history export after stop, got %q", m.ctrl.Renderer().State().RecordsHTML)
	}
}

func TestInvalidInputIsReportedNotStarted(t *testing.T) {
	m := newTestModel(t)
	connect(t, m)
	press(m, tea.KeyF3)

	press(m, tea.KeyCtrlE)
	if m.ctrl.Busy(task.KindRegisterRead) {
		t.Fatalf("read must not start without addresses")
	}
	notes := m.ctrl.Renderer().Notifications()
	last := notes[len(notes)-1]
	if last.Level != render.LevelError || !strings.Contains(last.Message, "No register addresses entered!") {
		t.Fatalf("unexpected notification %+v", last)
	}
}

func TestIlaModeToggle(t *testing.T) {
	m := newTestModel(t)
	press(m, tea.KeyF5)

	press(m, tea.KeyCtrlT)
	if m.ilaMode != session.TriggerImmediate {
		t.Fatalf("mode = %q, want immediate", m.ilaMode)
	}
	m.Update(ActionMsg{Name: actionToggleMode})
	if m.ilaMode != session.TriggerBasic {
		t.Fatalf("mode = %q, want basic", m.ilaMode)
	}
}

func TestResetConfirmationTearsDownSession(t *testing.T) {
	m := newTestModel(t)
	connect(t, m)

	press(m, tea.KeyCtrlG)
	if overlay, _ := m.CurrentOverlay(); overlay != OverlayConfirmReset {
		t.Fatalf("expected reset confirmation, got %q", overlay)
	}
	if !strings.Contains(m.View(), "RESET TO DEFAULT?") {
		t.Fatalf("confirmation title missing")
	}

	press(m, tea.KeyEnter)
	if _, ok := m.CurrentOverlay(); ok {
		t.Fatalf("dialog should close after submit")
	}
	if m.ctrl.Facade().Connected() {
		t.Fatalf("reset must close the session")
	}
}

func TestResetDismissKeepsSession(t *testing.T) {
	m := newTestModel(t)
	connect(t, m)

	press(m, tea.KeyCtrlG)
	press(m, tea.KeyEsc)
	if !m.ctrl.Facade().Connected() {
		t.Fatalf("dismissed reset must keep the session")
	}
}

func TestQuitRequiresConfirmation(t *testing.T) {
	m := newTestModel(t)

	press(m, tea.KeyCtrlC)
	if cmd := press(m, tea.KeyEnter); cmd != nil {
		t.Fatalf("quit defaults to no and must not return a command")
	}
	if m.Quitting() {
		t.Fatalf("quit must not happen on default selection")
	}

	press(m, tea.KeyCtrlC)
	pressRune(m, 'y')
	cmd := press(m, tea.KeyEnter)
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
	if !m.Quitting() || m.View() != "" {
		t.Fatalf("model should be quitting with an empty view")
	}
}

func TestQuitLogsIncompleteShutdown(t *testing.T) {
	t.Setenv(config.EnvHWServerURL, "")
	t.Setenv(config.EnvCSServerURL, "")
	unblock := make(chan struct{})
	release := sync.OnceFunc(func() { close(unblock) })
	board := sim.New(sim.Options{Hook: func(_ context.Context, call sim.Call) error {
		if call.Op == sim.OpMemoryRead {
			<-unblock
		}
		return nil
	}})
	cfg := config.Defaults()
	cfg.TeardownTimeout = 10 * time.Millisecond
	var logs bytes.Buffer
	ctrl := controller.New(session.New(board), signal.NewLoop(), &cfg, controller.WithLogger(log.New(&logs)))
	t.Cleanup(func() {
		release()
		_ = ctrl.Shutdown(context.Background())
	})
	m := NewAppModel(ctrl, WithServers("TCP:localhost:3121", "TCP:localhost:3042"))
	connect(t, m)
	press(m, tea.KeyF3)
	form := m.Form(ViewRegisters)
	form.SetValue(fieldAddresses, "phy-ready")
	form.SetValue(fieldRecords, filepath.Join(t.TempDir(), "history"))
	press(m, tea.KeyCtrlE)
	if !ctrl.Busy(task.KindRegisterRead) {
		t.Fatalf("expected the read to be running")
	}

	press(m, tea.KeyCtrlC)
	pressRune(m, 'y')
	press(m, tea.KeyEnter)
	if !m.Quitting() {
		t.Fatalf("expected the model to quit")
	}
	if !strings.Contains(logs.String(), "shutdown incomplete") {
		t.Fatalf("stuck worker must be logged on quit, got:\n%s", logs.String())
	}
}

func TestLoopReadyDrainsPostedWork(t *testing.T) {
	m := newTestModel(t)
	ran := false
	m.ctrl.Loop().Post(func() { ran = true })

	_, cmd := m.Update(loopReadyMsg{})
	if !ran {
		t.Fatalf("posted closure was not drained")
	}
	if cmd == nil {
		t.Fatalf("expected the loop wait to be re-issued")
	}
}

func TestViewShowsTabsAndProgress(t *testing.T) {
	m := newTestModel(t)
	m.Update(tea.WindowSizeMsg{Width: 140, Height: 40})

	view := stripANSI(m.View())
	for _, want := range []string{"F2 Session", "F6 IBERT", "Connect", "Program"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
}
