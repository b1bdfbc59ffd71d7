// Package tui is the interactive console. Its Bubble Tea Update loop is the
// controlling goroutine: it drains the signal loop, starts and stops operations
// through the controller and renders the view state.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/versal-debug/vdbg/internal/controller"
	"github.com/versal-debug/vdbg/internal/render"
	"github.com/versal-debug/vdbg/internal/session"
	"github.com/versal-debug/vdbg/internal/signal"
	"github.com/versal-debug/vdbg/internal/task"
	"github.com/versal-debug/vdbg/internal/tui/components"
	"github.com/versal-debug/vdbg/internal/tui/theme"
	"github.com/versal-debug/vdbg/internal/tui/views"
)

const (
	// StandardLayoutMinWidth is the terminal width threshold for side-by-side panels.
	StandardLayoutMinWidth = 120
	frameRate              = 30
	defaultShutdownTimeout = 10 * time.Second
)

// ViewID identifies a tab.
type ViewID string

const (
	ViewSession   ViewID = "session"
	ViewRegisters ViewID = "registers"
	ViewPcie      ViewID = "pcie"
	ViewIla       ViewID = "ila"
	ViewIbert     ViewID = "ibert"
)

// LayoutMode identifies the responsive layout.
type LayoutMode string

const (
	LayoutStandard LayoutMode = "standard"
	LayoutCompact  LayoutMode = "compact"
)

// OverlayKind identifies modal overlays rendered above the tabs.
type OverlayKind string

const (
	OverlayHelp         OverlayKind = "help"
	OverlayConfirmReset OverlayKind = "confirm_reset"
	OverlayConfirmQuit  OverlayKind = "confirm_quit"
)

// StartMsg asks the console to start an operation with the current tab's inputs.
type StartMsg struct {
	Kind       task.Kind
	SingleShot bool
}

// StopMsg asks the running operation of Kind to stop.
type StopMsg struct {
	Kind task.Kind
}

// ActionMsg is a tab action that is not a task, such as selecting the next ILA core.
type ActionMsg struct {
	Name string
}

// SwitchViewMsg makes View the current tab.
type SwitchViewMsg struct {
	View ViewID
}

type loopReadyMsg struct{}

type frameMsg struct{}

// ViewDefinition configures one tab.
type ViewDefinition struct {
	Title   string
	Key     string
	Kinds   []task.Kind
	Notes   string
	Buttons func(m *AppModel) []components.ToolbarButton
	Render  func(m *AppModel) string
}

// Option configures AppModel construction.
type Option func(*AppModel)

// WithServers pre-fills the server URL inputs.
func WithServers(hwURL, csURL string) Option {
	return func(m *AppModel) {
		m.forms[ViewSession].SetValue(fieldHWServer, hwURL)
		m.forms[ViewSession].SetValue(fieldCSServer, csURL)
	}
}

// WithShutdownTimeout bounds the teardown run when the console quits.
func WithShutdownTimeout(d time.Duration) Option {
	return func(m *AppModel) {
		if d > 0 {
			m.shutdownTimeout = d
		}
	}
}

// AppModel is the root Bubble Tea model.
type AppModel struct {
	ctrl            *controller.Controller
	defs            map[ViewID]ViewDefinition
	order           []ViewID
	forms           map[ViewID]*Form
	current         ViewID
	overlays        []OverlayKind
	confirmYes      bool
	toolbarIndex    int
	springs         map[task.Kind]*components.ProgressSpring
	stopping        map[task.Kind]bool
	animating       bool
	ilaMode         session.TriggerMode
	saved           map[ViewID]string
	width           int
	height          int
	layoutMode      LayoutMode
	quitting        bool
	shutdownTimeout time.Duration
}

// NewAppModel builds the console around ctrl. The model must be the only user of ctrl.
func NewAppModel(ctrl *controller.Controller, options ...Option) *AppModel {
	m := &AppModel{
		ctrl:            ctrl,
		defs:            DefaultViewDefinitions(),
		order:           []ViewID{ViewSession, ViewRegisters, ViewPcie, ViewIla, ViewIbert},
		forms:           defaultForms(),
		current:         ViewSession,
		springs:         map[task.Kind]*components.ProgressSpring{},
		stopping:        map[task.Kind]bool{},
		ilaMode:         session.TriggerBasic,
		saved:           map[ViewID]string{},
		layoutMode:      LayoutStandard,
		shutdownTimeout: defaultShutdownTimeout,
	}
	for _, kind := range task.Kinds() {
		m.springs[kind] = components.NewProgressSpring(frameRate)
	}
	ctrl.OnBusyChange(func(kind task.Kind, busy bool) {
		if !busy {
			m.stopping[kind] = false
		}
	})
	for _, option := range options {
		option(m)
	}
	return m
}

// Init starts waiting on the signal loop.
func (m *AppModel) Init() tea.Cmd {
	return tea.Batch(waitForLoop(m.ctrl.Loop()), textinput.Blink)
}

func waitForLoop(loop *signal.Loop) tea.Cmd {
	return func() tea.Msg {
		<-loop.Ready()
		return loopReadyMsg{}
	}
}

func nextFrame() tea.Cmd {
	return tea.Tick(time.Second/frameRate, func(time.Time) tea.Msg { return frameMsg{} })
}

// Update handles loop wake-ups, animation frames, operation requests and keys.
func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = typed.Width, typed.Height
		m.layoutMode = resolveLayoutMode(typed.Width)
		return m, nil
	case loopReadyMsg:
		m.ctrl.Loop().Drain()
		return m, tea.Batch(waitForLoop(m.ctrl.Loop()), m.animate())
	case frameMsg:
		m.animating = false
		for _, spring := range m.springs {
			spring.Step()
		}
		return m, m.animate()
	case StartMsg:
		m.start(typed.Kind, typed.SingleShot)
		return m, m.animate()
	case StopMsg:
		if m.ctrl.Stop(typed.Kind) {
			m.stopping[typed.Kind] = true
		}
		return m, nil
	case ActionMsg:
		m.runAction(typed.Name)
		return m, nil
	case SwitchViewMsg:
		m.switchView(typed.View)
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(typed)
	default:
		return m, m.forms[m.current].Update(msg)
	}
}

// animate retargets every spring from the renderer and schedules a frame while any
// spring is still moving.
func (m *AppModel) animate() tea.Cmd {
	state := m.ctrl.Renderer().State()
	moving := false
	for kind, spring := range m.springs {
		spring.SetTarget(float64(state.Activity[kind].Percent))
		moving = moving || !spring.Settled()
	}
	if !moving || m.animating {
		return nil
	}
	m.animating = true
	return nextFrame()
}

func (m *AppModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if overlay, ok := m.CurrentOverlay(); ok {
		return m.handleOverlayKey(overlay, msg)
	}

	switch msg.String() {
	case "ctrl+c":
		m.pushConfirm(OverlayConfirmQuit)
		return m, nil
	case "ctrl+g":
		m.pushConfirm(OverlayConfirmReset)
		return m, nil
	case "f1":
		m.overlays = append(m.overlays, OverlayHelp)
		return m, nil
	case "tab":
		m.forms[m.current].Cycle(true)
		return m, nil
	case "shift+tab":
		m.forms[m.current].Cycle(false)
		return m, nil
	case "pgdown":
		m.toolbarIndex = components.NextToolbarIndex(m.buttons(), m.toolbarIndex)
		return m, nil
	case "pgup":
		m.toolbarIndex = components.PreviousToolbarIndex(m.buttons(), m.toolbarIndex)
		return m, nil
	case "enter":
		return m.dispatch(components.ActivateHighlighted(m.buttons(), m.toolbarIndex))
	}
	for _, id := range m.order {
		if msg.String() == m.defs[id].Key {
			m.switchView(id)
			return m, nil
		}
	}
	if result, matched := components.ActivateByKey(m.buttons(), msg); matched {
		return m.dispatch(result)
	}
	return m, m.forms[m.current].Update(msg)
}

func (m *AppModel) dispatch(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg == nil {
		return m, nil
	}
	return m.Update(msg)
}

func (m *AppModel) handleOverlayKey(overlay OverlayKind, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if overlay == OverlayHelp {
		if views.CloseHelpKey(msg) {
			m.PopOverlay()
		}
		return m, nil
	}

	next, done, confirmed := components.ApplyConfirmAction(m.confirmYes, components.ConfirmActionForKey(msg))
	m.confirmYes = next
	if !done {
		return m, nil
	}
	m.PopOverlay()
	if !confirmed {
		return m, nil
	}
	switch overlay {
	case OverlayConfirmReset:
		m.resetToDefault()
	case OverlayConfirmQuit:
		m.shutdown()
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

func (m *AppModel) pushConfirm(kind OverlayKind) {
	m.confirmYes = m.confirmConfig(kind).DefaultSelection()
	m.overlays = append(m.overlays, kind)
}

func (m *AppModel) resetToDefault() {
	ctx, cancel := context.WithTimeout(context.Background(), m.shutdownTimeout)
	defer cancel()
	if err := m.ctrl.ResetToDefault(ctx); err != nil {
		m.ctrl.Renderer().Notify("", render.LevelError, "Reset left operations running: "+err.Error())
		return
	}
	m.ctrl.Renderer().Notify("", render.LevelInfo, "Reset to default")
}

func (m *AppModel) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), m.shutdownTimeout)
	defer cancel()
	if err := m.ctrl.Shutdown(ctx); err != nil {
		m.ctrl.Logger().Error("shutdown incomplete", "error", err)
	}
}

func (m *AppModel) switchView(id ViewID) {
	if _, ok := m.defs[id]; !ok || id == m.current {
		return
	}
	m.current = id
	m.toolbarIndex = 0
}

func (m *AppModel) buttons() []components.ToolbarButton {
	def := m.defs[m.current]
	if def.Buttons == nil {
		return nil
	}
	return def.Buttons(m)
}

// View renders the tab bar, the current tab, progress bars, toolbar and notifications.
func (m *AppModel) View() string {
	if m.quitting {
		return ""
	}
	if overlay, ok := m.CurrentOverlay(); ok {
		return m.renderOverlay(overlay)
	}

	def := m.defs[m.current]
	body := fmt.Sprintf("view: %s", m.current)
	if def.Render != nil {
		body = def.Render(m)
	}

	sections := []string{m.renderTabs(), body}
	if bars := m.renderBars(def.Kinds); bars != "" {
		sections = append(sections, bars)
	}
	sections = append(sections,
		components.RenderToolbar(m.buttons(), m.toolbarIndex),
		components.RenderEventLog(components.EventLogConfig{
			Width:          m.contentWidth(),
			TerminalHeight: m.height,
			Notifications:  m.ctrl.Renderer().Notifications(),
			AutoScroll:     true,
		}),
	)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *AppModel) renderTabs() string {
	tabs := make([]string, 0, len(m.order))
	for _, id := range m.order {
		def := m.defs[id]
		label := strings.ToUpper(def.Key) + " " + def.Title
		if id == m.current {
			tabs = append(tabs, theme.TabActiveStyle.Render(label))
			continue
		}
		tabs = append(tabs, theme.TabStyle.Render(label))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m *AppModel) renderBars(kinds []task.Kind) string {
	state := m.ctrl.Renderer().State()
	lines := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		activity := state.Activity[kind]
		badge := components.RenderStatusBadge(components.BadgeStatus(activity, m.stopping[kind]))
		bar := components.RenderProgressBar(components.ProgressBarConfig{
			Label:   fmt.Sprintf("%-18s", kind.Label()),
			Percent: m.springs[kind].Value(),
			Status:  activity.Status,
			Width:   max(10, m.contentWidth()/4),
			Variant: components.ProgressVariantFor(activity),
		})
		lines = append(lines, badge+" "+bar)
	}
	return strings.Join(lines, "\n")
}

func (m *AppModel) renderOverlay(overlay OverlayKind) string {
	if overlay == OverlayHelp {
		def := m.defs[m.current]
		return views.RenderHelpOverlay(views.HelpOverlayConfig{
			Width:   m.width,
			Height:  m.height,
			Context: def.Title,
			Sections: []views.HelpSection{
				views.GlobalHelpSection(),
				{Title: def.Title, Bindings: components.Bindings(m.buttons())},
			},
			Notes: def.Notes,
		})
	}
	config := m.confirmConfig(overlay)
	config.Selected, config.SelectionSet = m.confirmYes, true
	return components.RenderConfirmDialog(config)
}

func (m *AppModel) confirmConfig(overlay OverlayKind) components.ConfirmDialogConfig {
	if overlay == OverlayConfirmQuit {
		return components.ConfirmDialogConfig{
			Width:       m.width,
			Height:      m.height,
			Title:       "QUIT?",
			Message:     "Running operations are stopped and the session is closed.",
			Destructive: false,
		}
	}
	return components.ConfirmDialogConfig{
		Width:       m.width,
		Height:      m.height,
		Title:       "RESET TO DEFAULT?",
		Message:     "Every running operation is stopped and the device session is closed.",
		Consequence: "IBERT links and eye scans are deleted. Register history already saved is kept.",
		Destructive: true,
	}
}

// PopOverlay removes the top overlay and reports whether one existed.
func (m *AppModel) PopOverlay() bool {
	if len(m.overlays) == 0 {
		return false
	}
	m.overlays = m.overlays[:len(m.overlays)-1]
	return true
}

// CurrentOverlay returns the top overlay, if present.
func (m *AppModel) CurrentOverlay() (OverlayKind, bool) {
	if len(m.overlays) == 0 {
		return "", false
	}
	return m.overlays[len(m.overlays)-1], true
}

// CurrentView returns the active tab.
func (m *AppModel) CurrentView() ViewID { return m.current }

// Form returns the inputs of a tab.
func (m *AppModel) Form(id ViewID) *Form { return m.forms[id] }

// LayoutMode reports the active responsive layout mode.
func (m *AppModel) LayoutMode() LayoutMode { return m.layoutMode }

// Quitting reports whether a quit confirmation was accepted.
func (m *AppModel) Quitting() bool { return m.quitting }

// Stopping reports whether a stop was requested for the running task of kind.
func (m *AppModel) Stopping(kind task.Kind) bool { return m.stopping[kind] }

func (m *AppModel) contentWidth() int {
	if m.width <= 0 {
		return StandardLayoutMinWidth
	}
	return m.width
}

func (m *AppModel) compact() bool { return m.layoutMode == LayoutCompact }

func resolveLayoutMode(width int) LayoutMode {
	if width < StandardLayoutMinWidth {
		return LayoutCompact
	}
	return LayoutStandard
}
