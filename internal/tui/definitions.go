package tui

import (
	"errors"
	"fmt"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/versal-debug/vdbg/internal/controller"
	"github.com/versal-debug/vdbg/internal/faults"
	"github.com/versal-debug/vdbg/internal/records"
	"github.com/versal-debug/vdbg/internal/registry"
	"github.com/versal-debug/vdbg/internal/render"
	"github.com/versal-debug/vdbg/internal/session"
	"github.com/versal-debug/vdbg/internal/task"
	"github.com/versal-debug/vdbg/internal/tui/components"
	"github.com/versal-debug/vdbg/internal/tui/views"
)

const (
	fieldHWServer        = "hw_server"
	fieldCSServer        = "cs_server"
	fieldPDI             = "pdi"
	fieldLTX             = "ltx"
	fieldAddresses       = "addresses"
	fieldValues          = "values"
	fieldSize            = "size"
	fieldTarget          = "target"
	fieldRecords         = "records"
	fieldPlot            = "plot"
	fieldProbe           = "probe"
	fieldOperator        = "operator"
	fieldValue           = "value"
	fieldWindowCount     = "window_count"
	fieldDataDepth       = "data_depth"
	fieldTriggerPosition = "trigger_position"
	fieldCSV             = "csv"
	fieldHorizontalStep  = "horizontal_step"
	fieldVerticalStep    = "vertical_step"
	fieldHorizontalRange = "horizontal_range"
	fieldVerticalRange   = "vertical_range"
	fieldTargetBER       = "target_ber"
	fieldPlotPrefix      = "plot_prefix"
)

const (
	actionNextIla       = "next_ila"
	actionAddTrigger    = "add_trigger"
	actionRemoveTrigger = "remove_trigger"
	actionToggleMode    = "toggle_mode"
	actionSaveLtssm     = "save_ltssm"
	actionSaveEyes      = "save_eyes"
)

// WithFiles pre-fills the programming file inputs.
func WithFiles(pdi, ltx string) Option {
	return func(m *AppModel) {
		m.forms[ViewSession].SetValue(fieldPDI, pdi)
		m.forms[ViewSession].SetValue(fieldLTX, ltx)
	}
}

func defaultForms() map[ViewID]*Form {
	return map[ViewID]*Form{
		ViewSession: NewForm(
			FieldSpec{Name: fieldHWServer, Label: "hw_server", Placeholder: "TCP:localhost:3121"},
			FieldSpec{Name: fieldCSServer, Label: "cs_server", Placeholder: "TCP:localhost:3042"},
			FieldSpec{Name: fieldPDI, Label: "PDI file", Placeholder: "design.pdi"},
			FieldSpec{Name: fieldLTX, Label: "Probe file", Placeholder: "design.ltx (optional)"},
		),
		ViewRegisters: NewForm(
			FieldSpec{Name: fieldAddresses, Label: "Addresses", Placeholder: "0xFCA50E90 or phy-ready"},
			FieldSpec{Name: fieldValues, Label: "Write values", Placeholder: "0x1 0x2"},
			FieldSpec{Name: fieldSize, Label: "Size", Value: "w"},
			FieldSpec{Name: fieldTarget, Label: "Target", Value: "DPC"},
			FieldSpec{Name: fieldRecords, Label: "Records file", Value: "register_history"},
		),
		ViewPcie: NewForm(
			FieldSpec{Name: fieldPlot, Label: "Plot file", Value: "ltssm"},
		),
		ViewIla: NewForm(
			FieldSpec{Name: fieldProbe, Label: "Probe", Placeholder: "probe name"},
			FieldSpec{Name: fieldOperator, Label: "Operator", Value: "=="},
			FieldSpec{Name: fieldValue, Label: "Value", Placeholder: "bit pattern such as 01XX"},
			FieldSpec{Name: fieldWindowCount, Label: "Windows", Value: "1"},
			FieldSpec{Name: fieldDataDepth, Label: "Data depth", Value: "1024"},
			FieldSpec{Name: fieldTriggerPosition, Label: "Trigger position", Value: "0"},
			FieldSpec{Name: fieldCSV, Label: "CSV file", Placeholder: "capture (optional)"},
		),
		ViewIbert: NewForm(
			FieldSpec{Name: fieldHorizontalStep, Label: "Horizontal step", Placeholder: "config default"},
			FieldSpec{Name: fieldVerticalStep, Label: "Vertical step", Placeholder: "config default"},
			FieldSpec{Name: fieldHorizontalRange, Label: "Horizontal range", Placeholder: "config default"},
			FieldSpec{Name: fieldVerticalRange, Label: "Vertical range", Placeholder: "config default"},
			FieldSpec{Name: fieldTargetBER, Label: "Target BER", Placeholder: "config default"},
			FieldSpec{Name: fieldPlotPrefix, Label: "Plot prefix", Value: "eye"},
		),
	}
}

func start(kind task.Kind) tea.Cmd {
	return func() tea.Msg { return StartMsg{Kind: kind} }
}

func startOnce(kind task.Kind) tea.Cmd {
	return func() tea.Msg { return StartMsg{Kind: kind, SingleShot: true} }
}

func stop(kind task.Kind) tea.Cmd {
	return func() tea.Msg { return StopMsg{Kind: kind} }
}

func action(name string) tea.Cmd {
	return func() tea.Msg { return ActionMsg{Name: name} }
}

// DefaultViewDefinitions returns the five tabs.
func DefaultViewDefinitions() map[ViewID]ViewDefinition {
	return map[ViewID]ViewDefinition{
		ViewSession: {
			Title: "Session",
			Key:   "f2",
			Kinds: []task.Kind{task.KindConnect, task.KindProgram, task.KindDeviceReset},
			Notes: "Connect to **hw_server** and **cs_server**, then program the device. " +
				"A probe file enables PCIe and ILA discovery.",
			Buttons: func(m *AppModel) []components.ToolbarButton {
				connected := m.ctrl.Facade().Connected()
				return []components.ToolbarButton{
					components.NewToolbarButton("Connect", m.idle(task.KindConnect), start(task.KindConnect), "ctrl+o"),
					components.NewToolbarButton("Program", connected && m.idle(task.KindProgram), start(task.KindProgram), "ctrl+p"),
					components.NewToolbarButton("Reset device", connected && m.idle(task.KindDeviceReset), start(task.KindDeviceReset), "ctrl+d"),
				}
			},
			Render: func(m *AppModel) string {
				state := m.ctrl.Renderer().State()
				return views.RenderSession(views.SessionConfig{
					Width:     m.contentWidth(),
					Compact:   m.compact(),
					Form:      m.forms[ViewSession].View(m.contentWidth() / 2),
					Connected: m.ctrl.Facade().Connected(),
					Info:      state.Info,
					Discovery: state.Discovery,
				})
			},
		},
		ViewRegisters: {
			Title: "Registers",
			Key:   "f3",
			Kinds: []task.Kind{task.KindRegisterRead, task.KindRegisterWrite},
			Notes: "Addresses are hex values separated by spaces or commas, or one of the presets " +
				"`phy-ready`, `gt-reset-fsm` and `ltssm`. Continuous reads keep a change history " +
				"that is saved when the read stops.",
			Buttons: func(m *AppModel) []components.ToolbarButton {
				connected := m.ctrl.Facade().Connected()
				reading := m.ctrl.Busy(task.KindRegisterRead)
				return []components.ToolbarButton{
					components.NewToolbarButton("Read", connected && !reading, start(task.KindRegisterRead), "ctrl+r"),
					components.NewToolbarButton("Read once", connected && !reading, startOnce(task.KindRegisterRead), "ctrl+e"),
					components.NewToolbarButton("Write", connected && m.idle(task.KindRegisterWrite), start(task.KindRegisterWrite), "ctrl+w"),
					components.NewToolbarButton("Stop", m.stoppable(task.KindRegisterRead), stop(task.KindRegisterRead), "ctrl+x"),
				}
			},
			Render: func(m *AppModel) string {
				state := m.ctrl.Renderer().State()
				return views.RenderRegisters(views.RegistersConfig{
					Width:       m.contentWidth(),
					Compact:     m.compact(),
					Form:        m.forms[ViewRegisters].View(m.contentWidth() / 2),
					Readings:    state.Registers,
					Written:     state.Written,
					RecordsHTML: state.RecordsHTML,
				})
			},
		},
		ViewPcie: {
			Title: "PCIe",
			Key:   "f4",
			Kinds: []task.Kind{task.KindLtssmScan, task.KindPcieReset},
			Notes: "The LTSSM scan needs a PCIe core discovered while programming with a probe file.",
			Buttons: func(m *AppModel) []components.ToolbarButton {
				connected := m.ctrl.Facade().Connected()
				return []components.ToolbarButton{
					components.NewToolbarButton("Scan LTSSM", connected && m.idle(task.KindLtssmScan), start(task.KindLtssmScan), "ctrl+l"),
					components.NewToolbarButton("Reset PCIe", connected && m.idle(task.KindPcieReset), start(task.KindPcieReset), "ctrl+k"),
					components.NewToolbarButton("Save plot", len(m.ctrl.Renderer().State().Ltssm) > 0, action(actionSaveLtssm), "ctrl+s"),
					components.NewToolbarButton("Stop", m.stoppable(task.KindLtssmScan), stop(task.KindLtssmScan), "ctrl+x"),
				}
			},
			Render: func(m *AppModel) string {
				state := m.ctrl.Renderer().State()
				return views.RenderPcie(views.PcieConfig{
					Width:   m.contentWidth(),
					HasPcie: state.Discovery.Pcie,
					Frames:  state.LtssmFrames,
					Plot:    state.Ltssm,
					Saved:   m.saved[ViewPcie],
				})
			},
		},
		ViewIla: {
			Title: "ILA",
			Key:   "f5",
			Kinds: []task.Kind{task.KindIlaCapture},
			Notes: fmt.Sprintf("Up to %d probes can be added to a basic trigger. Immediate mode ignores them.", session.MaxProbeTriggers),
			Buttons: func(m *AppModel) []components.ToolbarButton {
				selected := m.ctrl.Facade().SelectedIla() != ""
				idle := m.idle(task.KindIlaCapture)
				return []components.ToolbarButton{
					components.NewToolbarButton("Next core", len(m.ctrl.Facade().IlaCores()) > 1 && idle, action(actionNextIla), "ctrl+n"),
					components.NewToolbarButton("Add trigger", selected && idle, action(actionAddTrigger), "ctrl+a"),
					components.NewToolbarButton("Remove trigger", selected && idle, action(actionRemoveTrigger), "ctrl+u"),
					components.NewToolbarButton("Mode", idle, action(actionToggleMode), "ctrl+t"),
					components.NewToolbarButton("Capture", selected && idle, start(task.KindIlaCapture), "ctrl+r"),
					components.NewToolbarButton("Capture once", selected && idle, startOnce(task.KindIlaCapture), "ctrl+e"),
					components.NewToolbarButton("Stop", m.stoppable(task.KindIlaCapture), stop(task.KindIlaCapture), "ctrl+x"),
				}
			},
			Render: func(m *AppModel) string {
				facade := m.ctrl.Facade()
				return views.RenderIla(views.IlaConfig{
					Width:    m.contentWidth(),
					Compact:  m.compact(),
					Form:     m.forms[ViewIla].View(m.contentWidth() / 2),
					Cores:    facade.IlaCores(),
					Selected: facade.SelectedIla(),
					Mode:     m.ilaMode,
					Triggers: facade.ProbeTriggers(),
					Capture:  m.ctrl.Renderer().State().Ila,
				})
			},
		},
		ViewIbert: {
			Title: "IBERT",
			Key:   "f6",
			Kinds: []task.Kind{task.KindLinkSetup, task.KindEyeScan},
			Notes: "Link setup creates one loopback link and eye scan per transceiver. " +
				"Empty scan parameters use the configured defaults.",
			Buttons: func(m *AppModel) []components.ToolbarButton {
				connected := m.ctrl.Facade().Connected()
				scans := len(m.ctrl.Renderer().State().EyeScans) > 0
				idle := m.idle(task.KindLinkSetup) && m.idle(task.KindEyeScan)
				return []components.ToolbarButton{
					components.NewToolbarButton("Setup links", connected && idle, start(task.KindLinkSetup), "ctrl+l"),
					components.NewToolbarButton("Eye scans", connected && scans && idle, start(task.KindEyeScan), "ctrl+r"),
					components.NewToolbarButton("Save plots", m.eyePlotsReady(), action(actionSaveEyes), "ctrl+s"),
				}
			},
			Render: func(m *AppModel) string {
				state := m.ctrl.Renderer().State()
				return views.RenderIbert(views.IbertConfig{
					Width:   m.contentWidth(),
					Compact: m.compact(),
					Form:    m.forms[ViewIbert].View(m.contentWidth() / 2),
					Links:   state.Links.Links,
					Scans:   state.EyeScans,
					Saved:   m.saved[ViewIbert],
				})
			},
		},
	}
}

func (m *AppModel) idle(kind task.Kind) bool {
	return !m.ctrl.Busy(kind)
}

func (m *AppModel) stoppable(kind task.Kind) bool {
	return m.ctrl.Busy(kind) && !m.stopping[kind]
}

func (m *AppModel) eyePlotsReady() bool {
	for _, scan := range m.ctrl.Renderer().State().EyeScans {
		if len(scan.PNG) > 0 {
			return true
		}
	}
	return false
}

// start reads the inputs of the kind's tab and hands them to the controller, which
// reports rejected input as a notification itself.
func (m *AppModel) start(kind task.Kind, singleShot bool) {
	var err error
	switch kind {
	case task.KindConnect:
		form := m.forms[ViewSession]
		_, err = m.ctrl.Connect(form.Value(fieldHWServer), form.Value(fieldCSServer))
	case task.KindProgram:
		form := m.forms[ViewSession]
		_, err = m.ctrl.Program(form.Value(fieldPDI), form.Value(fieldLTX))
	case task.KindDeviceReset:
		_, err = m.ctrl.ResetDevice()
	case task.KindRegisterRead:
		form := m.forms[ViewRegisters]
		_, err = m.ctrl.ReadRegisters(controller.RegisterReadRequest{
			Addresses:   form.Value(fieldAddresses),
			Size:        form.Value(fieldSize),
			Target:      form.Value(fieldTarget),
			SingleShot:  singleShot,
			RecordsFile: form.Value(fieldRecords),
		})
	case task.KindRegisterWrite:
		form := m.forms[ViewRegisters]
		_, err = m.ctrl.WriteRegisters(controller.RegisterWriteRequest{
			Addresses: form.Value(fieldAddresses),
			Values:    form.Value(fieldValues),
			Size:      form.Value(fieldSize),
			Target:    form.Value(fieldTarget),
		})
	case task.KindLtssmScan:
		_, err = m.ctrl.ScanLtssm(singleShot)
	case task.KindPcieReset:
		_, err = m.ctrl.ResetPcie()
	case task.KindIlaCapture:
		form := m.forms[ViewIla]
		_, err = m.ctrl.CaptureIla(controller.IlaRequest{
			Mode:            m.ilaMode,
			WindowCount:     form.Value(fieldWindowCount),
			DataDepth:       form.Value(fieldDataDepth),
			TriggerPosition: form.Value(fieldTriggerPosition),
			SingleShot:      singleShot,
			CSV:             form.Value(fieldCSV),
		})
	case task.KindLinkSetup:
		_, err = m.ctrl.SetupLinks()
	case task.KindEyeScan:
		var req controller.EyeScanRequest
		if req, err = m.eyeScanRequest(); err != nil {
			m.ctrl.Renderer().Notify(kind, render.LevelError, err.Error())
			return
		}
		_, err = m.ctrl.StartEyeScans(req)
	}
	if errors.Is(err, registry.ErrBusy) {
		m.ctrl.Renderer().Notify(kind, render.LevelError, err.Error())
	}
}

func (m *AppModel) eyeScanRequest() (controller.EyeScanRequest, error) {
	form := m.forms[ViewIbert]
	req := controller.EyeScanRequest{
		HorizontalRange: form.Value(fieldHorizontalRange),
		VerticalRange:   form.Value(fieldVerticalRange),
	}
	var err error
	if req.HorizontalStep, err = optionalInt(form.Value(fieldHorizontalStep), fieldHorizontalStep); err != nil {
		return req, err
	}
	if req.VerticalStep, err = optionalInt(form.Value(fieldVerticalStep), fieldVerticalStep); err != nil {
		return req, err
	}
	if raw := form.Value(fieldTargetBER); raw != "" {
		if req.TargetBER, err = strconv.ParseFloat(raw, 64); err != nil {
			return req, faults.Invalid(fieldTargetBER, "%q is not a number", raw)
		}
	}
	return req, nil
}

func optionalInt(raw, field string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, faults.Invalid(field, "%q is not a whole number", raw)
	}
	return n, nil
}

func (m *AppModel) runAction(name string) {
	facade := m.ctrl.Facade()
	renderer := m.ctrl.Renderer()
	var err error
	switch name {
	case actionNextIla:
		cores := facade.IlaCores()
		if len(cores) == 0 {
			return
		}
		next := cores[0]
		for i, core := range cores {
			if core == facade.SelectedIla() {
				next = cores[(i+1)%len(cores)]
			}
		}
		err = facade.SelectIla(next)
	case actionAddTrigger:
		form := m.forms[ViewIla]
		probe := form.Value(fieldProbe)
		if err = facade.AddProbeTrigger(probe); err == nil && form.Value(fieldValue) != "" {
			err = facade.SetProbeTrigger(probe, form.Value(fieldOperator), form.Value(fieldValue))
		}
	case actionRemoveTrigger:
		facade.RemoveProbeTrigger(m.forms[ViewIla].Value(fieldProbe))
	case actionToggleMode:
		if m.ilaMode == session.TriggerBasic {
			m.ilaMode = session.TriggerImmediate
		} else {
			m.ilaMode = session.TriggerBasic
		}
	case actionSaveLtssm:
		var path string
		if path, err = records.SavePlot(m.forms[ViewPcie].Value(fieldPlot), renderer.State().Ltssm); err == nil {
			m.saved[ViewPcie] = path
			renderer.Notify(task.KindLtssmScan, render.LevelInfo, "LTSSM plot saved to "+path)
		}
	case actionSaveEyes:
		prefix := m.forms[ViewIbert].Value(fieldPlotPrefix)
		for _, scan := range renderer.State().EyeScans {
			if len(scan.PNG) == 0 {
				continue
			}
			var path string
			if path, err = records.SavePlot(prefix+"_"+scan.Name, scan.PNG); err != nil {
				break
			}
			m.saved[ViewIbert] = path
		}
		if err == nil && m.saved[ViewIbert] != "" {
			renderer.Notify(task.KindEyeScan, render.LevelInfo, "Eye scan plots saved with prefix "+prefix)
		}
	}
	if err != nil {
		renderer.Notify("", render.LevelError, err.Error())
	}
}
