package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/versal-debug/vdbg/internal/render"
	"github.com/versal-debug/vdbg/internal/session"
	"github.com/versal-debug/vdbg/internal/tui/theme"
)

const ilaVisibleRows = 12

// IlaConfig holds the ILA tab's inputs.
type IlaConfig struct {
	Width    int
	Compact  bool
	Form     string
	Cores    []string
	Selected string
	Mode     session.TriggerMode
	Triggers []session.ProbeTrigger
	Capture  render.IlaView
}

// RenderIla draws the ILA tab: core selection, trigger list and the latest capture.
func RenderIla(config IlaConfig) string {
	half := config.Width / 2
	if config.Compact {
		half = config.Width
	}

	cores := make([]string, 0, len(config.Cores))
	for _, name := range config.Cores {
		if name == config.Selected {
			cores = append(cores, theme.FocusStyle.Render("▸ "+name))
			continue
		}
		cores = append(cores, "  "+name)
	}
	if len(cores) == 0 {
		cores = append(cores, theme.MutedStyle.Render("No ILA cores discovered"))
	}

	triggers := make([]string, 0, len(config.Triggers))
	for _, trig := range config.Triggers {
		condition := theme.MutedStyle.Render("(no condition)")
		if trig.Operator != "" {
			condition = trig.Operator + " " + trig.Value
		}
		triggers = append(triggers, fmt.Sprintf("%s %s", trig.Probe, condition))
	}
	if len(triggers) == 0 {
		triggers = append(triggers, theme.MutedStyle.Render("No probe triggers"))
	}

	setup := lipgloss.JoinVertical(lipgloss.Left,
		Panel("Cores", strings.Join(cores, "\n"), half, false),
		Panel(fmt.Sprintf("Trigger (%s)", config.Mode), strings.Join(triggers, "\n")+"\n\n"+config.Form, half, true),
	)
	return SideBySide(setup, Panel("Capture", renderCapture(config.Capture), half, false), config.Compact)
}

func renderCapture(view render.IlaView) string {
	lines := []string{
		keyValue("Status", view.Status),
		keyValue("Buffer", fmt.Sprintf("%d%%", view.Fill)),
		keyValue("Captures", fmt.Sprintf("%d", view.Captures)),
	}
	if view.CSV != "" {
		lines = append(lines, keyValue("CSV", view.CSV+" ("+view.FileSize+")"))
	}
	if len(view.Rows) == 0 || len(view.Probes) == 0 {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines, "\n") + "\n" + SampleTable(view).View()
}

// SampleTable shows the first captured samples, one column per probe.
func SampleTable(view render.IlaView) table.Model {
	columns := make([]table.Column, 0, len(view.Probes))
	for _, probe := range view.Probes {
		columns = append(columns, table.Column{Title: probe, Width: max(4, len(probe))})
	}
	rows := make([]table.Row, 0, len(view.Rows))
	for _, row := range view.Rows {
		rows = append(rows, table.Row(row))
	}
	return table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithHeight(min(len(rows), ilaVisibleRows)+1),
	)
}
