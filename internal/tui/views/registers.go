package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/versal-debug/vdbg/internal/ops"
	"github.com/versal-debug/vdbg/internal/tui/theme"
)

// RegistersConfig holds the register tab's inputs.
type RegistersConfig struct {
	Width       int
	Compact     bool
	Form        string
	Readings    []ops.RegisterReading
	Written     []ops.WriteResult
	RecordsHTML string
}

// RenderRegisters draws the register read/write tab.
func RenderRegisters(config RegistersConfig) string {
	half := config.Width / 2
	if config.Compact {
		half = config.Width
	}

	body := theme.MutedStyle.Render("No readings yet")
	if len(config.Readings) > 0 {
		body = RegisterTable(config.Readings).View()
	}
	if config.RecordsHTML != "" {
		body = lipgloss.JoinVertical(lipgloss.Left, body, keyValue("History", config.RecordsHTML))
	}

	written := make([]string, 0, len(config.Written))
	for _, w := range config.Written {
		values := make([]string, len(w.Values))
		for i, v := range w.Values {
			values[i] = fmt.Sprintf("%#x", v)
		}
		written = append(written, fmt.Sprintf("%#x <- %s", w.Address, strings.Join(values, " ")))
	}
	right := Panel("Readings", body, half, false)
	if len(written) > 0 {
		right = lipgloss.JoinVertical(lipgloss.Left, right, Panel("Written", strings.Join(written, "\n"), half, false))
	}
	return SideBySide(Panel("Access", config.Form, half, true), right, config.Compact)
}

// RegisterTable lays readings out as address, hex and binary columns.
func RegisterTable(readings []ops.RegisterReading) table.Model {
	binWidth := 8
	rows := make([]table.Row, 0, len(readings))
	for _, r := range readings {
		binWidth = max(binWidth, len(r.Bin))
		rows = append(rows, table.Row{r.AddressHex(), r.Hex, r.Bin})
	}
	columns := []table.Column{
		{Title: "Address", Width: 12},
		{Title: "Value", Width: max(10, len(readings[0].Hex))},
		{Title: "Binary", Width: binWidth},
	}
	return table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithHeight(len(rows)+1),
	)
}
