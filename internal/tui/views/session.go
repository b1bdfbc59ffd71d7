package views

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/versal-debug/vdbg/internal/session"
	"github.com/versal-debug/vdbg/internal/tui/theme"
)

// SessionConfig holds the connection tab's inputs.
type SessionConfig struct {
	Width     int
	Compact   bool
	Form      string
	Connected bool
	Info      session.Info
	Discovery session.Discovery
}

// RenderSession draws the connection and programming tab.
func RenderSession(config SessionConfig) string {
	half := config.Width / 2
	if config.Compact {
		half = config.Width
	}

	status := theme.MutedStyle.Render(theme.IconIdle + " disconnected")
	if config.Connected {
		status = theme.SuccessStyle.Render(theme.IconDone + " connected")
	}
	programmed := "no"
	if config.Info.Programmed {
		programmed = "yes"
	}
	device := []string{
		keyValue("Status", status),
		keyValue("Device", config.Info.Device),
		keyValue("Programmed", programmed),
		keyValue("Memory targets", strings.Join(config.Info.MemoryTargets, " ")),
	}

	cores := []string{
		keyValue("IBERT", yesNo(config.Discovery.Ibert)),
		keyValue("PCIe", yesNo(config.Discovery.Pcie)),
		keyValue("ILA", strings.Join(config.Discovery.Ila, ", ")),
	}
	for _, warning := range config.Discovery.Warnings {
		cores = append(cores, theme.WarningStyle.Render(theme.IconAlert+" "+warning))
	}

	right := lipgloss.JoinVertical(lipgloss.Left,
		Panel("Device", strings.Join(device, "\n"), half, false),
		Panel("Cores", strings.Join(cores, "\n"), half, false),
	)
	return SideBySide(Panel("Servers and files", config.Form, half, true), right, config.Compact)
}
