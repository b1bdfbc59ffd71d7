// Package theme holds the colors, icons and shared styles of the debug console.
package theme

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

const (
	// Amber is the accent for running operations.
	Amber = "#FF9966"
	// Steel is the informational blue.
	Steel = "#9999CC"
	// Orchid marks device discovery and probe setup.
	Orchid = "#CC99CC"
	// Gold highlights the selected control.
	Gold = "#FFAA00"
	// Fault is the failure red.
	Fault = "#FF3333"
	// Caution is the warning yellow.
	Caution = "#FFCC00"
	// Healthy is the success green.
	Healthy = "#33FF33"
	// Black is the background.
	Black = "#000000"
	// Slate is the muted neutral for borders and disabled controls.
	Slate = "#52526A"
	// Paper is the primary text color.
	Paper = "#F5F6FA"
	// Silver is the secondary text color.
	Silver = "#CCCCCC"
	// Violet is the focus ring color.
	Violet = "#9966FF"
	// Ice is the header accent.
	Ice = "#99CCFF"
)

const (
	IconDone     = "✓"
	IconRunning  = "●"
	IconIdle     = "○"
	IconFailed   = "✗"
	IconAlert    = "⚠"
	IconStopping = "◌"
)

var (
	AmberColor   = profileColor(Amber, "209", "11")
	SteelColor   = profileColor(Steel, "146", "12")
	OrchidColor  = profileColor(Orchid, "182", "13")
	GoldColor    = profileColor(Gold, "214", "11")
	FaultColor   = profileColor(Fault, "203", "9")
	CautionColor = profileColor(Caution, "220", "11")
	HealthyColor = profileColor(Healthy, "46", "10")
	BlackColor   = profileColor(Black, "16", "0")
	SlateColor   = profileColor(Slate, "60", "8")
	PaperColor   = profileColor(Paper, "255", "15")
	SilverColor  = profileColor(Silver, "252", "7")
	VioletColor  = profileColor(Violet, "99", "5")
	IceColor     = profileColor(Ice, "153", "14")
)

var (
	ActiveStyle    = lipgloss.NewStyle().Foreground(AmberColor).Bold(true)
	SuccessStyle   = lipgloss.NewStyle().Foreground(HealthyColor).Bold(true)
	ErrorStyle     = lipgloss.NewStyle().Foreground(FaultColor).Bold(true)
	WarningStyle   = lipgloss.NewStyle().Foreground(CautionColor).Bold(true)
	InfoStyle      = lipgloss.NewStyle().Foreground(SteelColor)
	DiscoveryStyle = lipgloss.NewStyle().Foreground(OrchidColor)
	MutedStyle     = lipgloss.NewStyle().Foreground(SlateColor)
	FocusStyle     = lipgloss.NewStyle().Foreground(VioletColor).Bold(true)
	HeaderStyle    = lipgloss.NewStyle().Foreground(IceColor).Bold(true)
)

var (
	PanelBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(SlateColor).
			Padding(0, 1)

	PanelBorderFocused = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(VioletColor).
				Padding(0, 1).
				Bold(true)

	OverlayBorder = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(AmberColor)

	TabStyle       = lipgloss.NewStyle().Foreground(SilverColor).Padding(0, 1)
	TabActiveStyle = lipgloss.NewStyle().Foreground(BlackColor).Background(AmberColor).Bold(true).Padding(0, 1)
)

var colorProfileFn = lipgloss.ColorProfile

func profileColor(hex string, ansi256 string, ansi string) lipgloss.TerminalColor {
	switch colorProfileFn() {
	case termenv.ANSI256, termenv.ANSI:
		complete := lipgloss.CompleteColor{TrueColor: hex, ANSI256: ansi256, ANSI: ansi}
		return lipgloss.CompleteAdaptiveColor{Light: complete, Dark: complete}
	default:
		return lipgloss.AdaptiveColor{Light: hex, Dark: hex}
	}
}
