// Package views renders the console tabs from view state. Every function is pure:
// it takes a config struct and returns a string.
package views

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/versal-debug/vdbg/internal/tui/theme"
)

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(value string) string {
	return ansiPattern.ReplaceAllString(value, "")
}

// Panel frames body with a titled rounded border.
func Panel(title string, body string, width int, focused bool) string {
	style := theme.PanelBorder
	titleStyle := theme.MutedStyle.Bold(true)
	if focused {
		style = theme.PanelBorderFocused
		titleStyle = theme.FocusStyle
	}
	if width > 4 {
		style = style.Width(width - 2)
	}
	return style.Render(lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(strings.ToUpper(title)), body))
}

// SideBySide places left and right next to each other in standard layouts and stacks
// them in compact ones.
func SideBySide(left string, right string, compact bool) string {
	if compact {
		return lipgloss.JoinVertical(lipgloss.Left, left, right)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, left, " ", right)
}

func keyValue(label string, value string) string {
	if strings.TrimSpace(value) == "" {
		value = theme.MutedStyle.Render("-")
	}
	return fmt.Sprintf("%s %s", theme.InfoStyle.Render(label+":"), value)
}

func yesNo(ok bool) string {
	if ok {
		return theme.SuccessStyle.Render(theme.IconDone + " found")
	}
	return theme.MutedStyle.Render(theme.IconIdle + " none")
}

func byteSize(n int) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}
	return fmt.Sprintf("%.1f KiB", float64(n)/1024)
}
