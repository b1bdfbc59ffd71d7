package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/versal-debug/vdbg/internal/render"
	"github.com/versal-debug/vdbg/internal/tui/theme"
)

const (
	eventLogCompactBelow   = 120
	eventLogStandardLines  = 8
	eventLogCompactLines   = 4
	eventLogSmallTermLines = 2
	eventLogTimeLayout     = "15:04:05"
)

// EventLogConfig contains render-time settings for the notification log.
type EventLogConfig struct {
	Width          int
	Height         int
	TerminalHeight int
	Notifications  []render.Notification
	ErrorsOnly     bool
	AutoScroll     bool
}

// EventLogLines computes visible log lines for the current layout.
func EventLogLines(width int, terminalHeight int) int {
	if terminalHeight > 0 && terminalHeight < 30 {
		return eventLogSmallTermLines
	}
	if width > 0 && width < eventLogCompactBelow {
		return eventLogCompactLines
	}
	return eventLogStandardLines
}

// BuildEventLog constructs a viewport over the notifications, newest last.
func BuildEventLog(config EventLogConfig) viewport.Model {
	width := max(24, config.Width)
	height := EventLogLines(config.Width, config.TerminalHeight)
	if config.Height > 0 && config.Height < height {
		height = config.Height
	}
	height = max(2, height)

	lines := make([]string, 0, len(config.Notifications))
	for _, n := range config.Notifications {
		if config.ErrorsOnly && n.Level != render.LevelError {
			continue
		}
		lines = append(lines, renderNotification(n))
	}
	if len(lines) == 0 {
		lines = []string{theme.MutedStyle.Faint(true).Render("No notifications")}
	}

	model := viewport.New(width, height)
	model.SetContent(strings.Join(lines, "\n"))
	if config.AutoScroll {
		model.GotoBottom()
	}
	return model
}

// RenderEventLog renders the notification viewport.
func RenderEventLog(config EventLogConfig) string {
	return BuildEventLog(config).View()
}

func renderNotification(n render.Notification) string {
	level := theme.InfoStyle.Bold(true).Render("[INFO]")
	if n.Level == render.LevelError {
		level = theme.ErrorStyle.Render("[ERROR]")
	}
	stamp := "--:--:--"
	if !n.At.IsZero() {
		stamp = n.At.Format(eventLogTimeLayout)
	}
	source := string(n.Kind)
	if source == "" {
		source = "console"
	}
	return lipgloss.JoinHorizontal(lipgloss.Left,
		level, " ",
		lipgloss.NewStyle().Foreground(theme.SilverColor).Render(stamp), " ",
		lipgloss.NewStyle().Foreground(theme.IceColor).Render(source), " ",
		lipgloss.NewStyle().Foreground(theme.PaperColor).Render(n.Message),
	)
}
