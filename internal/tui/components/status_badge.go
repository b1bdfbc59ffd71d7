package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/versal-debug/vdbg/internal/render"
	"github.com/versal-debug/vdbg/internal/tui/theme"
)

// BadgeOpt configures optional rendering behavior for StatusBadge.
type BadgeOpt func(*badgeOptions)

type badgeOptions struct {
	showIcon bool
	bold     bool
}

type badgeVariant struct {
	icon  string
	label string
	color lipgloss.TerminalColor
}

var statusBadgeVariants = map[string]badgeVariant{
	"idle":     {icon: theme.IconIdle, label: "IDLE", color: theme.SlateColor},
	"running":  {icon: theme.IconRunning, label: "RUNNING", color: theme.AmberColor},
	"stopping": {icon: theme.IconStopping, label: "STOPPING", color: theme.CautionColor},
	"done":     {icon: theme.IconDone, label: "DONE", color: theme.HealthyColor},
	"failed":   {icon: theme.IconFailed, label: "FAILED", color: theme.FaultColor},
}

// WithBadgeIcon controls whether the icon is shown (default: true).
func WithBadgeIcon(show bool) BadgeOpt {
	return func(options *badgeOptions) {
		options.showIcon = show
	}
}

// WithBadgeBold controls whether the badge text is bold (default: false).
func WithBadgeBold(bold bool) BadgeOpt {
	return func(options *badgeOptions) {
		options.bold = bold
	}
}

// BadgeStatus maps an operation's activity to a badge status. stopping is true once
// the operator asked the task to stop.
func BadgeStatus(activity render.Activity, stopping bool) string {
	switch {
	case activity.Running && stopping:
		return "stopping"
	case activity.Running:
		return "running"
	case activity.Failed:
		return "failed"
	case activity.Status == "done":
		return "done"
	default:
		return "idle"
	}
}

// RenderStatusBadge renders `[icon] LABEL` in the status color.
func RenderStatusBadge(status string, opts ...BadgeOpt) string {
	options := badgeOptions{showIcon: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	variant, ok := statusBadgeVariants[strings.ToLower(strings.TrimSpace(status))]
	if !ok {
		variant = badgeVariant{
			icon:  theme.IconAlert,
			label: strings.ToUpper(strings.TrimSpace(status)),
			color: theme.SlateColor,
		}
		if variant.label == "" {
			variant.label = "UNKNOWN"
		}
	}

	content := variant.label
	if options.showIcon {
		content = variant.icon + " " + variant.label
	}
	return lipgloss.NewStyle().Foreground(variant.color).Bold(options.bold).Render(content)
}
