package components

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/versal-debug/vdbg/internal/tui/theme"
)

const (
	confirmDefaultWidth    = 120
	confirmDefaultHeight   = 30
	confirmWidthPct        = 0.54
	confirmCompactWidthPct = 0.80
	confirmCompactBelow    = 120
	confirmMinimumWidth    = 48
)

// ConfirmAction is a keyboard intent inside a confirmation dialog.
type ConfirmAction string

const (
	ConfirmActionNone    ConfirmAction = ""
	ConfirmActionYes     ConfirmAction = "select_yes"
	ConfirmActionNo      ConfirmAction = "select_no"
	ConfirmActionSubmit  ConfirmAction = "submit"
	ConfirmActionDismiss ConfirmAction = "dismiss"
)

// ConfirmDialogConfig describes a yes/no modal. Destructive dialogs default to "yes"
// selected and use the fault color; the others default to "no".
type ConfirmDialogConfig struct {
	Width       int
	Height      int
	Title       string
	Message     string
	Consequence string
	Destructive bool
	// Selected overrides the default selection when SelectionSet is true.
	Selected     bool
	SelectionSet bool
}

// ConfirmActionForKey maps a key to a dialog intent.
func ConfirmActionForKey(msg tea.KeyMsg) ConfirmAction {
	switch strings.ToLower(strings.TrimSpace(msg.String())) {
	case "left", "h", "y":
		return ConfirmActionYes
	case "right", "l", "n":
		return ConfirmActionNo
	case "enter":
		return ConfirmActionSubmit
	case "esc":
		return ConfirmActionDismiss
	default:
		return ConfirmActionNone
	}
}

// ApplyConfirmAction returns the selection after action and whether the dialog is
// resolved. confirmed is only meaningful when done is true.
func ApplyConfirmAction(selected bool, action ConfirmAction) (next bool, done bool, confirmed bool) {
	switch action {
	case ConfirmActionYes:
		return true, false, false
	case ConfirmActionNo:
		return false, false, false
	case ConfirmActionSubmit:
		return selected, true, selected
	case ConfirmActionDismiss:
		return selected, true, false
	default:
		return selected, false, false
	}
}

// DefaultSelection is the selection a freshly opened dialog starts with.
func (c ConfirmDialogConfig) DefaultSelection() bool {
	if c.SelectionSet {
		return c.Selected
	}
	return c.Destructive
}

// RenderConfirmDialog renders a centered modal with a huh confirm field.
func RenderConfirmDialog(config ConfirmDialogConfig) string {
	width := config.Width
	if width <= 0 {
		width = confirmDefaultWidth
	}
	height := config.Height
	if height <= 0 {
		height = confirmDefaultHeight
	}
	modalWidth := int(float64(width) * confirmWidthPct)
	if width < confirmCompactBelow {
		modalWidth = int(float64(width) * confirmCompactWidthPct)
	}
	modalWidth = min(width, max(confirmMinimumWidth, modalWidth))
	inner := max(20, modalWidth-6)

	icon, accent := "[?]", theme.GoldColor
	if config.Destructive {
		icon, accent = "[!]", theme.FaultColor
	}

	selected := config.DefaultSelection()
	field := huh.NewConfirm().
		Title("Proceed?").
		Affirmative("Yes").
		Negative("No").
		Value(&selected)
	_ = field.Init()
	buttons := strings.TrimSpace(field.View())
	if buttons == "" {
		buttons = renderConfirmButtons(selected, config.Destructive)
	}

	centered := lipgloss.NewStyle().Align(lipgloss.Center).Width(inner)
	rows := []string{
		centered.Foreground(accent).Bold(true).Render(icon + " " + strings.TrimSpace(config.Title)),
		centered.Foreground(theme.PaperColor).Render(strings.TrimSpace(config.Message)),
	}
	if consequence := strings.TrimSpace(config.Consequence); consequence != "" {
		rows = append(rows, lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(theme.SlateColor).Padding(0, 1).Render(consequence))
	}
	rows = append(rows,
		buttons,
		centered.Foreground(theme.SlateColor).Faint(true).Render("Y/N or Left/Right to select  Enter confirm  Esc cancel"),
	)

	modal := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(accent).
		Padding(1, 2).
		Width(modalWidth).
		Render(lipgloss.JoinVertical(lipgloss.Left, rows...))

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, modal,
		lipgloss.WithWhitespaceChars("┄"),
		lipgloss.WithWhitespaceForeground(theme.SlateColor),
	)
}

func renderConfirmButtons(selected bool, destructive bool) string {
	plain := lipgloss.NewStyle().Foreground(theme.SilverColor).Border(lipgloss.RoundedBorder()).BorderForeground(theme.SlateColor).Padding(0, 1)
	yes, no := plain, plain
	if selected {
		bg := theme.CautionColor
		if destructive {
			bg = theme.FaultColor
		}
		yes = lipgloss.NewStyle().Background(bg).Foreground(theme.BlackColor).Bold(true).Padding(0, 1)
	} else {
		no = lipgloss.NewStyle().Background(theme.SlateColor).Foreground(theme.PaperColor).Bold(true).Padding(0, 1)
	}
	return lipgloss.JoinHorizontal(lipgloss.Left, yes.Render("Yes"), "  ", no.Render("No"))
}
