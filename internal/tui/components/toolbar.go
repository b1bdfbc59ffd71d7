package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/versal-debug/vdbg/internal/tui/theme"
)

const toolbarSeparator = "  "

// ToolbarButton is one keyboard-accessible action. Disabled buttons render dimmed
// and never fire, which is how the console greys out an operation that is running.
type ToolbarButton struct {
	Binding key.Binding
	Enabled bool
	Action  tea.Cmd
}

// NewToolbarButton builds a button bound to keys with a short label.
func NewToolbarButton(label string, enabled bool, action tea.Cmd, keys ...string) ToolbarButton {
	return ToolbarButton{
		Binding: key.NewBinding(key.WithKeys(keys...), key.WithHelp(strings.Join(keys, "/"), label)),
		Enabled: enabled,
		Action:  action,
	}
}

// RenderToolbar renders `[key] Label` buttons separated by two spaces.
func RenderToolbar(buttons []ToolbarButton, highlighted int) string {
	parts := make([]string, 0, len(buttons))
	for i, button := range buttons {
		parts = append(parts, renderToolbarButton(button, i == highlighted))
	}
	return strings.Join(parts, toolbarSeparator)
}

// NextToolbarIndex returns the next enabled button index, wrapping around.
func NextToolbarIndex(buttons []ToolbarButton, current int) int {
	return walkToolbar(buttons, current, 1)
}

// PreviousToolbarIndex returns the previous enabled button index, wrapping around.
func PreviousToolbarIndex(buttons []ToolbarButton, current int) int {
	return walkToolbar(buttons, current, -1)
}

// ActivateHighlighted runs the highlighted button when it is enabled.
func ActivateHighlighted(buttons []ToolbarButton, highlighted int) tea.Msg {
	if highlighted < 0 || highlighted >= len(buttons) {
		return nil
	}
	return activate(buttons[highlighted])
}

// ActivateByKey runs the first enabled button bound to msg. matched reports whether
// any button, enabled or not, owns the key.
func ActivateByKey(buttons []ToolbarButton, msg tea.KeyMsg) (result tea.Msg, matched bool) {
	for _, button := range buttons {
		if key.Matches(msg, button.Binding) {
			return activate(button), true
		}
	}
	return nil, false
}

// Bindings lists the key bindings of buttons for help rendering.
func Bindings(buttons []ToolbarButton) []key.Binding {
	out := make([]key.Binding, 0, len(buttons))
	for _, button := range buttons {
		out = append(out, button.Binding)
	}
	return out
}

func activate(button ToolbarButton) tea.Msg {
	if !button.Enabled || button.Action == nil {
		return nil
	}
	return button.Action()
}

func walkToolbar(buttons []ToolbarButton, current int, step int) int {
	enabled := false
	for _, button := range buttons {
		enabled = enabled || button.Enabled
	}
	if !enabled {
		return -1
	}

	index := current
	if index < 0 || index >= len(buttons) {
		index = 0
	}
	for range buttons {
		index = (index + step + len(buttons)) % len(buttons)
		if buttons[index].Enabled {
			return index
		}
	}
	return -1
}

func renderToolbarButton(button ToolbarButton, highlighted bool) string {
	help := button.Binding.Help()
	keyStyle := lipgloss.NewStyle().Foreground(theme.AmberColor)
	labelStyle := lipgloss.NewStyle().Foreground(theme.PaperColor)
	if !button.Enabled {
		keyStyle = theme.MutedStyle
		labelStyle = keyStyle
	}
	content := keyStyle.Render("["+help.Key+"]") + " " + labelStyle.Render(help.Desc)
	return toolbarButtonStyle(button, highlighted).Render(content)
}

func toolbarButtonStyle(button ToolbarButton, highlighted bool) lipgloss.Style {
	if !button.Enabled {
		return theme.MutedStyle
	}
	if highlighted {
		return lipgloss.NewStyle().Background(theme.VioletColor).Foreground(theme.PaperColor).Bold(true)
	}
	return lipgloss.NewStyle()
}
