package views

import (
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/versal-debug/vdbg/internal/tui/theme"
)

const (
	helpDefaultWidth    = 120
	helpDefaultHeight   = 30
	helpWidthPct        = 0.70
	helpCompactWidthPct = 0.85
	helpCompactBelow    = 120
	helpMinimumWidth    = 56
)

// HelpSection is one titled group of key bindings.
type HelpSection struct {
	Title    string
	Bindings []key.Binding
}

// HelpOverlayConfig contains all rendering inputs for the help overlay. Notes is
// markdown describing the current tab.
type HelpOverlayConfig struct {
	Width    int
	Height   int
	Context  string
	Sections []HelpSection
	Notes    string
}

// CloseHelpKey reports whether msg closes the help overlay.
func CloseHelpKey(msg tea.KeyMsg) bool {
	switch strings.ToLower(strings.TrimSpace(msg.String())) {
	case "f1", "esc", "?":
		return true
	default:
		return false
	}
}

// GlobalHelpSection lists the bindings that work on every tab.
func GlobalHelpSection() HelpSection {
	return HelpSection{
		Title: "Global",
		Bindings: []key.Binding{
			helpBinding([]string{"f1"}, "F1", "Toggle help"),
			helpBinding([]string{"f2", "f3", "f4", "f5", "f6"}, "F2-F6", "Switch tab"),
			helpBinding([]string{"tab"}, "Tab", "Next field"),
			helpBinding([]string{"shift+tab"}, "Shift+Tab", "Previous field"),
			helpBinding([]string{"pgup", "pgdown"}, "PgUp/PgDn", "Move toolbar highlight"),
			helpBinding([]string{"enter"}, "Enter", "Run highlighted action"),
			helpBinding([]string{"ctrl+g"}, "Ctrl+G", "Reset to default"),
			helpBinding([]string{"ctrl+c"}, "Ctrl+C", "Quit"),
		},
	}
}

// RenderHelpOverlay renders the keyboard shortcut modal.
func RenderHelpOverlay(config HelpOverlayConfig) string {
	width := config.Width
	if width <= 0 {
		width = helpDefaultWidth
	}
	height := config.Height
	if height <= 0 {
		height = helpDefaultHeight
	}
	modalWidth := int(float64(width) * helpWidthPct)
	if width < helpCompactBelow {
		modalWidth = int(float64(width) * helpCompactWidthPct)
	}
	modalWidth = min(width, max(helpMinimumWidth, modalWidth))
	contentWidth := max(24, modalWidth-4)

	helpModel := help.New()
	helpModel.Width = contentWidth
	helpModel.ShowAll = true

	centered := lipgloss.NewStyle().Align(lipgloss.Center).Width(contentWidth)
	rule := theme.MutedStyle.Render(strings.Repeat("─", contentWidth))
	blocks := []string{
		centered.Foreground(theme.AmberColor).Bold(true).Render("KEYBOARD SHORTCUTS"),
		centered.Foreground(theme.SilverColor).Faint(true).Render("Tab: " + contextLabel(config.Context)),
		rule,
	}
	for _, section := range config.Sections {
		body := strings.TrimSpace(helpModel.FullHelpView([][]key.Binding{section.Bindings}))
		if body == "" {
			body = "No shortcuts defined."
		}
		blocks = append(blocks, theme.HeaderStyle.Render(strings.ToUpper(section.Title)), body)
	}
	if notes := strings.TrimSpace(config.Notes); notes != "" {
		blocks = append(blocks, rule, strings.TrimRight(renderMarkdown(notes, contentWidth), "\n"))
	}
	blocks = append(blocks, rule, centered.Foreground(theme.SilverColor).Faint(true).Render("Press F1 or Escape to close"))

	modal := lipgloss.NewStyle().
		Width(modalWidth).
		Border(lipgloss.DoubleBorder()).
		BorderForeground(theme.SteelColor).
		Padding(0, 1).
		Render(lipgloss.JoinVertical(lipgloss.Left, blocks...))

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, modal,
		lipgloss.WithWhitespaceChars("┄"),
		lipgloss.WithWhitespaceForeground(theme.SlateColor),
	)
}

func renderMarkdown(markdown string, width int) string {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(max(40, width)),
	)
	if err != nil {
		return markdown
	}
	rendered, err := renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return rendered
}

func helpBinding(keys []string, helpKey string, description string) key.Binding {
	return key.NewBinding(key.WithKeys(keys...), key.WithHelp(helpKey, description))
}

func contextLabel(context string) string {
	if context = strings.TrimSpace(context); context == "" {
		return "Global"
	}
	return context
}
