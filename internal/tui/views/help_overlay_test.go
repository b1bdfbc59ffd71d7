package views

import (
	"strings"
	"testing"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

func TestRenderHelpOverlayIncludesSectionsAndNotes(t *testing.T) {
	t.Parallel()

	rendered := stripANSI(RenderHelpOverlay(HelpOverlayConfig{
		Width:   120,
		Height:  40,
		Context: "Registers",
		Sections: []HelpSection{
			GlobalHelpSection(),
			{Title: "Registers", Bindings: []key.Binding{helpBinding([]string{"ctrl+r"}, "ctrl+r", "Read registers")}},
		},
		Notes: "Readings are polled until **stopped**.",
	}))

	for _, expected := range []string{
		"KEYBOARD SHORTCUTS",
		"Tab: Registers",
		"GLOBAL",
		"REGISTERS",
		"Ctrl+G",
		"Read registers",
		"stopped",
		"Press F1 or Escape to close",
		"╔",
	} {
		if !strings.Contains(rendered, expected) {
			t.Fatalf("help overlay missing %q\n%s", expected, rendered)
		}
	}
}

func TestCloseHelpKey(t *testing.T) {
	t.Parallel()

	cases := []struct {
		key  tea.KeyMsg
		want bool
	}{
		{key: tea.KeyMsg{Type: tea.KeyF1}, want: true},
		{key: tea.KeyMsg{Type: tea.KeyEsc}, want: true},
		{key: tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}}, want: false},
	}
	for _, testCase := range cases {
		if got := CloseHelpKey(testCase.key); got != testCase.want {
			t.Fatalf("CloseHelpKey(%q) = %v, want %v", testCase.key.String(), got, testCase.want)
		}
	}
	if contextLabel("") != "Global" {
		t.Fatal("empty context should read Global")
	}
}
