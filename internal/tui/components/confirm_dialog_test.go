package components

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestRenderConfirmDialogContent(t *testing.T) {
	t.Parallel()

	rendered := stripANSI(RenderConfirmDialog(ConfirmDialogConfig{
		Width:       120,
		Height:      30,
		Destructive: true,
		Title:       "RESET TO DEFAULT?",
		Message:     "Running operations are stopped and the session is closed.",
		Consequence: "IBERT links and eye scans are deleted.",
	}))
	for _, expected := range []string{"[!]", "RESET TO DEFAULT?", "session is closed.", "eye scans are deleted.", "Yes", "No", "╔"} {
		if !strings.Contains(rendered, expected) {
			t.Fatalf("dialog missing %q\n%s", expected, rendered)
		}
	}

	quit := stripANSI(RenderConfirmDialog(ConfirmDialogConfig{Title: "QUIT?", Message: "Leave the console?"}))
	if !strings.Contains(quit, "[?] QUIT?") {
		t.Fatalf("standard dialog missing title\n%s", quit)
	}
}

func TestConfirmActionForKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key  tea.KeyMsg
		want ConfirmAction
	}{
		{key: tea.KeyMsg{Type: tea.KeyLeft}, want: ConfirmActionYes},
		{key: tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'y'}}, want: ConfirmActionYes},
		{key: tea.KeyMsg{Type: tea.KeyRight}, want: ConfirmActionNo},
		{key: tea.KeyMsg{Type: tea.KeyEnter}, want: ConfirmActionSubmit},
		{key: tea.KeyMsg{Type: tea.KeyEsc}, want: ConfirmActionDismiss},
		{key: tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}}, want: ConfirmActionNone},
	}
	for _, tt := range tests {
		if got := ConfirmActionForKey(tt.key); got != tt.want {
			t.Fatalf("action for key %q = %q, want %q", tt.key.String(), got, tt.want)
		}
	}
}

func TestApplyConfirmAction(t *testing.T) {
	t.Parallel()

	if next, done, _ := ApplyConfirmAction(false, ConfirmActionYes); !next || done {
		t.Fatalf("yes should select without resolving (next=%v done=%v)", next, done)
	}
	if _, done, confirmed := ApplyConfirmAction(true, ConfirmActionSubmit); !done || !confirmed {
		t.Fatalf("submit on yes should confirm (done=%v confirmed=%v)", done, confirmed)
	}
	if _, done, confirmed := ApplyConfirmAction(true, ConfirmActionDismiss); !done || confirmed {
		t.Fatalf("dismiss should cancel (done=%v confirmed=%v)", done, confirmed)
	}
	if next, done, _ := ApplyConfirmAction(true, ConfirmActionNone); !next || done {
		t.Fatalf("no action should keep state (next=%v done=%v)", next, done)
	}
	if (ConfirmDialogConfig{Destructive: true}).DefaultSelection() != true {
		t.Fatal("destructive dialog should default to yes")
	}
	if (ConfirmDialogConfig{Destructive: true, SelectionSet: true}).DefaultSelection() != false {
		t.Fatal("explicit selection should win")
	}
}
