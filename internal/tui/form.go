package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/versal-debug/vdbg/internal/tui/theme"
)

// FieldSpec declares one text input of a tab.
type FieldSpec struct {
	Name        string
	Label       string
	Placeholder string
	Value       string
}

type field struct {
	spec  FieldSpec
	input textinput.Model
}

// Form is the ordered set of inputs on one tab. Tab and Shift+Tab move focus.
type Form struct {
	fields []field
	focus  int
}

// NewForm builds a form with the first field focused.
func NewForm(specs ...FieldSpec) *Form {
	f := &Form{fields: make([]field, 0, len(specs))}
	for _, spec := range specs {
		input := textinput.New()
		input.Placeholder = spec.Placeholder
		input.SetValue(spec.Value)
		input.Prompt = ""
		input.CharLimit = 256
		f.fields = append(f.fields, field{spec: spec, input: input})
	}
	f.setFocus(0)
	return f
}

// Value returns the trimmed value of the named field.
func (f *Form) Value(name string) string {
	for _, fl := range f.fields {
		if fl.spec.Name == name {
			return strings.TrimSpace(fl.input.Value())
		}
	}
	return ""
}

// SetValue replaces the named field's value.
func (f *Form) SetValue(name string, value string) {
	for i := range f.fields {
		if f.fields[i].spec.Name == name {
			f.fields[i].input.SetValue(value)
		}
	}
}

// Focused returns the focused field name, or "" for an empty form.
func (f *Form) Focused() string {
	if len(f.fields) == 0 {
		return ""
	}
	return f.fields[f.focus].spec.Name
}

// Cycle moves focus forward or backward, wrapping around.
func (f *Form) Cycle(forward bool) {
	if len(f.fields) == 0 {
		return
	}
	step := 1
	if !forward {
		step = -1
	}
	f.setFocus((f.focus + step + len(f.fields)) % len(f.fields))
}

// Update forwards msg to the focused input.
func (f *Form) Update(msg tea.Msg) tea.Cmd {
	if len(f.fields) == 0 {
		return nil
	}
	var cmd tea.Cmd
	f.fields[f.focus].input, cmd = f.fields[f.focus].input.Update(msg)
	return cmd
}

// View renders one labelled input per line.
func (f *Form) View(width int) string {
	labelWidth := 0
	for _, fl := range f.fields {
		labelWidth = max(labelWidth, len(fl.spec.Label))
	}
	rows := make([]string, 0, len(f.fields))
	for i, fl := range f.fields {
		input := fl.input
		input.Width = max(8, width-labelWidth-6)
		label := lipgloss.NewStyle().Width(labelWidth + 1).Render(fl.spec.Label)
		if i == f.focus {
			label = theme.FocusStyle.Render("▸ " + label)
		} else {
			label = theme.InfoStyle.Render("  " + label)
		}
		rows = append(rows, label+" "+input.View())
	}
	return strings.Join(rows, "\n")
}

func (f *Form) setFocus(index int) {
	for i := range f.fields {
		if i == index {
			f.fields[i].input.Focus()
		} else {
			f.fields[i].input.Blur()
		}
	}
	f.focus = index
}
