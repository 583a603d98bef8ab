package menu

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

type fieldKind int

const (
	fieldText fieldKind = iota
	fieldSecret
	fieldSelect
	fieldMulti
	fieldYesNo
)

// field is a single prompt within an entry editor.
type field struct {
	label   string
	kind    fieldKind
	options []string
	// skip decides at runtime whether the field is asked, based on answers
	// given so far.
	skip func(f *form) bool

	input    textinput.Model
	value    string
	selected map[int]bool
	cursor   int
}

// form is a sequence of fields edited one after another. When the last field
// is confirmed, apply writes the answers into the profile.
type form struct {
	title  string
	fields []*field
	index  int
	apply  func(f *form)
	done   bool
}

func newForm(title string, apply func(f *form), fields ...*field) *form {
	f := &form{title: title, fields: fields, apply: apply}
	for _, fl := range fields {
		fl.selected = map[int]bool{}
		if fl.kind == fieldText || fl.kind == fieldSecret {
			ti := textinput.New()
			ti.SetValue(fl.value)
			if fl.kind == fieldSecret {
				ti.EchoMode = textinput.EchoPassword
			}
			fl.input = ti
		}
		if fl.kind == fieldYesNo {
			fl.options = []string{"yes", "no"}
			if fl.value == "no" {
				fl.cursor = 1
			}
		}
	}
	f.focusCurrent()
	return f
}

func textField(label, value string) *field {
	return &field{label: label, kind: fieldText, value: value}
}

func secretField(label string) *field {
	return &field{label: label, kind: fieldSecret}
}

func selectField(label string, options []string, current string) *field {
	f := &field{label: label, kind: fieldSelect, options: options}
	for i, opt := range options {
		if opt == current {
			f.cursor = i
		}
	}
	return f
}

func multiField(label string, options []string, current []string) *field {
	f := &field{label: label, kind: fieldMulti, options: options, selected: map[int]bool{}}
	for i, opt := range options {
		for _, c := range current {
			if c == opt {
				f.selected[i] = true
			}
		}
	}
	return f
}

func yesNoField(label string, current bool) *field {
	value := "no"
	if current {
		value = "yes"
	}
	return &field{label: label, kind: fieldYesNo, value: value}
}

// value returns the answer to the field with the given label.
func (f *form) value(label string) string {
	for _, fl := range f.fields {
		if fl.label == label {
			return fl.value
		}
	}
	return ""
}

// chosen returns the selected options of a multi field.
func (f *form) chosen(label string) []string {
	for _, fl := range f.fields {
		if fl.label != label {
			continue
		}
		var out []string
		for i, opt := range fl.options {
			if fl.selected[i] {
				out = append(out, opt)
			}
		}
		return out
	}
	return nil
}

func (f *form) boolValue(label string) bool {
	return f.value(label) == "yes"
}

func (f *form) current() *field {
	return f.fields[f.index]
}

func (f *form) focusCurrent() {
	fl := f.current()
	if fl.kind == fieldText || fl.kind == fieldSecret {
		fl.input.Focus()
	}
}

// advance commits the current field and moves to the next unskipped one,
// applying the form when every field is answered.
func (f *form) advance() {
	fl := f.current()
	switch fl.kind {
	case fieldText, fieldSecret:
		fl.value = fl.input.Value()
	case fieldSelect, fieldYesNo:
		fl.value = fl.options[fl.cursor]
	}

	for f.index++; f.index < len(f.fields); f.index++ {
		next := f.fields[f.index]
		if next.skip == nil || !next.skip(f) {
			f.focusCurrent()
			return
		}
	}

	f.apply(f)
	f.done = true
}

// update handles a key press for the active field.
func (f *form) update(msg tea.KeyMsg) tea.Cmd {
	fl := f.current()

	switch fl.kind {
	case fieldText, fieldSecret:
		if msg.Type == tea.KeyEnter {
			f.advance()
			return nil
		}
		var cmd tea.Cmd
		fl.input, cmd = fl.input.Update(msg)
		return cmd

	case fieldSelect, fieldYesNo:
		switch msg.String() {
		case "up", "k":
			if fl.cursor > 0 {
				fl.cursor--
			}
		case "down", "j":
			if fl.cursor < len(fl.options)-1 {
				fl.cursor++
			}
		case "enter":
			f.advance()
		}

	case fieldMulti:
		switch msg.String() {
		case "up", "k":
			if fl.cursor > 0 {
				fl.cursor--
			}
		case "down", "j":
			if fl.cursor < len(fl.options)-1 {
				fl.cursor++
			}
		case " ":
			fl.selected[fl.cursor] = !fl.selected[fl.cursor]
		case "enter":
			f.advance()
		}
	}
	return nil
}

// view renders the active field.
func (f *form) view() string {
	fl := f.current()
	var b strings.Builder
	b.WriteString(titleStyle.Render(f.title) + "\n")
	b.WriteString(promptStyle.Render(fl.label) + "\n\n")

	switch fl.kind {
	case fieldText, fieldSecret:
		b.WriteString(fl.input.View() + "\n")
		b.WriteString(dimStyle.Render("\nenter confirm, esc cancel"))

	case fieldSelect, fieldYesNo:
		for i, opt := range fl.options {
			if i == fl.cursor {
				b.WriteString(selectedStyle.Render("> "+opt) + "\n")
			} else {
				b.WriteString(unselectedStyle.Render("  "+opt) + "\n")
			}
		}
		b.WriteString(dimStyle.Render("\nenter confirm, esc cancel"))

	case fieldMulti:
		for i, opt := range fl.options {
			mark := "[ ]"
			if fl.selected[i] {
				mark = "[x]"
			}
			line := mark + " " + opt
			if i == fl.cursor {
				b.WriteString(selectedStyle.Render("> "+line) + "\n")
			} else {
				b.WriteString(unselectedStyle.Render("  "+line) + "\n")
			}
		}
		b.WriteString(dimStyle.Render("\nspace toggle, enter confirm, esc cancel"))
	}
	return b.String()
}
