package menu

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ironstrap/ironstrap/pkg/profile"
)

// Model is the wizard's bubbletea model.
type Model struct {
	profile *profile.Profile
	entries []entry
	cursor  int
	editing *form
	action  Action
	notice  string
	width   int
	height  int
}

// New creates a wizard over the given profile. The profile is mutated in
// place as entries are edited.
func New(p *profile.Profile) Model {
	return Model{
		profile: p,
		entries: entries(p),
	}
}

// Run starts the wizard and blocks until it quits. It returns the action the
// user chose.
func Run(p *profile.Profile) (Action, error) {
	final, err := tea.NewProgram(New(p), tea.WithAltScreen()).Run()
	if err != nil {
		return ActionAbort, fmt.Errorf("wizard failed: %w", err)
	}
	m, ok := final.(Model)
	if !ok {
		return ActionAbort, fmt.Errorf("unexpected wizard model type %T", final)
	}
	if m.action == ActionNone {
		return ActionAbort, nil
	}
	return m.action, nil
}

// Action returns what the wizard resolved to.
func (m Model) Action() Action {
	return m.action
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if m.editing != nil {
			return m.updateForm(msg)
		}
		return m.updateMenu(msg)
	}
	return m, nil
}

func (m Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyEsc {
		m.editing = nil
		return m, nil
	}
	cmd := m.editing.update(msg)
	if m.editing.done {
		m.editing = nil
	}
	return m, cmd
}

func (m Model) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.notice = ""

	switch msg.String() {
	case "ctrl+c", "q":
		m.action = ActionAbort
		return m, tea.Quit

	case "up", "k":
		for i := m.cursor - 1; i >= 0; i-- {
			if !m.entries[i].separator {
				m.cursor = i
				break
			}
		}

	case "down", "j":
		for i := m.cursor + 1; i < len(m.entries); i++ {
			if !m.entries[i].separator {
				m.cursor = i
				break
			}
		}

	case "enter":
		e := m.entries[m.cursor]
		switch {
		case e.separator:
		case e.action == ActionInstall:
			if !mandatoryConfigured(m.profile) {
				m.notice = "mandatory entries (*) must be configured before installing"
				return m, nil
			}
			m.action = ActionInstall
			return m, tea.Quit
		case e.action == ActionSave:
			m.action = ActionSave
			return m, tea.Quit
		case e.action == ActionAbort:
			m.action = ActionAbort
			return m, tea.Quit
		default:
			m.editing = e.form(m.profile)
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.editing != nil {
		return m.editing.view() + "\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("ironstrap") + "\n")

	for i, e := range m.entries {
		if e.separator {
			b.WriteString(dimStyle.Render(strings.Repeat("─", 40)) + "\n")
			continue
		}

		marker := "  "
		if e.mandatory && !e.configured(m.profile) {
			marker = mandatoryStyle.Render("* ")
		}

		line := e.title
		if e.status != nil {
			if status := e.status(m.profile); status != "" {
				line = fmt.Sprintf("%-28s %s", e.title, statusStyle.Render(status))
			}
		}

		if i == m.cursor {
			b.WriteString(marker + selectedStyle.Render("> "+line) + "\n")
		} else {
			b.WriteString(marker + unselectedStyle.Render("  "+line) + "\n")
		}
	}

	if m.notice != "" {
		b.WriteString("\n" + errorStyle.Render(m.notice) + "\n")
	}
	b.WriteString("\n" + dimStyle.Render("↑/↓ move, enter select, q abort"))
	return b.String()
}
