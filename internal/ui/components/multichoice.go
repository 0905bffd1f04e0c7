package components

import (
	"fmt"
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/codecoach/internal/session"
	"github.com/abhisek/codecoach/internal/ui/theme"
)

// MultiChoice is a multiple-choice selector over parsed challenge options.
// Correctness is decided elsewhere and reported through Resolve.
type MultiChoice struct {
	Options     []session.ChallengeOption
	Selected    int
	Submitted   bool
	ChosenIndex int
	resolved    bool
	correct     bool
}

// NewMultiChoice creates a new multiple-choice component.
func NewMultiChoice(options []session.ChallengeOption) MultiChoice {
	return MultiChoice{
		Options:     options,
		ChosenIndex: -1,
	}
}

// Update handles keyboard navigation and selection. Pressing an option's
// letter selects and submits it.
func (m MultiChoice) Update(msg tea.Msg) (MultiChoice, tea.Cmd) {
	if m.Submitted {
		return m, nil
	}

	kmsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	key := kmsg.String()
	switch key {
	case "up", "k":
		if m.Selected > 0 {
			m.Selected--
		}
	case "down", "j":
		if m.Selected < len(m.Options)-1 {
			m.Selected++
		}
	case "enter":
		m.Submitted = true
		m.ChosenIndex = m.Selected
	default:
		for i, o := range m.Options {
			if strings.EqualFold(key, o.Label) {
				m.Selected = i
				m.Submitted = true
				m.ChosenIndex = i
			}
		}
	}

	return m, nil
}

// Chosen returns the submitted option.
func (m MultiChoice) Chosen() (session.ChallengeOption, bool) {
	if !m.Submitted || m.ChosenIndex < 0 || m.ChosenIndex >= len(m.Options) {
		return session.ChallengeOption{}, false
	}
	return m.Options[m.ChosenIndex], true
}

// Resolve records whether the submitted option was correct.
func (m *MultiChoice) Resolve(correct bool) {
	m.resolved = true
	m.correct = correct
}

// Reset allows another attempt.
func (m *MultiChoice) Reset() {
	m.Submitted = false
	m.ChosenIndex = -1
	m.resolved = false
}

// View renders the options.
func (m MultiChoice) View() string {
	var b strings.Builder
	for i, opt := range m.Options {
		prefix := "  "
		if i == m.Selected && !m.Submitted {
			prefix = "▸ "
		}
		line := fmt.Sprintf("%s%s)  %s", prefix, opt.Label, opt.Text)

		var style lipgloss.Style
		switch {
		case m.resolved && i == m.ChosenIndex && m.correct:
			style = theme.Correct
		case m.resolved && i == m.ChosenIndex:
			style = theme.Incorrect
		case m.Submitted && i == m.ChosenIndex:
			style = theme.Selected
		case m.Submitted:
			style = lipgloss.NewStyle().Foreground(theme.TextDim)
		case i == m.Selected:
			style = theme.Selected
		default:
			style = theme.Unselected
		}
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}
