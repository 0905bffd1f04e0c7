package components

import (
	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/codecoach/internal/ui/theme"
)

// Selector is a single-line choice cycled with left/right.
type Selector struct {
	Label    string
	Options  []string
	Selected int
	Focused  bool
}

// NewSelector creates a selector preselecting current when present.
func NewSelector(label string, options []string, current string) Selector {
	s := Selector{Label: label, Options: options}
	for i, o := range options {
		if o == current {
			s.Selected = i
		}
	}
	return s
}

// Update cycles the selection.
func (s Selector) Update(msg tea.Msg) (Selector, tea.Cmd) {
	kmsg, ok := msg.(tea.KeyMsg)
	if !ok || len(s.Options) == 0 {
		return s, nil
	}
	switch kmsg.String() {
	case "left", "h":
		s.Selected = (s.Selected - 1 + len(s.Options)) % len(s.Options)
	case "right", "l", "space":
		s.Selected = (s.Selected + 1) % len(s.Options)
	}
	return s, nil
}

// Value returns the selected option.
func (s Selector) Value() string {
	if len(s.Options) == 0 {
		return ""
	}
	return s.Options[s.Selected]
}

// View renders "Label  ‹ value ›".
func (s Selector) View() string {
	label := theme.Label.Render(s.Label)
	value := "‹ " + s.Value() + " ›"
	if s.Focused {
		return label + "  " + theme.Selected.Render(value)
	}
	return label + "  " + theme.Unselected.Render(value)
}
