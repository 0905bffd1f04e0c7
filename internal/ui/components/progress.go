package components

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/codecoach/internal/session"
	"github.com/abhisek/codecoach/internal/ui/theme"
)

// StageBar shows the five learning stages with the current one
// highlighted and earlier ones checked off.
type StageBar struct {
	Current   session.Stage
	Completed bool
	Width     int
}

// View renders the bar. Narrow widths fall back to "Stage n/5: Title".
func (p StageBar) View() string {
	stages := session.Stages()
	cur := p.Current.Index()

	parts := make([]string, 0, len(stages))
	for i, st := range stages {
		switch {
		case i < cur || (p.Completed && i == cur):
			parts = append(parts, theme.StageDone.Render("✓ "+st.Title()))
		case i == cur:
			parts = append(parts, theme.StageCurrent.Render(st.Title()))
		default:
			parts = append(parts, theme.StagePending.Render(st.Title()))
		}
	}
	full := strings.Join(parts, theme.StagePending.Render(" › "))
	if p.Width <= 0 || lipgloss.Width(full) <= p.Width {
		return full
	}

	label := fmt.Sprintf("Stage %d/%d: %s", cur+1, len(stages), p.Current.Title())
	if p.Completed {
		label += " ✓"
	}
	return theme.StageCurrent.Render(label)
}
