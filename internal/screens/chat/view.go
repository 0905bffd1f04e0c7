package chat

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/codecoach/internal/session"
	"github.com/abhisek/codecoach/internal/ui/components"
	"github.com/abhisek/codecoach/internal/ui/theme"
)

const editorHeight = 10

type rendered struct {
	textLen  int
	width    int
	complete bool
	out      string
}

var kindLabels = map[session.Kind]string{
	session.KindGreeting:    "welcome",
	session.KindHint:        "hint",
	session.KindExplanation: "explanation",
	session.KindFeedback:    "code review",
	session.KindTransition:  "next stage",
	session.KindSummary:     "summary",
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// renderMessage renders one transcript entry, reusing the cached output
// while the message is unchanged.
func (s *ChatScreen) renderMessage(m session.Message, width int) string {
	if c, ok := s.cache[m.ID]; ok && c.textLen == len(m.Text) && c.width == width && c.complete == m.Complete {
		return c.out
	}

	var name string
	if m.IsAI() {
		name = theme.TutorName.Render("Tutor")
	} else {
		name = theme.UserName.Render("You")
	}
	if label, ok := kindLabels[m.Kind]; ok {
		name += " " + theme.KindTag.Render("· "+label)
	}

	var body string
	switch {
	case m.IsAI() && m.Complete:
		body = s.md.Render(m.Text, width)
	case m.IsAI():
		body = theme.Body.Width(width).Render(m.Text + "▌")
	default:
		body = theme.UserText.Width(width).Render(m.Text)
	}

	out := name + "\n" + body
	s.cache[m.ID] = rendered{textLen: len(m.Text), width: width, complete: m.Complete, out: out}
	return out
}

func (s *ChatScreen) transcript(width int) string {
	st := s.state
	var parts []string
	if st.Dropped > 0 {
		parts = append(parts, theme.Hint.Render(fmt.Sprintf("… %d earlier messages not shown", st.Dropped)))
	}
	live := make(map[int64]bool, len(st.Messages))
	for _, m := range st.Messages {
		live[m.ID] = true
		parts = append(parts, s.renderMessage(m, width))
	}
	for id := range s.cache {
		if !live[id] {
			delete(s.cache, id)
		}
	}
	if st.LearningCompleted {
		parts = append(parts, theme.Correct.Render("Learning complete! Press Ctrl+R to start a new session."))
	}
	return strings.Join(parts, "\n\n")
}

func (s *ChatScreen) refreshTranscript() {
	if s.width == 0 {
		return
	}
	s.viewport.SetContent(s.transcript(s.viewport.Width() - 2))
	if s.follow {
		s.viewport.GotoBottom()
	}
}

func (s *ChatScreen) bottomPanel(width int) string {
	switch s.mode {
	case modeEditor:
		s.editor.SetWidth(width - 4)
		s.editor.SetHeight(editorHeight)
		title := theme.Label.Render(fmt.Sprintf("Code (%s)", s.state.Language))
		return title + "\n" + theme.FocusedPanel.Width(width).Render(s.editor.View())
	case modeHint, modeExplain:
		label := "Hint"
		if s.mode == modeExplain {
			label = "Explain"
		}
		s.prompt.SetWidth(width - 12)
		return theme.FocusedPanel.Width(width).Render(theme.Label.Render(label) + " " + s.prompt.View())
	case modeConfirmLeave:
		return theme.FocusedPanel.BorderForeground(theme.Accent).Width(width).
			Render("Leave this session and start a new one? (y/n)")
	}
	s.input.SetWidth(width - 6)
	return theme.Panel.Width(width).Render(s.input.View())
}

func (s *ChatScreen) View(width, height int) string {
	st := s.state
	inner := width - 2

	header := components.StageBar{Current: st.Stage, Completed: st.LearningCompleted, Width: inner}.View()

	var status []string
	if st.Err != "" {
		status = append(status, theme.Banner.Width(inner).Render("! "+st.Err))
	}
	if s.notice != "" {
		status = append(status, theme.Hint.Render(s.notice))
	}
	if st.Streaming && !st.Initializing {
		status = append(status, s.spinner.View()+theme.Hint.Render(" thinking..."))
	}

	bottom := s.bottomPanel(inner)

	used := lipgloss.Height(header) + 1 + lipgloss.Height(bottom)
	for _, l := range status {
		used += lipgloss.Height(l)
	}
	vpHeight := height - used
	if vpHeight < 3 {
		vpHeight = 3
	}

	var body string
	if st.Initializing && len(st.Messages) == 0 {
		body = lipgloss.Place(inner, vpHeight, lipgloss.Center, lipgloss.Center,
			s.spinner.View()+" "+theme.Hint.Render("Preparing your session..."))
	} else {
		if s.width != width || s.height != height {
			s.width, s.height = width, height
			s.viewport.SetWidth(inner)
			s.viewport.SetHeight(vpHeight)
			s.refreshTranscript()
		} else if s.viewport.Height() != vpHeight {
			s.viewport.SetHeight(vpHeight)
			if s.follow {
				s.viewport.GotoBottom()
			}
		}
		body = s.viewport.View()
	}

	rows := []string{header, body}
	rows = append(rows, status...)
	rows = append(rows, bottom)
	return lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(rows, "\n"))
}
