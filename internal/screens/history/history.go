// Package history lists journaled sessions and replays their transcripts.
package history

import (
	"context"
	"fmt"
	"strings"

	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/codecoach/internal/router"
	"github.com/abhisek/codecoach/internal/screen"
	"github.com/abhisek/codecoach/internal/session"
	"github.com/abhisek/codecoach/internal/store"
	"github.com/abhisek/codecoach/internal/ui/components"
	"github.com/abhisek/codecoach/internal/ui/layout"
	"github.com/abhisek/codecoach/internal/ui/theme"
)

// ListLimit caps how many sessions the screen loads.
const ListLimit = 50

type sessionsLoadedMsg struct {
	Sessions []store.SessionRecord
	Err      error
}

type transcriptLoadedMsg struct {
	SessionID string
	Events    []store.Event
	Err       error
}

// HistoryScreen displays past sessions and, on Enter, the transcript of
// the selected one.
type HistoryScreen struct {
	ctx     context.Context
	journal *store.Store

	sessions []store.SessionRecord
	selected int
	loaded   bool
	errMsg   string

	open     *store.SessionRecord
	events   []store.Event
	viewport viewport.Model
	md       *components.Markdown
	vpWidth  int
}

var _ screen.Screen = (*HistoryScreen)(nil)
var _ screen.KeyHintProvider = (*HistoryScreen)(nil)

// New creates a new HistoryScreen.
func New(ctx context.Context, journal *store.Store) *HistoryScreen {
	return &HistoryScreen{
		ctx:      ctx,
		journal:  journal,
		viewport: viewport.New(),
		md:       components.NewMarkdown("dark"),
	}
}

func (s *HistoryScreen) Init() tea.Cmd {
	ctx, j := s.ctx, s.journal
	return func() tea.Msg {
		if j == nil {
			return sessionsLoadedMsg{}
		}
		sessions, err := j.ListSessions(ctx, ListLimit)
		return sessionsLoadedMsg{Sessions: sessions, Err: err}
	}
}

func (s *HistoryScreen) Title() string {
	if s.open != nil {
		return "Transcript"
	}
	return "History"
}

func (s *HistoryScreen) KeyHints() []layout.KeyHint {
	if s.open != nil {
		return []layout.KeyHint{
			{Key: "↑↓", Description: "Scroll"},
			{Key: "Esc", Description: "Back"},
		}
	}
	return []layout.KeyHint{
		{Key: "Enter", Description: "Transcript"},
		{Key: "↑↓", Description: "Navigate"},
		{Key: "Esc", Description: "Back"},
	}
}

func (s *HistoryScreen) loadTranscript(rec store.SessionRecord) tea.Cmd {
	ctx, j := s.ctx, s.journal
	return func() tea.Msg {
		events, err := j.Transcript(ctx, rec.ID)
		return transcriptLoadedMsg{SessionID: rec.ID, Events: events, Err: err}
	}
}

func (s *HistoryScreen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case sessionsLoadedMsg:
		if msg.Err != nil {
			s.errMsg = msg.Err.Error()
		} else {
			s.sessions = msg.Sessions
		}
		s.loaded = true
		return s, nil

	case transcriptLoadedMsg:
		if s.open == nil || s.open.ID != msg.SessionID {
			return s, nil
		}
		if msg.Err != nil {
			s.errMsg = msg.Err.Error()
			s.open = nil
			return s, nil
		}
		s.events = msg.Events
		s.vpWidth = 0
		return s, nil

	case tea.KeyMsg:
		if s.open != nil {
			if msg.String() == "esc" {
				s.open, s.events = nil, nil
				return s, nil
			}
			var cmd tea.Cmd
			s.viewport, cmd = s.viewport.Update(msg)
			return s, cmd
		}
		switch msg.String() {
		case "esc":
			return s, func() tea.Msg { return router.PopScreenMsg{} }
		case "up", "k":
			if s.selected > 0 {
				s.selected--
			}
		case "down", "j":
			if s.selected < len(s.sessions)-1 {
				s.selected++
			}
		case "enter":
			if s.selected < len(s.sessions) {
				rec := s.sessions[s.selected]
				s.open = &rec
				s.errMsg = ""
				s.events = nil
				return s, s.loadTranscript(rec)
			}
		}
	}
	return s, nil
}

func centered(width int, style lipgloss.Style, text string) string {
	return style.Width(width).Align(lipgloss.Center).Render(text)
}

func (s *HistoryScreen) View(width, height int) string {
	if s.errMsg != "" {
		return centered(width, lipgloss.NewStyle().Foreground(theme.Error), fmt.Sprintf("\n\nError: %s", s.errMsg))
	}
	if s.open != nil {
		return s.transcriptView(width, height)
	}
	if !s.loaded {
		return centered(width, lipgloss.NewStyle().Foreground(theme.TextDim), "\n\n  Loading history...")
	}
	if len(s.sessions) == 0 {
		return centered(width, theme.Hint, "\n\n  No sessions yet. Start one from the setup screen!")
	}

	var b strings.Builder
	b.WriteString("\n")
	for i, rec := range s.sessions {
		b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Center, s.row(i, rec, width-8)))
		b.WriteString("\n")
	}
	return b.String()
}

func (s *HistoryScreen) row(i int, rec store.SessionRecord, width int) string {
	prefix := "  "
	if i == s.selected {
		prefix = "▸ "
	}
	status := stageTitle(rec.Stage)
	if rec.Completed() {
		status = "✓ completed"
	}
	meta := fmt.Sprintf("%s  %s  %s  %s", ShortID(rec.ID), rec.StartedAt.Local().Format("Jan 02 15:04"), rec.Language, status)

	problem := oneLine(rec.Problem, width-lipgloss.Width(meta)-6)
	style := lipgloss.NewStyle().Foreground(theme.Text)
	if i == s.selected {
		style = style.Foreground(theme.Primary).Bold(true)
	}
	return style.Render(prefix+meta) + "  " + theme.Hint.Render(problem)
}

// ShortID abbreviates a session id for listings.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func stageTitle(raw string) string {
	if st, err := session.ParseStage(raw); err == nil {
		return st.Title()
	}
	return raw
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if n < 8 {
		n = 8
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// RenderTranscript formats journal events for display.
func RenderTranscript(events []store.Event, md *components.Markdown, width int) string {
	var parts []string
	for _, ev := range events {
		switch ev.Kind {
		case store.EventStage:
			parts = append(parts, theme.StageCurrent.Render("── "+stageTitle(ev.Stage)+" ──"))
		case store.EventCompleted:
			parts = append(parts, theme.Correct.Render("✓ Learning completed"))
		case store.EventMessage:
			if ev.Sender == string(session.SenderAI) {
				parts = append(parts, theme.TutorName.Render("Tutor")+"\n"+md.Render(ev.Text, width))
			} else {
				parts = append(parts, theme.UserName.Render("You")+"\n"+theme.UserText.Width(width).Render(ev.Text))
			}
		}
	}
	return strings.Join(parts, "\n\n")
}

func (s *HistoryScreen) transcriptView(width, height int) string {
	inner := width - 4
	title := theme.Label.Render(oneLine(s.open.Problem, inner))
	if s.events == nil {
		return lipgloss.JoinVertical(lipgloss.Left, title, theme.Hint.Render("Loading transcript..."))
	}

	vpHeight := height - 2
	if vpHeight < 3 {
		vpHeight = 3
	}
	s.viewport.SetHeight(vpHeight)
	if s.vpWidth != inner {
		s.vpWidth = inner
		s.viewport.SetWidth(inner)
		s.viewport.SetContent(RenderTranscript(s.events, s.md, inner-2))
	}
	return lipgloss.NewStyle().Padding(0, 2).Render(lipgloss.JoinVertical(lipgloss.Left, title, s.viewport.View()))
}
