// Package setup is the session configuration screen: the learner enters a
// problem and picks a language, skill level and model.
package setup

import (
	"context"
	"strings"

	"charm.land/bubbles/v2/textarea"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/codecoach/internal/coach"
	"github.com/abhisek/codecoach/internal/config"
	"github.com/abhisek/codecoach/internal/router"
	"github.com/abhisek/codecoach/internal/screen"
	"github.com/abhisek/codecoach/internal/screens/chat"
	"github.com/abhisek/codecoach/internal/screens/history"
	"github.com/abhisek/codecoach/internal/store"
	"github.com/abhisek/codecoach/internal/ui/components"
	"github.com/abhisek/codecoach/internal/ui/layout"
	"github.com/abhisek/codecoach/internal/ui/theme"
)

// Defaults preselects the session options.
type Defaults struct {
	Problem    string
	Language   string
	SkillLevel string
	Model      string
}

const (
	focusProblem = iota
	focusLanguage
	focusLevel
	focusModel
	focusMenu
	focusCount
)

// SetupScreen collects the session configuration.
type SetupScreen struct {
	ctx     context.Context
	coach   *coach.Coordinator
	journal *store.Store

	problem  textarea.Model
	language components.Selector
	level    components.Selector
	model    components.Selector
	menu     components.Menu
	focus    int
	errMsg   string
}

var _ screen.Screen = (*SetupScreen)(nil)
var _ screen.KeyHintProvider = (*SetupScreen)(nil)

// New creates the setup screen. journal may be nil when history is off.
func New(ctx context.Context, c *coach.Coordinator, journal *store.Store, d Defaults) *SetupScreen {
	ta := textarea.New()
	ta.Placeholder = "Describe the coding problem you want to work through..."
	ta.ShowLineNumbers = false
	ta.CharLimit = 4000
	ta.SetHeight(5)
	ta.SetValue(d.Problem)

	s := &SetupScreen{
		ctx:      ctx,
		coach:    c,
		journal:  journal,
		problem:  ta,
		language: components.NewSelector("Language  ", withCurrent(config.Languages, d.Language), d.Language),
		level:    components.NewSelector("Skill     ", withCurrent(config.SkillLevels, d.SkillLevel), d.SkillLevel),
		model:    components.NewSelector("Model     ", modelLabels(d.Model), modelLabel(d.Model)),
	}
	s.menu = components.NewMenu([]components.MenuItem{
		{Label: "Start learning", Action: s.start},
		{Label: "Past sessions", Action: s.openHistory, Disabled: journal == nil},
		{Label: "Quit", Action: func() tea.Cmd { return tea.Quit }},
	})
	s.setFocus(focusProblem)
	return s
}

func withCurrent(options []string, current string) []string {
	if current == "" {
		return options
	}
	for _, o := range options {
		if strings.EqualFold(o, current) {
			return options
		}
	}
	return append(append([]string{}, options...), current)
}

func modelLabel(id string) string {
	for _, m := range config.Models {
		if m.ID == id {
			return m.Label
		}
	}
	return id
}

func modelLabels(current string) []string {
	labels := make([]string, 0, len(config.Models)+1)
	for _, m := range config.Models {
		labels = append(labels, m.Label)
	}
	return withCurrent(labels, modelLabel(current))
}

func modelID(label string) string {
	for _, m := range config.Models {
		if m.Label == label {
			return m.ID
		}
	}
	return config.ResolveModel(label)
}

func (s *SetupScreen) Init() tea.Cmd {
	return s.problem.Focus()
}

func (s *SetupScreen) Title() string {
	return "New Session"
}

func (s *SetupScreen) KeyHints() []layout.KeyHint {
	hints := []layout.KeyHint{{Key: "Tab", Description: "Next field"}}
	switch s.focus {
	case focusLanguage, focusLevel, focusModel:
		hints = append(hints, layout.KeyHint{Key: "←→", Description: "Change"})
	case focusMenu:
		hints = append(hints, layout.KeyHint{Key: "↑↓", Description: "Navigate"}, layout.KeyHint{Key: "Enter", Description: "Select"})
	}
	return append(hints, layout.KeyHint{Key: "Ctrl+C", Description: "Quit"})
}

func (s *SetupScreen) setFocus(f int) {
	s.focus = (f + focusCount) % focusCount
	if s.focus == focusProblem {
		s.problem.Focus()
	} else {
		s.problem.Blur()
	}
	s.language.Focused = s.focus == focusLanguage
	s.level.Focused = s.focus == focusLevel
	s.model.Focused = s.focus == focusModel
	s.menu.Focused = s.focus == focusMenu
}

// Params returns the configuration as entered.
func (s *SetupScreen) Params() coach.StartParams {
	return coach.StartParams{
		Problem:    strings.TrimSpace(s.problem.Value()),
		Language:   s.language.Value(),
		SkillLevel: s.level.Value(),
		Model:      modelID(s.model.Value()),
	}
}

func (s *SetupScreen) start() tea.Cmd {
	p := s.Params()
	if p.Problem == "" {
		s.errMsg = "Please describe a problem first."
		s.setFocus(focusProblem)
		return nil
	}
	s.errMsg = ""
	ctx, c := s.ctx, s.coach
	chatScreen := chat.New(ctx, c)
	return tea.Batch(
		func() tea.Msg { return router.PushScreenMsg{Screen: chatScreen} },
		func() tea.Msg {
			return screen.ActionDoneMsg{Op: "start", Err: c.StartSession(ctx, p)}
		},
	)
}

func (s *SetupScreen) openHistory() tea.Cmd {
	h := history.New(s.ctx, s.journal)
	return func() tea.Msg { return router.PushScreenMsg{Screen: h} }
}

func (s *SetupScreen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	kmsg, ok := msg.(tea.KeyMsg)
	if !ok {
		if s.focus == focusProblem {
			var cmd tea.Cmd
			s.problem, cmd = s.problem.Update(msg)
			return s, cmd
		}
		return s, nil
	}

	switch kmsg.String() {
	case "tab":
		s.setFocus(s.focus + 1)
		return s, nil
	case "shift+tab":
		s.setFocus(s.focus - 1)
		return s, nil
	case "ctrl+s":
		return s, s.start()
	}

	var cmd tea.Cmd
	switch s.focus {
	case focusProblem:
		s.problem, cmd = s.problem.Update(msg)
	case focusLanguage:
		s.language, cmd = s.language.Update(msg)
	case focusLevel:
		s.level, cmd = s.level.Update(msg)
	case focusModel:
		s.model, cmd = s.model.Update(msg)
	case focusMenu:
		s.menu, cmd = s.menu.Update(msg)
	}
	return s, cmd
}

func (s *SetupScreen) View(width, height int) string {
	formWidth := width - 8
	if formWidth > 76 {
		formWidth = 76
	}
	s.problem.SetWidth(formWidth - 4)

	panel := theme.Panel
	if s.focus == focusProblem {
		panel = theme.FocusedPanel
	}

	sections := []string{
		RenderBanner(width, height),
		theme.Subtitle.Render("A guided tutor for working through coding problems"),
		"",
		theme.Label.Render("Problem"),
		panel.Width(formWidth).Render(s.problem.View()),
		"",
		s.language.View(),
		s.level.View(),
		s.model.View(),
		"",
		s.menu.View(),
	}
	if s.errMsg != "" {
		sections = append(sections, theme.Incorrect.Render(s.errMsg))
	}

	form := lipgloss.NewStyle().Width(formWidth).Render(strings.Join(sections, "\n"))
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, form)
}
