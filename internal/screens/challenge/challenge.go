// Package challenge presents a mini-challenge and checks the learner's
// answer against the backend.
package challenge

import (
	"context"
	"errors"
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/codecoach/internal/api"
	"github.com/abhisek/codecoach/internal/coach"
	"github.com/abhisek/codecoach/internal/router"
	"github.com/abhisek/codecoach/internal/screen"
	"github.com/abhisek/codecoach/internal/session"
	"github.com/abhisek/codecoach/internal/ui/components"
	"github.com/abhisek/codecoach/internal/ui/layout"
	"github.com/abhisek/codecoach/internal/ui/theme"
)

// CheckedMsg carries the outcome of an answer check.
type CheckedMsg struct {
	Answer string
	Result *api.CheckResult
	Err    error
}

// ChallengeScreen shows one challenge. Questions with lettered options
// get a selector; anything else takes a free-text answer.
type ChallengeScreen struct {
	ctx   context.Context
	coach *coach.Coordinator

	challenge session.Challenge
	view      session.ChallengeView
	md        *components.Markdown

	choice components.MultiChoice
	input  components.TextInput

	checking bool
	result   *api.CheckResult
	errMsg   string
}

var _ screen.Screen = (*ChallengeScreen)(nil)
var _ screen.KeyHintProvider = (*ChallengeScreen)(nil)

// New creates a screen for ch.
func New(ctx context.Context, c *coach.Coordinator, ch session.Challenge) *ChallengeScreen {
	v := session.ParseChallenge(ch.Question)
	s := &ChallengeScreen{
		ctx:       ctx,
		coach:     c,
		challenge: ch,
		view:      v,
		md:        components.NewMarkdown("dark"),
		input:     components.NewTextInput("Type your answer...", 500),
	}
	if v.IsMultipleChoice() {
		s.choice = components.NewMultiChoice(v.Options)
	}
	return s
}

func (s *ChallengeScreen) Init() tea.Cmd {
	if s.view.IsMultipleChoice() {
		return nil
	}
	return s.input.Init()
}

func (s *ChallengeScreen) Title() string { return "Challenge" }

func (s *ChallengeScreen) KeyHints() []layout.KeyHint {
	switch {
	case s.result != nil && !s.result.IsCorrect:
		return []layout.KeyHint{{Key: "R", Description: "Try again"}, {Key: "Esc", Description: "Back to chat"}}
	case s.result != nil:
		return []layout.KeyHint{{Key: "Esc", Description: "Back to chat"}}
	case s.view.IsMultipleChoice():
		return []layout.KeyHint{{Key: "↑↓", Description: "Choose"}, {Key: "A-D", Description: "Answer"}, {Key: "Enter", Description: "Submit"}, {Key: "Esc", Description: "Close"}}
	}
	return []layout.KeyHint{{Key: "Enter", Description: "Submit"}, {Key: "Esc", Description: "Close"}}
}

func (s *ChallengeScreen) check(answer string) tea.Cmd {
	s.checking = true
	s.errMsg = ""
	ctx, c := s.ctx, s.coach
	return func() tea.Msg {
		res, err := c.CheckChallengeAnswer(ctx, answer)
		return CheckedMsg{Answer: answer, Result: res, Err: err}
	}
}

func (s *ChallengeScreen) close() tea.Cmd {
	s.coach.CloseChallenge()
	return func() tea.Msg { return router.PopScreenMsg{} }
}

func (s *ChallengeScreen) retry() {
	s.result = nil
	s.errMsg = ""
	s.choice.Reset()
	s.input.Reset()
}

func (s *ChallengeScreen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case screen.StateMsg:
		// Reset or a failed refetch removed the challenge under us.
		if msg.State.Challenge == nil || msg.State.Challenge.Question != s.challenge.Question {
			return s, func() tea.Msg { return router.PopScreenMsg{} }
		}
		return s, nil

	case CheckedMsg:
		s.checking = false
		switch {
		case msg.Err == nil:
			s.result = msg.Result
			s.choice.Resolve(msg.Result.IsCorrect)
		case errors.Is(msg.Err, coach.ErrNoChallenge), errors.Is(msg.Err, coach.ErrNoSession):
			return s, func() tea.Msg { return router.PopScreenMsg{} }
		default:
			s.errMsg = api.Message(msg.Err, "Could not check your answer. Please try again.")
			s.choice.Reset()
		}
		return s, nil

	case tea.KeyMsg:
		return s.handleKey(msg)
	}

	if !s.view.IsMultipleChoice() {
		var cmd tea.Cmd
		s.input, cmd = s.input.Update(msg)
		return s, cmd
	}
	return s, nil
}

func (s *ChallengeScreen) handleKey(msg tea.KeyMsg) (screen.Screen, tea.Cmd) {
	key := msg.String()
	if key == "esc" {
		return s, s.close()
	}
	if s.checking {
		return s, nil
	}
	if s.result != nil {
		if (key == "r" || key == "R") && !s.result.IsCorrect {
			s.retry()
		}
		return s, nil
	}

	if s.view.IsMultipleChoice() {
		var cmd tea.Cmd
		s.choice, cmd = s.choice.Update(msg)
		if opt, ok := s.choice.Chosen(); ok {
			return s, tea.Batch(cmd, s.check(opt.Label))
		}
		return s, cmd
	}

	if key == "enter" {
		answer := s.input.Value()
		if answer == "" {
			return s, nil
		}
		return s, s.check(answer)
	}
	var cmd tea.Cmd
	s.input, cmd = s.input.Update(msg)
	return s, cmd
}

func (s *ChallengeScreen) View(width, height int) string {
	w := width - 8
	if w > 90 {
		w = 90
	}

	sections := []string{theme.Title.Width(w).Render("Mini-challenge")}
	if s.view.Prompt != "" {
		sections = append(sections, s.md.Render(s.view.Prompt, w))
	}
	if s.view.Code != "" {
		fence := "```" + s.view.CodeLang + "\n" + s.view.Code + "\n```"
		sections = append(sections, s.md.Render(fence, w))
	}

	if s.view.IsMultipleChoice() {
		sections = append(sections, s.choice.View())
	} else {
		s.input.SetWidth(w - 6)
		sections = append(sections, theme.FocusedPanel.Width(w).Render(s.input.View()))
	}

	switch {
	case s.checking:
		sections = append(sections, theme.Hint.Render("Checking your answer..."))
	case s.errMsg != "":
		sections = append(sections, theme.Banner.Width(w).Render("! "+s.errMsg))
	case s.result != nil:
		sections = append(sections, s.resultView(w))
	}

	body := lipgloss.JoinVertical(lipgloss.Left, sections...)
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Top, body)
}

func (s *ChallengeScreen) resultView(width int) string {
	r := s.result
	var lines []string
	if r.IsCorrect {
		lines = append(lines, theme.Correct.Render("✓ Correct"))
	} else {
		lines = append(lines, theme.Incorrect.Render("✗ Not quite"))
	}
	if r.Feedback != "" {
		lines = append(lines, theme.Body.Width(width).Render(r.Feedback))
	}
	if r.IsCorrect {
		explanation := r.Explanation
		if explanation == "" {
			explanation = s.challenge.Explanation
		}
		if explanation != "" {
			lines = append(lines, "", theme.Label.Render("Why"), theme.Body.Width(width).Render(explanation))
		}
	}
	return strings.Join(lines, "\n")
}
