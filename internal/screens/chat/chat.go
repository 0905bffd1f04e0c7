// Package chat is the main tutoring screen: transcript, stage bar, chat
// input, and the hint, explain and code feedback panels.
package chat

import (
	"context"
	"errors"

	"charm.land/bubbles/v2/spinner"
	"charm.land/bubbles/v2/textarea"
	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/codecoach/internal/coach"
	"github.com/abhisek/codecoach/internal/router"
	"github.com/abhisek/codecoach/internal/screen"
	"github.com/abhisek/codecoach/internal/screens/challenge"
	"github.com/abhisek/codecoach/internal/session"
	"github.com/abhisek/codecoach/internal/ui/components"
	"github.com/abhisek/codecoach/internal/ui/layout"
)

type mode int

const (
	modeChat mode = iota
	modeHint
	modeExplain
	modeEditor
	modeConfirmLeave
)

// Operation names carried by screen.ActionDoneMsg.
const (
	opSend      = "send"
	opNext      = "next"
	opComplete  = "complete"
	opHint      = "hint"
	opExplain   = "explain"
	opFeedback  = "feedback"
	opChallenge = "challenge"
)

// ChatScreen renders the active session and routes learner input to the
// coordinator. All session data comes from StateMsg snapshots.
type ChatScreen struct {
	ctx   context.Context
	coach *coach.Coordinator

	state    session.State
	mode     mode
	notice   string
	input    components.TextInput
	prompt   components.TextInput
	editor   textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	md       *components.Markdown
	cache    map[int64]rendered

	width, height int
	follow        bool
}

var _ screen.Screen = (*ChatScreen)(nil)
var _ screen.KeyHintProvider = (*ChatScreen)(nil)

// New creates the chat screen for the coordinator's session.
func New(ctx context.Context, c *coach.Coordinator) *ChatScreen {
	ed := textarea.New()
	ed.Placeholder = "Paste or write your code here..."
	ed.ShowLineNumbers = true
	ed.CharLimit = 0

	s := &ChatScreen{
		ctx:      ctx,
		coach:    c,
		state:    c.State(),
		input:    components.NewTextInput("Ask the tutor...", 2000),
		prompt:   components.NewTextInput("", 200),
		editor:   ed,
		viewport: viewport.New(),
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
		md:       components.NewMarkdown("dark"),
		cache:    make(map[int64]rendered),
		follow:   true,
	}
	s.input.DisabledHint = "The tutor is replying..."
	s.syncInput()
	return s
}

func (s *ChatScreen) Init() tea.Cmd {
	return tea.Batch(s.input.Init(), s.spinner.Tick)
}

func (s *ChatScreen) Title() string {
	if s.state.Problem == "" {
		return "Chat"
	}
	return truncate(s.state.Problem, 40)
}

func (s *ChatScreen) KeyHints() []layout.KeyHint {
	switch s.mode {
	case modeHint, modeExplain:
		return []layout.KeyHint{{Key: "Enter", Description: "Ask"}, {Key: "Esc", Description: "Cancel"}}
	case modeEditor:
		return []layout.KeyHint{{Key: "Ctrl+S", Description: "Get feedback"}, {Key: "Esc", Description: "Close editor"}}
	case modeConfirmLeave:
		return []layout.KeyHint{{Key: "Y", Description: "New session"}, {Key: "N", Description: "Stay"}}
	}
	next := "Next stage"
	if s.state.Stage.IsLast() {
		next = "Complete"
	}
	hints := []layout.KeyHint{
		{Key: "Enter", Description: "Send"},
		{Key: "^N", Description: next},
		{Key: "^T", Description: "Hint"},
		{Key: "^E", Description: "Explain"},
		{Key: "^G", Description: "Challenge"},
		{Key: "^O", Description: "Code"},
		{Key: "^R", Description: "New"},
	}
	if s.state.Err != "" {
		hints = append(hints, layout.KeyHint{Key: "^X", Description: "Dismiss"})
	}
	return hints
}

// syncInput gates the chat input on the session state.
func (s *ChatScreen) syncInput() {
	st := s.state
	s.input.Disabled = st.Streaming || !st.Ready()
	switch {
	case st.Initializing:
		s.input.DisabledHint = "Starting your session..."
	case !st.Active():
		s.input.DisabledHint = "No active session. Press Esc to start a new one."
	default:
		s.input.DisabledHint = "The tutor is replying..."
	}
}

func (s *ChatScreen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case screen.StateMsg:
		s.state = msg.State
		s.syncInput()
		s.refreshTranscript()
		return s, nil

	case screen.ActionDoneMsg:
		return s.handleDone(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		s.spinner, cmd = s.spinner.Update(msg)
		return s, cmd

	case tea.KeyMsg:
		return s.handleKey(msg)
	}

	return s, s.forward(msg)
}

// forward passes non-key messages (cursor blink and the like) to the
// focused input.
func (s *ChatScreen) forward(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch s.mode {
	case modeEditor:
		s.editor, cmd = s.editor.Update(msg)
	case modeHint, modeExplain:
		s.prompt, cmd = s.prompt.Update(msg)
	default:
		s.input, cmd = s.input.Update(msg)
	}
	return cmd
}

func (s *ChatScreen) handleDone(msg screen.ActionDoneMsg) (screen.Screen, tea.Cmd) {
	s.notice = noticeFor(msg.Err)
	if msg.Op != opChallenge || msg.Err != nil {
		return s, nil
	}
	// The state snapshot may still be in flight; read the store directly.
	if ch := s.coach.State().Challenge; ch != nil {
		next := challenge.New(s.ctx, s.coach, *ch)
		return s, func() tea.Msg { return router.PushScreenMsg{Screen: next} }
	}
	return s, nil
}

// noticeFor turns guard errors into a one-line notice. Backend failures
// already sit in the state's error slot.
func noticeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, coach.ErrBusy):
		return "Wait for the tutor to finish replying."
	case errors.Is(err, coach.ErrTransitionInFlight):
		return "A stage change is already in progress."
	case errors.Is(err, coach.ErrLastStage):
		return "This is the last stage. Press Ctrl+N to complete learning."
	case errors.Is(err, coach.ErrNotLastStage):
		return "Finish every stage before completing."
	case errors.Is(err, coach.ErrAlreadyCompleted):
		return "Learning is complete. Press Ctrl+R to start a new session."
	case errors.Is(err, coach.ErrNoSession):
		return "There is no active session."
	case errors.Is(err, coach.ErrEmptyInput):
		return "Nothing to send."
	}
	return ""
}

func (s *ChatScreen) run(op string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := s.ctx
	return func() tea.Msg {
		return screen.ActionDoneMsg{Op: op, Err: fn(ctx)}
	}
}

func (s *ChatScreen) handleKey(msg tea.KeyMsg) (screen.Screen, tea.Cmd) {
	key := msg.String()
	switch s.mode {
	case modeConfirmLeave:
		switch key {
		case "y", "Y", "enter":
			s.mode = modeChat
			s.coach.ResetSession()
			return s, func() tea.Msg { return router.PopToRootMsg{} }
		case "n", "N", "esc":
			s.mode = modeChat
		}
		return s, nil

	case modeEditor:
		switch key {
		case "esc":
			s.mode = modeChat
			s.editor.Blur()
			return s, nil
		case "ctrl+s":
			code := s.editor.Value()
			s.mode = modeChat
			s.editor.Blur()
			return s, s.run(opFeedback, func(ctx context.Context) error {
				return s.coach.RequestCodeFeedback(ctx, code)
			})
		}
		var cmd tea.Cmd
		s.editor, cmd = s.editor.Update(msg)
		return s, cmd

	case modeHint, modeExplain:
		switch key {
		case "esc":
			s.mode = modeChat
			s.prompt.Reset()
			return s, nil
		case "enter":
			text := s.prompt.Value()
			m := s.mode
			s.mode = modeChat
			s.prompt.Reset()
			if m == modeHint {
				return s, s.run(opHint, func(ctx context.Context) error { return s.coach.RequestHint(ctx, text) })
			}
			return s, s.run(opExplain, func(ctx context.Context) error { return s.coach.ExplainConcept(ctx, text) })
		}
		var cmd tea.Cmd
		s.prompt, cmd = s.prompt.Update(msg)
		return s, cmd
	}

	switch key {
	case "esc":
		if !s.state.Active() {
			return s, func() tea.Msg { return router.PopScreenMsg{} }
		}
		s.mode = modeConfirmLeave
		return s, nil
	case "ctrl+r":
		s.mode = modeConfirmLeave
		return s, nil
	case "enter":
		text := s.input.Value()
		if text == "" || s.input.Disabled {
			return s, nil
		}
		s.input.Reset()
		s.follow = true
		return s, s.run(opSend, func(ctx context.Context) error { return s.coach.SendMessage(ctx, text) })
	case "ctrl+n":
		if s.state.Stage.IsLast() {
			return s, s.run(opComplete, s.coach.CompleteLearning)
		}
		return s, s.run(opNext, s.coach.TransitionToNextStage)
	case "ctrl+t":
		s.openPrompt(modeHint, "What are you stuck on?")
		return s, nil
	case "ctrl+e":
		s.openPrompt(modeExplain, "Which concept should be explained?")
		return s, nil
	case "ctrl+g":
		return s, s.run(opChallenge, s.coach.RequestChallenge)
	case "ctrl+o":
		s.mode = modeEditor
		return s, s.editor.Focus()
	case "ctrl+x":
		s.coach.ClearError()
		s.notice = ""
		return s, nil
	case "pgup", "pgdown", "up", "down", "home", "end":
		var cmd tea.Cmd
		s.viewport, cmd = s.viewport.Update(msg)
		s.follow = s.viewport.AtBottom()
		return s, cmd
	}

	var cmd tea.Cmd
	s.input, cmd = s.input.Update(msg)
	return s, cmd
}

func (s *ChatScreen) openPrompt(m mode, placeholder string) {
	s.mode = m
	s.prompt.Reset()
	s.prompt.SetPlaceholder(placeholder)
}
