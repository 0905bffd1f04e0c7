// Package app hosts the Bubble Tea program: the screen router, the bridge
// that turns session store updates into messages, and the reset
// confirmation overlay.
package app

import (
	"context"
	"fmt"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"go.uber.org/zap"

	"github.com/abhisek/codecoach/internal/coach"
	"github.com/abhisek/codecoach/internal/router"
	"github.com/abhisek/codecoach/internal/screen"
	"github.com/abhisek/codecoach/internal/screens/setup"
	"github.com/abhisek/codecoach/internal/session"
	"github.com/abhisek/codecoach/internal/store"
	"github.com/abhisek/codecoach/internal/ui/components"
	"github.com/abhisek/codecoach/internal/ui/layout"
	"github.com/abhisek/codecoach/internal/ui/theme"
)

// Options holds the dependencies the TUI needs.
type Options struct {
	Coach     *coach.Coordinator
	Journal   *store.Store // nil when history is disabled
	Defaults  setup.Defaults
	Confirmer *Confirmer // must be the one passed to coach.New
	Logger    *zap.Logger
}

// AppModel is the root Bubble Tea model.
type AppModel struct {
	router  *router.Router
	state   session.State
	confirm *confirmRequestMsg
	choices components.ButtonRow
	width   int
	height  int
}

// newAppModel creates a new AppModel with the setup screen.
func newAppModel(ctx context.Context, opts Options) AppModel {
	return AppModel{
		router: router.New(setup.New(ctx, opts.Coach, opts.Journal, opts.Defaults)),
		state:  opts.Coach.State(),
	}
}

func (m AppModel) Init() tea.Cmd {
	if active := m.router.Active(); active != nil {
		return active.Init()
	}
	return nil
}

func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case screen.StateMsg:
		m.state = msg.State
		return m, m.router.Broadcast(msg)

	case confirmRequestMsg:
		if m.confirm != nil {
			m.confirm.answer(false)
		}
		m.confirm = &msg
		m.choices = components.NewButtonRow(
			components.NewButton("Yes", "y"),
			components.NewButton("No", "n"),
		)
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			if m.confirm != nil {
				m.confirm.answer(false)
				m.confirm = nil
			}
			return m, tea.Quit
		}
		if m.confirm != nil {
			if msg.String() == "esc" {
				m.confirm.answer(false)
				m.confirm = nil
				return m, nil
			}
			key, ok := msg.(tea.KeyPressMsg)
			if !ok {
				return m, nil
			}
			var pressed int
			m.choices, pressed = m.choices.Update(key)
			if pressed >= 0 {
				m.confirm.answer(pressed == 0)
				m.confirm = nil
			}
			return m, nil
		}
	}

	cmd := m.router.Update(msg)
	return m, cmd
}

func (m AppModel) status() string {
	st := m.state
	if !st.Active() {
		return ""
	}
	conn := st.Connection.String()
	switch st.Connection {
	case session.ConnConnected:
		conn = lipgloss.NewStyle().Foreground(theme.Success).Render("● " + conn)
	case session.ConnReconnecting, session.ConnConnecting:
		conn = lipgloss.NewStyle().Foreground(theme.Accent).Render("● " + conn)
	case session.ConnDisconnected:
		conn = lipgloss.NewStyle().Foreground(theme.Error).Render("● " + conn)
	}
	return fmt.Sprintf("%s  %s  ", st.Language, conn)
}

func (m AppModel) View() tea.View {
	v := tea.NewView("")
	v.AltScreen = true
	if m.width == 0 || m.height == 0 {
		return v
	}
	v.SetContent(m.frame())
	return v
}

// frame renders the full screen: header, active screen or dialog, footer.
func (m AppModel) frame() string {
	if layout.IsTooSmall(m.width, m.height) {
		return layout.RenderMinSizeMessage(m.width, m.height)
	}

	active := m.router.Active()
	title := ""
	if active != nil {
		title = active.Title()
	}

	header := layout.RenderHeader(title, m.status(), m.width)

	var footerHints []layout.KeyHint
	switch p := active.(type) {
	case nil:
	case screen.KeyHintProvider:
		footerHints = p.KeyHints()
	default:
		footerHints = []layout.KeyHint{
			{Key: "Esc", Description: "Back"},
			{Key: "Ctrl+C", Description: "Quit"},
		}
	}
	if m.confirm != nil {
		footerHints = []layout.KeyHint{
			{Key: "Y", Description: "Yes"},
			{Key: "N", Description: "No"},
			{Key: "←/→", Description: "Choose"},
		}
	}

	footer := layout.RenderFooter(footerHints, m.width)

	headerHeight := lipgloss.Height(header)
	footerHeight := lipgloss.Height(footer)
	contentHeight := m.height - headerHeight - footerHeight
	if contentHeight < 0 {
		contentHeight = 0
	}

	var content string
	if m.confirm != nil {
		body := theme.Body.Width(50).Render(m.confirm.prompt) + "\n\n" + m.choices.View()
		content = layout.RenderModal(body, m.width, contentHeight)
	} else {
		content = m.router.View(m.width, contentHeight)
	}
	return layout.RenderFrame(header, content, footer, m.width, m.height)
}

// Run starts the Bubble Tea program and blocks until it exits.
func Run(ctx context.Context, opts Options) error {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	p := tea.NewProgram(newAppModel(ctx, opts), tea.WithContext(ctx))

	if opts.Confirmer != nil {
		opts.Confirmer.attach(p.Send)
		defer opts.Confirmer.attach(nil)
	}
	stop := bridgeState(opts.Coach.Store(), p.Send)
	defer stop()

	if _, err := p.Run(); err != nil {
		opts.Logger.Error("tui exited", zap.Error(err))
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}
