package app

import (
	"context"
	"sync"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/abhisek/codecoach/internal/coach"
	"github.com/abhisek/codecoach/internal/screen"
	"github.com/abhisek/codecoach/internal/session"
)

type recorder struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (r *recorder) send(msg tea.Msg) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func (r *recorder) last() (tea.Msg, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		return nil, 0
	}
	return r.msgs[len(r.msgs)-1], len(r.msgs)
}

func TestBridgeState_DeliversNewestSnapshot(t *testing.T) {
	defer goleak.VerifyNone(t)

	st := session.NewStore()
	rec := &recorder{}
	stop := bridgeState(st, rec.send)

	for i := 0; i < 50; i++ {
		st.AppendStreamChunk("x")
	}

	require.Eventually(t, func() bool {
		msg, _ := rec.last()
		sm, ok := msg.(screen.StateMsg)
		if !ok {
			return false
		}
		last, ok := sm.State.LastMessage()
		return ok && len(last.Text) == 50
	}, 2*time.Second, 5*time.Millisecond)

	stop()
	stop()
	_, n := rec.last()
	st.AppendStreamChunk("y")
	_, after := rec.last()
	assert.Equal(t, n, after)
}

func TestConfirmer_DetachedDeclines(t *testing.T) {
	c := NewConfirmer()
	assert.False(t, c.ConfirmReset(context.Background(), "Start over?"))
}

func TestConfirmer_WaitsForAnswer(t *testing.T) {
	c := NewConfirmer()
	c.attach(func(msg tea.Msg) {
		req := msg.(confirmRequestMsg)
		assert.Equal(t, "Start over?", req.prompt)
		go req.answer(true)
	})
	assert.True(t, c.ConfirmReset(context.Background(), "Start over?"))
}

func TestConfirmer_ContextCancelDeclines(t *testing.T) {
	c := NewConfirmer()
	c.attach(func(tea.Msg) {})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.False(t, c.ConfirmReset(ctx, "Start over?"))
}

func newModel(t *testing.T) AppModel {
	t.Helper()
	c := coach.New(nil, nil, session.NewStore(), coach.Options{})
	t.Cleanup(c.Close)
	m := newAppModel(context.Background(), Options{Coach: c})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return updated.(AppModel)
}

func TestAppModel_ConfirmDialog(t *testing.T) {
	tests := []struct {
		key  tea.KeyPressMsg
		want bool
	}{
		{tea.KeyPressMsg{Code: 'y', Text: "y"}, true},
		{tea.KeyPressMsg{Code: tea.KeyEnter}, true},
		{tea.KeyPressMsg{Code: 'n', Text: "n"}, false},
		{tea.KeyPressMsg{Code: tea.KeyEscape}, false},
	}
	for _, tt := range tests {
		t.Run(tt.key.String(), func(t *testing.T) {
			m := newModel(t)
			req := confirmRequestMsg{prompt: "Your session expired. Start a new one?", reply: make(chan bool, 1)}
			updated, _ := m.Update(req)
			m = updated.(AppModel)
			assert.Contains(t, m.frame(), "Your session expired")

			// Other keys are swallowed while the dialog is up.
			updated, _ = m.Update(tea.KeyPressMsg{Code: 'x', Text: "x"})
			m = updated.(AppModel)
			require.NotNil(t, m.confirm)

			updated, _ = m.Update(tt.key)
			m = updated.(AppModel)
			assert.Nil(t, m.confirm)
			assert.Equal(t, tt.want, <-req.reply)
		})
	}
}

func TestAppModel_ConfirmDialogFocus(t *testing.T) {
	m := newModel(t)
	req := confirmRequestMsg{prompt: "Start over?", reply: make(chan bool, 1)}
	updated, _ := m.Update(req)
	m = updated.(AppModel)

	updated, _ = m.Update(tea.KeyPressMsg{Code: tea.KeyRight})
	m = updated.(AppModel)
	require.NotNil(t, m.confirm)

	updated, _ = m.Update(tea.KeyPressMsg{Code: tea.KeyEnter})
	m = updated.(AppModel)
	assert.Nil(t, m.confirm)
	assert.False(t, <-req.reply)
}

func TestAppModel_StatusShowsConnection(t *testing.T) {
	m := newModel(t)
	assert.Empty(t, m.status())

	st := session.NewState(0)
	st.SessionID = "abc"
	st.Language = "Go"
	st.Connection = session.ConnReconnecting
	updated, _ := m.Update(screen.StateMsg{State: st})
	m = updated.(AppModel)
	assert.Contains(t, m.status(), "reconnecting")
	assert.Contains(t, m.status(), "Go")
}
