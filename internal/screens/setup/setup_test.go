package setup

import (
	"context"
	"net/http/httptest"
	"testing"

	tea "charm.land/bubbletea/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/codecoach/internal/api"
	"github.com/abhisek/codecoach/internal/coach"
	"github.com/abhisek/codecoach/internal/devserver"
	"github.com/abhisek/codecoach/internal/router"
	"github.com/abhisek/codecoach/internal/screen"
	"github.com/abhisek/codecoach/internal/session"
)

func newCoach(t *testing.T) *coach.Coordinator {
	t.Helper()
	srv := httptest.NewServer(devserver.New(devserver.Options{}))
	t.Cleanup(srv.Close)
	client, err := api.NewClient(srv.URL)
	require.NoError(t, err)
	c := coach.New(client, nil, session.NewStore(), coach.Options{})
	t.Cleanup(c.Close)
	return c
}

func ctrlS() tea.KeyPressMsg { return tea.KeyPressMsg{Code: 's', Mod: tea.ModCtrl} }

func TestSetup_RequiresProblem(t *testing.T) {
	s := New(context.Background(), newCoach(t), nil, Defaults{Language: "Python", SkillLevel: "beginner"})
	_, cmd := s.Update(ctrlS())
	assert.Nil(t, cmd)
	assert.Contains(t, s.View(100, 40), "Please describe a problem first.")
}

func TestSetup_ParamsFromDefaults(t *testing.T) {
	s := New(context.Background(), newCoach(t), nil, Defaults{
		Problem: "  two sum  ", Language: "Rust", SkillLevel: "advanced", Model: "openai/gpt-4o",
	})
	p := s.Params()
	assert.Equal(t, coach.StartParams{Problem: "two sum", Language: "Rust", SkillLevel: "advanced", Model: "openai/gpt-4o"}, p)
}

func TestSetup_StartPushesChatAndStarts(t *testing.T) {
	c := newCoach(t)
	s := New(context.Background(), c, nil, Defaults{Problem: "two sum", Language: "Python", SkillLevel: "beginner"})

	_, cmd := s.Update(ctrlS())
	require.NotNil(t, cmd)
	batch, ok := cmd().(tea.BatchMsg)
	require.True(t, ok)
	require.Len(t, batch, 2)

	push, ok := batch[0]().(router.PushScreenMsg)
	require.True(t, ok)
	assert.Equal(t, "Chat", push.Screen.Title())

	assert.Equal(t, screen.ActionDoneMsg{Op: "start"}, batch[1]())
	assert.True(t, c.State().Ready())
}

func TestSetup_TabCyclesFocus(t *testing.T) {
	s := New(context.Background(), newCoach(t), nil, Defaults{})
	for i := 0; i < focusCount; i++ {
		s.Update(tea.KeyPressMsg{Code: tea.KeyTab})
	}
	assert.Equal(t, focusProblem, s.focus)

	s.Update(tea.KeyPressMsg{Code: tea.KeyTab, Mod: tea.ModShift})
	assert.Equal(t, focusMenu, s.focus)
}
