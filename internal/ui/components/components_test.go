package components

import (
	"strings"
	"testing"

	tea "charm.land/bubbletea/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/codecoach/internal/session"
)

func key(s string) tea.KeyPressMsg {
	switch s {
	case "enter":
		return tea.KeyPressMsg{Code: tea.KeyEnter}
	case "down":
		return tea.KeyPressMsg{Code: tea.KeyDown}
	case "left":
		return tea.KeyPressMsg{Code: tea.KeyLeft}
	case "right":
		return tea.KeyPressMsg{Code: tea.KeyRight}
	}
	r := []rune(s)[0]
	return tea.KeyPressMsg{Code: r, Text: s}
}

func TestMultiChoice_SelectByLetter(t *testing.T) {
	mc := NewMultiChoice([]session.ChallengeOption{{Label: "A", Text: "one"}, {Label: "B", Text: "two"}})
	mc, _ = mc.Update(key("b"))
	opt, ok := mc.Chosen()
	require.True(t, ok)
	assert.Equal(t, "B", opt.Label)

	mc.Resolve(false)
	assert.Contains(t, mc.View(), "two")

	mc.Reset()
	_, ok = mc.Chosen()
	assert.False(t, ok)
}

func TestMultiChoice_NavigateAndEnter(t *testing.T) {
	mc := NewMultiChoice([]session.ChallengeOption{{Label: "A", Text: "one"}, {Label: "B", Text: "two"}, {Label: "C", Text: "three"}})
	mc, _ = mc.Update(key("down"))
	mc, _ = mc.Update(key("down"))
	mc, _ = mc.Update(key("enter"))
	opt, ok := mc.Chosen()
	require.True(t, ok)
	assert.Equal(t, "C", opt.Label)

	mc, _ = mc.Update(key("a"))
	opt, _ = mc.Chosen()
	assert.Equal(t, "C", opt.Label, "submitted choice is locked")
}

func TestSelector_Cycles(t *testing.T) {
	s := NewSelector("Level", []string{"beginner", "intermediate", "advanced"}, "intermediate")
	assert.Equal(t, "intermediate", s.Value())
	s, _ = s.Update(key("right"))
	s, _ = s.Update(key("right"))
	assert.Equal(t, "beginner", s.Value())
	s, _ = s.Update(key("left"))
	assert.Equal(t, "advanced", s.Value())
}

func TestStageBar(t *testing.T) {
	full := StageBar{Current: session.StageImplementation}.View()
	assert.Contains(t, full, "✓ Problem Analysis")
	assert.Contains(t, full, "Implementation")
	assert.NotContains(t, full, "✓ Implementation")

	narrow := StageBar{Current: session.StageImplementation, Width: 20}.View()
	assert.Contains(t, narrow, "Stage 3/5")

	done := StageBar{Current: session.LastStage(), Completed: true}.View()
	assert.Contains(t, done, "✓ Reflection")
}

func TestTextInput_DisabledIgnoresKeys(t *testing.T) {
	ti := NewTextInput("Ask", 0)
	ti.Disabled = true
	ti.DisabledHint = "waiting"
	ti, _ = ti.Update(key("x"))
	assert.Equal(t, "", ti.Value())
	assert.Contains(t, ti.View(), "waiting")

	ti.Disabled = false
	ti, _ = ti.Update(key("x"))
	assert.Equal(t, "x", ti.Value())
}

func TestMarkdown_Render(t *testing.T) {
	md := NewMarkdown("notty")
	out := md.Render("**concept** explained", 60)
	assert.Contains(t, out, "concept")
	assert.False(t, strings.HasSuffix(out, "\n"))
}

func TestMenu(t *testing.T) {
	picked := ""
	m := NewMenu([]MenuItem{
		{Label: "Disabled", Disabled: true},
		{Label: "Start", Action: func() tea.Cmd { picked = "start"; return nil }},
	})
	assert.Equal(t, 1, m.Selected)
	m, _ = m.Update(key("enter"))
	assert.Equal(t, "start", picked)
	assert.Contains(t, m.View(), "▸ Start")
}

func TestButtonRow(t *testing.T) {
	row := NewButtonRow(NewButton("Yes", "y"), NewButton("No", "n"))
	assert.Contains(t, row.View(), "▸ [y] Yes")

	row, pressed := row.Update(key("enter"))
	assert.Equal(t, 0, pressed)

	row, pressed = row.Update(key("right"))
	assert.Equal(t, -1, pressed)
	assert.True(t, row.Buttons[1].Focused)
	_, pressed = row.Update(key("enter"))
	assert.Equal(t, 1, pressed)

	_, pressed = row.Update(key("y"))
	assert.Equal(t, 0, pressed)
	_, pressed = row.Update(key("x"))
	assert.Equal(t, -1, pressed)
}
