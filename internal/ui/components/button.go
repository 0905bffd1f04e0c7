package components

import (
	"strings"

	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/codecoach/internal/ui/theme"
)

// Button is one choice in a dialog. Hotkey presses it directly; enter
// presses it while focused.
type Button struct {
	Label   string
	Hotkey  string
	Focused bool
}

// NewButton creates an unfocused button.
func NewButton(label, hotkey string) Button {
	return Button{Label: label, Hotkey: hotkey}
}

// Pressed reports whether msg activates the button.
func (b Button) Pressed(msg tea.KeyPressMsg) bool {
	k := msg.String()
	if b.Hotkey != "" && strings.EqualFold(k, b.Hotkey) {
		return true
	}
	return b.Focused && k == "enter"
}

// View renders the button.
func (b Button) View() string {
	label := b.Label
	if b.Hotkey != "" {
		label = "[" + b.Hotkey + "] " + label
	}
	if b.Focused {
		return theme.ButtonActive.Render("▸ " + label)
	}
	return theme.ButtonInactive.Render(label)
}

// ButtonRow is a horizontal set of buttons with one focused.
type ButtonRow struct {
	Buttons []Button
	focus   int
}

// NewButtonRow focuses the first button.
func NewButtonRow(buttons ...Button) ButtonRow {
	r := ButtonRow{Buttons: buttons}
	r.setFocus(0)
	return r
}

func (r *ButtonRow) setFocus(i int) {
	if len(r.Buttons) == 0 {
		return
	}
	r.focus = (i + len(r.Buttons)) % len(r.Buttons)
	for j := range r.Buttons {
		r.Buttons[j].Focused = j == r.focus
	}
}

// Update moves focus on left/right/tab and returns the index of the
// pressed button, or -1.
func (r ButtonRow) Update(msg tea.KeyPressMsg) (ButtonRow, int) {
	switch msg.String() {
	case "left", "shift+tab", "h":
		r.setFocus(r.focus - 1)
		return r, -1
	case "right", "tab", "l":
		r.setFocus(r.focus + 1)
		return r, -1
	}
	for i, b := range r.Buttons {
		if b.Pressed(msg) {
			return r, i
		}
	}
	return r, -1
}

// View renders the buttons side by side.
func (r ButtonRow) View() string {
	parts := make([]string, len(r.Buttons))
	for i, b := range r.Buttons {
		parts[i] = b.View()
	}
	return strings.Join(parts, "  ")
}
