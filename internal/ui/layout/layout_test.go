package layout

import (
	"strings"
	"testing"

	"charm.land/lipgloss/v2"
)

func TestIsTooSmall(t *testing.T) {
	tests := []struct {
		w, h int
		want bool
	}{
		{80, 24, false},
		{79, 24, true},
		{80, 23, true},
		{120, 40, false},
	}
	for _, tt := range tests {
		if got := IsTooSmall(tt.w, tt.h); got != tt.want {
			t.Errorf("IsTooSmall(%d, %d) = %v, want %v", tt.w, tt.h, got, tt.want)
		}
	}
}

func TestRenderHeader(t *testing.T) {
	out := RenderHeader("Chat", "connected", 100)
	if !strings.Contains(out, "CodeCoach") || !strings.Contains(out, "Chat") || !strings.Contains(out, "connected") {
		t.Errorf("header missing parts:\n%s", out)
	}
	if h := lipgloss.Height(out); h != HeaderHeight {
		t.Errorf("header height = %d, want %d", h, HeaderHeight)
	}
}

func TestRenderFrame_FillsHeight(t *testing.T) {
	header := RenderHeader("", "", 80)
	footer := RenderFooter([]KeyHint{{Key: "Esc", Description: "Back"}}, 80)
	frame := RenderFrame(header, "body", footer, 80, 24)
	if h := lipgloss.Height(frame); h != 24 {
		t.Errorf("frame height = %d, want 24", h)
	}
	if !strings.Contains(frame, "Esc") {
		t.Error("footer hint missing")
	}
}

func TestRenderFooter_Fits(t *testing.T) {
	hints := []KeyHint{
		{Key: "Enter", Description: "Send"},
		{Key: "Ctrl+N", Description: "Next stage"},
		{Key: "Ctrl+T", Description: "Hint"},
		{Key: "Ctrl+E", Description: "Explain"},
		{Key: "Ctrl+G", Description: "Challenge"},
		{Key: "Ctrl+O", Description: "Code"},
		{Key: "Ctrl+R", Description: "New session"},
		{Key: "Esc", Description: "Back"},
	}

	wide := RenderFooter(hints, 200)
	if !strings.Contains(wide, "Next stage") || !strings.Contains(wide, "Esc") {
		t.Errorf("wide footer missing hints:\n%s", wide)
	}

	compact := RenderFooter(hints, 80)
	if strings.Contains(compact, "Next stage") {
		t.Errorf("compact footer should show keys only:\n%s", compact)
	}
	if !strings.Contains(compact, "Ctrl+N") {
		t.Errorf("compact footer missing keys:\n%s", compact)
	}
	if h := lipgloss.Height(compact); h != FooterHeight {
		t.Errorf("footer height = %d, want %d", h, FooterHeight)
	}
}
