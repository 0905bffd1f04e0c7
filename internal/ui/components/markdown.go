package components

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// Markdown renders tutor messages with glamour. Renderers are cached per
// wrap width since building one parses the style sheet.
type Markdown struct {
	style     string
	width     int
	renderer  *glamour.TermRenderer
	failedFor int
}

// NewMarkdown creates a renderer using a glamour standard style such as
// "dark", "light" or "notty".
func NewMarkdown(style string) *Markdown {
	if style == "" {
		style = "dark"
	}
	return &Markdown{style: style, failedFor: -1}
}

// Render converts md to styled terminal text wrapped at width. Rendering
// errors fall back to the raw text.
func (m *Markdown) Render(md string, width int) string {
	if width < 20 {
		width = 20
	}
	if m.renderer == nil || m.width != width {
		if m.failedFor == width {
			return md
		}
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(m.style),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			m.failedFor = width
			return md
		}
		m.renderer, m.width = r, width
	}
	out, err := m.renderer.Render(md)
	if err != nil {
		return md
	}
	return strings.Trim(out, "\n")
}
