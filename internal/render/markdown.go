package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// Renderer turns markdown into terminal output.
type Renderer interface {
	Render(string) (string, error)
}

// NewMarkdown returns a glamour renderer wrapping at width columns.
func NewMarkdown(width int) (Renderer, error) {
	if width <= 0 {
		width = 100
	}
	return glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
}

// ResponseParts renders the reasoning and the answer separately. Reasoning
// comes from thinking when the vendor streamed it, otherwise from an inline
// <think> block. Render failures fall back to the raw text.
func ResponseParts(content, thinking string, r Renderer) (think, main string, hasThink bool) {
	inline, response, found := SplitThink(content)
	think = strings.TrimSpace(thinking)
	if think == "" && found {
		think = inline
	}
	if found {
		content = response
	}
	if think != "" {
		hasThink = true
		think = renderOr(r, think)
	}
	return think, renderOr(r, content), hasThink
}

func renderOr(r Renderer, s string) string {
	if r == nil {
		return s
	}
	out, err := r.Render(s)
	if err != nil {
		return s
	}
	return out
}

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#8E4EC6")).
			Padding(0, 1)

	thinkStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	toolStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8E4EC6"))

	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// Header renders a section title.
func Header(title string) string {
	return headerStyle.Render(title)
}

// Think renders reasoning text.
func Think(s string) string {
	return thinkStyle.Render(s)
}

// ToolStart renders the line printed when a tool call begins.
func ToolStart(name string) string {
	return toolStyle.Render("-> " + name)
}

// ToolFinish renders the outcome line of a tool call.
func ToolFinish(name string, elapsed time.Duration, err error) string {
	took := dimStyle.Render(fmt.Sprintf("(%s)", elapsed.Round(time.Millisecond)))
	if err != nil {
		return failStyle.Render("x "+name+": "+err.Error()) + " " + took
	}
	return okStyle.Render("ok "+name) + " " + took
}

// Status renders a connection status word with a color per state.
func Status(s string) string {
	switch s {
	case "connected":
		return okStyle.Render(s)
	case "error":
		return failStyle.Render(s)
	case "connecting":
		return warnStyle.Render(s)
	default:
		return dimStyle.Render(s)
	}
}

// Warning renders a warning line.
func Warning(s string) string {
	return warnStyle.Render("warning: " + s)
}

// Dim renders secondary text.
func Dim(s string) string {
	return dimStyle.Render(s)
}
