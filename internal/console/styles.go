package console

import "github.com/charmbracelet/lipgloss"

var (
	mutedColor   = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#999999"}
	accentColor  = lipgloss.AdaptiveColor{Light: "#1E66F5", Dark: "#89B4FA"}
	speechColor  = lipgloss.AdaptiveColor{Light: "#179299", Dark: "#94E2D5"}
	successColor = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	warningColor = lipgloss.AdaptiveColor{Light: "#DF8E1D", Dark: "#FECA57"}
	errorColor   = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF8787"}
)

// styles are built per renderer so plain output can drop colors.
type styles struct {
	muted   lipgloss.Style
	accent  lipgloss.Style
	label   lipgloss.Style
	speech  lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	err     lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		muted:   r.NewStyle().Foreground(mutedColor),
		accent:  r.NewStyle().Foreground(accentColor).Bold(true),
		label:   r.NewStyle().Bold(true),
		speech:  r.NewStyle().Foreground(speechColor),
		success: r.NewStyle().Foreground(successColor),
		warning: r.NewStyle().Foreground(warningColor),
		err:     r.NewStyle().Foreground(errorColor).Bold(true),
	}
}

func plainStyles(r *lipgloss.Renderer) styles {
	s := r.NewStyle()
	return styles{muted: s, accent: s, label: s, speech: s, success: s, warning: s, err: s}
}
