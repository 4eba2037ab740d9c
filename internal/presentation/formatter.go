package presentation

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
)

// Formatter handles output formatting
type Formatter struct {
	writer io.Writer
}

// NewFormatter creates a new formatter
func NewFormatter(writer io.Writer) *Formatter {
	return &Formatter{
		writer: writer,
	}
}

// FormatJSON writes v as indented JSON.
func (f *Formatter) FormatJSON(v any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// FormatTurns formats turns as JSON
func (f *Formatter) FormatTurns(turns []TurnDTO) error {
	return f.FormatJSON(turns)
}

const transcriptWidth = 48

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	abortedStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#D70000", Dark: "#FF8787"})
)

// FormatTurnsText writes one line per turn, newest first as given.
func (f *Formatter) FormatTurnsText(turns []TurnDTO) error {
	if len(turns) == 0 {
		_, err := fmt.Fprintln(f.writer, "No turns recorded.")
		return err
	}

	header := fmt.Sprintf("%-19s  %-8s  %-6s  %s", "STARTED", "DURATION", "TOOLS", "TRANSCRIPT")
	if _, err := fmt.Fprintln(f.writer, headerStyle.Render(header)); err != nil {
		return err
	}
	for _, t := range turns {
		transcript := strings.Join(strings.Fields(t.Transcript), " ")
		transcript = truncate.StringWithTail(transcript, transcriptWidth, "…")
		switch {
		case t.Aborted != "":
			transcript = abortedStyle.Render("(" + t.Aborted + ")")
		case t.Terminate:
			transcript += " [end]"
		}
		line := fmt.Sprintf("%-19s  %7.1fs  %-6d  %s",
			t.StartedAt.Local().Format("2006-01-02 15:04:05"),
			float64(t.DurationMS)/1000,
			len(t.Tools),
			transcript,
		)
		if _, err := fmt.Fprintln(f.writer, line); err != nil {
			return err
		}
	}
	return nil
}
