package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/termenv"
)

// Presenter writes styled progress lines to a terminal.
type Presenter struct {
	mu        sync.Mutex
	w         io.Writer
	width     int
	st        styles
	streaming bool
}

var _ Reporter = (*Presenter)(nil)

// Options configures a Presenter.
type Options struct {
	// Plain disables colors and styling.
	Plain bool
	// Width wraps spoken text; 0 disables wrapping.
	Width int
}

// NewPresenter creates a Presenter writing to w.
func NewPresenter(w io.Writer, opts Options) *Presenter {
	r := lipgloss.NewRenderer(w)
	st := newStyles(r)
	if opts.Plain {
		r.SetColorProfile(termenv.Ascii)
		st = plainStyles(r)
	}
	return &Presenter{
		w:     w,
		width: opts.Width,
		st:    st,
	}
}

func (p *Presenter) wrap(s string) string {
	if p.width <= 0 {
		return s
	}
	return wordwrap.String(s, p.width)
}

// line ends any streamed response and prints one line.
func (p *Presenter) line(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.streaming {
		_, _ = io.WriteString(p.w, "\n")
		p.streaming = false
	}
	_, _ = io.WriteString(p.w, s+"\n")
}

func (p *Presenter) Listening(phrase string) {
	p.line(p.st.muted.Render(fmt.Sprintf("Listening for %q...", phrase)))
}

func (p *Presenter) WakeDetected(heard string) {
	msg := "Wake phrase detected"
	if heard != "" {
		msg += ": " + heard
	}
	p.line(p.st.accent.Render(msg))
}

func (p *Presenter) Booting() {
	p.line(p.st.muted.Render("Booting..."))
}

func (p *Presenter) Offline(reason string) {
	msg := "Offline mode"
	if reason != "" {
		msg += " (" + reason + ")"
	}
	p.line(p.st.warning.Render(msg))
}

func (p *Presenter) Recording() {
	p.line(p.st.accent.Render("Recording..."))
}

func (p *Presenter) Processing() {
	p.line(p.st.muted.Render("Processing..."))
}

func (p *Presenter) Transcript(text string) {
	p.line(p.st.label.Render("You: ") + p.wrap(text))
}

// ResponseChunk streams a fragment of the spoken response without a newline.
func (p *Presenter) ResponseChunk(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.streaming {
		_, _ = io.WriteString(p.w, p.st.label.Render("Jarvis: "))
		p.streaming = true
	}
	_, _ = io.WriteString(p.w, p.st.speech.Render(text))
}

// Response prints the full response unless it was already streamed.
func (p *Presenter) Response(text string) {
	p.mu.Lock()
	if p.streaming {
		_, _ = io.WriteString(p.w, "\n")
		p.streaming = false
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	if strings.TrimSpace(text) == "" {
		return
	}
	p.line(p.st.label.Render("Jarvis: ") + p.st.speech.Render(p.wrap(text)))
}

func (p *Presenter) ToolStarted(tool, task string) {
	p.line(p.st.accent.Render(fmt.Sprintf("Executing %s: %s", tool, task)))
}

func (p *Presenter) ToolFinished(tool string, exitCode int, err error) {
	if err != nil {
		p.line(p.st.err.Render(fmt.Sprintf("%s failed: %v", tool, err)))
		return
	}
	p.line(p.st.success.Render(fmt.Sprintf("%s finished (exit %d)", tool, exitCode)))
}

func (p *Presenter) Goodbye() {
	p.line(p.st.accent.Render("Goodbye."))
}

func (p *Presenter) Error(msg string) {
	p.line(p.st.err.Render("Error: ") + msg)
}
