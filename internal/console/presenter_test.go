package console

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newPlain(width int) (*Presenter, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewPresenter(&buf, Options{Plain: true, Width: width}), &buf
}

func TestPresenter_TurnLines(t *testing.T) {
	p, buf := newPlain(0)

	p.Listening("hey jarvis")
	p.WakeDetected("hey jarvis")
	p.Recording()
	p.Processing()
	p.Transcript("run the build task")
	p.Response("Starting the build.")
	p.ToolStarted("run_task", "build")
	p.ToolFinished("run_task", 0, nil)
	p.Goodbye()

	out := buf.String()
	for _, want := range []string{
		`Listening for "hey jarvis"...`,
		"Wake phrase detected: hey jarvis",
		"Recording...",
		"Processing...",
		"You: run the build task",
		"Jarvis: Starting the build.",
		"Executing run_task: build",
		"run_task finished (exit 0)",
		"Goodbye.",
	} {
		require.Contains(t, out, want)
	}
	require.NotContains(t, out, "\x1b[", "plain output has no escape sequences")
}

func TestPresenter_StreamedChunksEndWithSingleNewline(t *testing.T) {
	p, buf := newPlain(0)

	p.ResponseChunk("Hello")
	p.ResponseChunk(", world")
	p.Response("Hello, world")
	p.Goodbye()

	require.Equal(t, "Jarvis: Hello, world\nGoodbye.\n", buf.String())
}

func TestPresenter_LineAfterChunksBreaksStream(t *testing.T) {
	p, buf := newPlain(0)

	p.ResponseChunk("partial")
	p.Error("backend crashed")

	require.Equal(t, "Jarvis: partial\nError: backend crashed\n", buf.String())
}

func TestPresenter_WrapsTranscript(t *testing.T) {
	p, buf := newPlain(10)

	p.Transcript("one two three four five")

	require.True(t, strings.HasPrefix(buf.String(), "You: one two\nthree four\nfive"), buf.String())
}

func TestPresenter_EmptyResponseIsSilent(t *testing.T) {
	p, buf := newPlain(0)
	p.Response("  ")
	require.Empty(t, buf.String())
}

func TestPresenter_ToolFailureAndOffline(t *testing.T) {
	p, buf := newPlain(0)

	p.ToolFinished("run_task", 2, errors.New("task runner exited with code 2"))
	p.Offline("no OPENAI_API_KEY")
	p.WakeDetected("")

	out := buf.String()
	require.Contains(t, out, "run_task failed: task runner exited with code 2")
	require.Contains(t, out, "Offline mode (no OPENAI_API_KEY)")
	require.Contains(t, out, "Wake phrase detected\n")
}

func TestNop_ImplementsReporter(t *testing.T) {
	var r Reporter = Nop{}
	r.Listening("x")
	r.ToolFinished("t", 1, errors.New("e"))
}
