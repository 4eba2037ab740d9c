// Package console prints the session's progress lines on the terminal.
package console

// Reporter receives user-facing progress from the wake loop, turns and tools.
// Implementations must be safe to call from a single goroutine at a time.
type Reporter interface {
	Listening(phrase string)
	WakeDetected(heard string)
	Booting()
	Offline(reason string)
	Recording()
	Processing()
	Transcript(text string)
	ResponseChunk(text string)
	Response(text string)
	ToolStarted(tool, task string)
	ToolFinished(tool string, exitCode int, err error)
	Goodbye()
	Error(msg string)
}

// Nop discards everything.
type Nop struct{}

var _ Reporter = Nop{}

func (Nop) Listening(string) {}
func (Nop) WakeDetected(string) {}
func (Nop) Booting() {}
func (Nop) Offline(string) {}
func (Nop) Recording() {}
func (Nop) Processing() {}
func (Nop) Transcript(string) {}
func (Nop) ResponseChunk(string) {}
func (Nop) Response(string) {}
func (Nop) ToolStarted(string, string) {}
func (Nop) ToolFinished(string, int, error) {}
func (Nop) Goodbye() {}
func (Nop) Error(string) {}
