package testutil

import "time"

// WithStandardTurns adds one terminating, one tool-running and one aborted
// turn, listed newest first.
func (b *Builder) WithStandardTurns() *Builder {
	return b.
		WithTurn("t2",
			Transcript("goodbye jarvis"), Response(""), Terminate(),
			StartedAt(time.Minute), Took(1500*time.Millisecond)).
		WithTurn("t1",
			Transcript("run the\nbuild task"), Response("Starting the build."),
			Tool("run_task", "build", "completed"), Took(4*time.Second)).
		WithTurn("t0",
			Aborted("recording_failed"), StartedAt(-time.Minute), Took(0))
}
