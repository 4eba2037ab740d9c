//go:build !unix

package worker

import "os/exec"

// configureProcessGroup leaves the default cancellation, which kills only the
// worker process itself.
func configureProcessGroup(*exec.Cmd) {}

func forceKill(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}
