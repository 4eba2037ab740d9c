package worker

// Status is the lifecycle state of a worker process.
type Status int

const (
	// StatusPending indicates the process has not started.
	StatusPending Status = iota
	// StatusRunning indicates the process is alive.
	StatusRunning
	// StatusCompleted indicates a zero exit.
	StatusCompleted
	// StatusFailed indicates a non-zero exit or a spawn failure.
	StatusFailed
	// StatusCancelled indicates the worker was terminated on request.
	StatusCancelled
	// StatusTimedOut indicates the worker was terminated because its timeout elapsed.
	StatusTimedOut
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	case StatusTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the process has finished one way or another.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		return true
	}
	return false
}
