package tracing

// Span attribute keys.
const (
	AttrSessionID = "session.id"
	AttrTurnID    = "turn.id"
	AttrTurnPhase = "turn.phase"
	AttrAborted   = "turn.aborted"
	AttrTerminate = "turn.terminate"
	AttrOffline   = "turn.offline_mode"
	AttrToolCalls = "turn.tool_calls"
	AttrAudioFile = "turn.audio_file"

	AttrWorkerName     = "worker.name"
	AttrWorkerCommand  = "worker.command"
	AttrWorkerPID      = "worker.pid"
	AttrWorkerStatus   = "worker.status"
	AttrWorkerExitCode = "worker.exit_code"
	AttrWorkerTimeout  = "worker.timeout_ms"

	AttrToolName     = "tool.name"
	AttrToolTask     = "tool.task"
	AttrToolExitCode = "tool.exit_code"

	AttrEventKind = "event.kind"
)

// Span names.
const (
	SpanTurn         = "turn"
	SpanPrefixPhase  = "turn.phase."
	SpanPrefixWorker = "worker."
	SpanPrefixTool   = "tool."
	SpanWakeListen   = "wake.listen"
)

// Span event names.
const (
	EventWorkerEvent  = "worker.event"
	EventWakeDetected = "wake.detected"
	EventToolRejected = "tool.rejected"
)
