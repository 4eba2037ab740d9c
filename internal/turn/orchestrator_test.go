package turn

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/zjrosen/jarvis-voice/internal/console"
	"github.com/zjrosen/jarvis-voice/internal/protocol"
	"github.com/zjrosen/jarvis-voice/internal/pubsub"
	"github.com/zjrosen/jarvis-voice/internal/session"
	"github.com/zjrosen/jarvis-voice/internal/tools"
	"github.com/zjrosen/jarvis-voice/internal/worker"
)

func sh(name, script string, extra ...string) worker.Spec {
	return worker.Spec{Name: name, Command: "/bin/sh", Args: append([]string{"-c", script, name}, extra...)}
}

const recordOK = `echo '{"event":"recording_started"}'
echo '{"event":"recording_complete","file":"/tmp/turn.wav"}'
sleep 5`

type fakeDispatcher struct {
	mu    sync.Mutex
	calls [][]protocol.ToolCall
}

func (f *fakeDispatcher) DispatchAll(_ context.Context, calls []protocol.ToolCall) []tools.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, calls)
	out := make([]tools.Outcome, len(calls))
	for i, c := range calls {
		out[i] = tools.Outcome{Tool: c.Function.Name, Status: worker.StatusCompleted}
	}
	return out
}

type capturingReporter struct {
	console.Nop
	mu       sync.Mutex
	lines    []string
	goodbyes int
}

func (c *capturingReporter) add(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, s)
}

func (c *capturingReporter) Booting()               { c.add("booting") }
func (c *capturingReporter) Offline(reason string)  { c.add("offline:" + reason) }
func (c *capturingReporter) Recording()             { c.add("recording") }
func (c *capturingReporter) Processing()            { c.add("processing") }
func (c *capturingReporter) Transcript(text string) { c.add("you:" + text) }
func (c *capturingReporter) ResponseChunk(t string) { c.add("chunk:" + t) }
func (c *capturingReporter) Response(text string)   { c.add("jarvis:" + text) }
func (c *capturingReporter) Error(msg string)       { c.add("error:" + msg) }

func (c *capturingReporter) Goodbye() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.goodbyes++
}

func (c *capturingReporter) seen() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

type fixture struct {
	state *session.State
	disp  *fakeDispatcher
	rep   *capturingReporter
}

func newOrchestrator(t *testing.T, specs Specs, opts ...Option) (*Orchestrator, *fixture) {
	t.Helper()
	state := session.New(context.Background())
	t.Cleanup(state.Stop)
	f := &fixture{state: state, disp: &fakeDispatcher{}, rep: &capturingReporter{}}
	opts = append([]Option{WithReporter(f.rep), WithSessionID(state.ID())}, opts...)
	return New(worker.NewRunner(state), f.disp, specs, opts...), f
}

func TestRunTurn_BuildRequestDispatchesRunTask(t *testing.T) {
	process := `test "$1" = /tmp/turn.wav || exit 9
echo '{"event":"transcript","text":"Jarvis, run the build task"}'
echo '{"event":"tool_call","call":{"id":"c1","type":"function","function":{"name":"run_task","arguments":"{\"task\":\"build\"}"}}}'
echo '{"event":"response","text":"Starting the build."}'`
	o, f := newOrchestrator(t, Specs{
		Record:  sh("record", recordOK),
		Process: sh("process", process, "{file}"),
	})

	res := o.RunTurn(f.state.Context())

	require.Empty(t, res.Aborted)
	require.False(t, res.Terminate)
	require.Equal(t, "Jarvis, run the build task", res.Transcript)
	require.Equal(t, "Starting the build.", res.Response)
	require.Len(t, res.ToolCalls, 1)
	require.Equal(t, `{"task":"build"}`, res.ToolCalls[0].Function.Arguments)
	require.Len(t, f.disp.calls, 1, "dispatcher called exactly once")
	require.Len(t, res.Outcomes, 1)
	require.Equal(t, f.state.ID(), res.SessionID)
	require.NotEmpty(t, res.ID)
	require.False(t, res.CompletedAt.Before(res.StartedAt))
	require.Equal(t, "", f.state.Active())

	assert.Equal(t, []string{"recording", "processing", "you:Jarvis, run the build task", "jarvis:Starting the build."}, f.rep.seen())
}

func TestRunTurn_GoodbyeEventTerminates(t *testing.T) {
	o, f := newOrchestrator(t, Specs{
		Record:  sh("record", recordOK),
		Process: sh("process", `echo '{"event":"response","text":"See you."}'; echo '{"event":"goodbye"}'`),
	})

	res := o.RunTurn(f.state.Context())

	require.True(t, res.Terminate)
	require.Empty(t, res.Aborted)
	require.Equal(t, 1, f.rep.goodbyes)
	require.Empty(t, f.disp.calls)
}

func TestRunTurn_DisengagePhraseInTranscriptTerminates(t *testing.T) {
	tests := map[string]struct {
		text    string
		phrases []string
		want    bool
	}{
		"default phrase":      {text: "OK, Goodbye Jarvis", want: true},
		"second default":      {text: "please DISENGAGE now", want: true},
		"no phrase":           {text: "what time is it", want: false},
		"custom phrase":       {text: "that is all, over and out", phrases: []string{"over and out"}, want: true},
		"custom replaces old": {text: "goodbye", phrases: []string{"over and out"}, want: false},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			process := `echo '{"event":"transcript","text":"` + tc.text + `"}'`
			var opts []Option
			if tc.phrases != nil {
				opts = append(opts, WithDisengagePhrases(tc.phrases))
			}
			o, f := newOrchestrator(t, Specs{
				Record:  sh("record", recordOK),
				Process: sh("process", process),
			}, opts...)

			res := o.RunTurn(f.state.Context())
			require.Equal(t, tc.want, res.Terminate)
		})
	}
}

func TestRunTurn_RecordingFailureSkipsProcessing(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "processed")
	o, f := newOrchestrator(t, Specs{
		Record:  sh("record", `echo '{"event":"error","message":"no microphone"}'; exit 1`),
		Process: sh("process", `touch "$1"`, marker),
	})

	res := o.RunTurn(f.state.Context())

	require.Equal(t, AbortRecordingFailed, res.Aborted)
	require.False(t, res.Terminate)
	require.NoFileExists(t, marker)
	require.Contains(t, f.rep.seen(), "error:no microphone")
	require.NotContains(t, f.rep.seen(), "processing")
	require.True(t, f.state.Running(), "a failed turn leaves the session running")
}

func TestRunTurn_MissingRecorderIsRecordingFailure(t *testing.T) {
	o, f := newOrchestrator(t, Specs{
		Record:  worker.Spec{Name: "record", Command: "/nonexistent/recorder"},
		Process: sh("process", `exit 0`),
	})

	res := o.RunTurn(f.state.Context())
	require.Equal(t, AbortRecordingFailed, res.Aborted)
}

func TestRunTurn_BootFailureDoesNotAbort(t *testing.T) {
	o, f := newOrchestrator(t, Specs{
		Boot:    sh("boot", `echo boom >&2; exit 2`),
		Record:  sh("record", recordOK),
		Process: sh("process", `echo '{"event":"response","text":"Hello."}'`),
	})

	res := o.RunTurn(f.state.Context())

	require.Empty(t, res.Aborted)
	require.Equal(t, "Hello.", res.Response)
	require.Equal(t, "booting", f.rep.seen()[0])
}

func TestRunTurn_OfflineModeIsReportedOnce(t *testing.T) {
	o, f := newOrchestrator(t, Specs{
		Boot:    sh("boot", `echo '{"event":"boot_complete","offline_mode":true}'`),
		Record:  sh("record", recordOK),
		Process: sh("process", `echo '{"event":"offline_mode","reason":"no api key"}'; echo '{"event":"response","text":"Offline."}'`),
	})

	res := o.RunTurn(f.state.Context())

	require.True(t, res.OfflineMode)
	offline := 0
	for _, l := range f.rep.seen() {
		if strings.HasPrefix(l, "offline:") {
			offline++
		}
	}
	require.Equal(t, 1, offline)
}

func TestRunTurn_OfflineModeOnStderrIsApplied(t *testing.T) {
	process := `echo '{"event":"offline_mode","reason":"No OPENAI_API_KEY"}' >&2
echo 'loading whisper model medium' >&2
echo '{"event":"transcript","text":"status"}'`
	o, f := newOrchestrator(t, Specs{
		Record:  sh("record", recordOK),
		Process: sh("process", process),
	})

	res := o.RunTurn(f.state.Context())

	require.Empty(t, res.Aborted)
	require.True(t, res.OfflineMode)
	require.Equal(t, "status", res.Transcript)
	require.Contains(t, f.rep.seen(), "offline:No OPENAI_API_KEY")
	for _, l := range f.rep.seen() {
		require.False(t, strings.HasPrefix(l, "error:"), "plain diagnostics are not errors: %s", l)
	}
}

func TestRunTurn_ErrorEventOnStderrIsReported(t *testing.T) {
	o, f := newOrchestrator(t, Specs{
		Record:  sh("record", `echo '{"event":"error","message":"microphone busy"}' >&2; `+recordOK),
		Process: sh("process", `echo '{"event":"transcript","text":"hi"}'`),
	})

	res := o.RunTurn(f.state.Context())

	require.Empty(t, res.Aborted)
	require.False(t, res.OfflineMode)
	require.Contains(t, f.rep.seen(), "error:microphone busy")
}

func TestRunTurn_StatusProbeIsCachedAndPassedToBoot(t *testing.T) {
	dir := t.TempDir()
	probes := filepath.Join(dir, "probes")
	seen := filepath.Join(dir, "seen")
	status := sh("status", `echo probed >> "$1"; echo "3 tasks ready"`, probes)

	o, f := newOrchestrator(t, Specs{
		Boot:    sh("boot", `echo "$JARVIS_STATUS" >> "$1"`, seen),
		Record:  sh("record", recordOK),
		Process: sh("process", `exit 0`),
		Status:  &status,
	}, WithStatusCacheTTL(time.Minute))

	o.RunTurn(f.state.Context())
	o.RunTurn(f.state.Context())

	data, err := os.ReadFile(probes)
	require.NoError(t, err)
	require.Equal(t, "probed\n", string(data), "probe runs once within the ttl")

	data, err = os.ReadFile(seen)
	require.NoError(t, err)
	require.Equal(t, "3 tasks ready\n3 tasks ready\n", string(data))
}

func TestRunTurn_FailedStatusProbeStillBoots(t *testing.T) {
	seen := filepath.Join(t.TempDir(), "seen")
	status := sh("status", `exit 1`)
	o, f := newOrchestrator(t, Specs{
		Boot:    sh("boot", `echo "[${JARVIS_STATUS-unset}]" > "$1"`, seen),
		Record:  sh("record", recordOK),
		Process: sh("process", `exit 0`),
		Status:  &status,
	})

	res := o.RunTurn(f.state.Context())
	require.Empty(t, res.Aborted)

	data, err := os.ReadFile(seen)
	require.NoError(t, err)
	require.Equal(t, "[unset]\n", string(data))
}

func TestRunTurn_ToolsJSONReachesProcessWorker(t *testing.T) {
	defs, err := tools.DefinitionsJSON()
	require.NoError(t, err)
	out := filepath.Join(t.TempDir(), "tools.json")

	o, f := newOrchestrator(t, Specs{
		Record:  sh("record", recordOK),
		Process: sh("process", `printf '%s' "$JARVIS_TOOLS" > "$1"`, out),
	}, WithToolsJSON(defs))

	o.RunTurn(f.state.Context())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.JSONEq(t, defs, string(data))
}

func TestRunTurn_ChunksBecomeResponseWhenNoFinalResponse(t *testing.T) {
	chunks := `echo '{"event":"assistant_chunk","text":"Hello, "}'
echo '{"event":"assistant_chunk","text":"sir."}'`
	o, f := newOrchestrator(t, Specs{
		Record:  sh("record", recordOK),
		Process: sh("process", chunks),
	})

	res := o.RunTurn(f.state.Context())

	require.Equal(t, "Hello, sir.", res.Response)
	require.Equal(t, []string{"recording", "processing", "chunk:Hello, ", "chunk:sir.", "jarvis:Hello, sir."}, f.rep.seen())
}

func TestRunTurn_StopDuringRecordingInterrupts(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "processed")
	o, f := newOrchestrator(t, Specs{
		Record:  sh("record", `echo '{"event":"recording_started"}'; sleep 10`),
		Process: sh("process", `touch "$1"`, marker),
	})

	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for f.state.Active() != "record" && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		f.state.Stop()
	}()

	start := time.Now()
	res := o.RunTurn(f.state.Context())

	require.Equal(t, AbortInterrupted, res.Aborted)
	require.Less(t, time.Since(start), 5*time.Second)
	require.NoFileExists(t, marker)
}

func TestRunTurn_ProcessTimeoutKeepsPartialTranscript(t *testing.T) {
	process := sh("process", `echo '{"event":"transcript","text":"hello"}'; sleep 10`)
	process.Timeout = 200 * time.Millisecond
	o, f := newOrchestrator(t, Specs{
		Record:  sh("record", recordOK),
		Process: process,
	})

	res := o.RunTurn(f.state.Context())

	require.Empty(t, res.Aborted)
	require.Equal(t, "hello", res.Transcript)
	require.Empty(t, res.Response)
}

func TestRunTurn_PublishesResult(t *testing.T) {
	broker := pubsub.NewBroker[Result]()
	defer broker.Close()
	ch := broker.Subscribe(context.Background())

	o, f := newOrchestrator(t, Specs{
		Record:  sh("record", `exit 1`),
		Process: sh("process", `exit 0`),
	}, WithPublisher(broker))

	res := o.RunTurn(f.state.Context())

	select {
	case ev := <-ch:
		require.Equal(t, pubsub.TurnAborted, ev.Type)
		require.Equal(t, res.ID, ev.Payload.ID)
	case <-time.After(time.Second):
		require.FailNow(t, "no event published")
	}
}

func TestRunTurn_RecordsPhaseSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	o, f := newOrchestrator(t, Specs{
		Boot:    sh("boot", `exit 0`),
		Record:  sh("record", recordOK),
		Process: sh("process", `echo '{"event":"tool_call","call":{"function":{"name":"run_task","arguments":"{}"}}}'`),
	}, WithTracer(tp.Tracer("test")))

	o.RunTurn(f.state.Context())

	var names []string
	for _, s := range sr.Ended() {
		names = append(names, s.Name())
	}
	require.Equal(t, []string{
		"turn.phase.boot",
		"turn.phase.recording",
		"turn.phase.transcribing",
		"turn.phase.dispatching",
		"turn",
	}, names)
}

func TestSetDisengagePhrases_AppliesToNextTurn(t *testing.T) {
	o, f := newOrchestrator(t, Specs{
		Record:  sh("record", recordOK),
		Process: sh("process", `echo '{"event":"transcript","text":"stand down"}'`),
	})

	require.False(t, o.RunTurn(f.state.Context()).Terminate)

	o.SetDisengagePhrases([]string{"Stand Down"})
	require.Equal(t, []string{"Stand Down"}, o.DisengagePhrases())
	require.True(t, o.RunTurn(f.state.Context()).Terminate)
}

func TestContainsDisengage(t *testing.T) {
	phrases := []string{"goodbye", "disengage"}
	require.True(t, ContainsDisengage("GoodBye!", phrases))
	require.False(t, ContainsDisengage("good bye", phrases))
	require.False(t, ContainsDisengage("anything", nil))
	require.False(t, ContainsDisengage("anything", []string{""}))
}
