package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/jarvis-voice/internal/config"
	"github.com/zjrosen/jarvis-voice/internal/console"
	"github.com/zjrosen/jarvis-voice/internal/history"
	"github.com/zjrosen/jarvis-voice/internal/infrastructure/sqlite"
	"github.com/zjrosen/jarvis-voice/internal/log"
	"github.com/zjrosen/jarvis-voice/internal/preflight"
	"github.com/zjrosen/jarvis-voice/internal/pubsub"
	"github.com/zjrosen/jarvis-voice/internal/session"
	"github.com/zjrosen/jarvis-voice/internal/tools"
	"github.com/zjrosen/jarvis-voice/internal/tracing"
	"github.com/zjrosen/jarvis-voice/internal/turn"
	"github.com/zjrosen/jarvis-voice/internal/wake"
	"github.com/zjrosen/jarvis-voice/internal/worker"
)

// tracerShutdownTimeout bounds the final span flush.
const tracerShutdownTimeout = 5 * time.Second

func runVoice(cmd *cobra.Command, _ []string) error {
	cleanup, err := initLogging()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	state := session.New(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			log.Info(log.CatWake, "Received signal, stopping", "signal", sig.String())
			state.Stop()
		case <-state.Done():
		}
	}()

	v, err := newVoiceSession(cfg, state, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer v.Close()

	ensureConfigFile()
	if fileExists(viper.ConfigFileUsed()) {
		stop, err := watchConfig(viper.GetViper(), v.Reload)
		if err != nil {
			log.ErrorErr(log.CatConfig, "Config hot reload disabled", err)
		} else {
			defer stop()
		}
	}
	return v.Run()
}

// voiceSession is a fully wired listener with the resources it owns.
type voiceSession struct {
	cfg          config.Config
	state        *session.State
	presenter    *console.Presenter
	runner       *worker.Runner
	orchestrator *turn.Orchestrator
	listener     *wake.Listener
	broker       *pubsub.Broker[turn.Result]
	tracer       *tracing.Provider

	db           *sqlite.DB
	recorder     *history.Recorder
	recorderDone chan struct{}
}

func tracingConfig(tc config.TracingConfig) tracing.Config {
	c := tracing.Config{
		Enabled:      tc.Enabled,
		Exporter:     tc.Exporter,
		FilePath:     tc.FilePath,
		OTLPEndpoint: tc.OTLPEndpoint,
		SampleRate:   tc.SampleRate,
		ServiceName:  tracing.DefaultServiceName,
	}
	if c.FilePath == "" {
		c.FilePath = config.DefaultTracesFilePath()
	}
	return c
}

// newVoiceSession wires every component for one session. History storage is
// optional: when the database cannot be opened the session runs without it.
func newVoiceSession(c config.Config, state *session.State, out io.Writer) (*voiceSession, error) {
	v := &voiceSession{
		cfg:       c,
		state:     state,
		presenter: console.NewPresenter(out, console.Options{Plain: c.Console.Plain, Width: c.Console.Width}),
		broker:    pubsub.NewBroker[turn.Result](),
	}

	tp, err := tracing.NewProvider(tracingConfig(c.Tracing))
	if err != nil {
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}
	v.tracer = tp
	tracer := tp.Tracer()

	v.runner = worker.NewRunner(state, worker.WithTracer(tracer))

	if c.History.Enabled && c.History.Path != "" {
		db, err := sqlite.NewDB(c.History.Path)
		if err != nil {
			log.ErrorErr(log.CatDB, "Turn history disabled", err, "path", c.History.Path)
			v.presenter.Error(fmt.Sprintf("turn history disabled: %v", err))
		} else {
			v.db = db
			v.recorder = history.NewRecorder(db.TurnRepository())
			v.recorderDone = make(chan struct{})
			ch := v.broker.Subscribe(context.Background())
			go func() {
				defer close(v.recorderDone)
				v.recorder.Run(context.Background(), ch)
			}()
		}
	}

	defs, err := tools.DefinitionsJSON()
	if err != nil {
		v.Close()
		return nil, fmt.Errorf("building tool definitions: %w", err)
	}
	dispatcher := tools.NewDispatcher(v.runner, c.TaskSpec(),
		tools.WithTracer(tracer),
		tools.WithReporter(v.presenter),
	)

	specs := turn.Specs{
		Boot:    c.BootSpec(),
		Record:  c.RecordSpec(),
		Process: c.ProcessSpec(),
	}
	if c.StatusProbe.Enabled {
		status := c.StatusSpec()
		specs.Status = &status
	}
	v.orchestrator = turn.New(v.runner, dispatcher, specs,
		turn.WithTracer(tracer),
		turn.WithReporter(v.presenter),
		turn.WithPublisher(v.broker),
		turn.WithSessionID(state.ID()),
		turn.WithToolsJSON(defs),
		turn.WithDisengagePhrases(c.DisengagePhrases),
		turn.WithStatusCacheTTL(c.StatusProbe.CacheTTL),
	)

	v.listener = wake.New(state, v.runner, v.orchestrator, c.WakeSpec(),
		wake.WithReporter(v.presenter),
		wake.WithTracer(tracer),
		wake.WithPhrase(c.WakePhrase),
		wake.WithStderrIgnore(c.WakeStderrIgnore),
		wake.WithBackoff(c.Backoff.Initial, c.Backoff.Max),
	)
	return v, nil
}

// Run checks dependencies and then listens until the session ends.
func (v *voiceSession) Run() error {
	if v.cfg.Preflight.Enabled {
		checker := preflight.NewChecker(v.runner, v.cfg.PreflightSpec(), v.cfg.Preflight.Packages)
		if err := checker.Check(v.state.Context()); err != nil {
			if !v.state.Running() {
				return nil
			}
			return err
		}
	}
	log.Info(log.CatWake, "Session started", "session", v.state.ID(), "wake_phrase", v.cfg.WakePhrase)
	return v.listener.Run(v.state.Context())
}

// Reload applies the parts of a changed config that are safe mid-session.
func (v *voiceSession) Reload(next config.Config) {
	v.orchestrator.SetDisengagePhrases(next.DisengagePhrases)
}

// Close stops the session and flushes history and traces.
func (v *voiceSession) Close() {
	v.state.Stop()
	v.broker.Close()
	if v.recorderDone != nil {
		<-v.recorderDone
	}
	if v.db != nil {
		if err := v.db.Close(); err != nil {
			log.ErrorErr(log.CatDB, "Closing history database", err)
		}
	}
	if v.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), tracerShutdownTimeout)
		defer cancel()
		if err := v.tracer.Shutdown(ctx); err != nil {
			log.ErrorErr(log.CatTrace, "Flushing traces", err)
		}
	}
}
