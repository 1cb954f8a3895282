package jarvis

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/jarvis/pkg/adapters/stt"
	"github.com/harunnryd/jarvis/pkg/adapters/tts"
	"github.com/harunnryd/jarvis/pkg/audio"
	"github.com/harunnryd/jarvis/pkg/bridge"
	"github.com/harunnryd/jarvis/pkg/conversation"
	"github.com/harunnryd/jarvis/pkg/executor"
	"github.com/harunnryd/jarvis/pkg/history"
	"github.com/harunnryd/jarvis/pkg/listener"
	"github.com/harunnryd/jarvis/pkg/llm"
	"github.com/harunnryd/jarvis/pkg/logging"
	"github.com/harunnryd/jarvis/pkg/metrics"
	"github.com/harunnryd/jarvis/pkg/redact"
	"github.com/harunnryd/jarvis/pkg/resilience"
	"github.com/harunnryd/jarvis/pkg/router"
	"github.com/harunnryd/jarvis/pkg/skill"
	"github.com/harunnryd/jarvis/pkg/skills"
	"github.com/harunnryd/jarvis/pkg/speech"
	"github.com/harunnryd/jarvis/pkg/svcclient"
	"github.com/harunnryd/jarvis/pkg/upload"
	"github.com/harunnryd/jarvis/pkg/wakeword"
	"github.com/harunnryd/jarvis/pkg/watchdog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
)

const (
	MsgYes            = "Yes?"
	MsgNoCommand      = "I didn't hear a command."
	MsgGoingToSleep   = "Going to sleep. Say Jarvis to wake me up."
	MsgSleeping       = "Jarvis is sleeping. Say 'Jarvis' to wake me up."
	MsgAutoSleep      = "Returning to sleep mode."
	MsgMCQEnter       = "Entering multiple-choice question answering mode. Please state your questions one by one. Say 'end answer' to exit this mode."
	MsgMCQExit        = "Exiting multiple-choice question answering mode."
	MsgNoQuestion     = "I didn't hear a question. Please try again or say 'end answer'."
	MsgBusy           = "I'm still busy with an earlier request. Please try again in a moment."
	MsgMicUnavailable = "Sorry, I couldn't access the microphone."

	dispatchPoll = time.Second
	drainTimeout = 10 * time.Second
)

// Options wires the engine. Collaborators left nil are built from Config
// where that is possible.
type Options struct {
	Config Config

	Source audio.Source
	Player audio.Player

	Primary         tts.Synthesizer
	Fallback        tts.Synthesizer
	Transcriber     stt.Transcriber
	WakeTranscriber stt.Transcriber
	Spotter         wakeword.SpotterFactory
	Model           llm.Completer

	Service   Service
	Messenger skills.Messenger
	Opener    skills.Opener
	History   *history.Journal

	Registry *prometheus.Registry
	Logger   *slog.Logger
	// Closers run at the end of Drain, after every component stopped.
	Closers []func() error
}

// Engine owns the core components and drives activations and typed commands
// through them. It is the skill.Env every skill talks back to.
type Engine struct {
	cfg    Config
	logger *slog.Logger

	metrics  *metrics.Metrics
	watchdog *watchdog.Watchdog
	machine  *conversation.Machine
	speech   *speech.Engine
	gate     *wakeword.Gate
	detector *wakeword.Detector
	listener *listener.Listener
	exec     *executor.Executor
	router   *router.Router
	mcq      router.Route
	uploads  *upload.Slot
	cron     *cron.Cron
	hub      *bridge.Hub
	journal  *history.Journal
	closers  []func() error

	activations chan wakeword.Activation
	// micMu serializes listener captures between the dispatch loop and
	// skills asking follow-up questions.
	micMu   sync.Mutex
	tracked sync.Map

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	drainOnce sync.Once
	drainErr  error
}

func New(opts Options) (*Engine, error) {
	cfg := opts.Config
	if opts.Source == nil {
		return nil, errors.New("jarvis: audio source is required")
	}
	if opts.Player == nil {
		return nil, errors.New("jarvis: audio player is required")
	}
	if opts.Primary == nil {
		return nil, errors.New("jarvis: tts synthesizer is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:         cfg,
		logger:      logging.NewComponentLogger(logger, "engine"),
		metrics:     metrics.New(reg),
		uploads:     &upload.Slot{},
		cron:        cron.New(),
		journal:     opts.History,
		closers:     opts.Closers,
		activations: wakeword.NewChannel(1),
		ctx:         ctx,
		cancel:      cancel,
	}

	e.watchdog = watchdog.New(watchdog.Options{
		Timeout:  cfg.Watchdog.Timeout,
		Interval: cfg.Watchdog.Interval,
		Logger:   logger,
		Metrics:  e.metrics,
	})
	e.machine = conversation.New(conversation.Options{
		AutoSleepDelay: cfg.Conversation.AutoSleepDelay,
		Logger:         logger,
		Metrics:        e.metrics,
	})

	e.hub = bridge.New(bridge.Options{
		Addr:           cfg.Bridge.Addr,
		CommandBuffer:  cfg.Bridge.CommandBuffer,
		AllowedOrigins: cfg.Bridge.AllowedOrigins,
		Store:          &upload.Store{Dir: cfg.Uploads.Dir, Slot: e.uploads},
		Logger:         logger,
		Metrics:        e.metrics,
	})
	e.speech = speech.New(speech.Options{
		Primary:      opts.Primary,
		Fallback:     opts.Fallback,
		Player:       opts.Player,
		Notifier:     e.hub,
		Heartbeat:    e.watchdog.Heartbeat("speech"),
		PollInterval: cfg.Speech.PollInterval,
		Logger:       logger,
		Metrics:      e.metrics,
	})
	e.hub.SetSpeaker(e.speech)
	e.machine.AddListener(e.hub)
	e.machine.AddListener(conversation.ListenerFunc(e.onStateChange))

	e.gate = wakeword.NewGate()
	if opts.Spotter != nil || opts.WakeTranscriber != nil {
		e.detector = wakeword.NewDetector(wakeword.Options{
			Source:        opts.Source,
			Spotter:       opts.Spotter,
			Transcriber:   opts.WakeTranscriber,
			Language:      cfg.Listener.Language,
			Triggers:      cfg.WakeWord.Triggers,
			Cooldown:      cfg.WakeWord.Cooldown,
			SendTimeout:   cfg.WakeWord.SendTimeout,
			Backoff:       cfg.WakeWord.Backoff,
			ListenTimeout: cfg.WakeWord.ListenTimeout,
			PhraseLimit:   cfg.WakeWord.PhraseLimit,
			Threshold:     cfg.Listener.EnergyThreshold,
			Gate:          e.gate,
			Out:           e.activations,
			Heartbeat:     e.watchdog.Heartbeat("wakeword"),
			Logger:        logger,
			Metrics:       e.metrics,
		})
	}
	e.listener = listener.New(listener.Options{
		Source:      opts.Source,
		Gate:        e.gate,
		Transcriber: opts.Transcriber,
		Asleep:      e.machine.IsAsleep,
		Speech:      e.speech,
		Language:    cfg.Listener.Language,
		Threshold:   cfg.Listener.EnergyThreshold,
		Pause:       cfg.Listener.Pause,
		Logger:      logger,
	})
	e.exec = executor.New(executor.Options{
		Workers:  cfg.Executor.Workers,
		Backlog:  cfg.Executor.Backlog,
		OnReject: e.onReject,
		Logger:   logger,
		Metrics:  e.metrics,
	})

	service := opts.Service
	if service == nil {
		service = svcclient.New(svcclient.Options{
			Endpoints:        cfg.Services.Endpoints,
			Timeout:          cfg.Services.Timeout,
			Retry:            retryPolicy(cfg.Services.Retry),
			BreakerThreshold: cfg.Services.BreakerThreshold,
			BreakerCooldown:  cfg.Services.BreakerCooldown,
			SingleAttempt:    cfg.Services.SingleAttempt,
			Logger:           logger,
			Metrics:          e.metrics,
		})
	}
	opener := opts.Opener
	if opener == nil {
		opener = skills.SystemOpener{}
	}
	mixer, _ := opts.Player.(audio.Mixer)
	routes, fallback := DefaultRoutes(RouteDeps{
		Service:   service,
		Mixer:     mixer,
		Model:     opts.Model,
		Messenger: opts.Messenger,
		Opener:    opener,
		Cron:      e.cron,
		Ring:      e.ring,
		Uploads:   e.uploads,
		OutputDir: cfg.Uploads.OutputDir,
		Web:       cfg.Web,
		Weather:   cfg.Weather,
		News:      cfg.News,
		Logger:    logger,
	})
	e.router = router.New(routes, fallback, logger)
	e.mcq = router.Route{Name: "mcq", Skill: &skills.MCQSkill{Model: opts.Model}}
	return e, nil
}

func retryPolicy(rc RetryConfig) resilience.RetryPolicy {
	p := resilience.NewRetryPolicy(rc.MaxAttempts, rc.Backoff)
	if rc.MaxBackoff > 0 {
		p.MaxBackoff = rc.MaxBackoff
	}
	return p
}

// Start launches the background loops. They stop when ctx ends or Drain is
// called.
func (e *Engine) Start(ctx context.Context) error {
	started := false
	var err error
	e.startOnce.Do(func() {
		started = true
		context.AfterFunc(ctx, e.cancel)
		if e.cfg.Bridge.Enabled {
			if err = e.hub.Start(e.ctx); err != nil {
				return
			}
		}
		e.cron.Start()

		e.goLoop(func(ctx context.Context) {
			if err := e.watchdog.Run(ctx); err != nil && ctx.Err() == nil {
				e.logger.Error("watchdog_stopped", "error", err)
			}
		})
		if e.detector != nil {
			e.goLoop(func(ctx context.Context) {
				if err := e.detector.Run(ctx); err != nil && ctx.Err() == nil {
					e.logger.Error("wakeword_stopped", "error", err)
				}
			})
		} else {
			e.logger.Warn("wakeword_disabled", "reason", "no spotter or wake transcriber configured")
		}
		e.goLoop(e.dispatchLoop)
		e.logger.Info("engine_started",
			"bridge", e.cfg.Bridge.Enabled,
			"workers", e.cfg.Executor.Workers,
			"auto_sleep_delay", e.cfg.Conversation.AutoSleepDelay)
		e.Display(MsgSleeping)
	})
	if !started {
		return errors.New("engine already started")
	}
	return err
}

func (e *Engine) goLoop(fn func(ctx context.Context)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn(e.ctx)
	}()
}

// Drain stops intake, lets running skills finish and releases every
// component. It is safe to call more than once.
func (e *Engine) Drain() error {
	e.drainOnce.Do(func() {
		e.cancel()
		e.wg.Wait()

		var errs []error
		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := e.exec.Drain(ctx); err != nil {
			errs = append(errs, err)
		}
		<-e.cron.Stop().Done()
		if err := e.speech.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := e.hub.Close(); err != nil {
			errs = append(errs, err)
		}
		if e.journal != nil {
			if err := e.journal.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		for _, fn := range e.closers {
			if err := fn(); err != nil {
				errs = append(errs, err)
			}
		}
		e.drainErr = errors.Join(errs...)
		e.logger.Info("engine_drained", "error", e.drainErr)
	})
	return e.drainErr
}

// State returns the conversation state.
func (e *Engine) State() conversation.State { return e.machine.State() }

// Machine exposes the conversation state machine.
func (e *Engine) Machine() *conversation.Machine { return e.machine }

// Detector returns the wake word detector, or nil when it is disabled.
func (e *Engine) Detector() *wakeword.Detector { return e.detector }

// Hub returns the UI bridge.
func (e *Engine) Hub() *bridge.Hub { return e.hub }

// SubmitText queues a typed command as if it came from the UI.
func (e *Engine) SubmitText(text string) (router.PendingCommand, error) {
	return e.hub.SubmitText(text)
}

// Activate injects an activation. It reports false when one is already
// waiting.
func (e *Engine) Activate(act wakeword.Activation) bool {
	if act.At.IsZero() {
		act.At = time.Now()
	}
	select {
	case e.activations <- act:
		return true
	default:
		return false
	}
}

func (e *Engine) dispatchLoop(ctx context.Context) {
	beat := e.watchdog.Heartbeat("dispatcher")
	ticker := time.NewTicker(dispatchPoll)
	defer ticker.Stop()
	for {
		beat()
		select {
		case <-ctx.Done():
			return
		case act := <-e.activations:
			e.handleActivation(ctx, act)
		case cmd := <-e.hub.Commands():
			e.handleCommand(ctx, cmd)
		case <-ticker.C:
		}
	}
}

func (e *Engine) handleActivation(ctx context.Context, act wakeword.Activation) {
	// The detector holds the gate after a detection until we are done with
	// the microphone.
	resume := sync.OnceFunc(e.gate.Resume)
	defer resume()

	e.logger.Info("activation_received", "id", act.ID, "tier", act.Tier, "phrase", act.Phrase)
	if _, err := e.machine.Fire(conversation.EventActivation, "wake word"); err != nil {
		e.logger.Debug("activation_ignored", "state", e.machine.State(), "error", err)
	}
	if err := e.speech.PlayTone(ctx, audio.ActivationTone, false); err != nil {
		e.logger.Warn("activation_tone_failed", "error", err)
	}
	if err := e.speech.SpeakAndWait(ctx, MsgYes); err != nil {
		return
	}

	e.fire(conversation.EventListenStart, "activation")
	text, err := e.listenKeepingAlive(ctx, listener.ProfileCommand)
	resume()
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		e.logger.Warn("listen_failed", "error", err)
		e.fire(conversation.EventListenTimeout, "microphone error")
		e.Speak(MsgMicUnavailable)
		return
	}
	if text == "" {
		e.fire(conversation.EventListenTimeout, "no command")
		e.Speak(MsgNoCommand)
		return
	}
	e.handleCommand(ctx, router.NewPendingCommand(text, skill.SourceVoice))
}

var (
	sleepPhrase    = router.Or(router.Contains("stop listening"), router.Regexp(`\bsleep\b`))
	mcqEnterPhrase = router.Contains("answer a multiple choice question", "answer mod")
	mcqExitPhrase  = router.Contains("end answer")
)

var _ skill.Env = (*Engine)(nil)

func matchPhrase(p router.Predicate, text string) bool {
	_, ok := p.Match(text)
	return ok
}

// handleCommand applies the conversation-level commands and submits the rest.
// It returns the future of the submitted invocation, if any.
func (e *Engine) handleCommand(ctx context.Context, cmd router.PendingCommand) *executor.Future {
	text := router.Normalize(cmd.RawText)
	if text == "" {
		return nil
	}
	if cmd.Source == skill.SourceVoice {
		e.Display("You said: " + cmd.RawText)
	}

	switch {
	case matchPhrase(sleepPhrase, text):
		e.machine.ForceSleep("sleep command")
		e.Speak(MsgGoingToSleep)
		e.Display(MsgSleeping)
		return nil

	case e.machine.State() == conversation.StateMCQ:
		if matchPhrase(mcqExitPhrase, text) {
			e.fire(conversation.EventMCQExit, "end answer")
			e.Speak(MsgMCQExit)
			return nil
		}
		ev := conversation.EventUtterance
		if cmd.Source == skill.SourceText {
			ev = conversation.EventTextCommand
		}
		e.fire(ev, "mcq question")
		return e.submit(cmd, router.Resolved{Route: e.mcq}, false)

	case matchPhrase(mcqEnterPhrase, text):
		if _, err := e.machine.Fire(conversation.EventMCQEnter, "mcq command"); err != nil {
			e.logger.Warn("mcq_enter_rejected", "state", e.machine.State(), "error", err)
			e.Speak(MsgBusy)
			return nil
		}
		if err := e.speech.SpeakAndWait(ctx, MsgMCQEnter); err != nil {
			return nil
		}
		if cmd.Source == skill.SourceVoice {
			e.mcqSession(ctx)
		}
		return nil
	}

	ev := conversation.EventUtterance
	if cmd.Source == skill.SourceText {
		ev = conversation.EventTextCommand
	}
	_, err := e.machine.Fire(ev, "command")
	if err != nil {
		e.logger.Warn("command_untracked", "id", cmd.ID, "state", e.machine.State(), "error", err)
	}
	res, _ := e.router.Resolve(cmd.RawText)
	return e.submit(cmd, res, err == nil)
}

// mcqSession keeps listening for questions until the user leaves MCQ mode.
// Typed commands that arrive meanwhile are handled between questions.
func (e *Engine) mcqSession(ctx context.Context) {
	beat := e.watchdog.Heartbeat("dispatcher")
	for {
		beat()
		e.drainTyped(ctx)
		if ctx.Err() != nil || e.machine.State() != conversation.StateMCQ {
			return
		}

		e.fire(conversation.EventListenStart, "mcq")
		text, err := e.listenKeepingAlive(ctx, listener.ProfileAnswer)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			e.logger.Warn("listen_failed", "profile", listener.ProfileAnswer.Name, "error", err)
			e.fire(conversation.EventListenTimeout, "microphone error")
			e.Speak(MsgMicUnavailable)
			return
		}
		if text == "" {
			e.fire(conversation.EventListenTimeout, "no question")
			e.Speak(MsgNoQuestion)
			continue
		}
		if f := e.handleCommand(ctx, router.NewPendingCommand(text, skill.SourceVoice)); f != nil {
			// Answer before listening again.
			_, _ = f.Wait(ctx)
		}
	}
}

func (e *Engine) drainTyped(ctx context.Context) {
	for {
		select {
		case cmd := <-e.hub.Commands():
			e.handleCommand(ctx, cmd)
		default:
			return
		}
	}
}

// submit hands a resolved command to the executor. Tracked invocations
// report SkillDone to the machine when they end, however they end.
func (e *Engine) submit(cmd router.PendingCommand, res router.Resolved, tracked bool) *executor.Future {
	name := res.Route.Name
	if res.Route.Skill != nil {
		name = res.Route.Skill.Name()
	}
	env := e.envFor(cmd)
	req := router.Request(cmd, res)
	if tracked {
		e.tracked.Store(cmd.ID, struct{}{})
	}
	e.logger.Info("command_dispatched",
		"id", cmd.ID,
		"route", res.Route.Name,
		"source", cmd.Source,
		"text", redact.Text(cmd.RawText))

	return e.exec.Submit(executor.Invocation{
		ID:   cmd.ID,
		Name: name,
		Run: func(ctx context.Context) skill.Result {
			if _, ok := e.tracked.LoadAndDelete(cmd.ID); ok {
				defer e.fire(conversation.EventSkillDone, name)
			}
			started := time.Now()
			out := e.router.Run(ctx, env, res, req)
			e.finish(ctx, cmd, name, out, started)
			return out
		},
	})
}

func (e *Engine) finish(ctx context.Context, cmd router.PendingCommand, name string, out skill.Result, started time.Time) {
	took := time.Since(started)
	e.metrics.Command(name, out.Outcome.String(), took)

	msg := out.Message
	if msg == "" && out.Outcome == skill.OutcomeFailed {
		msg = router.MsgSkillFailed
	}
	if msg != "" && !out.Spoken {
		e.Speak(msg)
	}

	attrs := []any{"id", cmd.ID, "skill", name, "outcome", out.Outcome.String(), "duration_ms", took.Milliseconds()}
	if out.Err != nil {
		e.logger.Warn("command_finished", append(attrs, "error", out.Err)...)
	} else {
		e.logger.Info("command_finished", attrs...)
	}

	if e.journal == nil {
		return
	}
	if err := e.journal.Record(ctx, history.Entry{
		ID:        cmd.ID,
		Text:      redact.Text(cmd.RawText),
		Source:    cmd.Source.String(),
		Skill:     name,
		Outcome:   out.Outcome.String(),
		Message:   redact.Text(msg),
		StartedAt: started,
		Duration:  took,
	}); err != nil {
		e.logger.Warn("history_record_failed", "id", cmd.ID, "error", err)
	}
}

func (e *Engine) onReject(inv executor.Invocation) {
	if _, ok := e.tracked.LoadAndDelete(inv.ID); ok {
		e.fire(conversation.EventSkillDone, "rejected")
	}
	e.metrics.Command(inv.Name, "rejected", 0)
	e.Speak(MsgBusy)
}

func (e *Engine) onStateChange(change conversation.StateChange) {
	if change.Event == conversation.EventAutoSleep && change.To == conversation.StateAsleep {
		e.Speak(MsgAutoSleep)
		e.Display(MsgSleeping)
	}
}

func (e *Engine) fire(ev conversation.Event, reason string) {
	if _, err := e.machine.Fire(ev, reason); err != nil {
		e.logger.Debug("event_ignored", "event", ev, "error", err)
	}
}

func (e *Engine) ring(message string) {
	if err := e.speech.PlayTone(e.ctx, audio.CompletionTone, false); err != nil {
		e.logger.Warn("alarm_tone_failed", "error", err)
	}
	e.Speak(message)
}

// listen captures one phrase. It gives up when the engine stops.
func (e *Engine) listen(ctx context.Context, p listener.Profile) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(e.ctx, cancel)
	defer stop()

	e.micMu.Lock()
	defer e.micMu.Unlock()
	return e.listener.Listen(ctx, p)
}

// listenKeepingAlive is listen for the dispatch loop, whose heartbeat must
// keep moving during long captures.
func (e *Engine) listenKeepingAlive(ctx context.Context, p listener.Profile) (string, error) {
	beat := e.watchdog.Heartbeat("dispatcher")
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(dispatchPoll)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				beat()
			}
		}
	}()
	return e.listen(ctx, p)
}

func (e *Engine) Speak(text string) { e.speech.Speak(text) }

func (e *Engine) SpeakAndWait(ctx context.Context, text string) error {
	return e.speech.SpeakAndWait(ctx, text)
}

func (e *Engine) Display(text string) { e.hub.Display(text) }

// Ask speaks prompt and listens for the reply.
func (e *Engine) Ask(ctx context.Context, prompt string) (string, error) {
	if err := e.speech.SpeakAndWait(ctx, prompt); err != nil {
		return "", err
	}
	return e.listen(ctx, listener.ProfileResponse)
}

func (e *Engine) Uploads() *upload.Slot { return e.uploads }

func (e *Engine) envFor(cmd router.PendingCommand) skill.Env {
	if cmd.Source == skill.SourceText {
		return textEnv{Engine: e, text: strings.TrimSpace(cmd.RawText)}
	}
	return e
}

// textEnv answers follow-up questions of a typed command with the typed text
// itself, since nobody is at the microphone.
type textEnv struct {
	*Engine
	text string
}

func (t textEnv) Ask(_ context.Context, prompt string) (string, error) {
	t.Display(prompt)
	return t.text, nil
}
