package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harunnryd/jarvis/pkg/adapters/tts"
	"github.com/harunnryd/jarvis/pkg/audio"
	"github.com/harunnryd/jarvis/pkg/errorsx"
	"github.com/harunnryd/jarvis/pkg/logging"
	"github.com/harunnryd/jarvis/pkg/metrics"
)

// ErrStopped is returned to callers whose speech was still queued when the
// engine closed.
var ErrStopped = errors.New("speech engine stopped")

// DefaultPollInterval bounds the worker's queue wait so the heartbeat keeps
// moving while the queue is empty.
const DefaultPollInterval = 2 * time.Second

// Notifier observes spoken output. Every call is best-effort.
type Notifier interface {
	Display(text string)
	SpeechStarted(text string)
	SpeechEnded(text string)
}

type Options struct {
	Primary      tts.Synthesizer
	Fallback     tts.Synthesizer
	Player       audio.Player
	Notifier     Notifier
	Heartbeat    func()
	PollInterval time.Duration
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

// Request is one queued utterance or tone.
type Request struct {
	ID   string
	Text string
	Tone *audio.Tone

	done chan struct{}
	err  error
}

// Engine serializes all spoken output through a single worker goroutine.
// Requests are played strictly in enqueue order, one at a time.
type Engine struct {
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	queue    []*Request
	inFlight *Request
	closed   bool

	wake   chan struct{}
	stop   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup
}

// New starts the worker.
func New(opts Options) *Engine {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "speech_engine"),
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	e.wg.Add(1)
	go e.loop()
	return e
}

// Enqueue queues text for playback. The text is displayed before Enqueue
// returns. With block set, Enqueue waits until playback finished.
func (e *Engine) Enqueue(text string, block bool) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	e.notify(func(n Notifier) { n.Display(text) })
	req, err := e.push(&Request{Text: text})
	if err != nil || !block {
		return err
	}
	<-req.done
	return req.err
}

// Speak queues text without waiting.
func (e *Engine) Speak(text string) {
	_ = e.Enqueue(text, false)
}

// SpeakAndWait queues text and waits for playback or ctx.
func (e *Engine) SpeakAndWait(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	e.notify(func(n Notifier) { n.Display(text) })
	req, err := e.push(&Request{Text: text})
	if err != nil {
		return err
	}
	return e.await(ctx, req)
}

// PlayTone queues a tone behind any pending speech.
func (e *Engine) PlayTone(ctx context.Context, tone audio.Tone, block bool) error {
	req, err := e.push(&Request{Tone: &tone})
	if err != nil || !block {
		return err
	}
	return e.await(ctx, req)
}

func (e *Engine) await(ctx context.Context, req *Request) error {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-req.done:
		return req.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) push(req *Request) (*Request, error) {
	req.ID = uuid.NewString()
	req.done = make(chan struct{})

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrStopped
	}
	e.queue = append(e.queue, req)
	depth := len(e.queue)
	e.mu.Unlock()

	e.opts.Metrics.SpeechQueue(depth)
	select {
	case e.wake <- struct{}{}:
	default:
	}
	return req, nil
}

// Busy reports whether speech is queued or playing.
func (e *Engine) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue) > 0 || e.inFlight != nil
}

// WaitIdle blocks until nothing is queued or playing, so the microphone does
// not record the assistant's own voice.
func (e *Engine) WaitIdle(ctx context.Context) error {
	if !e.Busy() {
		return nil
	}
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !e.Busy() {
				return nil
			}
		}
	}
}

// Close stops the worker. Queued requests are released with ErrStopped and
// in-flight playback is interrupted.
func (e *Engine) Close() error {
	e.once.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()
		close(e.stop)
		e.cancel()
		e.wg.Wait()
	})
	return nil
}

func (e *Engine) loop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()
	for {
		if e.opts.Heartbeat != nil {
			e.opts.Heartbeat()
		}
		if req := e.next(); req != nil {
			e.play(req)
			continue
		}
		select {
		case <-e.stop:
			e.releasePending()
			return
		case <-e.wake:
		case <-ticker.C:
		}
	}
}

func (e *Engine) next() *Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || len(e.queue) == 0 {
		return nil
	}
	req := e.queue[0]
	e.queue[0] = nil
	e.queue = e.queue[1:]
	e.inFlight = req
	e.opts.Metrics.SpeechQueue(len(e.queue))
	return req
}

func (e *Engine) releasePending() {
	e.mu.Lock()
	pending := e.queue
	e.queue = nil
	e.mu.Unlock()
	for _, req := range pending {
		req.err = ErrStopped
		close(req.done)
	}
}

// play handles one request. Failures are logged and never stop the loop.
func (e *Engine) play(req *Request) {
	defer func() {
		if r := recover(); r != nil {
			req.err = fmt.Errorf("speech panic: %v", r)
			e.logger.Error("speech_panic", "id", req.ID, "panic", r)
			e.opts.Metrics.Utterance("failed")
		}
		e.mu.Lock()
		e.inFlight = nil
		e.mu.Unlock()
		close(req.done)
	}()

	if req.Tone != nil {
		if e.opts.Player == nil {
			return
		}
		if err := e.opts.Player.PlayTone(e.ctx, *req.Tone); err != nil {
			req.err = err
			e.logger.Warn("tone_playback_failed", "id", req.ID, "error", err)
		}
		return
	}

	clip, path, err := e.synthesize(req)
	if err != nil {
		req.err = err
		e.opts.Metrics.Utterance("failed")
		e.logger.Error("speech_synthesis_failed",
			"id", req.ID,
			"reason", errorsx.Reason(err),
			"error", err)
		return
	}

	e.notify(func(n Notifier) { n.SpeechStarted(req.Text) })
	defer e.notify(func(n Notifier) { n.SpeechEnded(req.Text) })

	if e.opts.Player != nil {
		if err := e.opts.Player.Play(e.ctx, clip); err != nil {
			req.err = err
			e.opts.Metrics.Utterance("failed")
			e.logger.Error("speech_playback_failed", "id", req.ID, "error", err)
			return
		}
	}
	e.opts.Metrics.Utterance(path)
	e.logger.Debug("speech_played", "id", req.ID, "path", path, "chars", len(req.Text))
}

func (e *Engine) synthesize(req *Request) (audio.Clip, string, error) {
	var primaryErr error
	if e.opts.Primary != nil {
		clip, err := e.opts.Primary.Synthesize(e.ctx, req.Text)
		if err == nil {
			return clip, "primary", nil
		}
		primaryErr = err
		e.logger.Warn("speech_primary_failed",
			"id", req.ID,
			"provider", e.opts.Primary.Name(),
			"error", err)
	}
	if e.opts.Fallback != nil {
		clip, err := e.opts.Fallback.Synthesize(e.ctx, req.Text)
		if err == nil {
			return clip, "fallback", nil
		}
		return audio.Clip{}, "", errorsx.Wrap(errors.Join(primaryErr, err), errorsx.ReasonSynthesis)
	}
	if primaryErr == nil {
		primaryErr = errors.New("no synthesizer configured")
	}
	return audio.Clip{}, "", errorsx.Wrap(primaryErr, errorsx.ReasonSynthesis)
}

func (e *Engine) notify(fn func(Notifier)) {
	if e.opts.Notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("speech_notifier_panic", "panic", r)
		}
	}()
	fn(e.opts.Notifier)
}
