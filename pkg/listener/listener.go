package listener

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/harunnryd/jarvis/pkg/adapters/stt"
	"github.com/harunnryd/jarvis/pkg/audio"
	"github.com/harunnryd/jarvis/pkg/errorsx"
	"github.com/harunnryd/jarvis/pkg/logging"
	"github.com/harunnryd/jarvis/pkg/redact"
)

// Profile bounds one capture.
type Profile struct {
	Name        string
	Timeout     time.Duration
	PhraseLimit time.Duration
	Pause       time.Duration
}

var (
	ProfileCommand  = Profile{Name: "command", Timeout: 15 * time.Second, PhraseLimit: 15 * time.Second, Pause: 2 * time.Second}
	ProfileResponse = Profile{Name: "response", Timeout: 30 * time.Second, PhraseLimit: 30 * time.Second, Pause: 2 * time.Second}
	ProfileAnswer   = Profile{Name: "answer", Timeout: 50 * time.Second, PhraseLimit: 50 * time.Second, Pause: 2 * time.Second}
)

const (
	DefaultLanguage  = "en-IN"
	DefaultThreshold = 0.015
	calibration      = 500 * time.Millisecond
)

// MicGate is the detector side of the microphone hand-off.
type MicGate interface {
	Suspend(ctx context.Context) error
	Resume()
}

// SpeechIdle waits until no speech is queued or playing.
type SpeechIdle interface {
	WaitIdle(ctx context.Context) error
}

type Options struct {
	Source      audio.Source
	Gate        MicGate
	Transcriber stt.Transcriber
	Asleep      func() bool
	Speech      SpeechIdle
	Language    string
	Threshold   float64
	// Pause overrides the profile pause when set.
	Pause  time.Duration
	Logger *slog.Logger
}

// Listener captures one spoken command at a time.
type Listener struct {
	opts   Options
	logger *slog.Logger
}

func New(opts Options) *Listener {
	if opts.Language == "" {
		opts.Language = DefaultLanguage
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	return &Listener{
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "listener"),
	}
}

// Listen captures and transcribes one phrase. It returns "" with a nil error
// when asleep, when nobody spoke before the timeout, or when nothing was
// recognized.
func (l *Listener) Listen(ctx context.Context, p Profile) (string, error) {
	if l.opts.Asleep != nil && l.opts.Asleep() {
		return "", nil
	}
	if l.opts.Speech != nil {
		if err := l.opts.Speech.WaitIdle(ctx); err != nil {
			return "", err
		}
	}
	if l.opts.Pause > 0 {
		p.Pause = l.opts.Pause
	}

	pcm, rate, err := l.capture(ctx, p)
	if err != nil {
		return "", err
	}
	if len(pcm) == 0 {
		l.logger.Debug("listen_timeout", "profile", p.Name)
		return "", nil
	}

	if l.opts.Transcriber == nil {
		return "", errorsx.New(errorsx.ReasonRecognition, "no transcriber configured")
	}
	started := time.Now()
	text, err := l.opts.Transcriber.Transcribe(ctx, pcm, rate, l.opts.Language)
	if err != nil {
		if errors.Is(err, stt.ErrNoSpeech) {
			return "", nil
		}
		l.logger.Warn("recognition_failed",
			"provider", l.opts.Transcriber.Name(),
			"error", err)
		return "", nil
	}

	text = Clean(text)
	l.logger.Info("command_heard",
		"profile", p.Name,
		"text", redact.Text(text),
		"latency_ms", time.Since(started).Milliseconds())
	return text, nil
}

// capture owns the device for the duration of one phrase. The detector is
// suspended first and resumed only after the device is closed again.
func (l *Listener) capture(ctx context.Context, p Profile) ([]float32, int, error) {
	if l.opts.Source == nil {
		return nil, 0, errorsx.New(errorsx.ReasonDeviceOpen, "no audio source configured")
	}
	if l.opts.Gate != nil {
		if err := l.opts.Gate.Suspend(ctx); err != nil {
			return nil, 0, err
		}
		defer l.opts.Gate.Resume()
	}

	stream, err := l.opts.Source.Open()
	if err != nil {
		if errorsx.Reason(err) == errorsx.ReasonUnknown {
			err = errorsx.Wrap(err, errorsx.ReasonDeviceOpen)
		}
		return nil, 0, err
	}
	defer func() {
		if err := stream.Close(); err != nil {
			l.logger.Debug("device_close_failed", "error", err)
		}
	}()

	threshold, err := audio.Calibrate(stream, calibration, l.opts.Threshold)
	if err != nil {
		return nil, 0, wrapRead(err)
	}
	pcm, err := audio.Capture(ctx, stream, audio.CaptureOptions{
		Timeout:     p.Timeout,
		PhraseLimit: p.PhraseLimit,
		Pause:       p.Pause,
		Threshold:   threshold,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, wrapRead(err)
	}
	return pcm, stream.SampleRate(), nil
}

func wrapRead(err error) error {
	if errorsx.Reason(err) == errorsx.ReasonUnknown {
		return errorsx.Wrap(err, errorsx.ReasonDeviceRead)
	}
	return err
}

var (
	wakeWordRe = regexp.MustCompile(`(?i)\bjarvis\b[,.!?]?`)
	spaceRe    = regexp.MustCompile(`\s+`)
)

// Clean drops the wake word, collapses whitespace and lowercases.
func Clean(text string) string {
	text = wakeWordRe.ReplaceAllString(text, " ")
	text = spaceRe.ReplaceAllString(text, " ")
	return strings.ToLower(strings.TrimSpace(text))
}
