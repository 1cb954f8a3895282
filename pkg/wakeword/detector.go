package wakeword

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/harunnryd/jarvis/pkg/adapters/stt"
	"github.com/harunnryd/jarvis/pkg/audio"
	"github.com/harunnryd/jarvis/pkg/errorsx"
	"github.com/harunnryd/jarvis/pkg/logging"
	"github.com/harunnryd/jarvis/pkg/metrics"
)

// Spotter is an on-device keyword spotting engine.
type Spotter interface {
	// FrameSize is the number of samples Process expects.
	FrameSize() int
	// Process classifies one frame.
	Process(frame []float32) (bool, error)
	Close() error
}

// SpotterFactory builds a Spotter. Errors carrying
// errorsx.ReasonWakeCredential or errorsx.ReasonWakeModel select the
// fallback tier.
type SpotterFactory func() (Spotter, error)

// resetter is implemented by spotters that keep audio context between frames.
type resetter interface {
	Reset()
}

const (
	DefaultCooldown      = 2 * time.Second
	DefaultSendTimeout   = 200 * time.Millisecond
	DefaultBackoff       = time.Second
	DefaultListenTimeout = time.Second
	DefaultPhraseLimit   = 3 * time.Second
	DefaultBeatInterval  = time.Second
)

type Options struct {
	Source  audio.Source
	Spotter SpotterFactory
	// Transcriber drives the fallback tier.
	Transcriber stt.Transcriber
	Language    string
	Triggers    []string

	Cooldown      time.Duration
	SendTimeout   time.Duration
	Backoff       time.Duration
	ListenTimeout time.Duration
	PhraseLimit   time.Duration
	Threshold     float64

	Gate      *Gate
	Out       chan<- Activation
	Heartbeat func()
	// BeatInterval paces heartbeats while the microphone is lent out.
	BeatInterval time.Duration
	Logger       *slog.Logger
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

// Stats counts detector outcomes.
type Stats struct {
	Emitted    int64
	Suppressed int64
	Dropped    int64
}

// Detector listens for the wake word and emits activations.
type Detector struct {
	opts     Options
	logger   *slog.Logger
	gate     *Gate
	cooldown *Cooldown

	tierMu sync.RWMutex
	tier   Tier

	emitted    atomic.Int64
	suppressed atomic.Int64
	dropped    atomic.Int64
}

func NewDetector(opts Options) *Detector {
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.ListenTimeout <= 0 {
		opts.ListenTimeout = DefaultListenTimeout
	}
	if opts.PhraseLimit <= 0 {
		opts.PhraseLimit = DefaultPhraseLimit
	}
	if opts.BeatInterval <= 0 {
		opts.BeatInterval = DefaultBeatInterval
	}
	if len(opts.Triggers) == 0 {
		opts.Triggers = DefaultTriggers
	}
	if opts.Gate == nil {
		opts.Gate = NewGate()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Detector{
		opts:     opts,
		logger:   logging.NewComponentLogger(opts.Logger, "wakeword"),
		gate:     opts.Gate,
		cooldown: NewCooldown(opts.Cooldown),
	}
}

// Gate returns the microphone gate shared with the listener.
func (d *Detector) Gate() *Gate { return d.gate }

// Suspend asks the detector to release the microphone and waits until it has.
func (d *Detector) Suspend(ctx context.Context) error { return d.gate.Suspend(ctx) }

// Resume gives back a hold taken by Suspend or by an emitted activation.
func (d *Detector) Resume() { d.gate.Resume() }

// Tier reports the running tier, or "" before Run selected one.
func (d *Detector) Tier() Tier {
	d.tierMu.RLock()
	defer d.tierMu.RUnlock()
	return d.tier
}

func (d *Detector) Stats() Stats {
	return Stats{
		Emitted:    d.emitted.Load(),
		Suppressed: d.suppressed.Load(),
		Dropped:    d.dropped.Load(),
	}
}

// Run detects until ctx ends. It starts the primary tier and falls back to
// transcription when the spotter or the device cannot be initialized.
func (d *Detector) Run(ctx context.Context) error {
	if d.opts.Source == nil {
		return errors.New("wakeword: no audio source")
	}
	if d.opts.Out == nil {
		return errors.New("wakeword: no activation channel")
	}

	spotter, stream, err := d.initPrimary(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		d.logger.Warn("wakeword_fallback_activated",
			"reason", errorsx.Reason(err),
			"error", err)
		if d.opts.Transcriber == nil {
			return fmt.Errorf("wakeword: fallback has no transcriber: %w", err)
		}
		d.setTier(TierFallback)
		return d.runFallback(ctx)
	}
	d.setTier(TierPrimary)
	d.logger.Info("wakeword_started", "tier", TierPrimary, "frame_size", spotter.FrameSize())
	return d.runPrimary(ctx, spotter, stream)
}

func (d *Detector) initPrimary(ctx context.Context) (Spotter, audio.Stream, error) {
	if d.opts.Spotter == nil {
		return nil, nil, errorsx.New(errorsx.ReasonWakeModel, "no keyword spotter configured")
	}
	stream, err := d.open(ctx)
	if err != nil {
		return nil, nil, err
	}
	spotter, err := d.opts.Spotter()
	if err != nil {
		d.closeStream(&stream)
		if errorsx.Reason(err) == errorsx.ReasonUnknown {
			err = errorsx.Wrap(err, errorsx.ReasonWakeModel)
		}
		return nil, nil, err
	}
	if spotter.FrameSize() <= 0 {
		_ = spotter.Close()
		d.closeStream(&stream)
		return nil, nil, errorsx.New(errorsx.ReasonWakeModel, "keyword spotter reported no frame size")
	}
	return spotter, stream, nil
}

func (d *Detector) runPrimary(ctx context.Context, spotter Spotter, stream audio.Stream) error {
	defer func() { _ = spotter.Close() }()
	defer d.closeStream(&stream)

	size := spotter.FrameSize()
	buf := make([]float32, 0, size*2)
	for {
		d.beat()
		if ctx.Err() != nil {
			return nil
		}
		if stream != nil && d.gate.Requested() {
			d.closeStream(&stream)
			buf = buf[:0]
		}
		if stream == nil {
			s, err := d.open(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				d.logger.Warn("wakeword_device_open_failed", "error", err)
				d.sleep(ctx, d.opts.Backoff)
				continue
			}
			stream = s
		}

		frame, err := stream.Read()
		if err != nil {
			d.logger.Warn("wakeword_read_failed", "tier", TierPrimary, "error", err)
			d.closeStream(&stream)
			buf = buf[:0]
			d.sleep(ctx, d.opts.Backoff)
			continue
		}
		buf = append(buf, frame...)
		for len(buf) >= size {
			hit, err := spotter.Process(buf[:size])
			buf = append(buf[:0], buf[size:]...)
			if err != nil {
				d.logger.Debug("wakeword_process_failed", "error", err)
				continue
			}
			if !hit {
				continue
			}
			if r, ok := spotter.(resetter); ok {
				r.Reset()
			}
			buf = buf[:0]
			d.fire(ctx, &stream, TierPrimary, "")
			break
		}
	}
}

func (d *Detector) runFallback(ctx context.Context) error {
	var stream audio.Stream
	defer d.closeStream(&stream)

	d.logger.Info("wakeword_started", "tier", TierFallback, "triggers", d.opts.Triggers)
	for {
		d.beat()
		if ctx.Err() != nil {
			return nil
		}
		if stream != nil && d.gate.Requested() {
			d.closeStream(&stream)
		}
		if stream == nil {
			s, err := d.open(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				d.logger.Warn("wakeword_device_open_failed", "error", err)
				d.sleep(ctx, d.opts.Backoff)
				continue
			}
			stream = s
		}

		pcm, err := audio.Capture(ctx, stream, audio.CaptureOptions{
			Timeout:     d.opts.ListenTimeout,
			PhraseLimit: d.opts.PhraseLimit,
			Pause:       500 * time.Millisecond,
			Threshold:   d.opts.Threshold,
			Stop:        d.gate.Requested,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d.logger.Warn("wakeword_read_failed", "tier", TierFallback, "error", err)
			d.closeStream(&stream)
			d.sleep(ctx, d.opts.Backoff)
			continue
		}
		if len(pcm) == 0 {
			continue
		}

		text, err := d.opts.Transcriber.Transcribe(ctx, pcm, stream.SampleRate(), d.opts.Language)
		if err != nil {
			if errors.Is(err, stt.ErrNoSpeech) || ctx.Err() != nil {
				continue
			}
			d.logger.Warn("wakeword_recognition_failed", "error", err)
			d.sleep(ctx, d.opts.Backoff)
			continue
		}
		if phrase, ok := MatchTrigger(text, d.opts.Triggers); ok {
			d.fire(ctx, &stream, TierFallback, phrase)
		}
	}
}

// fire applies the cooldown, releases the device and hands the activation to
// the consumer. The self-hold taken here keeps the device closed until the
// consumer calls Resume.
func (d *Detector) fire(ctx context.Context, stream *audio.Stream, tier Tier, phrase string) {
	now := d.opts.Now()
	if !d.cooldown.Allow(now) {
		d.suppressed.Add(1)
		d.opts.Metrics.WakeSuppressedInc()
		d.logger.Debug("wakeword_suppressed", "tier", tier)
		return
	}

	d.gate.hold()
	d.closeStream(stream)

	ev := Activation{ID: uuid.NewString(), At: now, Tier: tier, Phrase: phrase}
	timer := time.NewTimer(d.opts.SendTimeout)
	defer timer.Stop()
	select {
	case d.opts.Out <- ev:
		d.emitted.Add(1)
		d.opts.Metrics.WakeDetected(string(tier))
		d.logger.Info("wakeword_detected", "id", ev.ID, "tier", tier, "phrase", phrase)
	case <-timer.C:
		d.dropped.Add(1)
		d.opts.Metrics.WakeDroppedInc()
		d.logger.Warn("wakeword_dropped", "id", ev.ID, "tier", tier)
		d.gate.Resume()
	case <-ctx.Done():
		d.gate.Resume()
	}
}

func (d *Detector) open(ctx context.Context) (audio.Stream, error) {
	if err := d.gate.acquire(ctx, d.opts.BeatInterval, d.beat); err != nil {
		return nil, err
	}
	stream, err := d.opts.Source.Open()
	if err != nil {
		d.gate.release()
		if errorsx.Reason(err) == errorsx.ReasonUnknown {
			err = errorsx.Wrap(err, errorsx.ReasonDeviceOpen)
		}
		return nil, err
	}
	return stream, nil
}

func (d *Detector) closeStream(stream *audio.Stream) {
	if *stream == nil {
		return
	}
	if err := (*stream).Close(); err != nil {
		d.logger.Debug("wakeword_device_close_failed", "error", err)
	}
	*stream = nil
	d.gate.release()
}

func (d *Detector) setTier(t Tier) {
	d.tierMu.Lock()
	d.tier = t
	d.tierMu.Unlock()
}

func (d *Detector) beat() {
	if d.opts.Heartbeat != nil {
		d.opts.Heartbeat()
	}
}

func (d *Detector) sleep(ctx context.Context, dur time.Duration) {
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
