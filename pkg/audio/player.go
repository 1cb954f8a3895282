package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	beepwav "github.com/faiface/beep/wav"
	"github.com/harunnryd/jarvis/pkg/errorsx"
)

// Format names the container of a synthesized clip.
type Format string

const (
	FormatMP3 Format = "mp3"
	FormatWAV Format = "wav"
)

// Clip is encoded audio ready for playback.
type Clip struct {
	Data   []byte
	Format Format
}

// Player plays clips and tones to completion.
type Player interface {
	Play(ctx context.Context, clip Clip) error
	PlayTone(ctx context.Context, tone Tone) error
}

const speakerRate = beep.SampleRate(44100)

// SpeakerPlayer plays through the default output device. The speaker is
// initialized lazily, once, at 44.1 kHz; clips at other rates are resampled.
type SpeakerPlayer struct {
	once    sync.Once
	initErr error
	mu      sync.Mutex

	volMu   sync.Mutex
	level   float64
	muted   bool
	current *effects.Volume
}

func NewSpeakerPlayer() *SpeakerPlayer {
	return &SpeakerPlayer{level: MaxVolume}
}

func (p *SpeakerPlayer) SetMuted(muted bool) {
	p.volMu.Lock()
	defer p.volMu.Unlock()
	p.muted = muted
	p.applyLocked()
}

func (p *SpeakerPlayer) AdjustVolume(delta float64) float64 {
	p.volMu.Lock()
	defer p.volMu.Unlock()
	p.level = StepVolume(p.level, delta)
	p.applyLocked()
	return p.level
}

// applyLocked pushes the level into the clip that is playing, if any.
func (p *SpeakerPlayer) applyLocked() {
	if p.current == nil {
		return
	}
	speaker.Lock()
	p.current.Volume = exponent(p.level)
	p.current.Silent = p.muted
	speaker.Unlock()
}

func (p *SpeakerPlayer) withVolume(s beep.Streamer) beep.Streamer {
	p.volMu.Lock()
	defer p.volMu.Unlock()
	p.current = &effects.Volume{Streamer: s, Base: 2, Volume: exponent(p.level), Silent: p.muted}
	return p.current
}

func (p *SpeakerPlayer) init() error {
	p.once.Do(func() {
		p.initErr = speaker.Init(speakerRate, speakerRate.N(time.Second/10))
	})
	return p.initErr
}

func (p *SpeakerPlayer) Play(ctx context.Context, clip Clip) error {
	if len(clip.Data) == 0 {
		return nil
	}
	if err := p.init(); err != nil {
		return errorsx.Wrapf(err, errorsx.ReasonPlayback, "speaker init")
	}
	streamer, format, err := decodeClip(clip)
	if err != nil {
		return errorsx.Wrapf(err, errorsx.ReasonPlayback, "decode %s clip", clip.Format)
	}
	defer streamer.Close()

	var s beep.Streamer = streamer
	if format.SampleRate != speakerRate {
		s = beep.Resample(4, format.SampleRate, speakerRate, streamer)
	}
	return p.play(ctx, s)
}

func (p *SpeakerPlayer) PlayTone(ctx context.Context, tone Tone) error {
	if err := p.init(); err != nil {
		return errorsx.Wrapf(err, errorsx.ReasonPlayback, "speaker init")
	}
	return p.play(ctx, toneStreamer(tone, int(speakerRate)))
}

func (p *SpeakerPlayer) play(ctx context.Context, s beep.Streamer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer func() {
		p.volMu.Lock()
		p.current = nil
		p.volMu.Unlock()
	}()

	done := make(chan struct{})
	speaker.Play(beep.Seq(p.withVolume(s), beep.Callback(func() {
		close(done)
	})))
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}

var _ Mixer = (*SpeakerPlayer)(nil)

func decodeClip(clip Clip) (beep.StreamSeekCloser, beep.Format, error) {
	switch clip.Format {
	case FormatMP3:
		return mp3.Decode(io.NopCloser(bytes.NewReader(clip.Data)))
	case FormatWAV:
		return beepwav.Decode(bytes.NewReader(clip.Data))
	default:
		return nil, beep.Format{}, fmt.Errorf("unsupported clip format %q", clip.Format)
	}
}
