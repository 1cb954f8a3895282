package mock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harunnryd/jarvis/pkg/audio"
)

// Source is a microphone that produces quiet frames, with a burst of loud
// frames whenever Speak is called. It records open and close calls and
// counts moments where two handles were open at once.
type Source struct {
	FrameSize int
	// Pace slows reads down to roughly real time when set.
	Pace time.Duration

	mu       sync.Mutex
	active   int
	overlaps int
	events   []string
	pending  atomic.Int32
}

func NewSource() *Source {
	return &Source{FrameSize: 320, Pace: time.Millisecond}
}

// Speak queues frames of speech for the next reader.
func (s *Source) Speak(frames int) { s.pending.Add(int32(frames)) }

func (s *Source) Open() (audio.Stream, error) {
	s.mu.Lock()
	s.active++
	if s.active > 1 {
		s.overlaps++
	}
	s.events = append(s.events, "open")
	s.mu.Unlock()
	return &stream{src: s}, nil
}

func (s *Source) Overlaps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlaps
}

func (s *Source) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

type stream struct {
	src    *Source
	closed atomic.Bool
}

func (st *stream) Read() ([]float32, error) {
	if st.closed.Load() {
		return nil, errors.New("mock stream closed")
	}
	if st.src.Pace > 0 {
		time.Sleep(st.src.Pace)
	}
	frame := make([]float32, st.src.FrameSize)
	level := float32(0.001)
	if st.src.pending.Load() > 0 && st.src.pending.Add(-1) >= 0 {
		level = 0.3
	}
	for i := range frame {
		frame[i] = level
	}
	return frame, nil
}

func (st *stream) SampleRate() int { return audio.DefaultSampleRate }

func (st *stream) Close() error {
	if st.closed.CompareAndSwap(false, true) {
		st.src.mu.Lock()
		st.src.active--
		st.src.events = append(st.src.events, "close")
		st.src.mu.Unlock()
	}
	return nil
}

// Player records what was played instead of making sound.
type Player struct {
	Delay time.Duration

	mu       sync.Mutex
	played   []string
	active   int
	overlaps int
	level    float64
	muted    bool
}

func NewPlayer() *Player { return &Player{level: audio.MaxVolume} }

func (p *Player) SetMuted(muted bool) {
	p.mu.Lock()
	p.muted = muted
	p.mu.Unlock()
}

func (p *Player) AdjustVolume(delta float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.level = audio.StepVolume(p.level, delta)
	return p.level
}

// Volume returns the current level and whether output is muted.
func (p *Player) Volume() (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level, p.muted
}

func (p *Player) Play(ctx context.Context, clip audio.Clip) error {
	return p.record(ctx, string(clip.Data))
}

func (p *Player) PlayTone(ctx context.Context, _ audio.Tone) error {
	return p.record(ctx, "<tone>")
}

func (p *Player) record(ctx context.Context, what string) error {
	p.mu.Lock()
	p.active++
	if p.active > 1 {
		p.overlaps++
	}
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.active--
		p.mu.Unlock()
	}()
	if p.Delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Delay):
		}
	}
	p.mu.Lock()
	p.played = append(p.played, what)
	p.mu.Unlock()
	return nil
}

func (p *Player) Played() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...)
}

func (p *Player) Overlaps() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.overlaps
}

// Spotter reports a detection on the frame after Trigger is called.
type Spotter struct {
	Size int
	Err  error

	armed atomic.Bool
}

func NewSpotter() *Spotter { return &Spotter{Size: 320} }

func (s *Spotter) Trigger() { s.armed.Store(true) }

func (s *Spotter) FrameSize() int { return s.Size }

func (s *Spotter) Process([]float32) (bool, error) {
	return s.armed.CompareAndSwap(true, false), nil
}

func (s *Spotter) Close() error { return nil }

var (
	_ audio.Source = (*Source)(nil)
	_ audio.Player = (*Player)(nil)
	_ audio.Mixer  = (*Player)(nil)
)
