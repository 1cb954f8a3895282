package audio

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/go-audio/wav"
)

const testRate = 16000

// scriptStream replays frames, then keeps returning silence.
type scriptStream struct {
	frames [][]float32
	reads  int
	err    error
}

func (s *scriptStream) Read() ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.reads++
	if len(s.frames) == 0 {
		return make([]float32, 320), nil
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	return f, nil
}

func (s *scriptStream) SampleRate() int { return testRate }
func (s *scriptStream) Close() error    { return nil }

func level(v float32, n int) []float32 {
	f := make([]float32, n)
	for i := range f {
		f[i] = v
	}
	return f
}

func repeatFrames(v float32, count int) [][]float32 {
	out := make([][]float32, count)
	for i := range out {
		out[i] = level(v, 320)
	}
	return out
}

func TestCaptureReturnsNilOnTimeout(t *testing.T) {
	stream := &scriptStream{}
	pcm, err := Capture(context.Background(), stream, CaptureOptions{
		Timeout: 200 * time.Millisecond,
		Pause:   100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if pcm != nil {
		t.Fatalf("expected nil samples, got %d", len(pcm))
	}
	if stream.reads != 10 {
		t.Fatalf("expected 10 frames read for a 200ms timeout, got %d", stream.reads)
	}
}

func TestCaptureEndsOnPause(t *testing.T) {
	frames := append(repeatFrames(0, 3), repeatFrames(0.5, 5)...)
	stream := &scriptStream{frames: frames}
	pcm, err := Capture(context.Background(), stream, CaptureOptions{
		Timeout: time.Second,
		Pause:   100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	// five speech frames plus five trailing silence frames
	if len(pcm) != 10*320 {
		t.Fatalf("unexpected sample count %d", len(pcm))
	}
}

func TestCaptureHonoursPhraseLimit(t *testing.T) {
	stream := &scriptStream{frames: repeatFrames(0.5, 100)}
	pcm, err := Capture(context.Background(), stream, CaptureOptions{
		Timeout:     time.Second,
		PhraseLimit: 200 * time.Millisecond,
		Pause:       time.Second,
	})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if len(pcm) != 10*320 {
		t.Fatalf("expected phrase capped at 10 frames, got %d samples", len(pcm))
	}
}

func TestCaptureStopsWhenAsked(t *testing.T) {
	stream := &scriptStream{frames: repeatFrames(0.5, 100)}
	pcm, err := Capture(context.Background(), stream, CaptureOptions{
		Timeout: time.Second,
		Stop:    func() bool { return true },
	})
	if err != nil || pcm != nil {
		t.Fatalf("expected early empty return, got %d samples err=%v", len(pcm), err)
	}
}

func TestCapturePropagatesReadError(t *testing.T) {
	boom := errors.New("unplugged")
	_, err := Capture(context.Background(), &scriptStream{err: boom}, CaptureOptions{Timeout: time.Second})
	if !errors.Is(err, boom) {
		t.Fatalf("expected read error, got %v", err)
	}
}

type emptyStream struct{ reads int }

func (s *emptyStream) Read() ([]float32, error) { s.reads++; return nil, nil }
func (s *emptyStream) SampleRate() int          { return testRate }
func (s *emptyStream) Close() error             { return nil }

func TestCaptureGivesUpOnEmptyFrames(t *testing.T) {
	s := &emptyStream{}
	_, err := Capture(context.Background(), s, CaptureOptions{Timeout: time.Hour})
	if !errors.Is(err, ErrNoAudio) {
		t.Fatalf("expected ErrNoAudio, got %v", err)
	}
	if s.reads != MaxEmptyReads {
		t.Fatalf("reads = %d, want %d", s.reads, MaxEmptyReads)
	}
}

func TestCalibrateRaisesThresholdAboveNoise(t *testing.T) {
	stream := &scriptStream{frames: repeatFrames(0.04, 25)}
	th, err := Calibrate(stream, 500*time.Millisecond, 0.015)
	if err != nil {
		t.Fatalf("calibrate: %v", err)
	}
	if math.Abs(th-0.06) > 1e-6 {
		t.Fatalf("expected threshold 0.06, got %f", th)
	}
	quiet := &scriptStream{}
	th, _ = Calibrate(quiet, 100*time.Millisecond, 0.015)
	if th != 0.015 {
		t.Fatalf("expected floor for silence, got %f", th)
	}
}

func TestEncodeWAVRoundTrip(t *testing.T) {
	pcm := []float32{0, 0.5, -0.5, 1, -1}
	data, err := EncodeWAV(pcm, testRate)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		t.Fatalf("encoded WAV is not valid")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if buf.Format.SampleRate != testRate || buf.Format.NumChannels != 1 {
		t.Fatalf("unexpected format %+v", buf.Format)
	}
	if len(buf.Data) != len(pcm) || buf.Data[3] != math.MaxInt16 || buf.Data[4] != -math.MaxInt16 {
		t.Fatalf("unexpected samples %v", buf.Data)
	}
}

func TestPCM16LE(t *testing.T) {
	out := PCM16LE([]float32{1, -1})
	if len(out) != 4 {
		t.Fatalf("expected 4 bytes, got %d", len(out))
	}
	if out[0] != 0xff || out[1] != 0x7f {
		t.Fatalf("unexpected encoding of +1: % x", out[:2])
	}
}

func TestToneSamplesLengthAndFade(t *testing.T) {
	s := CompletionTone.Samples(1000)
	// two 100ms beeps with a 50ms gap
	if len(s) != 250 {
		t.Fatalf("expected 250 samples, got %d", len(s))
	}
	if s[0] != 0 {
		t.Fatalf("expected fade-in to start at zero, got %f", s[0])
	}
	for i := 100; i < 150; i++ {
		if s[i] != 0 {
			t.Fatalf("expected silence in the gap at %d", i)
		}
	}
}

func TestAdjustVolumeStaysInBounds(t *testing.T) {
	p := NewSpeakerPlayer()
	if got := p.AdjustVolume(VolumeStep); got != MaxVolume {
		t.Fatalf("expected volume capped at %v, got %v", MaxVolume, got)
	}
	var got float64
	for i := 0; i < 10; i++ {
		got = p.AdjustVolume(-VolumeStep)
	}
	if got != MinVolume {
		t.Fatalf("expected volume floored at %v, got %v", MinVolume, got)
	}
	if got := p.AdjustVolume(VolumeStep); math.Abs(got-0.3) > 1e-9 {
		t.Fatalf("expected 0.3 after one step up, got %v", got)
	}
}

func TestVolumeExponent(t *testing.T) {
	if exponent(MaxVolume) != 0 {
		t.Fatalf("full volume must leave the gain unchanged")
	}
	if math.Abs(math.Pow(2, exponent(0.5))-0.5) > 1e-9 {
		t.Fatalf("expected half gain at level 0.5")
	}
}
