package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/harunnryd/jarvis/pkg/errorsx"
)

const (
	// DefaultSampleRate is the capture rate every recognizer in the runtime expects.
	DefaultSampleRate = 16000
	// DefaultFrame is the duration of one capture frame.
	DefaultFrame = 20 * time.Millisecond
)

// Stream is an open capture handle. Read blocks for one frame.
type Stream interface {
	Read() ([]float32, error)
	SampleRate() int
	Close() error
}

// Source opens the capture device. Handles are opened per use and never
// shared, so a Source may be handed to both the wake word detector and the
// microphone listener.
type Source interface {
	Open() (Stream, error)
}

// Initialize prepares the PortAudio host API. Call once per process.
func Initialize() error {
	if err := portaudio.Initialize(); err != nil {
		return errorsx.Wrapf(err, errorsx.ReasonDeviceOpen, "portaudio initialize")
	}
	return nil
}

// Terminate releases the PortAudio host API.
func Terminate() error {
	return portaudio.Terminate()
}

// PortAudioSource captures mono float32 frames from the default input device.
type PortAudioSource struct {
	rate      int
	frameSize int
}

func NewPortAudioSource(sampleRate int, frame time.Duration) *PortAudioSource {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if frame <= 0 {
		frame = DefaultFrame
	}
	return &PortAudioSource{
		rate:      sampleRate,
		frameSize: int(int64(sampleRate) * int64(frame) / int64(time.Second)),
	}
}

func (s *PortAudioSource) Open() (Stream, error) {
	buf := make([]float32, s.frameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(s.rate), len(buf), buf)
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("open input stream: %w", err), errorsx.ReasonDeviceOpen)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, errorsx.Wrap(fmt.Errorf("start input stream: %w", err), errorsx.ReasonDeviceOpen)
	}
	return &portAudioStream{stream: stream, buf: buf, rate: s.rate}, nil
}

type portAudioStream struct {
	stream *portaudio.Stream
	buf    []float32
	rate   int
	once   sync.Once
	err    error
}

func (p *portAudioStream) Read() ([]float32, error) {
	if err := p.stream.Read(); err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("read input stream: %w", err), errorsx.ReasonDeviceRead)
	}
	out := make([]float32, len(p.buf))
	copy(out, p.buf)
	return out, nil
}

func (p *portAudioStream) SampleRate() int { return p.rate }

func (p *portAudioStream) Close() error {
	p.once.Do(func() {
		_ = p.stream.Stop()
		p.err = p.stream.Close()
	})
	return p.err
}
