package audio

import (
	"context"
	"math"
	"time"

	"github.com/harunnryd/jarvis/pkg/errorsx"
)

// MaxEmptyReads is how many empty frames in a row Capture tolerates before it
// gives up on the stream.
const MaxEmptyReads = 100

// ErrNoAudio reports a stream that keeps returning empty frames.
var ErrNoAudio = errorsx.New(errorsx.ReasonDeviceRead, "audio stream returned no samples")

// CaptureOptions bound one endpointed capture.
type CaptureOptions struct {
	// Timeout is how long to wait for speech to start.
	Timeout time.Duration
	// PhraseLimit caps the length of the captured phrase.
	PhraseLimit time.Duration
	// Pause is the trailing silence that ends a phrase.
	Pause time.Duration
	// Threshold is the RMS level that counts as speech.
	Threshold float64
	// Stop, when set, is polled once per frame and ends the capture early.
	Stop func() bool
}

// Capture reads frames from stream and returns the samples of one spoken
// phrase, using RMS energy to find where speech starts and ends. It returns
// nil samples and a nil error when no speech starts within Timeout.
func Capture(ctx context.Context, stream Stream, opts CaptureOptions) ([]float32, error) {
	rate := stream.SampleRate()
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	if opts.Threshold <= 0 {
		opts.Threshold = 0.015
	}

	var (
		out      []float32
		speaking bool
		empty    int
		waited   time.Duration
		spoken   time.Duration
		silence  time.Duration
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if opts.Stop != nil && opts.Stop() {
			return nil, nil
		}
		frame, err := stream.Read()
		if err != nil {
			return nil, err
		}
		if len(frame) == 0 {
			if empty++; empty >= MaxEmptyReads {
				return nil, ErrNoAudio
			}
			continue
		}
		empty = 0
		d := time.Duration(len(frame)) * time.Second / time.Duration(rate)

		if !speaking {
			if RMS(frame) > opts.Threshold {
				speaking = true
				out = append(out, frame...)
				spoken = d
				continue
			}
			waited += d
			if opts.Timeout > 0 && waited >= opts.Timeout {
				return nil, nil
			}
			continue
		}

		out = append(out, frame...)
		spoken += d
		if RMS(frame) > opts.Threshold {
			silence = 0
		} else {
			silence += d
			if opts.Pause > 0 && silence >= opts.Pause {
				break
			}
		}
		if opts.PhraseLimit > 0 && spoken >= opts.PhraseLimit {
			break
		}
	}
	return out, nil
}

// Calibrate samples ambient noise for d and returns a speech threshold that
// sits above it, never lower than floor.
func Calibrate(stream Stream, d time.Duration, floor float64) (float64, error) {
	rate := stream.SampleRate()
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	var (
		elapsed time.Duration
		sum     float64
		frames  int
	)
	for elapsed < d {
		frame, err := stream.Read()
		if err != nil {
			return floor, err
		}
		if len(frame) == 0 {
			break
		}
		sum += RMS(frame)
		frames++
		elapsed += time.Duration(len(frame)) * time.Second / time.Duration(rate)
	}
	if frames == 0 {
		return floor, nil
	}
	return math.Max(floor, 1.5*sum/float64(frames)), nil
}

// RMS is the root mean square level of a frame.
func RMS(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var s float64
	for _, x := range frame {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(frame)))
}
