package audio

import (
	"math"
	"time"

	"github.com/faiface/beep"
)

// Tone is a short sine beep, optionally repeated with a gap.
type Tone struct {
	Freq     float64
	Duration time.Duration
	Fade     time.Duration
	Repeat   int
	Gap      time.Duration
	Volume   float64
}

var (
	// ActivationTone plays when the wake word is accepted.
	ActivationTone = Tone{Freq: 880, Duration: 150 * time.Millisecond, Fade: 10 * time.Millisecond, Repeat: 1, Volume: 0.5}
	// CompletionTone plays before an alarm is announced.
	CompletionTone = Tone{Freq: 1100, Duration: 100 * time.Millisecond, Fade: 10 * time.Millisecond, Repeat: 2, Gap: 50 * time.Millisecond, Volume: 0.5}
)

// Samples renders the tone, repeats and gaps included, at rate.
func (t Tone) Samples(rate int) []float64 {
	n := samplesFor(t.Duration, rate)
	fade := samplesFor(t.Fade, rate)
	gap := samplesFor(t.Gap, rate)
	vol := t.Volume
	if vol <= 0 {
		vol = 0.5
	}
	repeat := t.Repeat
	if repeat <= 0 {
		repeat = 1
	}

	beepSamples := make([]float64, n)
	for i := range beepSamples {
		v := vol * math.Sin(2*math.Pi*t.Freq*float64(i)/float64(rate))
		switch {
		case fade > 0 && i < fade:
			v *= float64(i) / float64(fade)
		case fade > 0 && i >= n-fade:
			v *= float64(n-1-i) / float64(fade)
		}
		beepSamples[i] = v
	}

	out := make([]float64, 0, repeat*n+(repeat-1)*gap)
	for r := 0; r < repeat; r++ {
		if r > 0 {
			out = append(out, make([]float64, gap)...)
		}
		out = append(out, beepSamples...)
	}
	return out
}

func samplesFor(d time.Duration, rate int) int {
	return int(int64(d) * int64(rate) / int64(time.Second))
}

func toneStreamer(t Tone, rate int) beep.Streamer {
	samples := t.Samples(rate)
	pos := 0
	return beep.StreamerFunc(func(buf [][2]float64) (int, bool) {
		if pos >= len(samples) {
			return 0, false
		}
		n := copy2(buf, samples[pos:])
		pos += n
		return n, true
	})
}

func copy2(dst [][2]float64, src []float64) int {
	n := len(dst)
	if len(src) < n {
		n = len(src)
	}
	for i := 0; i < n; i++ {
		dst[i][0] = src[i]
		dst[i][1] = src[i]
	}
	return n
}
