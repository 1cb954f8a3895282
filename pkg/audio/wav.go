package audio

import (
	"encoding/binary"
	"errors"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// EncodeWAV renders float32 samples as a 16-bit mono PCM WAV file.
func EncodeWAV(pcm []float32, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	data := make([]int, len(pcm))
	for i, x := range pcm {
		data[i] = int(toInt16(x))
	}
	buf := &writeSeeker{}
	enc := wav.NewEncoder(buf, sampleRate, 16, 1, 1)
	if err := enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.buf, nil
}

// PCM16LE renders float32 samples as raw little-endian linear16.
func PCM16LE(pcm []float32) []byte {
	out := make([]byte, 2*len(pcm))
	for i, x := range pcm {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(toInt16(x)))
	}
	return out
}

func toInt16(x float32) int16 {
	v := math.Max(-1, math.Min(1, float64(x)))
	return int16(math.Round(v * math.MaxInt16))
}

// writeSeeker is an in-memory io.WriteSeeker for the WAV encoder, which
// patches the header sizes after the samples are written.
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	end := w.pos + len(p)
	if end > len(w.buf) {
		w.buf = append(w.buf, make([]byte, end-len(w.buf))...)
	}
	copy(w.buf[w.pos:], p)
	w.pos = end
	return len(p), nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(w.pos)
	case io.SeekEnd:
		base = int64(len(w.buf))
	default:
		return 0, errors.New("invalid whence")
	}
	next := base + offset
	if next < 0 {
		return 0, errors.New("negative position")
	}
	w.pos = int(next)
	return next, nil
}
