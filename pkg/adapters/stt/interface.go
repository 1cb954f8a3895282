package stt

import (
	"context"
	"errors"
)

// ErrNoSpeech marks a recognition that produced no words. Callers treat it
// as an empty command, never as a failure.
var ErrNoSpeech = errors.New("no speech recognized")

// Transcriber defines the contract for any STT vendor implementation.
type Transcriber interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Transcribe converts mono float32 samples to text.
	Transcribe(ctx context.Context, pcm []float32, sampleRate int, language string) (string, error)
}

// Config contains vendor-agnostic STT configuration.
type Config struct {
	SampleRate int
	Language   string
}
