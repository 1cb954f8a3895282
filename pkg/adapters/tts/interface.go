package tts

import (
	"context"

	"github.com/harunnryd/jarvis/pkg/audio"
)

// Synthesizer defines the contract for any TTS vendor implementation.
type Synthesizer interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Synthesize renders text to an encoded clip.
	Synthesize(ctx context.Context, text string) (audio.Clip, error)
}
