package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/harunnryd/jarvis/pkg/adapters/tts"
	"github.com/harunnryd/jarvis/pkg/audio"
)

// Synthesizer encodes the text itself as the clip payload so players can
// tell utterances apart.
type Synthesizer struct {
	Fail bool

	mu    sync.Mutex
	texts []string
}

func NewSynthesizer() *Synthesizer { return &Synthesizer{} }

func (s *Synthesizer) Name() string { return "mock" }

func (s *Synthesizer) Synthesize(_ context.Context, text string) (audio.Clip, error) {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.mu.Unlock()
	if s.Fail {
		return audio.Clip{}, errors.New("mock synthesis failure")
	}
	return audio.Clip{Data: []byte(text), Format: audio.FormatWAV}, nil
}

func (s *Synthesizer) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

var _ tts.Synthesizer = (*Synthesizer)(nil)
