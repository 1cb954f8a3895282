package mock

import (
	"context"
	"sync"

	"github.com/harunnryd/jarvis/pkg/adapters/stt"
)

// Transcriber hands out scripted transcripts in order. Once the script is
// exhausted it reports stt.ErrNoSpeech, or repeats Default when set.
type Transcriber struct {
	Default string

	mu     sync.Mutex
	script []string
	calls  int
}

func NewTranscriber(script ...string) *Transcriber {
	return &Transcriber{script: script}
}

func (t *Transcriber) Name() string { return "mock" }

// Push appends transcripts to the script.
func (t *Transcriber) Push(texts ...string) {
	t.mu.Lock()
	t.script = append(t.script, texts...)
	t.mu.Unlock()
}

func (t *Transcriber) Transcribe(context.Context, []float32, int, string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	if len(t.script) == 0 {
		if t.Default != "" {
			return t.Default, nil
		}
		return "", stt.ErrNoSpeech
	}
	text := t.script[0]
	t.script = t.script[1:]
	if text == "" {
		return "", stt.ErrNoSpeech
	}
	return text, nil
}

func (t *Transcriber) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

var _ stt.Transcriber = (*Transcriber)(nil)
