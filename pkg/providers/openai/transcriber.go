package openai

import (
	"bytes"
	"context"
	"log/slog"
	"strings"

	"github.com/harunnryd/jarvis/pkg/adapters/stt"
	"github.com/harunnryd/jarvis/pkg/audio"
	"github.com/harunnryd/jarvis/pkg/errorsx"
	"github.com/harunnryd/jarvis/pkg/logging"
	"github.com/openai/openai-go/v3"
)

// Transcriber uploads a captured phrase to the Whisper transcription API.
type Transcriber struct {
	cfg    Config
	client openai.Client
	logger *slog.Logger
}

func NewTranscriber(cfg Config) *Transcriber {
	if cfg.Model == "" {
		cfg.Model = string(openai.AudioModelWhisper1)
	}
	return &Transcriber{
		cfg:    cfg,
		client: newClient(cfg),
		logger: logging.NewComponentLogger(cfg.Logger, "openai_stt"),
	}
}

func (t *Transcriber) Name() string { return "openai" }

func (t *Transcriber) Transcribe(ctx context.Context, pcm []float32, sampleRate int, language string) (string, error) {
	if len(pcm) == 0 {
		return "", stt.ErrNoSpeech
	}
	wav, err := audio.EncodeWAV(pcm, sampleRate)
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonRecognition)
	}
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
		Model: openai.AudioModel(t.cfg.Model),
	}
	if lang := isoLanguage(language); lang != "" {
		params.Language = openai.String(lang)
	}
	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", errorsx.Wrap(classify(err), errorsx.ReasonRecognition)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", stt.ErrNoSpeech
	}
	t.logger.Debug("transcription_done", "chars", len(text))
	return text, nil
}

// isoLanguage reduces a locale such as en-IN to the ISO-639-1 code Whisper
// expects.
func isoLanguage(locale string) string {
	locale = strings.ToLower(strings.TrimSpace(locale))
	if i := strings.IndexAny(locale, "-_"); i > 0 {
		locale = locale[:i]
	}
	return locale
}

var _ stt.Transcriber = (*Transcriber)(nil)
