package deepgram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/jarvis/pkg/adapters/stt"
	"github.com/harunnryd/jarvis/pkg/audio"
	"github.com/harunnryd/jarvis/pkg/errorsx"
	"github.com/harunnryd/jarvis/pkg/logging"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

type Config struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	Language       string `mapstructure:"language"`
	UtteranceEndMS int    `mapstructure:"utterance_end_ms"`
	// Settle bounds the wait for final results after the audio was sent.
	Settle time.Duration `mapstructure:"settle"`
	Logger *slog.Logger  `mapstructure:"-"`
}

// Transcriber sends one captured phrase over a live websocket session and
// collects the final transcript.
type Transcriber struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config) *Transcriber {
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.Settle <= 0 {
		cfg.Settle = 3 * time.Second
	}
	return &Transcriber{
		cfg:    cfg,
		logger: logging.NewComponentLogger(cfg.Logger, "deepgram_stt"),
	}
}

func (t *Transcriber) Name() string { return "deepgram" }

func (t *Transcriber) Transcribe(ctx context.Context, pcm []float32, sampleRate int, language string) (string, error) {
	if len(pcm) == 0 {
		return "", stt.ErrNoSpeech
	}
	if t.cfg.APIKey == "" {
		return "", errorsx.New(errorsx.ReasonSTTConnect, "deepgram api key missing")
	}
	if language == "" {
		language = t.cfg.Language
	}
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := &interfaces.LiveTranscriptionOptions{
		Model:          t.cfg.Model,
		Language:       language,
		Encoding:       "linear16",
		Channels:       1,
		SampleRate:     sampleRate,
		InterimResults: true,
		VadEvents:      true,
		SmartFormat:    true,
		Punctuate:      true,
	}
	if t.cfg.UtteranceEndMS > 0 {
		opts.UtteranceEndMs = fmt.Sprintf("%d", t.cfg.UtteranceEndMS)
	}

	sess := newSession(t.logger)
	ws, err := client.NewWSUsingCallback(ctx, t.cfg.APIKey, &interfaces.ClientOptions{EnableKeepAlive: true}, opts, sess)
	if err != nil {
		return "", errorsx.Wrapf(err, errorsx.ReasonSTTConnect, "deepgram client")
	}
	if !ws.Connect() {
		return "", errorsx.New(errorsx.ReasonSTTConnect, "deepgram connection failed")
	}
	defer ws.Stop()

	pr, pw := io.Pipe()
	go func() {
		if err := ws.Stream(pr); err != nil && ctx.Err() == nil && !errors.Is(err, io.EOF) {
			t.logger.Warn("deepgram_stream_error", slog.String("error", err.Error()))
		}
	}()
	go func() {
		_, err := pw.Write(audio.PCM16LE(pcm))
		_ = pw.CloseWithError(err)
	}()

	timer := time.NewTimer(time.Duration(len(pcm))*time.Second/time.Duration(sampleRate) + t.cfg.Settle)
	defer timer.Stop()
	select {
	case <-sess.done:
	case <-timer.C:
		t.logger.Debug("deepgram_settle_timeout")
	case <-ctx.Done():
		return "", ctx.Err()
	}

	text, err := sess.result()
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonRecognition)
	}
	if text == "" {
		return "", stt.ErrNoSpeech
	}
	return text, nil
}

// session collects final transcripts for one phrase.
type session struct {
	logger *slog.Logger

	mu     sync.Mutex
	finals []string
	err    error
	once   sync.Once
	done   chan struct{}
}

func newSession(logger *slog.Logger) *session {
	return &session{logger: logger, done: make(chan struct{})}
}

func (s *session) finish() { s.once.Do(func() { close(s.done) }) }

func (s *session) result() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text := strings.TrimSpace(strings.Join(s.finals, " "))
	if text == "" && s.err != nil {
		return "", s.err
	}
	return text, nil
}

func (s *session) Open(*msginterfaces.OpenResponse) error {
	s.logger.Debug("deepgram_connection_opened")
	return nil
}

func (s *session) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	transcript := strings.TrimSpace(mr.Channel.Alternatives[0].Transcript)
	if mr.IsFinal && transcript != "" {
		s.mu.Lock()
		s.finals = append(s.finals, transcript)
		s.mu.Unlock()
	}
	if mr.SpeechFinal {
		s.finish()
	}
	return nil
}

func (s *session) Metadata(md *msginterfaces.MetadataResponse) error {
	s.logger.Debug("deepgram_metadata_received", slog.String("request_id", md.RequestID))
	return nil
}

func (s *session) SpeechStarted(*msginterfaces.SpeechStartedResponse) error { return nil }

func (s *session) UtteranceEnd(*msginterfaces.UtteranceEndResponse) error {
	s.finish()
	return nil
}

func (s *session) Close(*msginterfaces.CloseResponse) error {
	s.finish()
	return nil
}

func (s *session) Error(er *msginterfaces.ErrorResponse) error {
	s.logger.Error("deepgram_error",
		slog.String("error_code", er.ErrCode),
		slog.String("error_message", er.ErrMsg))
	s.mu.Lock()
	s.err = fmt.Errorf("deepgram %s: %s", er.ErrCode, er.ErrMsg)
	s.mu.Unlock()
	s.finish()
	return nil
}

func (s *session) UnhandledEvent(byData []byte) error {
	s.logger.Debug("deepgram_unhandled_event", slog.Int("bytes", len(byData)))
	return nil
}

var _ stt.Transcriber = (*Transcriber)(nil)
var _ msginterfaces.LiveMessageCallback = (*session)(nil)
