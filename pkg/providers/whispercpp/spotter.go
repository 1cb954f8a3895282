package whispercpp

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/harunnryd/jarvis/pkg/audio"
	"github.com/harunnryd/jarvis/pkg/errorsx"
	"github.com/harunnryd/jarvis/pkg/logging"
	"github.com/harunnryd/jarvis/pkg/wakeword"
)

type Config struct {
	ModelPath string   `mapstructure:"model_path"`
	Keywords  []string `mapstructure:"keywords"`
	// Sensitivity in [0,1]. Higher values decode quieter audio.
	Sensitivity float64       `mapstructure:"sensitivity"`
	Window      time.Duration `mapstructure:"window"`
	Hop         time.Duration `mapstructure:"hop"`
	Threads     int           `mapstructure:"threads"`
	Language    string        `mapstructure:"language"`
	Logger      *slog.Logger  `mapstructure:"-"`
}

func (c *Config) applyDefaults() {
	if len(c.Keywords) == 0 {
		c.Keywords = []string{"jarvis"}
	}
	if c.Sensitivity <= 0 || c.Sensitivity > 1 {
		c.Sensitivity = 0.5
	}
	if c.Window <= 0 {
		c.Window = 1500 * time.Millisecond
	}
	if c.Hop <= 0 {
		c.Hop = 500 * time.Millisecond
	}
	if c.Threads <= 0 {
		c.Threads = runtime.NumCPU()
	}
	if c.Language == "" {
		c.Language = "en"
	}
}

// decoder turns a window of 16 kHz mono samples into text.
type decoder interface {
	Decode(pcm []float32) (string, error)
	Close() error
}

// NewFactory returns a SpotterFactory that loads the whisper model on every
// call. A missing model file is reported as errorsx.ReasonWakeModel so the
// detector falls back.
func NewFactory(cfg Config) wakeword.SpotterFactory {
	return func() (wakeword.Spotter, error) {
		cfg.applyDefaults()
		if cfg.ModelPath == "" {
			return nil, errorsx.New(errorsx.ReasonWakeModel, "whisper model path not configured")
		}
		if _, err := os.Stat(cfg.ModelPath); err != nil {
			return nil, errorsx.Wrapf(err, errorsx.ReasonWakeModel, "whisper model %s", cfg.ModelPath)
		}
		dec, err := newWhisperDecoder(cfg)
		if err != nil {
			return nil, errorsx.Wrap(err, errorsx.ReasonWakeModel)
		}
		return newSpotter(cfg, dec), nil
	}
}

// Spotter decodes a sliding window with a small whisper model and reports a
// detection when a keyword appears in the text.
type Spotter struct {
	cfg    Config
	dec    decoder
	logger *slog.Logger

	mu     sync.Mutex
	window []float32
	size   int
	hop    int
	gate   float64
}

func newSpotter(cfg Config, dec decoder) *Spotter {
	cfg.applyDefaults()
	rate := audio.DefaultSampleRate
	return &Spotter{
		cfg:    cfg,
		dec:    dec,
		logger: logging.NewComponentLogger(cfg.Logger, "whisper_spotter"),
		size:   int(cfg.Window.Seconds() * float64(rate)),
		hop:    int(cfg.Hop.Seconds() * float64(rate)),
		gate:   0.03 * (1 - cfg.Sensitivity),
	}
}

func (s *Spotter) FrameSize() int { return s.hop }

func (s *Spotter) Process(frame []float32) (bool, error) {
	s.mu.Lock()
	s.window = append(s.window, frame...)
	if over := len(s.window) - s.size; over > 0 {
		s.window = append(s.window[:0], s.window[over:]...)
	}
	snapshot := append([]float32(nil), s.window...)
	s.mu.Unlock()

	if audio.RMS(snapshot) < s.gate {
		return false, nil
	}
	text, err := s.dec.Decode(snapshot)
	if err != nil {
		return false, err
	}
	if kw, ok := wakeword.MatchTrigger(text, s.cfg.Keywords); ok {
		s.logger.Debug("keyword_spotted", "keyword", kw)
		return true, nil
	}
	return false, nil
}

// Reset drops buffered audio so the same utterance is not matched twice.
func (s *Spotter) Reset() {
	s.mu.Lock()
	s.window = s.window[:0]
	s.mu.Unlock()
}

func (s *Spotter) Close() error {
	if s.dec == nil {
		return nil
	}
	return s.dec.Close()
}

type whisperDecoder struct {
	model   whisper.Model
	threads int
	lang    string
}

func newWhisperDecoder(cfg Config) (*whisperDecoder, error) {
	m, err := whisper.New(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	return &whisperDecoder{model: m, threads: cfg.Threads, lang: cfg.Language}, nil
}

func (d *whisperDecoder) Decode(pcm []float32) (string, error) {
	wctx, err := d.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("new context: %w", err)
	}
	if err := wctx.SetLanguage(d.lang); err != nil {
		return "", fmt.Errorf("set language: %w", err)
	}
	wctx.SetThreads(uint(d.threads))
	if err := wctx.Process(pcm, nil, nil, nil); err != nil {
		return "", fmt.Errorf("process: %w", err)
	}
	var parts []string
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("next segment: %w", err)
		}
		parts = append(parts, strings.TrimSpace(seg.Text))
	}
	return strings.Join(parts, " "), nil
}

func (d *whisperDecoder) Close() error { return d.model.Close() }

var _ wakeword.Spotter = (*Spotter)(nil)
