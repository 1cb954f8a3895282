package espeak

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/harunnryd/jarvis/pkg/adapters/tts"
	"github.com/harunnryd/jarvis/pkg/audio"
	"github.com/harunnryd/jarvis/pkg/errorsx"
	"github.com/harunnryd/jarvis/pkg/logging"
)

type Config struct {
	Binary string       `mapstructure:"binary"`
	Voice  string       `mapstructure:"voice"`
	Rate   int          `mapstructure:"rate"`
	Logger *slog.Logger `mapstructure:"-"`
}

// Synthesizer is the offline fallback voice. It runs the espeak binary and
// keeps the WAV it writes to stdout.
type Synthesizer struct {
	cfg    Config
	logger *slog.Logger
	run    func(ctx context.Context, name string, args []string, stdin string) ([]byte, error)
}

func New(cfg Config) *Synthesizer {
	if cfg.Binary == "" {
		cfg.Binary = "espeak"
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 174
	}
	return &Synthesizer{cfg: cfg, logger: logging.NewComponentLogger(cfg.Logger, "espeak_tts"), run: runCommand}
}

func (s *Synthesizer) Name() string { return "espeak" }

func (s *Synthesizer) Synthesize(ctx context.Context, text string) (audio.Clip, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return audio.Clip{}, errors.New("empty text")
	}
	out, err := s.run(ctx, s.cfg.Binary, s.args(), text)
	if err != nil {
		return audio.Clip{}, errorsx.Wrapf(err, errorsx.ReasonSynthesis, "run %s", s.cfg.Binary)
	}
	if len(out) == 0 {
		return audio.Clip{}, errorsx.New(errorsx.ReasonSynthesis, "espeak produced no audio")
	}
	s.logger.Debug("tts_audio_received", slog.Int("size_bytes", len(out)))
	return audio.Clip{Data: out, Format: audio.FormatWAV}, nil
}

// args reads the text from stdin so it never passes through argv parsing.
func (s *Synthesizer) args() []string {
	args := []string{"-s", strconv.Itoa(s.cfg.Rate), "--stdout", "--stdin"}
	if s.cfg.Voice != "" {
		args = append(args, "-v", s.cfg.Voice)
	}
	return args
}

func runCommand(ctx context.Context, name string, args []string, stdin string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = strings.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

var _ tts.Synthesizer = (*Synthesizer)(nil)
