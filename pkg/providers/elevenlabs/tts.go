package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harunnryd/jarvis/pkg/adapters/tts"
	"github.com/harunnryd/jarvis/pkg/audio"
	"github.com/harunnryd/jarvis/pkg/errorsx"
	"github.com/harunnryd/jarvis/pkg/logging"
	"github.com/harunnryd/jarvis/pkg/resilience"
)

const defaultBaseURL = "wss://api.elevenlabs.io/v1/text-to-speech"

type Config struct {
	APIKey       string        `mapstructure:"api_key"`
	VoiceID      string        `mapstructure:"voice_id"`
	ModelID      string        `mapstructure:"model_id"`
	OutputFormat string        `mapstructure:"output_format"`
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Stability    float64       `mapstructure:"stability"`
	Similarity   float64       `mapstructure:"similarity_boost"`
	Logger       *slog.Logger  `mapstructure:"-"`
}

// Synthesizer renders one utterance over the stream-input websocket and
// returns the collected mp3 audio.
type Synthesizer struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config) *Synthesizer {
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "mp3_44100_128"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.Stability <= 0 {
		cfg.Stability = 0.5
	}
	if cfg.Similarity <= 0 {
		cfg.Similarity = 0.8
	}
	return &Synthesizer{cfg: cfg, logger: logging.NewComponentLogger(cfg.Logger, "elevenlabs_tts")}
}

func (s *Synthesizer) Name() string { return "elevenlabs" }

func (s *Synthesizer) Synthesize(ctx context.Context, text string) (audio.Clip, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return audio.Clip{}, errors.New("empty text")
	}
	if s.cfg.APIKey == "" || s.cfg.VoiceID == "" {
		return audio.Clip{}, errorsx.New(errorsx.ReasonTTSConnect, "missing elevenlabs config")
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	u, err := s.buildURL()
	if err != nil {
		return audio.Clip{}, err
	}
	dialer := websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, u, http.Header{"xi-api-key": []string{s.cfg.APIKey}})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			return audio.Clip{}, errorsx.Wrap(resilience.RateLimitError{Provider: "elevenlabs", Message: resp.Status}, errorsx.ReasonTTSConnect)
		}
		return audio.Clip{}, errorsx.Wrapf(err, errorsx.ReasonTTSConnect, "dial elevenlabs")
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	messages := []map[string]any{
		{
			"text": " ",
			"voice_settings": map[string]any{
				"stability":        s.cfg.Stability,
				"similarity_boost": s.cfg.Similarity,
			},
		},
		{"text": text + " ", "try_trigger_generation": true},
		{"text": ""},
	}
	for _, m := range messages {
		if err := conn.WriteJSON(m); err != nil {
			return audio.Clip{}, errorsx.Wrapf(err, errorsx.ReasonSynthesis, "send text")
		}
	}

	var buf bytes.Buffer
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return audio.Clip{}, errorsx.Wrap(ctx.Err(), errorsx.ReasonSynthesis)
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && buf.Len() > 0 {
				break
			}
			return audio.Clip{}, errorsx.Wrapf(err, errorsx.ReasonSynthesis, "read audio")
		}
		chunk, final, err := decodeMessage(data)
		if err != nil {
			return audio.Clip{}, errorsx.Wrap(err, errorsx.ReasonSynthesis)
		}
		buf.Write(chunk)
		if final {
			break
		}
	}
	if buf.Len() == 0 {
		return audio.Clip{}, errorsx.New(errorsx.ReasonSynthesis, "elevenlabs returned no audio")
	}
	s.logger.Debug("tts_audio_received", slog.Int("size_bytes", buf.Len()))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return audio.Clip{Data: buf.Bytes(), Format: audio.FormatMP3}, nil
}

func (s *Synthesizer) buildURL() (string, error) {
	base, err := url.Parse(strings.TrimRight(s.cfg.BaseURL, "/") + "/" + url.PathEscape(s.cfg.VoiceID) + "/stream-input")
	if err != nil {
		return "", err
	}
	q := url.Values{}
	if s.cfg.ModelID != "" {
		q.Set("model_id", s.cfg.ModelID)
	}
	q.Set("output_format", s.cfg.OutputFormat)
	base.RawQuery = q.Encode()
	return base.String(), nil
}

type streamMessage struct {
	Audio   *string `json:"audio"`
	IsFinal *bool   `json:"isFinal"`
	Error   string  `json:"error"`
	Message string  `json:"message"`
}

func decodeMessage(data []byte) ([]byte, bool, error) {
	var msg streamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, false, fmt.Errorf("decode message: %w", err)
	}
	if msg.Error != "" {
		return nil, false, fmt.Errorf("elevenlabs %s: %s", msg.Error, msg.Message)
	}
	final := msg.IsFinal != nil && *msg.IsFinal
	if msg.Audio == nil || *msg.Audio == "" {
		return nil, final, nil
	}
	raw, err := base64.StdEncoding.DecodeString(*msg.Audio)
	if err != nil {
		return nil, final, fmt.Errorf("decode audio: %w", err)
	}
	return raw, final, nil
}

var _ tts.Synthesizer = (*Synthesizer)(nil)
