package jarvis

import (
	"github.com/harunnryd/jarvis/pkg/adapters/stt"
	"github.com/harunnryd/jarvis/pkg/adapters/tts"
	"github.com/harunnryd/jarvis/pkg/configutil"
	"github.com/harunnryd/jarvis/pkg/llm"
	"github.com/harunnryd/jarvis/pkg/providers/deepgram"
	"github.com/harunnryd/jarvis/pkg/providers/elevenlabs"
	"github.com/harunnryd/jarvis/pkg/providers/espeak"
	"github.com/harunnryd/jarvis/pkg/providers/mock"
	"github.com/harunnryd/jarvis/pkg/providers/openai"
	"github.com/harunnryd/jarvis/pkg/providers/whispercpp"
	"github.com/harunnryd/jarvis/pkg/wakeword"
)

// DefaultProviders returns a registry with every built-in vendor.
func DefaultProviders() *ProviderRegistry {
	reg := NewProviderRegistry()
	RegisterProviders(reg)
	return reg
}

type mockSTTSettings struct {
	Script  []string `mapstructure:"script"`
	Default string   `mapstructure:"default"`
}

type mockTTSSettings struct {
	Fail bool `mapstructure:"fail"`
}

type mockLLMSettings struct {
	Response string `mapstructure:"response"`
}

func RegisterProviders(reg *ProviderRegistry) {
	reg.RegisterTranscriber("deepgram", func(vc VendorConfig, cfg Config) (stt.Transcriber, error) {
		if err := configutil.ValidateVendor(vc.Provider, vc.Settings, configutil.Schema{
			Required: []string{"api_key"},
			Optional: []string{"model", "language", "utterance_end_ms", "settle"},
		}); err != nil {
			return nil, err
		}
		var settings deepgram.Config
		if err := configutil.DecodeSettings(vc.Settings, &settings); err != nil {
			return nil, err
		}
		settings.Language = configutil.StringValue(settings.Language, cfg.Listener.Language)
		return deepgram.New(settings), nil
	})

	reg.RegisterTranscriber("openai", func(vc VendorConfig, cfg Config) (stt.Transcriber, error) {
		var settings openai.Config
		if err := decodeOpenAI(vc, &settings); err != nil {
			return nil, err
		}
		return openai.NewTranscriber(settings), nil
	})

	reg.RegisterTranscriber("mock", func(vc VendorConfig, cfg Config) (stt.Transcriber, error) {
		if err := configutil.ValidateVendor(vc.Provider, vc.Settings, configutil.Schema{
			Optional: []string{"script", "default"},
		}); err != nil {
			return nil, err
		}
		var settings mockSTTSettings
		if err := configutil.DecodeSettings(vc.Settings, &settings); err != nil {
			return nil, err
		}
		t := mock.NewTranscriber(settings.Script...)
		t.Default = settings.Default
		return t, nil
	})

	reg.RegisterSynthesizer("elevenlabs", func(vc VendorConfig, cfg Config) (tts.Synthesizer, error) {
		if err := configutil.ValidateVendor(vc.Provider, vc.Settings, configutil.Schema{
			Required: []string{"api_key", "voice_id"},
			Optional: []string{"model_id", "output_format", "base_url", "timeout", "stability", "similarity_boost"},
		}); err != nil {
			return nil, err
		}
		var settings elevenlabs.Config
		if err := configutil.DecodeSettings(vc.Settings, &settings); err != nil {
			return nil, err
		}
		return elevenlabs.New(settings), nil
	})

	reg.RegisterSynthesizer("espeak", func(vc VendorConfig, cfg Config) (tts.Synthesizer, error) {
		if err := configutil.ValidateVendor(vc.Provider, vc.Settings, configutil.Schema{
			Optional: []string{"binary", "voice", "rate"},
		}); err != nil {
			return nil, err
		}
		var settings espeak.Config
		if err := configutil.DecodeSettings(vc.Settings, &settings); err != nil {
			return nil, err
		}
		return espeak.New(settings), nil
	})

	reg.RegisterSynthesizer("mock", func(vc VendorConfig, cfg Config) (tts.Synthesizer, error) {
		var settings mockTTSSettings
		if err := configutil.DecodeSettings(vc.Settings, &settings); err != nil {
			return nil, err
		}
		s := mock.NewSynthesizer()
		s.Fail = settings.Fail
		return s, nil
	})

	reg.RegisterSpotter("whispercpp", func(vc VendorConfig, cfg Config) (wakeword.SpotterFactory, error) {
		if err := configutil.ValidateVendor(vc.Provider, vc.Settings, configutil.Schema{
			Optional: []string{"model_path", "keywords", "sensitivity", "window", "hop", "threads", "language"},
		}); err != nil {
			return nil, err
		}
		var settings whispercpp.Config
		if err := configutil.DecodeSettings(vc.Settings, &settings); err != nil {
			return nil, err
		}
		if len(settings.Keywords) == 0 {
			settings.Keywords = cfg.WakeWord.Triggers
		}
		if settings.Sensitivity == 0 {
			settings.Sensitivity = cfg.WakeWord.Sensitivity
		}
		// A missing model is reported when the detector starts, which then
		// falls back to the transcription tier.
		return whispercpp.NewFactory(settings), nil
	})

	reg.RegisterSpotter("mock", func(vc VendorConfig, cfg Config) (wakeword.SpotterFactory, error) {
		sp := mock.NewSpotter()
		return func() (wakeword.Spotter, error) { return sp, nil }, nil
	})

	reg.RegisterCompleter("openai", func(vc VendorConfig, cfg Config) (llm.Completer, error) {
		var settings openai.Config
		if err := decodeOpenAI(vc, &settings); err != nil {
			return nil, err
		}
		return openai.NewCompleter(settings), nil
	})

	reg.RegisterCompleter("mock", func(vc VendorConfig, cfg Config) (llm.Completer, error) {
		var settings mockLLMSettings
		if err := configutil.DecodeSettings(vc.Settings, &settings); err != nil {
			return nil, err
		}
		return mock.NewCompleter(settings.Response), nil
	})
}

func decodeOpenAI(vc VendorConfig, out *openai.Config) error {
	if err := configutil.ValidateVendor(vc.Provider, vc.Settings, configutil.Schema{
		Required: []string{"api_key"},
		Optional: []string{"base_url", "model", "timeout", "max_tokens"},
	}); err != nil {
		return err
	}
	if err := configutil.DecodeSettings(vc.Settings, out); err != nil {
		return err
	}
	return configutil.RequireString(out.APIKey, "openai api_key")
}
