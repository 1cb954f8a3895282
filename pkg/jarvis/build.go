package jarvis

import (
	"fmt"
	"log/slog"

	"github.com/harunnryd/jarvis/pkg/adapters/stt"
	"github.com/harunnryd/jarvis/pkg/adapters/tts"
	"github.com/harunnryd/jarvis/pkg/audio"
	"github.com/harunnryd/jarvis/pkg/history"
	"github.com/harunnryd/jarvis/pkg/providers/mock"
	"github.com/harunnryd/jarvis/pkg/transports/twilio"
	"github.com/harunnryd/jarvis/pkg/wakeword"
)

// Build assembles an engine from configuration: vendors come from providers,
// audio devices from cfg.Audio.
func Build(cfg Config, providers *ProviderRegistry, logger *slog.Logger) (*Engine, error) {
	if providers == nil {
		providers = DefaultProviders()
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts := Options{Config: cfg, Logger: logger}

	var err error
	if opts.Primary, err = providers.BuildSynthesizer(cfg.Speech.Vendors.TTS, cfg); err != nil {
		return nil, fmt.Errorf("build tts: %w", err)
	}
	opts.Fallback = optionalSynthesizer(providers, cfg, logger)
	if opts.Transcriber, err = providers.BuildTranscriber(cfg.Listener.Vendors.STT, cfg); err != nil {
		return nil, fmt.Errorf("build stt: %w", err)
	}
	opts.Spotter = optionalSpotter(providers, cfg, logger)
	opts.WakeTranscriber = optionalWakeTranscriber(providers, cfg, logger)
	if cfg.LLM.Provider != "" {
		if opts.Model, err = providers.BuildCompleter(cfg.LLM, cfg); err != nil {
			return nil, fmt.Errorf("build llm: %w", err)
		}
	} else {
		logger.Warn("llm_disabled", "reason", "no llm provider configured")
	}

	switch cfg.Audio.Input {
	case "mock":
		opts.Source = mock.NewSource()
	default:
		if err := audio.Initialize(); err != nil {
			return nil, fmt.Errorf("init audio: %w", err)
		}
		opts.Closers = append(opts.Closers, audio.Terminate)
		opts.Source = audio.NewPortAudioSource(cfg.Audio.SampleRate, cfg.Audio.Frame)
	}
	switch cfg.Audio.Output {
	case "mock":
		opts.Player = mock.NewPlayer()
	default:
		opts.Player = audio.NewSpeakerPlayer()
	}

	if cfg.WhatsApp.AccountSID != "" {
		opts.Messenger = twilio.New(twilio.Config{
			AccountSID: cfg.WhatsApp.AccountSID,
			AuthToken:  cfg.WhatsApp.AuthToken,
			FromNumber: cfg.WhatsApp.FromNumber,
			CallURL:    cfg.WhatsApp.CallURL,
			Contacts:   cfg.WhatsApp.Contacts,
			Logger:     logger,
		})
	}

	if cfg.History.Path != "" {
		journal, err := history.Open(cfg.History.Path)
		if err != nil {
			closeAll(opts.Closers, logger)
			return nil, err
		}
		opts.History = journal
	}

	e, err := New(opts)
	if err != nil {
		if opts.History != nil {
			opts.History.Close()
		}
		closeAll(opts.Closers, logger)
		return nil, err
	}
	return e, nil
}

func closeAll(closers []func() error, logger *slog.Logger) {
	for _, fn := range closers {
		if err := fn(); err != nil {
			logger.Warn("close_failed", "error", err)
		}
	}
}

// The fallback voice and both wake word tiers are optional: a vendor that
// fails to build is logged and left out.

func optionalSynthesizer(providers *ProviderRegistry, cfg Config, logger *slog.Logger) tts.Synthesizer {
	vc := cfg.Speech.Vendors.TTSFallback
	if vc.Provider == "" {
		return nil
	}
	s, err := providers.BuildSynthesizer(vc, cfg)
	if err != nil {
		logger.Warn("tts_fallback_unavailable", "provider", vc.Provider, "error", err)
		return nil
	}
	return s
}

func optionalSpotter(providers *ProviderRegistry, cfg Config, logger *slog.Logger) wakeword.SpotterFactory {
	vc := cfg.WakeWord.Vendors.Spotter
	if vc.Provider == "" {
		return nil
	}
	f, err := providers.BuildSpotter(vc, cfg)
	if err != nil {
		logger.Warn("wakeword_spotter_unavailable", "provider", vc.Provider, "error", err)
		return nil
	}
	return f
}

func optionalWakeTranscriber(providers *ProviderRegistry, cfg Config, logger *slog.Logger) stt.Transcriber {
	vc := cfg.WakeWord.Vendors.WakeSTT
	if vc.Provider == "" {
		return nil
	}
	t, err := providers.BuildTranscriber(vc, cfg)
	if err != nil {
		logger.Warn("wakeword_stt_unavailable", "provider", vc.Provider, "error", err)
		return nil
	}
	return t
}

// BuildSynthesizers returns the configured primary and fallback voices, for
// callers that only need to speak.
func BuildSynthesizers(cfg Config, providers *ProviderRegistry, logger *slog.Logger) (tts.Synthesizer, tts.Synthesizer, error) {
	if providers == nil {
		providers = DefaultProviders()
	}
	if logger == nil {
		logger = slog.Default()
	}
	primary, err := providers.BuildSynthesizer(cfg.Speech.Vendors.TTS, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("build tts: %w", err)
	}
	return primary, optionalSynthesizer(providers, cfg, logger), nil
}
