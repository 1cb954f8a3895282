package jarvis

import (
	"fmt"
	"strings"

	"github.com/harunnryd/jarvis/pkg/adapters/stt"
	"github.com/harunnryd/jarvis/pkg/adapters/tts"
	"github.com/harunnryd/jarvis/pkg/llm"
	"github.com/harunnryd/jarvis/pkg/wakeword"
)

// Factories receive the vendor section they were selected by and the full
// config for cross-section defaults such as the listener language.
type TranscriberFactory func(vc VendorConfig, cfg Config) (stt.Transcriber, error)
type SynthesizerFactory func(vc VendorConfig, cfg Config) (tts.Synthesizer, error)
type SpotterFactoryBuilder func(vc VendorConfig, cfg Config) (wakeword.SpotterFactory, error)
type CompleterFactory func(vc VendorConfig, cfg Config) (llm.Completer, error)

type ProviderRegistry struct {
	stt     map[string]TranscriberFactory
	tts     map[string]SynthesizerFactory
	spotter map[string]SpotterFactoryBuilder
	llm     map[string]CompleterFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		stt:     make(map[string]TranscriberFactory),
		tts:     make(map[string]SynthesizerFactory),
		spotter: make(map[string]SpotterFactoryBuilder),
		llm:     make(map[string]CompleterFactory),
	}
}

func providerKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *ProviderRegistry) RegisterTranscriber(name string, factory TranscriberFactory) {
	r.stt[providerKey(name)] = factory
}

func (r *ProviderRegistry) RegisterSynthesizer(name string, factory SynthesizerFactory) {
	r.tts[providerKey(name)] = factory
}

func (r *ProviderRegistry) RegisterSpotter(name string, factory SpotterFactoryBuilder) {
	r.spotter[providerKey(name)] = factory
}

func (r *ProviderRegistry) RegisterCompleter(name string, factory CompleterFactory) {
	r.llm[providerKey(name)] = factory
}

func (r *ProviderRegistry) BuildTranscriber(vc VendorConfig, cfg Config) (stt.Transcriber, error) {
	fn := r.stt[providerKey(vc.Provider)]
	if fn == nil {
		return nil, fmt.Errorf("stt provider not registered: %s", vc.Provider)
	}
	return fn(vc, cfg)
}

func (r *ProviderRegistry) BuildSynthesizer(vc VendorConfig, cfg Config) (tts.Synthesizer, error) {
	fn := r.tts[providerKey(vc.Provider)]
	if fn == nil {
		return nil, fmt.Errorf("tts provider not registered: %s", vc.Provider)
	}
	return fn(vc, cfg)
}

func (r *ProviderRegistry) BuildSpotter(vc VendorConfig, cfg Config) (wakeword.SpotterFactory, error) {
	fn := r.spotter[providerKey(vc.Provider)]
	if fn == nil {
		return nil, fmt.Errorf("spotter provider not registered: %s", vc.Provider)
	}
	return fn(vc, cfg)
}

func (r *ProviderRegistry) BuildCompleter(vc VendorConfig, cfg Config) (llm.Completer, error) {
	fn := r.llm[providerKey(vc.Provider)]
	if fn == nil {
		return nil, fmt.Errorf("llm provider not registered: %s", vc.Provider)
	}
	return fn(vc, cfg)
}
