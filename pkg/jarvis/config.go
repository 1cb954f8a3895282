package jarvis

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/harunnryd/jarvis/pkg/svcclient"
	"github.com/spf13/viper"
)

type Config struct {
	Environment  string             `mapstructure:"environment"`
	LogLevel     string             `mapstructure:"log_level"`
	LogFormat    string             `mapstructure:"log_format"`
	Audio        AudioConfig        `mapstructure:"audio"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Speech       SpeechConfig       `mapstructure:"speech"`
	Listener     ListenerConfig     `mapstructure:"listener"`
	WakeWord     WakeWordConfig     `mapstructure:"wakeword"`
	LLM          VendorConfig       `mapstructure:"llm"`
	Executor     ExecutorConfig     `mapstructure:"executor"`
	Watchdog     WatchdogConfig     `mapstructure:"watchdog"`
	Services     ServicesConfig     `mapstructure:"services"`
	Uploads      UploadsConfig      `mapstructure:"uploads"`
	Bridge       BridgeConfig       `mapstructure:"bridge"`
	History      HistoryConfig      `mapstructure:"history"`
	WhatsApp     WhatsAppConfig     `mapstructure:"whatsapp"`
	Web          WebConfig          `mapstructure:"web"`
	Weather      WeatherConfig      `mapstructure:"weather"`
	News         NewsConfig         `mapstructure:"news"`
	Privacy      PrivacyConfig      `mapstructure:"privacy"`
}

type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

// AudioConfig selects the microphone and speaker backends. "mock" runs
// without sound hardware.
type AudioConfig struct {
	Input      string        `mapstructure:"input"`
	Output     string        `mapstructure:"output"`
	SampleRate int           `mapstructure:"sample_rate"`
	Frame      time.Duration `mapstructure:"frame"`
}

type ConversationConfig struct {
	AutoSleepDelay time.Duration `mapstructure:"auto_sleep_delay"`
}

type SpeechVendors struct {
	TTS         VendorConfig `mapstructure:"tts"`
	TTSFallback VendorConfig `mapstructure:"tts_fallback"`
}

type SpeechConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Vendors      SpeechVendors `mapstructure:"vendors"`
}

type ListenerVendors struct {
	STT VendorConfig `mapstructure:"stt"`
}

type ListenerConfig struct {
	Language        string          `mapstructure:"language"`
	EnergyThreshold float64         `mapstructure:"energy_threshold"`
	Pause           time.Duration   `mapstructure:"pause"`
	Vendors         ListenerVendors `mapstructure:"vendors"`
}

type WakeWordVendors struct {
	Spotter VendorConfig `mapstructure:"spotter"`
	WakeSTT VendorConfig `mapstructure:"wake_stt"`
}

type WakeWordConfig struct {
	Cooldown      time.Duration   `mapstructure:"cooldown"`
	SendTimeout   time.Duration   `mapstructure:"send_timeout"`
	Backoff       time.Duration   `mapstructure:"backoff"`
	ListenTimeout time.Duration   `mapstructure:"listen_timeout"`
	PhraseLimit   time.Duration   `mapstructure:"phrase_limit"`
	Triggers      []string        `mapstructure:"triggers"`
	Sensitivity   float64         `mapstructure:"sensitivity"`
	Vendors       WakeWordVendors `mapstructure:"vendors"`
}

type ExecutorConfig struct {
	Workers int `mapstructure:"workers"`
	Backlog int `mapstructure:"backlog"`
}

type WatchdogConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	Interval time.Duration `mapstructure:"interval"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Backoff     time.Duration `mapstructure:"backoff"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff"`
}

type ServicesConfig struct {
	Timeout          time.Duration     `mapstructure:"timeout"`
	Retry            RetryConfig       `mapstructure:"retry"`
	BreakerThreshold int               `mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration     `mapstructure:"breaker_cooldown"`
	SingleAttempt    []string          `mapstructure:"single_attempt"`
	Endpoints        map[string]string `mapstructure:"endpoints"`
}

type UploadsConfig struct {
	Dir       string `mapstructure:"dir"`
	OutputDir string `mapstructure:"output_dir"`
}

type BridgeConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Addr           string   `mapstructure:"addr"`
	CommandBuffer  int      `mapstructure:"command_buffer"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type HistoryConfig struct {
	Path string `mapstructure:"path"`
}

type WhatsAppConfig struct {
	AccountSID string            `mapstructure:"account_sid"`
	AuthToken  string            `mapstructure:"auth_token"`
	FromNumber string            `mapstructure:"from_number"`
	CallURL    string            `mapstructure:"call_url"`
	Contacts   map[string]string `mapstructure:"contacts"`
}

type WebConfig struct {
	Sites     map[string]string `mapstructure:"sites"`
	Apps      map[string]string `mapstructure:"apps"`
	SearchURL string            `mapstructure:"search_url"`
	PlayURL   string            `mapstructure:"play_url"`
}

type NewsConfig struct {
	URL      string `mapstructure:"url"`
	APIKey   string `mapstructure:"api_key"`
	PageSize int    `mapstructure:"page_size"`
}

type WeatherConfig struct {
	URL         string `mapstructure:"url"`
	DefaultCity string `mapstructure:"default_city"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

// LoadConfig reads path over the built-in defaults. An empty path yields the
// defaults alone.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("audio.input", "portaudio")
	v.SetDefault("audio.output", "speaker")
	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("audio.frame", 20*time.Millisecond)
	v.SetDefault("conversation.auto_sleep_delay", 5*time.Second)
	v.SetDefault("speech.poll_interval", 2*time.Second)
	v.SetDefault("speech.vendors.tts.provider", "elevenlabs")
	v.SetDefault("speech.vendors.tts_fallback.provider", "espeak")
	v.SetDefault("listener.language", "en-IN")
	v.SetDefault("listener.energy_threshold", 0.015)
	v.SetDefault("listener.pause", 2*time.Second)
	v.SetDefault("listener.vendors.stt.provider", "deepgram")
	v.SetDefault("wakeword.cooldown", 2*time.Second)
	v.SetDefault("wakeword.send_timeout", 200*time.Millisecond)
	v.SetDefault("wakeword.backoff", time.Second)
	v.SetDefault("wakeword.listen_timeout", time.Second)
	v.SetDefault("wakeword.phrase_limit", 3*time.Second)
	v.SetDefault("wakeword.triggers", []string{"hello mirage", "hey mirage", "hi mirage", "mirage", "jarvis"})
	v.SetDefault("wakeword.sensitivity", 0.5)
	v.SetDefault("wakeword.vendors.spotter.provider", "whispercpp")
	v.SetDefault("wakeword.vendors.wake_stt.provider", "openai")
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("executor.workers", 3)
	v.SetDefault("executor.backlog", 8)
	v.SetDefault("watchdog.timeout", 30*time.Second)
	v.SetDefault("watchdog.interval", 5*time.Second)
	v.SetDefault("services.timeout", 10*time.Second)
	v.SetDefault("services.retry.max_attempts", 3)
	v.SetDefault("services.retry.backoff", 200*time.Millisecond)
	v.SetDefault("services.retry.max_backoff", 2*time.Second)
	v.SetDefault("services.breaker_threshold", 5)
	v.SetDefault("services.breaker_cooldown", 30*time.Second)
	v.SetDefault("services.single_attempt", svcclient.DefaultSingleAttempt)
	v.SetDefault("uploads.dir", "uploads")
	v.SetDefault("uploads.output_dir", "outputs")
	v.SetDefault("bridge.enabled", true)
	v.SetDefault("bridge.addr", "127.0.0.1:8765")
	v.SetDefault("bridge.command_buffer", 8)
	v.SetDefault("history.path", "jarvis.db")
	v.SetDefault("web.search_url", "https://www.google.com/search?q=")
	v.SetDefault("web.play_url", "https://www.youtube.com/results?search_query=")
	v.SetDefault("weather.url", "https://wttr.in/{city}?format=j1")
	v.SetDefault("news.url", "https://newsapi.org/v2/top-headlines?country=us&apiKey={api_key}")
	v.SetDefault("news.api_key", "${NEWSAPI_KEY}")
	v.SetDefault("news.page_size", 3)
	v.SetDefault("privacy.redact_pii", true)
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Speech.Vendors.TTS.Provider) == "" {
		return fmt.Errorf("speech.vendors.tts.provider is required")
	}
	if strings.TrimSpace(c.Listener.Vendors.STT.Provider) == "" {
		return fmt.Errorf("listener.vendors.stt.provider is required")
	}
	if c.Executor.Workers <= 0 {
		return fmt.Errorf("executor.workers must be positive, got %d", c.Executor.Workers)
	}
	if c.Executor.Backlog < 0 {
		return fmt.Errorf("executor.backlog must not be negative, got %d", c.Executor.Backlog)
	}
	if c.Conversation.AutoSleepDelay <= 0 {
		return fmt.Errorf("conversation.auto_sleep_delay must be positive")
	}
	if c.WakeWord.Sensitivity < 0 || c.WakeWord.Sensitivity > 1 {
		return fmt.Errorf("wakeword.sensitivity must be between 0 and 1, got %v", c.WakeWord.Sensitivity)
	}
	if c.Watchdog.Timeout <= c.Watchdog.Interval {
		return fmt.Errorf("watchdog.timeout must exceed watchdog.interval")
	}
	if c.Bridge.Enabled && strings.TrimSpace(c.Bridge.Addr) == "" {
		return fmt.Errorf("bridge.addr is required when the bridge is enabled")
	}
	switch c.Audio.Input {
	case "portaudio", "mock":
	default:
		return fmt.Errorf("audio.input must be one of [portaudio, mock], got %s", c.Audio.Input)
	}
	switch c.Audio.Output {
	case "speaker", "mock":
	default:
		return fmt.Errorf("audio.output must be one of [speaker, mock], got %s", c.Audio.Output)
	}
	return nil
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	for _, vc := range []*VendorConfig{
		&cfg.Speech.Vendors.TTS,
		&cfg.Speech.Vendors.TTSFallback,
		&cfg.Listener.Vendors.STT,
		&cfg.WakeWord.Vendors.Spotter,
		&cfg.WakeWord.Vendors.WakeSTT,
		&cfg.LLM,
	} {
		vc.Settings = expandSettings(vc.Settings)
	}
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = expandAny(v)
		}
		return out
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	case reflect.Map:
		if v.Type().Key().Kind() == reflect.String && v.Type().Elem().Kind() == reflect.String {
			for _, key := range v.MapKeys() {
				val := v.MapIndex(key)
				v.SetMapIndex(key, reflect.ValueOf(os.ExpandEnv(val.String())))
			}
		}
	}
}
