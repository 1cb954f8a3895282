package jarvis

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harunnryd/jarvis/pkg/configutil"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Conversation.AutoSleepDelay != 5*time.Second {
		t.Fatalf("auto sleep delay = %v", cfg.Conversation.AutoSleepDelay)
	}
	if cfg.Executor.Workers != 3 || cfg.Executor.Backlog != 8 {
		t.Fatalf("executor = %+v", cfg.Executor)
	}
	if cfg.WakeWord.Cooldown != 2*time.Second || cfg.WakeWord.SendTimeout != 200*time.Millisecond {
		t.Fatalf("wakeword = %+v", cfg.WakeWord)
	}
	if len(cfg.WakeWord.Triggers) != 5 || cfg.WakeWord.Triggers[4] != "jarvis" {
		t.Fatalf("triggers = %v", cfg.WakeWord.Triggers)
	}
	if cfg.Listener.Language != "en-IN" || cfg.Listener.EnergyThreshold != 0.015 {
		t.Fatalf("listener = %+v", cfg.Listener)
	}
	if cfg.Speech.Vendors.TTS.Provider != "elevenlabs" || cfg.Speech.Vendors.TTSFallback.Provider != "espeak" {
		t.Fatalf("speech vendors = %+v", cfg.Speech.Vendors)
	}
	if cfg.Services.Timeout != 10*time.Second || cfg.Services.Retry.MaxAttempts != 3 || len(cfg.Services.SingleAttempt) != 4 {
		t.Fatalf("services = %+v", cfg.Services)
	}
	if cfg.News.PageSize != 3 || cfg.Web.PlayURL == "" {
		t.Fatalf("news/web = %+v %+v", cfg.News, cfg.Web)
	}
	if cfg.Bridge.Addr != "127.0.0.1:8765" || !cfg.Privacy.RedactPII {
		t.Fatalf("bridge/privacy = %+v %+v", cfg.Bridge, cfg.Privacy)
	}
}

func TestLoadConfigOverridesAndExpandsEnv(t *testing.T) {
	t.Setenv("JARVIS_TEST_DG_KEY", "dg-secret")
	t.Setenv("JARVIS_TEST_MOM", "+15550001111")
	path := writeConfig(t, `
conversation:
  auto_sleep_delay: 12s
executor:
  workers: 5
  backlog: 2
listener:
  vendors:
    stt:
      provider: deepgram
      settings:
        api_key: ${JARVIS_TEST_DG_KEY}
        model: nova-2
services:
  endpoints:
    summarize: http://127.0.0.1:5003/summarize
whatsapp:
  contacts:
    mom: ${JARVIS_TEST_MOM}
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Conversation.AutoSleepDelay != 12*time.Second {
		t.Fatalf("auto sleep delay = %v", cfg.Conversation.AutoSleepDelay)
	}
	if cfg.Executor.Workers != 5 || cfg.Executor.Backlog != 2 {
		t.Fatalf("executor = %+v", cfg.Executor)
	}
	if got := cfg.Listener.Vendors.STT.Settings["api_key"]; got != "dg-secret" {
		t.Fatalf("api_key = %v", got)
	}
	if got := cfg.WhatsApp.Contacts["mom"]; got != "+15550001111" {
		t.Fatalf("contact = %v", got)
	}
	if got := cfg.Services.Endpoints["summarize"]; got != "http://127.0.0.1:5003/summarize" {
		t.Fatalf("endpoint = %v", got)
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"zero workers", "executor:\n  workers: 0\n"},
		{"sensitivity", "wakeword:\n  sensitivity: 1.5\n"},
		{"watchdog", "watchdog:\n  timeout: 1s\n  interval: 5s\n"},
		{"audio input", "audio:\n  input: alsa\n"},
		{"missing tts", "speech:\n  vendors:\n    tts:\n      provider: \"\"\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tc.body)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected read error")
	}
}

func TestProviderSettingsErrorsNameTheVendor(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	_, err = DefaultProviders().BuildSynthesizer(VendorConfig{
		Provider: "elevenlabs",
		Settings: map[string]any{"voice_id": "abc", "pitch": 2},
	}, cfg)
	var settingsErr *configutil.SettingsError
	if !errors.As(err, &settingsErr) {
		t.Fatalf("expected settings error, got %v", err)
	}
	if settingsErr.Vendor != "elevenlabs" || len(settingsErr.Missing) != 1 || settingsErr.Missing[0] != "api_key" {
		t.Fatalf("settings error = %+v", settingsErr)
	}
}
