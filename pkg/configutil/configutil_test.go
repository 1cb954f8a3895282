package configutil

import (
	"errors"
	"testing"
	"time"
)

type sampleSettings struct {
	APIKey     string        `mapstructure:"api_key"`
	SampleRate int           `mapstructure:"sample_rate"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Window     time.Duration `mapstructure:"window_ms"`
	Keywords   []string      `mapstructure:"keywords"`
	Interim    *bool         `mapstructure:"interim"`
}

func TestDecodeSettingsNormalizesKeysAndTypes(t *testing.T) {
	var out sampleSettings
	err := DecodeSettings(map[string]any{
		"API-Key":    "k",
		"sampleRate": "16000",
		"timeout":    "750ms",
		"window_ms":  1500,
		"keywords":   "jarvis,hey jarvis",
		"interim":    "false",
	}, &out)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.APIKey != "k" || out.SampleRate != 16000 {
		t.Fatalf("unexpected decode result %+v", out)
	}
	if out.Timeout != 750*time.Millisecond {
		t.Fatalf("expected 750ms, got %s", out.Timeout)
	}
	if out.Window != 1500*time.Millisecond {
		t.Fatalf("expected bare int as millis, got %s", out.Window)
	}
	if len(out.Keywords) != 2 || out.Keywords[1] != "hey jarvis" {
		t.Fatalf("unexpected keywords %v", out.Keywords)
	}
	if BoolValue(out.Interim, true) {
		t.Fatalf("expected interim false")
	}
}

func TestValidateVendorNamesTheVendor(t *testing.T) {
	err := ValidateVendor("elevenlabs", map[string]any{
		"Voice-ID": "",
		"colour":   "blue",
		"model_id": "eleven_turbo_v2",
	}, Schema{Required: []string{"api_key", "voice_id"}, Optional: []string{"model_id"}})
	var settingsErr *SettingsError
	if !errors.As(err, &settingsErr) {
		t.Fatalf("expected *SettingsError, got %v", err)
	}
	if settingsErr.Vendor != "elevenlabs" {
		t.Fatalf("vendor = %q", settingsErr.Vendor)
	}
	want := "elevenlabs settings: missing api_key, voice_id; unknown colour"
	if err.Error() != want {
		t.Fatalf("error = %q, want %q", err.Error(), want)
	}
}

func TestValidateVendorAcceptsValidSettings(t *testing.T) {
	err := ValidateVendor("deepgram", map[string]any{"API_KEY": "k", "extra": 1},
		Schema{Required: []string{"api_key"}, AllowUnknown: true})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestFallbackHelpers(t *testing.T) {
	zero := 0
	if IntValue(&zero, 3) != 3 {
		t.Fatalf("expected fallback for non-positive int")
	}
	if StringValue("  ", "en-IN") != "en-IN" {
		t.Fatalf("expected fallback for blank string")
	}
	if DurationValue(0, time.Second) != time.Second {
		t.Fatalf("expected fallback duration")
	}
}
