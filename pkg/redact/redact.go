package redact

import (
	"regexp"
	"strings"
	"sync/atomic"
)

var enabled atomic.Bool

var (
	emailRe = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?\d[\d\s\-]{7,}\d`)
)

// SetEnabled toggles redaction of transcripts, contact numbers and file names.
func SetEnabled(v bool) {
	enabled.Store(v)
}

func Enabled() bool {
	return enabled.Load()
}

// Text masks emails and phone numbers in a transcript when enabled.
func Text(in string) string {
	if !enabled.Load() || strings.TrimSpace(in) == "" {
		return in
	}
	out := emailRe.ReplaceAllString(in, "[email]")
	out = phoneRe.ReplaceAllStringFunc(out, maskDigits)
	return out
}

// maskDigits keeps the last four digits so operators can still tell
// contacts apart in logs.
func maskDigits(in string) string {
	digits := make([]byte, 0, len(in))
	for i := 0; i < len(in); i++ {
		if in[i] >= '0' && in[i] <= '9' {
			digits = append(digits, in[i])
		}
	}
	if len(digits) <= 4 {
		return "[phone]"
	}
	return "[phone:" + string(digits[len(digits)-4:]) + "]"
}
