package wakeword

import (
	"strings"
	"sync"
	"time"
)

// Tier names the detection path that produced an activation.
type Tier string

const (
	TierPrimary  Tier = "primary"
	TierFallback Tier = "fallback"
)

// Activation is emitted once per accepted wake word.
type Activation struct {
	ID     string
	At     time.Time
	Tier   Tier
	Phrase string
}

// NewChannel returns the bounded activation channel. Sizes below one are
// raised to one.
func NewChannel(size int) chan Activation {
	if size < 1 {
		size = 1
	}
	return make(chan Activation, size)
}

// DefaultTriggers are the phrases the fallback tier listens for.
var DefaultTriggers = []string{"hello mirage", "hey mirage", "hi mirage", "mirage", "jarvis"}

// MatchTrigger reports the first trigger contained in text, ignoring case.
func MatchTrigger(text string, triggers []string) (string, bool) {
	text = strings.ToLower(text)
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	for _, t := range triggers {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && strings.Contains(text, t) {
			return t, true
		}
	}
	return "", false
}

// Cooldown accepts at most one detection per window.
type Cooldown struct {
	mu     sync.Mutex
	window time.Duration
	last   time.Time
	seen   bool
}

func NewCooldown(window time.Duration) *Cooldown {
	return &Cooldown{window: window}
}

// Allow records a detection at now and reports whether it falls outside the
// window of the last accepted one.
func (c *Cooldown) Allow(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen && now.Sub(c.last) < c.window {
		return false
	}
	c.last = now
	c.seen = true
	return true
}
