package wakeword

import (
	"context"
	"sync"
	"time"
)

// Gate hands the microphone between the detector and everyone else.
//
// Callers that need the device take a hold with Suspend, which returns once
// the detector has closed its handle. The detector will not reopen the device
// while any hold is outstanding. Holds are counted so nested users compose.
type Gate struct {
	mu      sync.Mutex
	holds   int
	open    bool
	changed chan struct{}
}

func NewGate() *Gate {
	return &Gate{changed: make(chan struct{})}
}

// Suspend takes a hold and waits until the detector's device is closed. On
// ctx cancellation the hold is given back.
func (g *Gate) Suspend(ctx context.Context) error {
	g.mu.Lock()
	g.holds++
	g.broadcastLocked()
	for g.open {
		ch := g.changed
		g.mu.Unlock()
		select {
		case <-ctx.Done():
			g.Resume()
			return ctx.Err()
		case <-ch:
		}
		g.mu.Lock()
	}
	g.mu.Unlock()
	return nil
}

// Resume gives back one hold.
func (g *Gate) Resume() {
	g.mu.Lock()
	if g.holds > 0 {
		g.holds--
	}
	g.broadcastLocked()
	g.mu.Unlock()
}

// Requested reports whether anyone holds the gate. The detector polls it
// between frames.
func (g *Gate) Requested() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.holds > 0
}

// Holds returns the outstanding hold count.
func (g *Gate) Holds() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.holds
}

// DeviceOpen reports whether the detector currently owns the device.
func (g *Gate) DeviceOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// acquire waits until no hold is outstanding and marks the device open.
// While it waits, beat runs every interval so the caller still looks alive.
func (g *Gate) acquire(ctx context.Context, every time.Duration, beat func()) error {
	var tick <-chan time.Time
	if beat != nil && every > 0 {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		tick = ticker.C
	}
	g.mu.Lock()
	for g.holds > 0 {
		ch := g.changed
		g.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		case <-tick:
			beat()
		}
		g.mu.Lock()
	}
	g.open = true
	g.broadcastLocked()
	g.mu.Unlock()
	return nil
}

// release marks the device closed.
func (g *Gate) release() {
	g.mu.Lock()
	g.open = false
	g.broadcastLocked()
	g.mu.Unlock()
}

// hold is the detector's own hold, taken before it hands an activation to the
// consumer. The consumer gives it back with Resume.
func (g *Gate) hold() {
	g.mu.Lock()
	g.holds++
	g.broadcastLocked()
	g.mu.Unlock()
}

func (g *Gate) broadcastLocked() {
	close(g.changed)
	g.changed = make(chan struct{})
}
