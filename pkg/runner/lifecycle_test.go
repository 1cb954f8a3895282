package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeDrainer struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (d *fakeDrainer) Drain() error {
	d.calls.Add(1)
	time.Sleep(d.delay)
	return d.err
}

func init() { BannerOutput = nil }

func TestRunDrainsWhenContextEnds(t *testing.T) {
	drainer := &fakeDrainer{}
	var started, stopped atomic.Bool
	r := NewLifecycleRunner(drainer, Hooks{
		OnStart: func(context.Context) error { started.Store(true); return nil },
		OnStop:  func() { stopped.Store(true) },
	}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for r.State() != StateRunning {
		if time.Now().After(deadline) {
			t.Fatalf("runner never reached running, state %s", r.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not return")
	}
	if !started.Load() || !stopped.Load() {
		t.Fatalf("hooks not called: started=%v stopped=%v", started.Load(), stopped.Load())
	}
	if drainer.calls.Load() != 1 {
		t.Fatalf("drain calls = %d", drainer.calls.Load())
	}
	if r.State() != StateStopped {
		t.Fatalf("state = %s", r.State())
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if drainer.calls.Load() != 1 {
		t.Fatalf("drained twice")
	}
}

func TestRunStartFailureDrains(t *testing.T) {
	drainer := &fakeDrainer{}
	boom := errors.New("bind failed")
	r := NewLifecycleRunner(drainer, Hooks{
		OnStart: func(context.Context) error { return boom },
	}, time.Second)

	err := r.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if drainer.calls.Load() != 1 || r.State() != StateStopped {
		t.Fatalf("drain calls = %d, state = %s", drainer.calls.Load(), r.State())
	}
}

func TestStopReportsDrainTimeout(t *testing.T) {
	r := NewLifecycleRunner(&fakeDrainer{delay: 200 * time.Millisecond}, Hooks{}, 20*time.Millisecond)
	if err := r.Stop(); !errors.Is(err, ErrDrainTimeout) {
		t.Fatalf("err = %v", err)
	}
}

func TestRunTwiceIsRejected(t *testing.T) {
	r := NewLifecycleRunner(nil, Hooks{}, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := r.Run(context.Background()); err == nil {
		t.Fatalf("expected second run to fail")
	}
}
