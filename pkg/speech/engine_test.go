package speech

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harunnryd/jarvis/pkg/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSynth struct {
	name string
	fail func(text string) bool
}

func (f *fakeSynth) Name() string { return f.name }

func (f *fakeSynth) Synthesize(_ context.Context, text string) (audio.Clip, error) {
	if f.fail != nil && f.fail(text) {
		return audio.Clip{}, errors.New(f.name + " down")
	}
	return audio.Clip{Data: []byte(f.name + ":" + text), Format: audio.FormatWAV}, nil
}

type recordingPlayer struct {
	mu       sync.Mutex
	played   []string
	active   atomic.Int32
	overlaps atomic.Int32
	delay    time.Duration
	panicOn  string
}

func (p *recordingPlayer) Play(_ context.Context, clip audio.Clip) error {
	if p.active.Add(1) > 1 {
		p.overlaps.Add(1)
	}
	defer p.active.Add(-1)
	if string(clip.Data) == p.panicOn {
		panic("driver exploded")
	}
	time.Sleep(p.delay)
	p.mu.Lock()
	p.played = append(p.played, string(clip.Data))
	p.mu.Unlock()
	return nil
}

func (p *recordingPlayer) PlayTone(context.Context, audio.Tone) error {
	p.mu.Lock()
	p.played = append(p.played, "tone")
	p.mu.Unlock()
	return nil
}

func (p *recordingPlayer) snapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) add(ev string) {
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.mu.Unlock()
}

func (n *recordingNotifier) Display(text string)       { n.add("display:" + text) }
func (n *recordingNotifier) SpeechStarted(text string) { n.add("start:" + text) }
func (n *recordingNotifier) SpeechEnded(text string)   { n.add("end:" + text) }

func (n *recordingNotifier) snapshot() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

func newTestEngine(t *testing.T, player *recordingPlayer, opts Options) *Engine {
	t.Helper()
	if opts.Primary == nil {
		opts.Primary = &fakeSynth{name: "p"}
	}
	opts.Player = player
	opts.PollInterval = 10 * time.Millisecond
	e := New(opts)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func waitIdle(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, e.WaitIdle(ctx))
}

func TestEngineFIFOOrderMixedBlocking(t *testing.T) {
	player := &recordingPlayer{delay: 2 * time.Millisecond}
	e := newTestEngine(t, player, Options{})

	want := []string{}
	for i, text := range []string{"one", "two", "three", "four", "five", "six"} {
		block := i%3 == 2
		require.NoError(t, e.Enqueue(text, block))
		want = append(want, "p:"+text)
	}
	waitIdle(t, e)

	assert.Equal(t, want, player.snapshot())
	assert.Zero(t, player.overlaps.Load(), "two playbacks overlapped")
}

func TestEngineNoConcurrentPlaybackFromManyCallers(t *testing.T) {
	player := &recordingPlayer{delay: time.Millisecond}
	e := newTestEngine(t, player, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.Enqueue("hello", i%2 == 0)
		}()
	}
	wg.Wait()
	waitIdle(t, e)

	assert.Len(t, player.snapshot(), 20)
	assert.Zero(t, player.overlaps.Load())
}

func TestEngineSpeakABNeverInterleaved(t *testing.T) {
	player := &recordingPlayer{delay: 5 * time.Millisecond}
	e := newTestEngine(t, player, Options{})

	e.Speak("A")
	e.Speak("B")
	waitIdle(t, e)

	assert.Equal(t, []string{"p:A", "p:B"}, player.snapshot())
}

func TestEngineBlockingWaitsForPlayback(t *testing.T) {
	player := &recordingPlayer{delay: 20 * time.Millisecond}
	e := newTestEngine(t, player, Options{})

	require.NoError(t, e.Enqueue("wait for me", true))
	assert.Equal(t, []string{"p:wait for me"}, player.snapshot())
}

func TestEngineFallsBackWhenPrimaryFails(t *testing.T) {
	player := &recordingPlayer{}
	e := newTestEngine(t, player, Options{
		Primary:  &fakeSynth{name: "p", fail: func(string) bool { return true }},
		Fallback: &fakeSynth{name: "f"},
	})

	require.NoError(t, e.Enqueue("offline", true))
	assert.Equal(t, []string{"f:offline"}, player.snapshot())
}

func TestEngineSkipsFailedRequestAndContinues(t *testing.T) {
	player := &recordingPlayer{}
	failing := func(text string) bool { return text == "bad" }
	e := newTestEngine(t, player, Options{
		Primary:  &fakeSynth{name: "p", fail: failing},
		Fallback: &fakeSynth{name: "f", fail: failing},
	})

	err := e.Enqueue("bad", true)
	require.Error(t, err)
	require.NoError(t, e.Enqueue("good", true))
	assert.Equal(t, []string{"p:good"}, player.snapshot())
}

func TestEngineRecoversPlaybackPanic(t *testing.T) {
	player := &recordingPlayer{panicOn: "p:boom"}
	e := newTestEngine(t, player, Options{})

	require.Error(t, e.Enqueue("boom", true))
	require.NoError(t, e.Enqueue("after", true))
	assert.Equal(t, []string{"p:after"}, player.snapshot())
}

func TestEngineNotifierOrderAndPanicSafety(t *testing.T) {
	player := &recordingPlayer{}
	notifier := &recordingNotifier{}
	e := newTestEngine(t, player, Options{Notifier: notifier})

	require.NoError(t, e.Enqueue("hi", true))
	assert.Equal(t, []string{"display:hi", "start:hi", "end:hi"}, notifier.snapshot())

	panicky := newTestEngine(t, &recordingPlayer{}, Options{Notifier: panicNotifier{}})
	require.NoError(t, panicky.Enqueue("still spoken", true))
}

type panicNotifier struct{}

func (panicNotifier) Display(string)       { panic("ui gone") }
func (panicNotifier) SpeechStarted(string) { panic("ui gone") }
func (panicNotifier) SpeechEnded(string)   { panic("ui gone") }

func TestEngineEmptyTextIsNoop(t *testing.T) {
	player := &recordingPlayer{}
	e := newTestEngine(t, player, Options{})

	require.NoError(t, e.Enqueue("   ", true))
	assert.False(t, e.Busy())
	assert.Empty(t, player.snapshot())
}

func TestEngineTonesShareTheQueue(t *testing.T) {
	player := &recordingPlayer{delay: 2 * time.Millisecond}
	e := newTestEngine(t, player, Options{})

	e.Speak("before")
	require.NoError(t, e.PlayTone(context.Background(), audio.CompletionTone, false))
	e.Speak("after")
	waitIdle(t, e)

	assert.Equal(t, []string{"p:before", "tone", "p:after"}, player.snapshot())
}

func TestEngineHeartbeatTouchedWhileIdle(t *testing.T) {
	var beats atomic.Int32
	e := newTestEngine(t, &recordingPlayer{}, Options{Heartbeat: func() { beats.Add(1) }})
	_ = e

	assert.Eventually(t, func() bool { return beats.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestEngineCloseReleasesWaiters(t *testing.T) {
	release := make(chan struct{})
	player := &blockingPlayer{release: release}
	e := New(Options{Primary: &fakeSynth{name: "p"}, Player: player, PollInterval: 10 * time.Millisecond})

	e.Speak("first")
	require.Eventually(t, func() bool { return player.started.Load() }, time.Second, time.Millisecond)

	errCh := make(chan error, 1)
	go func() { errCh <- e.Enqueue("queued", true) }()
	require.Eventually(t, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return len(e.queue) == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, e.Close())
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrStopped)
	case <-time.After(time.Second):
		t.Fatal("queued waiter was not released")
	}
	assert.ErrorIs(t, e.Enqueue("late", false), ErrStopped)
}

// blockingPlayer holds playback until ctx ends or release closes.
type blockingPlayer struct {
	release chan struct{}
	started atomic.Bool
}

func (b *blockingPlayer) Play(ctx context.Context, _ audio.Clip) error {
	b.started.Store(true)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.release:
		return nil
	}
}

func (b *blockingPlayer) PlayTone(context.Context, audio.Tone) error { return nil }
