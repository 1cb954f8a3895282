package conversation

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStates = []State{StateAsleep, StateAwakeIdle, StateListening, StateMCQ, StateExecuting}

var allEvents = []Event{
	EventActivation, EventListenStart, EventUtterance, EventListenTimeout, EventTextCommand,
	EventSkillDone, EventAutoSleep, EventSleepCommand, EventMCQEnter, EventMCQExit,
}

type captureListener struct {
	mu      sync.Mutex
	changes []StateChange
}

func (c *captureListener) OnStateChange(change StateChange) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changes = append(c.changes, change)
}

func (c *captureListener) last() (StateChange, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.changes) == 0 {
		return StateChange{}, false
	}
	return c.changes[len(c.changes)-1], true
}

func TestNextIsTotal(t *testing.T) {
	for _, s := range allStates {
		for _, e := range allEvents {
			to, ok := Next(s, e)
			assert.Contains(t, allStates, to, "%s on %s", s, e)
			if !ok {
				assert.Equal(t, s, to, "ignored pair %s on %s must not move", s, e)
			}
		}
	}
}

func TestNextCoreTransitions(t *testing.T) {
	cases := []struct {
		from State
		ev   Event
		to   State
	}{
		{StateAsleep, EventActivation, StateAwakeIdle},
		{StateAwakeIdle, EventListenStart, StateListening},
		{StateListening, EventUtterance, StateExecuting},
		{StateListening, EventListenTimeout, StateAwakeIdle},
		{StateExecuting, EventSkillDone, StateAwakeIdle},
		{StateAwakeIdle, EventAutoSleep, StateAsleep},
		{StateAwakeIdle, EventMCQEnter, StateMCQ},
		{StateListening, EventMCQEnter, StateMCQ},
		{StateMCQ, EventUtterance, StateMCQ},
		{StateMCQ, EventMCQExit, StateAwakeIdle},
		{StateExecuting, EventActivation, StateAwakeIdle},
	}
	for _, tc := range cases {
		t.Run(tc.from.String()+"_"+tc.ev.String(), func(t *testing.T) {
			to, ok := Next(tc.from, tc.ev)
			assert.True(t, ok)
			assert.Equal(t, tc.to, to)
		})
	}
	for _, s := range allStates {
		to, ok := Next(s, EventSleepCommand)
		assert.True(t, ok)
		assert.Equal(t, StateAsleep, to)
	}
}

func TestMachineIgnoredEventReturnsError(t *testing.T) {
	m := New(Options{AutoSleepDelay: time.Hour})
	state, err := m.Fire(EventUtterance, "stray")
	var invalid *InvalidTransitionError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, StateAsleep, state)
	assert.Equal(t, EventUtterance, invalid.Event)
}

func TestMachineCommandCycleArmsAutoSleep(t *testing.T) {
	m := New(Options{AutoSleepDelay: 40 * time.Millisecond})
	listener := &captureListener{}
	m.AddListener(listener)

	_, err := m.Fire(EventActivation, "wake word")
	require.NoError(t, err)
	assert.False(t, m.TimerArmed(), "activation must not arm the timer")

	_, err = m.Fire(EventListenStart, "mic open")
	require.NoError(t, err)
	_, err = m.Fire(EventUtterance, "schedule a meeting")
	require.NoError(t, err)
	assert.Equal(t, StateExecuting, m.State())
	assert.Equal(t, 1, m.InFlight())

	state, err := m.Fire(EventSkillDone, "done")
	require.NoError(t, err)
	assert.Equal(t, StateAwakeIdle, state)
	assert.True(t, m.TimerArmed())

	require.Eventually(t, func() bool { return m.State() == StateAsleep }, time.Second, 5*time.Millisecond)
	last, ok := listener.last()
	require.True(t, ok)
	assert.Equal(t, EventAutoSleep, last.Event)
	assert.Equal(t, StateAwakeIdle, last.From)
}

func TestMachineRearmCancelsStaleTimer(t *testing.T) {
	m := New(Options{AutoSleepDelay: 60 * time.Millisecond})
	_, _ = m.Fire(EventTextCommand, "first")
	_, _ = m.Fire(EventSkillDone, "first done")
	require.True(t, m.TimerArmed())

	time.Sleep(40 * time.Millisecond)
	_, _ = m.Fire(EventTextCommand, "second")
	assert.False(t, m.TimerArmed(), "a new command cancels the timer")

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, StateExecuting, m.State(), "stale timer must not fire")

	_, _ = m.Fire(EventSkillDone, "second done")
	require.Eventually(t, func() bool { return m.IsAsleep() }, time.Second, 5*time.Millisecond)
}

func TestMachineSkillPanicStillReturnsToIdle(t *testing.T) {
	m := New(Options{AutoSleepDelay: time.Hour})
	_, _ = m.Fire(EventTextCommand, "boom")

	func() {
		defer func() { _ = recover() }()
		defer m.Fire(EventSkillDone, "skill finished")
		panic("skill exploded")
	}()

	assert.Equal(t, StateAwakeIdle, m.State())
	assert.Equal(t, 0, m.InFlight())
}

func TestMachineWaitsForAllInFlightSkills(t *testing.T) {
	m := New(Options{AutoSleepDelay: time.Hour})
	_, _ = m.Fire(EventTextCommand, "one")
	_, _ = m.Fire(EventTextCommand, "two")
	assert.Equal(t, 2, m.InFlight())

	_, _ = m.Fire(EventSkillDone, "one done")
	assert.Equal(t, StateExecuting, m.State())
	_, _ = m.Fire(EventSkillDone, "two done")
	assert.Equal(t, StateAwakeIdle, m.State())
}

func TestMachineActivationWhileExecuting(t *testing.T) {
	m := New(Options{AutoSleepDelay: time.Hour})
	_, _ = m.Fire(EventTextCommand, "long skill")
	_, err := m.Fire(EventActivation, "wake word")
	require.NoError(t, err)
	assert.Equal(t, StateAwakeIdle, m.State())

	_, _ = m.Fire(EventListenStart, "mic")
	_, _ = m.Fire(EventSkillDone, "long skill done")
	assert.Equal(t, StateListening, m.State(), "skill completion must not disturb capture")

	_, _ = m.Fire(EventListenTimeout, "nothing heard")
	assert.Equal(t, StateAwakeIdle, m.State())
	assert.True(t, m.TimerArmed())
}

func TestMachineForceSleepCancelsTimer(t *testing.T) {
	m := New(Options{AutoSleepDelay: time.Hour})
	_, _ = m.Fire(EventTextCommand, "cmd")
	_, _ = m.Fire(EventSkillDone, "done")
	require.True(t, m.TimerArmed())

	m.ForceSleep("sleep")
	assert.Equal(t, StateAsleep, m.State())
	assert.False(t, m.TimerArmed())
}

func TestMachineMCQSession(t *testing.T) {
	m := New(Options{AutoSleepDelay: time.Hour})
	_, _ = m.Fire(EventActivation, "wake")
	_, _ = m.Fire(EventListenStart, "mic")
	_, err := m.Fire(EventMCQEnter, "answer a multiple choice question")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, _ = m.Fire(EventListenStart, "question")
		_, err = m.Fire(EventUtterance, "question")
		require.NoError(t, err)
		assert.Equal(t, StateMCQ, m.State())
	}
	assert.Equal(t, 0, m.InFlight())

	_, err = m.Fire(EventMCQExit, "end answer")
	require.NoError(t, err)
	assert.Equal(t, StateAwakeIdle, m.State())
}

func TestListenerPanicDoesNotBreakMachine(t *testing.T) {
	m := New(Options{AutoSleepDelay: time.Hour})
	m.AddListener(ListenerFunc(func(StateChange) { panic("bad listener") }))
	_, err := m.Fire(EventActivation, "wake")
	require.NoError(t, err)
	assert.Equal(t, StateAwakeIdle, m.State())
}
