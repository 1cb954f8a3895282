package conversation

import (
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/jarvis/pkg/logging"
	"github.com/harunnryd/jarvis/pkg/metrics"
)

// DefaultAutoSleepDelay is how long the assistant stays awake after the last
// command finishes.
const DefaultAutoSleepDelay = 5 * time.Second

type Options struct {
	AutoSleepDelay time.Duration
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
}

// Machine owns the conversation state. Other components post events; only
// the Machine writes the state, always under mu.
type Machine struct {
	mu        sync.Mutex
	state     State
	inFlight  int
	delay     time.Duration
	timer     *time.Timer
	gen       uint64
	listeners []StateListener

	logger  *slog.Logger
	metrics *metrics.Metrics
}

func New(opts Options) *Machine {
	if opts.AutoSleepDelay <= 0 {
		opts.AutoSleepDelay = DefaultAutoSleepDelay
	}
	return &Machine{
		state:   StateAsleep,
		delay:   opts.AutoSleepDelay,
		logger:  logging.NewComponentLogger(opts.Logger, "conversation"),
		metrics: opts.Metrics,
	}
}

// AddListener registers a listener for state change events.
func (m *Machine) AddListener(l StateListener) {
	if l == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) IsAsleep() bool { return m.State() == StateAsleep }

// InFlight reports how many dispatched skills have not finished yet.
func (m *Machine) InFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inFlight
}

// TimerArmed reports whether an auto-sleep timer is pending.
func (m *Machine) TimerArmed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timer != nil
}

// ForceSleep moves to ASLEEP from any state and cancels the timer.
func (m *Machine) ForceSleep(reason string) {
	_, _ = m.Fire(EventSleepCommand, reason)
}

// Fire applies ev. Ignored events return *InvalidTransitionError and leave
// the state unchanged. Listeners run after the lock is released.
func (m *Machine) Fire(ev Event, reason string) (State, error) {
	m.mu.Lock()
	change, err := m.applyLocked(ev, reason)
	state := m.state
	listeners := m.snapshotLocked(change)
	m.mu.Unlock()

	m.notify(listeners, change)
	return state, err
}

func (m *Machine) applyLocked(ev Event, reason string) (*StateChange, error) {
	from := m.state

	if ev == EventSkillDone {
		if m.inFlight > 0 {
			m.inFlight--
		}
		if from != StateExecuting || m.inFlight > 0 {
			// Another skill is still running, or a new activation already
			// took the machine out of EXECUTING.
			if from == StateAwakeIdle && m.inFlight == 0 && m.timer == nil {
				m.armLocked()
			}
			return nil, nil
		}
	}

	to, ok := Next(from, ev)
	if !ok {
		m.logger.Debug("conversation_event_ignored",
			"state", from.String(),
			"event", ev.String(),
			"reason", reason)
		return nil, &InvalidTransitionError{From: from, To: from, Event: ev}
	}

	switch ev {
	case EventTextCommand:
		if to == StateExecuting {
			m.inFlight++
		}
	case EventUtterance:
		if from == StateListening {
			m.inFlight++
		}
	}

	m.state = to
	m.cancelLocked()
	if to == StateAwakeIdle && ev != EventActivation && m.inFlight == 0 {
		m.armLocked()
	}

	if from == to {
		return nil, nil
	}
	m.metrics.Transition(from.String(), to.String())
	m.logger.Info("conversation_state_changed",
		"from", from.String(),
		"to", to.String(),
		"event", ev.String(),
		"reason", reason,
		"in_flight", m.inFlight)
	return &StateChange{From: from, To: to, Event: ev, Reason: reason, At: time.Now()}, nil
}

func (m *Machine) armLocked() {
	m.gen++
	gen := m.gen
	m.timer = time.AfterFunc(m.delay, func() { m.autoSleep(gen) })
}

func (m *Machine) cancelLocked() {
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// autoSleep runs on the timer goroutine. A timer that was canceled or
// re-armed after it started carries a stale generation and does nothing.
func (m *Machine) autoSleep(gen uint64) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	var change *StateChange
	if m.state == StateAwakeIdle {
		change, _ = m.applyLocked(EventAutoSleep, "auto sleep timer expired")
	}
	listeners := m.snapshotLocked(change)
	m.mu.Unlock()

	m.notify(listeners, change)
}

func (m *Machine) snapshotLocked(change *StateChange) []StateListener {
	if change == nil || len(m.listeners) == 0 {
		return nil
	}
	out := make([]StateListener, len(m.listeners))
	copy(out, m.listeners)
	return out
}

func (m *Machine) notify(listeners []StateListener, change *StateChange) {
	if change == nil {
		return
	}
	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("conversation_listener_panic", "panic", r)
				}
			}()
			l.OnStateChange(*change)
		}()
	}
}
