package conversation

import (
	"fmt"
	"time"
)

// State is the assistant's conversational mode.
type State int

const (
	StateAsleep State = iota
	StateAwakeIdle
	StateListening
	StateMCQ
	StateExecuting
)

func (s State) String() string {
	switch s {
	case StateAsleep:
		return "ASLEEP"
	case StateAwakeIdle:
		return "AWAKE_IDLE"
	case StateListening:
		return "LISTENING"
	case StateMCQ:
		return "MCQ_MODE"
	case StateExecuting:
		return "EXECUTING"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Event is a transition request posted to the Machine.
type Event int

const (
	EventActivation Event = iota
	EventListenStart
	EventUtterance
	EventListenTimeout
	EventTextCommand
	EventSkillDone
	EventAutoSleep
	EventSleepCommand
	EventMCQEnter
	EventMCQExit
)

func (e Event) String() string {
	switch e {
	case EventActivation:
		return "activation"
	case EventListenStart:
		return "listen_start"
	case EventUtterance:
		return "utterance"
	case EventListenTimeout:
		return "listen_timeout"
	case EventTextCommand:
		return "text_command"
	case EventSkillDone:
		return "skill_done"
	case EventAutoSleep:
		return "auto_sleep"
	case EventSleepCommand:
		return "sleep_command"
	case EventMCQEnter:
		return "mcq_enter"
	case EventMCQExit:
		return "mcq_exit"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

// Next is the transition function. It is total: every pair yields a state.
// The bool is false when the pair is ignored, in which case the returned
// state equals s.
func Next(s State, e Event) (State, bool) {
	if e == EventSleepCommand {
		return StateAsleep, true
	}
	switch s {
	case StateAsleep:
		switch e {
		case EventActivation:
			return StateAwakeIdle, true
		case EventTextCommand:
			return StateExecuting, true
		case EventMCQEnter:
			return StateMCQ, true
		}
	case StateAwakeIdle:
		switch e {
		case EventActivation:
			return StateAwakeIdle, true
		case EventListenStart:
			return StateListening, true
		case EventTextCommand:
			return StateExecuting, true
		case EventAutoSleep:
			return StateAsleep, true
		case EventMCQEnter:
			return StateMCQ, true
		}
	case StateListening:
		switch e {
		case EventUtterance:
			return StateExecuting, true
		case EventListenTimeout:
			return StateAwakeIdle, true
		case EventMCQEnter:
			return StateMCQ, true
		}
	case StateMCQ:
		switch e {
		case EventListenStart, EventUtterance, EventListenTimeout, EventTextCommand:
			return StateMCQ, true
		case EventMCQExit:
			return StateAwakeIdle, true
		}
	case StateExecuting:
		switch e {
		case EventActivation:
			return StateAwakeIdle, true
		case EventTextCommand:
			return StateExecuting, true
		case EventSkillDone:
			return StateAwakeIdle, true
		}
	}
	return s, false
}

// StateChange represents a state transition event.
type StateChange struct {
	From   State
	To     State
	Event  Event
	Reason string
	At     time.Time
}

// StateListener observes state changes.
type StateListener interface {
	OnStateChange(change StateChange)
}

// ListenerFunc adapts a function to StateListener.
type ListenerFunc func(change StateChange)

func (f ListenerFunc) OnStateChange(change StateChange) { f(change) }

// InvalidTransitionError reports an event the current state ignores.
type InvalidTransitionError struct {
	From  State
	To    State
	Event Event
}

func (e *InvalidTransitionError) Error() string {
	return "invalid state transition from " + e.From.String() + " on " + e.Event.String()
}
