package assistant

import (
	"errors"
	"fmt"
	"sync"
)

// State is the assistant's conversational state.
type State int

const (
	Idle State = iota
	Listening
	Processing
	Speaking
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Processing:
		return "processing"
	case Speaking:
		return "speaking"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Event drives a State transition.
type Event int

const (
	EvListen Event = iota
	EvStop
	EvTranscript
	EvCommand
	EvRespond
	EvDone
	EvFail
)

func (e Event) String() string {
	switch e {
	case EvListen:
		return "listen"
	case EvStop:
		return "stop"
	case EvTranscript:
		return "transcript"
	case EvCommand:
		return "command"
	case EvRespond:
		return "respond"
	case EvDone:
		return "done"
	case EvFail:
		return "fail"
	default:
		return "unknown"
	}
}

// ErrInvalidTransition is returned when an event is not allowed in the
// current state. It doubles as the cancellation guard: a transcript that
// arrives after listening stopped has nowhere to go.
var ErrInvalidTransition = errors.New("assistant: invalid transition")

var transitions = map[State]map[Event]State{
	Idle: {
		EvListen:  Listening,
		EvCommand: Processing,
	},
	Listening: {
		EvTranscript: Processing,
		EvStop:       Idle,
		EvFail:       Error,
	},
	Processing: {
		EvRespond: Speaking,
		EvFail:    Error,
	},
	Speaking: {
		EvDone: Idle,
	},
	Error: {
		EvListen:  Listening,
		EvCommand: Processing,
		EvStop:    Idle,
	},
}

// Machine is the transition table plus the current state.
type Machine struct {
	mu       sync.Mutex
	state    State
	onChange func(from, to State, ev Event)
}

// NewMachine creates a Machine in Idle. onChange, if set, runs after every
// transition with the lock released.
func NewMachine(onChange func(from, to State, ev Event)) *Machine {
	return &Machine{onChange: onChange}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Fire applies ev.
func (m *Machine) Fire(ev Event) (State, error) {
	m.mu.Lock()
	from := m.state
	to, ok := transitions[from][ev]
	if !ok {
		m.mu.Unlock()
		return from, fmt.Errorf("%w: %s in %s", ErrInvalidTransition, ev, from)
	}
	m.state = to
	m.mu.Unlock()

	if m.onChange != nil {
		m.onChange(from, to, ev)
	}
	return to, nil
}

// FireIf applies ev only while the machine is in want.
func (m *Machine) FireIf(want State, ev Event) bool {
	m.mu.Lock()
	to, ok := transitions[want][ev]
	if m.state != want || !ok {
		m.mu.Unlock()
		return false
	}
	m.state = to
	m.mu.Unlock()

	if m.onChange != nil {
		m.onChange(want, to, ev)
	}
	return true
}
