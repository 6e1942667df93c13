package upload

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidTransition is returned when a state change would move the
// machine backwards or out of a terminal state.
var ErrInvalidTransition = errors.New("invalid upload state transition")

// State of a presigned upload.
type State int

const (
	Requesting State = iota
	Presigned
	Transferring
	Confirming
	Confirmed
	Failed
)

func (s State) String() string {
	switch s {
	case Requesting:
		return "requesting"
	case Presigned:
		return "presigned"
	case Transferring:
		return "transferring"
	case Confirming:
		return "confirming"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal ...
func (s State) Terminal() bool {
	return s == Confirmed || s == Failed
}

// CanTransition reports whether the machine may move from s to next. Only
// the next state in line or Failed are allowed.
func (s State) CanTransition(next State) bool {
	if s.Terminal() {
		return false
	}
	if next == Failed {
		return true
	}
	return next == s+1
}

// StateHook observes state changes. It is called outside any lock.
type StateHook func(from, to State)

type machine struct {
	mu    sync.Mutex
	state State
	hook  StateHook
}

func newMachine(hook StateHook) *machine {
	return &machine{state: Requesting, hook: hook}
}

func (m *machine) current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *machine) advance(next State) error {
	m.mu.Lock()
	from := m.state
	if !from.CanTransition(next) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, next)
	}
	m.state = next
	m.mu.Unlock()

	if m.hook != nil {
		m.hook(from, next)
	}
	return nil
}

// fail moves a non-terminal machine to Failed. It is a no-op otherwise.
func (m *machine) fail() {
	_ = m.advance(Failed)
}
