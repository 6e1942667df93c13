package testing

import "sync/atomic"

// Navigator counts login navigation signals.
type Navigator struct {
	calls atomic.Int32
}

// NavigateToLogin ...
func (n *Navigator) NavigateToLogin() {
	n.calls.Add(1)
}

// Calls returns how many signals were received.
func (n *Navigator) Calls() int {
	return int(n.calls.Load())
}
