package api

import (
	"context"
	"sync"
)

// registry tracks the cancel funcs of in-flight calls by request id.
type registry struct {
	mu    sync.Mutex
	next  uint64
	calls map[string]map[uint64]context.CancelFunc
}

func newRegistry() *registry {
	return &registry{calls: map[string]map[uint64]context.CancelFunc{}}
}

func (r *registry) track(ctx context.Context, id string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	r.next++
	n := r.next
	if r.calls[id] == nil {
		r.calls[id] = map[uint64]context.CancelFunc{}
	}
	r.calls[id][n] = cancel
	r.mu.Unlock()

	return ctx, func() {
		r.mu.Lock()
		delete(r.calls[id], n)
		if len(r.calls[id]) == 0 {
			delete(r.calls, id)
		}
		r.mu.Unlock()
		cancel()
	}
}

func (r *registry) cancel(id string) int {
	r.mu.Lock()
	calls := r.calls[id]
	delete(r.calls, id)
	r.mu.Unlock()

	for _, cancel := range calls {
		cancel()
	}
	return len(calls)
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, calls := range r.calls {
		n += len(calls)
	}
	return n
}

// CancelRequests cancels every in-flight call tagged with id and returns how
// many were canceled. A canceled call resolves with a Failure envelope.
func (c *Client) CancelRequests(id string) int {
	n := c.inflight.cancel(id)
	if n > 0 {
		c.logger.Debugf("Canceled %d request(s) tagged %s", n, id)
	}
	return n
}

// InFlight returns the number of calls currently running.
func (c *Client) InFlight() int {
	return c.inflight.len()
}
