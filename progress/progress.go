// Package progress reports byte-level transfer progress of uploads.
package progress

import (
	"io"
	"math"
	"sync"
)

// Event is a single progress notification. Loaded and Percentage never
// decrease across the events of one transfer.
type Event struct {
	Loaded     int64 `json:"loaded"`
	Total      int64 `json:"total"`
	Percentage int   `json:"percentage"`
}

// Func receives progress events. A nil Func disables reporting.
type Func func(Event)

// Percentage returns round(loaded*100/total) clamped to [0,100]. A missing
// (zero) total is divided as 1, so any sent byte reports 100.
func Percentage(loaded, total int64) int {
	divisor := total
	if divisor <= 0 {
		divisor = 1
	}
	if loaded <= 0 {
		return 0
	}
	pct := int(math.Round(float64(loaded) * 100 / float64(divisor)))
	if pct > 100 {
		return 100
	}
	return pct
}

// Tracker turns byte counts into Events and delivers them in non-decreasing
// order. It is safe for concurrent use; the callback runs under the
// tracker's lock and must not call back into it.
type Tracker struct {
	mu     sync.Mutex
	fn     Func
	total  int64
	loaded int64
	last   Event
	events int
}

// NewTracker returns a tracker for a transfer of total bytes.
func NewTracker(total int64, fn Func) *Tracker {
	return &Tracker{fn: fn, total: total, last: Event{Total: total}}
}

// Add records n more transferred bytes.
func (t *Tracker) Add(n int64) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.emit(t.loaded + n)
}

// Update records an absolute byte count. Counts lower than the last one are
// ignored.
func (t *Tracker) Update(loaded int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if loaded <= t.loaded {
		return
	}
	t.emit(loaded)
}

// Complete emits the final event for a transfer whose bytes were all sent,
// unless it was already delivered.
func (t *Tracker) Complete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.total <= t.loaded {
		return
	}
	t.emit(t.total)
}

// Last returns the most recent event.
func (t *Tracker) Last() Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Count returns how many events were delivered.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.events
}

func (t *Tracker) emit(loaded int64) {
	t.loaded = loaded
	ev := Event{Loaded: loaded, Total: t.total, Percentage: Percentage(loaded, t.total)}
	if ev.Percentage < t.last.Percentage {
		ev.Percentage = t.last.Percentage
	}
	t.last = ev
	t.events++
	if t.fn != nil {
		t.fn(ev)
	}
}

// Reader reports every read of the wrapped reader to a Tracker.
type Reader struct {
	r       io.Reader
	tracker *Tracker
}

// NewReader wraps r.
func NewReader(r io.Reader, tracker *Tracker) *Reader {
	return &Reader{r: r, tracker: tracker}
}

func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.tracker.Add(int64(n))
	}
	return n, err
}

// Close closes the wrapped reader when it is an io.Closer.
func (r *Reader) Close() error {
	if c, ok := r.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
