package upload

import (
	"sync"
	"time"
)

// Stats tracks completed storage transfers.
type Stats struct {
	mu        sync.Mutex
	sum       time.Duration
	bytes     int64
	transfers int64
}

// NewStats ...
func NewStats() *Stats {
	return &Stats{}
}

// Update records a successful transfer of n bytes that took d.
func (s *Stats) Update(n int64, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sum += d
	s.bytes += n
	s.transfers++
}

// Average returns the average transfer duration.
func (s *Stats) Average() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.transfers == 0 {
		return 0
	}
	return s.sum / time.Duration(s.transfers)
}

// Throughput returns bytes per second over all transfers.
func (s *Stats) Throughput() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sum <= 0 {
		return 0
	}
	return float64(s.bytes) / s.sum.Seconds()
}

// FinishedCount ...
func (s *Stats) FinishedCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transfers
}
