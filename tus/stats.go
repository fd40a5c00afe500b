package tus

import (
	"sync"
	"time"
)

// Stats tracks request timings of an uploader.
type Stats struct {
	sum             time.Duration
	requests        int64
	bytes           int64
	verifiedWindows int64
	mu              sync.Mutex
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{}
}

// Update records a completed request of n bytes.
func (s *Stats) Update(d time.Duration, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sum += d
	s.requests++
	s.bytes += int64(n)
}

func (s *Stats) windowVerified() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifiedWindows++
}

// Average returns the average request duration.
func (s *Stats) Average() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.requests == 0 {
		return 0
	}
	return s.sum / time.Duration(s.requests)
}

// RequestCount returns the number of completed requests.
func (s *Stats) RequestCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

// BytesSent returns the number of bytes sent in completed requests.
func (s *Stats) BytesSent() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}

// VerifiedWindows returns the number of request windows confirmed by the server.
func (s *Stats) VerifiedWindows() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verifiedWindows
}

// TotalDuration returns the sum of all request durations.
func (s *Stats) TotalDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sum
}
