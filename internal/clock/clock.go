package clock

import (
	"sync"
	"time"
)

// Clock provides the current instant.
type Clock interface {
	Now() time.Time
}

// System reads the device clock.
type System struct{}

// Now returns the current device time.
func (System) Now() time.Time {
	return time.Now()
}

// Fixed always returns the same instant.
type Fixed struct {
	t time.Time
}

// NewFixed creates a Fixed clock pinned to t.
func NewFixed(t time.Time) *Fixed {
	return &Fixed{t: t}
}

// Now returns the pinned instant.
func (f *Fixed) Now() time.Time { return f.t }

// Source resolves the canonical "now" for business-day computations.
// Once an authoritative server instant has been observed it is preferred and
// advanced by the device time elapsed since the observation; until then the
// device clock is used.
type Source struct {
	device Clock

	mu         sync.RWMutex
	serverAt   time.Time
	receivedAt time.Time
	observed   bool
}

// NewSource creates a Source backed by device. A nil device means System.
func NewSource(device Clock) *Source {
	if device == nil {
		device = System{}
	}
	return &Source{device: device}
}

// Observe records an authoritative server instant received just now.
func (s *Source) Observe(serverNow time.Time) {
	received := s.device.Now()

	s.mu.Lock()
	s.serverAt = serverNow
	s.receivedAt = received
	s.observed = true
	s.mu.Unlock()
}

// Now returns the authoritative instant when one is known, else device time.
func (s *Source) Now() time.Time {
	deviceNow := s.device.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.observed {
		return deviceNow
	}
	return s.serverAt.Add(deviceNow.Sub(s.receivedAt))
}

// Authoritative reports whether a server instant has been observed.
func (s *Source) Authoritative() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.observed
}

// Offset returns server time minus device time at the last observation.
func (s *Source) Offset() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.observed {
		return 0
	}
	return s.serverAt.Sub(s.receivedAt)
}

// LastObserved returns the device instant of the last observation.
func (s *Source) LastObserved() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.receivedAt, s.observed
}

// Reset forgets the authoritative observation.
func (s *Source) Reset() {
	s.mu.Lock()
	s.serverAt = time.Time{}
	s.receivedAt = time.Time{}
	s.observed = false
	s.mu.Unlock()
}
