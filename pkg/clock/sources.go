// ABOUTME: Host clock readings for the fused estimator
// ABOUTME: Whole-second settable wall clock and millisecond monotonic counter
package clock

import (
	"sync"
	"time"
)

// CoarseClock reports wall-clock time in whole Unix seconds.
type CoarseClock interface {
	Unix() int64
}

// Monotonic reports a non-decreasing millisecond counter. Only differences
// between readings are meaningful.
type Monotonic interface {
	Milliseconds() int64
}

// HostClock is the host wall clock truncated to seconds, shifted by the last
// reading a time authority handed to Set. It stands in for a real-time clock
// chip that the network time fetch writes to.
type HostClock struct {
	mu     sync.RWMutex
	offset time.Duration
	now    func() time.Time
}

// NewHostClock returns a HostClock with no offset applied.
func NewHostClock() *HostClock {
	return &HostClock{now: time.Now}
}

// Unix returns the adjusted wall clock in whole seconds.
func (h *HostClock) Unix() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.now().Add(h.offset).Unix()
}

// Set makes the clock read t as of now.
func (h *HostClock) Set(t time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.offset = t.Sub(h.now())
}

// Offset returns the adjustment applied by the last Set.
func (h *HostClock) Offset() time.Duration {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.offset
}

type hostMonotonic struct {
	start time.Time
}

// NewMonotonic returns a counter backed by Go's monotonic clock reading,
// starting at zero.
func NewMonotonic() Monotonic {
	return hostMonotonic{start: time.Now()}
}

func (m hostMonotonic) Milliseconds() int64 {
	return time.Since(m.start).Milliseconds()
}
