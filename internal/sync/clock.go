// ABOUTME: Clock offset measurement from four-timestamp time exchanges
// ABOUTME: Filters samples by round-trip time and tracks sync quality
package sync

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultMaxRTT discards samples delayed by network congestion.
	DefaultMaxRTT = 100 * time.Millisecond

	// degradedRTT is the round-trip time above which quality is degraded.
	degradedRTT = 50 * time.Millisecond
)

// Sample is one client/server time exchange, all timestamps in Unix
// microseconds: t1 client send, t2 server receive, t3 server send, t4 client
// receive.
type Sample struct {
	T1, T2, T3, T4 int64
	RTT            int64 // microseconds
	Offset         int64 // microseconds, positive when the server is ahead
}

// NewSample computes RTT and offset for one exchange.
func NewSample(t1, t2, t3, t4 int64) Sample {
	rtt, offset := calculateOffset(t1, t2, t3, t4)
	return Sample{T1: t1, T2: t2, T3: t3, T4: t4, RTT: rtt, Offset: offset}
}

// calculateOffset computes RTT and clock offset
func calculateOffset(t1, t2, t3, t4 int64) (rtt, offset int64) {
	rtt = (t4 - t1) - (t3 - t2)
	offset = ((t2 - t1) + (t3 - t4)) / 2
	return
}

// Filter keeps the minimum-RTT sample among those under the RTT limit.
type Filter struct {
	maxRTT    int64
	best      Sample
	ok        bool
	discarded int
	log       *zap.Logger
}

// NewFilter creates a filter rejecting samples slower than maxRTT.
func NewFilter(maxRTT time.Duration, log *zap.Logger) *Filter {
	if maxRTT <= 0 {
		maxRTT = DefaultMaxRTT
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Filter{maxRTT: maxRTT.Microseconds(), log: log}
}

// Add offers one exchange and reports whether it was accepted.
func (f *Filter) Add(t1, t2, t3, t4 int64) bool {
	s := NewSample(t1, t2, t3, t4)

	if s.RTT < 0 {
		f.discarded++
		f.log.Debug("discarding sync sample: negative RTT", zap.Int64("rtt_us", s.RTT))
		return false
	}
	if s.RTT > f.maxRTT {
		f.discarded++
		f.log.Debug("discarding sync sample: high RTT", zap.Int64("rtt_us", s.RTT))
		return false
	}

	if !f.ok || s.RTT < f.best.RTT {
		f.best = s
		f.ok = true
	}
	return true
}

// Best returns the accepted sample with the lowest RTT.
func (f *Filter) Best() (Sample, bool) {
	return f.best, f.ok
}

// Discarded returns how many samples were rejected.
func (f *Filter) Discarded() int {
	return f.discarded
}

// Quality represents sync quality
type Quality int

const (
	QualityGood Quality = iota
	QualityDegraded
	QualityLost
)

func (q Quality) String() string {
	switch q {
	case QualityGood:
		return "good"
	case QualityDegraded:
		return "degraded"
	default:
		return "lost"
	}
}

// Tracker remembers the last successful synchronization. It is shared between
// the resync goroutine and the UI, so it is safe for concurrent use.
type Tracker struct {
	mu         sync.RWMutex
	offset     int64
	rtt        int64
	quality    Quality
	lastSync   time.Time
	failures   int
	staleAfter time.Duration
	now        func() time.Time
}

// NewTracker creates a tracker that reports QualityLost when no sync
// succeeded within staleAfter.
func NewTracker(staleAfter time.Duration) *Tracker {
	return &Tracker{
		quality:    QualityLost,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Record stores a successful exchange.
func (t *Tracker) Record(s Sample) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.offset = s.Offset
	t.rtt = s.RTT
	t.lastSync = t.now()
	t.failures = 0
	if s.RTT < degradedRTT.Microseconds() {
		t.quality = QualityGood
	} else {
		t.quality = QualityDegraded
	}
}

// Fail counts a failed synchronization attempt.
func (t *Tracker) Fail() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures++
	if t.lastSync.IsZero() {
		t.quality = QualityLost
	}
}

// CheckQuality updates quality based on time since last sync
func (t *Tracker) CheckQuality() Quality {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.lastSync.IsZero() || (t.staleAfter > 0 && t.now().Sub(t.lastSync) > t.staleAfter) {
		t.quality = QualityLost
	}
	return t.quality
}

// Stats returns the last offset and RTT in microseconds, the quality, and
// the number of consecutive failures.
func (t *Tracker) Stats() (offset, rtt int64, quality Quality, failures int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.offset, t.rtt, t.quality, t.failures
}

// LastSync returns when the last successful sync was recorded.
func (t *Tracker) LastSync() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastSync
}
