// ABOUTME: Fused clock estimator
// ABOUTME: Anchors a whole-second wall clock to a monotonic counter with per-second drift correction
package clock

import "time"

// DefaultResyncAfter is how long an anchor is trusted before the estimator
// asks for a fresh reading from the time authority.
const DefaultResyncAfter = 4020 * time.Second

// Estimator is the fused clock state. The zero value is not anchored; use
// Initialize.
type Estimator struct {
	anchorWallSeconds  int64
	anchorMonotonicMs  int64
	driftOffsetMs      int64
	lastSecond         int64
	resyncAfterSeconds int64
	anchored           bool
}

// Option configures an Estimator at Initialize.
type Option func(*Estimator)

// WithResyncAfter sets the anchor lifetime, truncated to whole seconds.
func WithResyncAfter(d time.Duration) Option {
	return func(e *Estimator) {
		e.resyncAfterSeconds = int64(d / time.Second)
	}
}

// Initialize anchors the estimator at a coarse wall-clock reading and the
// monotonic counter value read at the same moment.
func Initialize(wallSeconds, monotonicMs int64, opts ...Option) Estimator {
	e := Estimator{
		anchorWallSeconds:  wallSeconds,
		anchorMonotonicMs:  monotonicMs,
		lastSecond:         wallSeconds,
		resyncAfterSeconds: int64(DefaultResyncAfter / time.Second),
		anchored:           true,
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// Reanchor is Initialize keeping the current resync threshold.
func (e Estimator) Reanchor(wallSeconds, monotonicMs int64) Estimator {
	threshold := e.resyncAfterSeconds
	if !e.anchored {
		threshold = int64(DefaultResyncAfter / time.Second)
	}
	return Initialize(wallSeconds, monotonicMs, func(n *Estimator) {
		n.resyncAfterSeconds = threshold
	})
}

// Estimate returns the fused wall-clock time in Unix milliseconds.
func (e Estimator) Estimate(monotonicMs int64) int64 {
	return monotonicMs - e.anchorMonotonicMs + e.anchorWallSeconds*1000 + e.driftOffsetMs
}

// Observe feeds one polling tick. When the coarse second differs from the
// last one observed, the drift offset is recomputed against the anchor and
// changed is true. Otherwise e is returned unchanged.
func (e Estimator) Observe(wallSeconds, monotonicMs int64) (next Estimator, changed bool) {
	if wallSeconds == e.lastSecond {
		return e, false
	}
	e.driftOffsetMs = (wallSeconds-e.anchorWallSeconds)*1000 - (monotonicMs - e.anchorMonotonicMs)
	e.lastSecond = wallSeconds
	return e, true
}

// NeedsResync reports whether more than the resync threshold of wall time
// has passed since the anchor.
func (e Estimator) NeedsResync(wallSeconds int64) bool {
	return wallSeconds-e.anchorWallSeconds > e.resyncAfterSeconds
}

// Anchored reports whether Initialize produced e.
func (e Estimator) Anchored() bool { return e.anchored }

// AnchorWallMs returns the anchor's wall-clock time in Unix milliseconds.
func (e Estimator) AnchorWallMs() int64 { return e.anchorWallSeconds * 1000 }

// AnchorMonotonicMs returns the monotonic counter value at the anchor.
func (e Estimator) AnchorMonotonicMs() int64 { return e.anchorMonotonicMs }

// DriftOffsetMs returns the current correction term.
func (e Estimator) DriftOffsetMs() int64 { return e.driftOffsetMs }

// LastSecond returns the last coarse second observed.
func (e Estimator) LastSecond() int64 { return e.lastSecond }

// ResyncAfter returns the anchor lifetime.
func (e Estimator) ResyncAfter() time.Duration {
	return time.Duration(e.resyncAfterSeconds) * time.Second
}
