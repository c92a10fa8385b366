// ABOUTME: Fused clock package
// ABOUTME: Millisecond wall time from a whole-second clock plus a monotonic counter
// Package clock estimates wall-clock time in milliseconds from two readings
// of different resolution: a coarse wall clock that only reports whole
// seconds, and a monotonic counter in milliseconds with no defined epoch.
//
// The estimator is a plain value. Observe returns an updated copy, so the
// driving loop owns the only state and tests need no live clock.
//
// Example:
//
//	coarse, mono := clock.NewHostClock(), clock.NewMonotonic()
//	est := clock.Initialize(coarse.Unix(), mono.Milliseconds())
//	for {
//		est, _ = est.Observe(coarse.Unix(), mono.Milliseconds())
//		ms := est.Estimate(mono.Milliseconds())
//		...
//	}
package clock
