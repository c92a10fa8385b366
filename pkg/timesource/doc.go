// ABOUTME: Time authority package
// ABOUTME: Wall-clock readings from the host, a known time server, or one found over mDNS
// Package timesource provides the time authorities a clock re-anchors
// against.
//
// An Authority either returns a Reading or fails. Failure is expected
// (network down, server gone) and callers keep their previous anchor; every
// failure wraps ErrUnavailable.
//
// Example:
//
//	auth := timesource.NewRemote(timesource.RemoteConfig{Addr: "shelf.local:8928"}, log)
//	r, err := auth.Read(ctx)
//	if errors.Is(err, timesource.ErrUnavailable) {
//		// keep the old anchor, retry later
//	}
package timesource
