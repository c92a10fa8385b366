// ABOUTME: Time authority interface and host clock authority
// ABOUTME: Defines Reading, ErrUnavailable and the System authority
package timesource

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable is wrapped by every failed Read.
var ErrUnavailable = errors.New("time source unavailable")

// Reading is one answer from a time authority.
type Reading struct {
	Time   time.Time     // authoritative wall-clock time at the moment Read returned
	Offset time.Duration // authority minus host clock
	RTT    time.Duration // round-trip time of the best exchange, zero for the host
	Source string        // e.g. "system" or the server address
}

// Authority returns wall-clock readings.
type Authority interface {
	Read(ctx context.Context) (Reading, error)
	Name() string
}

// System is the host clock. It never fails.
type System struct{}

// Read returns the host time.
func (System) Read(ctx context.Context) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, unavailable("system", err)
	}
	return Reading{Time: time.Now(), Source: "system"}, nil
}

// Name returns "system".
func (System) Name() string { return "system" }

func unavailable(source string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, source, err)
}
