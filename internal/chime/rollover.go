// ABOUTME: Digit rollover detection for the chime
// ABOUTME: Reports when the dozenal time truncated to a precision changes value
package chime

import "github.com/Dozenal-Clock/dozclock-go/pkg/dozenal"

// Rollover tracks dozenal time at one precision and reports each change.
type Rollover struct {
	step int64
	last int64
	seen bool
}

// NewRollover watches the digit at precision (1 = twelfths of an hour).
func NewRollover(precision int) *Rollover {
	step := int64(1)
	for i := precision; i < dozenal.MaxPrecision; i++ {
		step *= 12
	}
	return &Rollover{step: step}
}

// Observe takes the current dozenal units and returns true when the watched
// digit differs from the previous call. The first call never fires.
func (r *Rollover) Observe(units int64) bool {
	v := units / r.step
	if !r.seen {
		r.seen = true
		r.last = v
		return false
	}
	if v == r.last {
		return false
	}
	r.last = v
	return true
}
