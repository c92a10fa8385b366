// ABOUTME: Dozenal numeral codec
// ABOUTME: Converts integers and millisecond timestamps into base-12 display strings
package dozenal

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// MaxPrecision is the number of dozenal fraction digits of the hour that
	// can be represented.
	MaxPrecision = 4

	// UnitsPerHour is the number of finest dozenal subunits in one hour (12^4).
	UnitsPerHour = 20736

	msPerHour = 3600000
)

// pow12[i] is 12^i.
var pow12 = [MaxPrecision + 1]int64{1, 12, 144, 1728, 20736}

// ErrInvalidPrecision is wrapped by every precision out of [0, MaxPrecision].
var ErrInvalidPrecision = errors.New("dozenal: invalid precision")

// PrecisionError reports a precision outside [0, MaxPrecision]. It is a caller
// bug, not a runtime condition.
type PrecisionError struct {
	Precision int
}

func (e *PrecisionError) Error() string {
	return fmt.Sprintf("dozenal: precision %d not in [0, %d]", e.Precision, MaxPrecision)
}

func (e *PrecisionError) Unwrap() error { return ErrInvalidPrecision }

// Time is the dozenal hour-of-day reading for one timestamp.
type Time struct {
	WholeHours string // two digits, 00 to 1↋
	Fraction   string // exactly Precision digits
	Blink      bool   // radix point lit
	Units      int64  // full-resolution subunits since the top of the hour
	Precision  int
}

// String renders the reading as it appears on the dozenal line, e.g. "1↊;4↋7".
// The radix point is replaced by a space while Blink is false.
func (t Time) String() string {
	sep := " "
	if t.Blink {
		sep = ";"
	}
	return t.WholeHours + sep + t.Fraction
}

// Codec converts timestamps using one glyph set and one location.
type Codec struct {
	Glyphs   Glyphs
	Location *time.Location // nil means time.Local
}

// Format converts value to base 12, left-padded with zeros to at least
// minLength digits. Format(0, 0) is the empty string.
func (g Glyphs) Format(value uint64, minLength int) string {
	rev := make([]int, 0, 8)
	for value > 0 || len(rev) < minLength {
		rev = append(rev, int(value%Radix))
		value /= Radix
	}

	var b strings.Builder
	for i := len(rev) - 1; i >= 0; i-- {
		b.WriteString(g.Digit(rev[i]))
	}
	return b.String()
}

// ToBase12 formats value with the Pitman digits.
func ToBase12(value uint64, minLength int) string {
	return Pitman.Format(value, minLength)
}

// ParseBase12 parses digits of either glyph set. The empty string is zero.
func ParseBase12(s string) (uint64, error) {
	var v uint64
	for _, r := range s {
		d, ok := glyphValues[r]
		if !ok {
			return 0, fmt.Errorf("dozenal: invalid digit %q in %q", r, s)
		}
		if v > (^uint64(0)-d)/Radix {
			return 0, fmt.Errorf("dozenal: %q overflows uint64", s)
		}
		v = v*Radix + d
	}
	return v, nil
}

// Units returns the full-resolution subunits of the hour for a Unix
// millisecond timestamp: floor(ms*144/25000) mod 12^4. One subunit is exactly
// 25/144 seconds. Floor semantics hold for timestamps before the epoch.
func Units(timestampMs int64) int64 {
	// Units repeat every hour exactly, so reducing first keeps the product small.
	r := timestampMs % msPerHour
	if r < 0 {
		r += msPerHour
	}
	return r * 144 / 25000
}

// Convert returns the dozenal reading of timestampMs at the given precision.
// Digits beyond precision are truncated, never rounded.
func (c Codec) Convert(timestampMs int64, precision int) (Time, error) {
	if precision < 0 || precision > MaxPrecision {
		return Time{}, &PrecisionError{Precision: precision}
	}

	loc := c.Location
	if loc == nil {
		loc = time.Local
	}
	hour := time.UnixMilli(timestampMs).In(loc).Hour()

	units := Units(timestampMs)
	display := units
	if precision != MaxPrecision {
		display = (units / pow12[MaxPrecision-precision]) % pow12[precision]
	}

	return Time{
		WholeHours: c.Glyphs.Format(uint64(hour), 2),
		Fraction:   c.Glyphs.Format(uint64(display), precision),
		Blink:      (units/Radix)%2 == 1,
		Units:      units,
		Precision:  precision,
	}, nil
}

// Convert is Codec{Glyphs: Pitman, Location: loc}.Convert.
func Convert(timestampMs int64, precision int, loc *time.Location) (Time, error) {
	return Codec{Glyphs: Pitman, Location: loc}.Convert(timestampMs, precision)
}
