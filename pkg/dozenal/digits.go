// ABOUTME: Dozenal digit glyph tables
// ABOUTME: Immutable digit-to-glyph mappings for Pitman and ASCII dozenal digits
package dozenal

import "fmt"

// Radix is the base of the dozenal numeral system.
const Radix = 12

// Glyphs selects one of the fixed digit tables.
type Glyphs int

const (
	// Pitman uses the Unicode Pitman digits: U+218A for ten, U+218B for eleven.
	Pitman Glyphs = iota
	// ASCII uses X for ten and E for eleven, for fonts without the Pitman digits.
	ASCII
)

var pitmanDigits = [Radix]string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9", "↊", "↋"}

var asciiDigits = [Radix]string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9", "X", "E"}

// glyphValues maps every glyph of every table back to its digit value.
var glyphValues = func() map[rune]uint64 {
	m := make(map[rune]uint64, 2*Radix)
	for _, table := range [][Radix]string{pitmanDigits, asciiDigits} {
		for v, g := range table {
			m[[]rune(g)[0]] = uint64(v)
		}
	}
	return m
}()

// Digit returns the glyph for a single digit value in 0..11.
func (g Glyphs) Digit(n int) string {
	if n < 0 || n >= Radix {
		panic(fmt.Sprintf("dozenal: digit %d out of range", n))
	}
	if g == ASCII {
		return asciiDigits[n]
	}
	return pitmanDigits[n]
}

// String returns the configuration name of the glyph set.
func (g Glyphs) String() string {
	switch g {
	case Pitman:
		return "pitman"
	case ASCII:
		return "ascii"
	default:
		return fmt.Sprintf("Glyphs(%d)", int(g))
	}
}

// ParseGlyphs resolves a configuration name ("pitman" or "ascii").
func ParseGlyphs(name string) (Glyphs, error) {
	switch name {
	case "", "pitman":
		return Pitman, nil
	case "ascii":
		return ASCII, nil
	default:
		return Pitman, fmt.Errorf("unknown glyph set %q", name)
	}
}
