// ABOUTME: Text for the three display lines
// ABOUTME: Decimal time, rotating date formats, dozenal time, placeholder and glyph test pattern
package lines

import (
	"fmt"
	"time"

	"github.com/Dozenal-Clock/dozclock-go/pkg/dozenal"
)

// Placeholder is shown on every line while no time source answers.
const Placeholder = ":::::::"

// Calibrated is shown on the decimal line after a successful calibration.
const Calibrated = "ahu"

// TestPattern exercises every glyph the display font carries, one string per line.
var TestPattern = [3]string{"MTWFS", "01234567", "89 ↊↋-;:"}

// DatePeriod is how long each date format stays up.
const DatePeriod = 5 * time.Second

var weekdays = [7]string{"M", "Tu", "W", "Th", "F", "Sa", "Su"}

// Decimal renders HH:MM:SS. The colons blink off on odd Unix seconds.
func Decimal(t time.Time) string {
	sep := ":"
	if t.Unix()%2 != 0 {
		sep = " "
	}
	return fmt.Sprintf("%02d%s%02d%s%02d", t.Hour(), sep, t.Minute(), sep, t.Second())
}

// Date rotates through three formats every DatePeriod:
// month-day ("12-20"), ISO week date ("W51-1") and weekday with day ("M 20").
func Date(t time.Time) string {
	period := t.Second() / int(DatePeriod/time.Second)
	switch period % 3 {
	case 0:
		return fmt.Sprintf("%02d-%02d", int(t.Month()), t.Day())
	case 1:
		_, week := t.ISOWeek()
		return fmt.Sprintf("W%02d-%d", week, isoWeekday(t))
	default:
		return fmt.Sprintf("%s %d", weekdays[isoWeekday(t)-1], t.Day())
	}
}

// Dozenal renders a converted dozenal time for the second line.
func Dozenal(dt dozenal.Time) string {
	return dt.String()
}

// isoWeekday returns 1 for Monday through 7 for Sunday.
func isoWeekday(t time.Time) int {
	return (int(t.Weekday())+6)%7 + 1
}
