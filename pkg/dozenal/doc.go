// ABOUTME: Dozenal numeral package
// ABOUTME: Base-12 conversion and dozenal hour-of-day time
// Package dozenal converts integers and millisecond timestamps into base-12
// display strings.
//
// The hour of day is shown in two dozenal digits (00 to 1↋) followed by up to
// four dozenal fraction digits of the hour. The finest fraction digit is one
// twelve-to-the-fourth of an hour, exactly 25/144 seconds.
//
// Example:
//
//	t, err := dozenal.Convert(time.Now().UnixMilli(), 3, time.Local)
//	if err != nil {
//		return err
//	}
//	fmt.Println(t) // e.g. "1↊;4↋7"
package dozenal
