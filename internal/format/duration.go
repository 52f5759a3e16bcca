// Package format renders durations for the verification progress text.
package format

import (
	"fmt"
	"math"
)

// Unit sizes in seconds. A month is fixed at 30 days.
const (
	Year   = 31536000
	Month  = 2592000
	Day    = 86400
	Hour   = 3600
	Minute = 60
)

var units = []struct {
	seconds float64
	label   string
}{
	{Year, "years"},
	{Month, "months"},
	{Day, "days"},
	{Hour, "hours"},
	{Minute, "minutes"},
}

// Duration returns seconds expressed in the largest unit whose whole count is
// strictly greater than one. A count of exactly one falls through to the next
// smaller unit, so 60 renders as "60 seconds" and 3600 as "60 minutes".
func Duration(seconds float64) string {
	for _, u := range units {
		if interval := math.Floor(seconds / u.seconds); interval > 1 {
			return fmt.Sprintf("%.0f %s", interval, u.label)
		}
	}
	return fmt.Sprintf("%.0f seconds", math.Floor(seconds))
}
