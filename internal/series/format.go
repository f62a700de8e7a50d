package series

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
)

// FormatValue abbreviates v for chart axes: millions and thousands get one
// decimal and an M or K suffix, smaller values are printed as is.
func FormatValue(v float64) string {
	switch {
	case v >= 1_000_000:
		return fmt.Sprintf("%.1fM", v/1_000_000)
	case v >= 1_000:
		return fmt.Sprintf("%.1fK", v/1_000)
	default:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
}

// FormatCount prints v with thousands separators.
func FormatCount(v float64) string {
	if v == float64(int64(v)) {
		return humanize.Comma(int64(v))
	}
	return humanize.Commaf(v)
}

// FormatTime renders epoch seconds as "M/D HH:MM" in loc. A nil loc uses
// the local zone.
func FormatTime(epochSeconds int64, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	t := time.Unix(epochSeconds, 0).In(loc)
	return fmt.Sprintf("%d/%d %02d:%02d", int(t.Month()), t.Day(), t.Hour(), t.Minute())
}
