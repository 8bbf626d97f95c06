package printer

import (
	"fmt"
	"time"
)

// timestampLayout is the fixed layout the status and logs views print.
const timestampLayout = "2006-01-02 15:04:05 UTC"

// TimeAgo renders a task timestamp as a relative age for the list and
// sub-agent views, always in UTC.
func TimeAgo(t time.Time) string {
	diff := time.Now().UTC().Sub(t.UTC())
	if diff < 0 {
		return "in the future (UTC)"
	}

	switch {
	case diff < time.Minute:
		return agoString(int(diff/time.Second), "second")
	case diff < time.Hour:
		return agoString(int(diff/time.Minute), "minute")
	case diff < 24*time.Hour:
		return agoString(int(diff/time.Hour), "hour")
	default:
		return agoString(int(diff/(24*time.Hour)), "day")
	}
}

func agoString(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago (UTC)", unit)
	}
	return fmt.Sprintf("%d %ss ago (UTC)", n, unit)
}

// FormatTimestamp renders an absolute task timestamp in UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
