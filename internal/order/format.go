package order

import (
	"fmt"
	"time"
)

const day = 24 * time.Hour

// FormatRelative renders an epoch-millisecond timestamp relative to now:
// "15:04 (today)" within the first day, "Yesterday, 15:04" within the second,
// "N days ago" within a week and the full date after that. Both times are
// shown in now's location.
func FormatRelative(ts int64, now time.Time) string {
	t := time.UnixMilli(ts).In(now.Location())
	days := int(now.Sub(t) / day)
	if now.Before(t) {
		days = 0
	}
	switch {
	case days == 0:
		return t.Format("15:04") + " (today)"
	case days == 1:
		return "Yesterday, " + t.Format("15:04")
	case days < 7:
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("Jan 2, 2006, 15:04")
	}
}

// FormatFull renders an epoch-millisecond timestamp as a long date in loc.
func FormatFull(ts int64, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return time.UnixMilli(ts).In(loc).Format("January 2, 2006, 15:04")
}
