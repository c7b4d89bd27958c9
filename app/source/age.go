package source

import (
	"fmt"
	"time"
)

// RelativeAge renders a timestamp as the human-readable age string carried
// on items and comments. A zero time yields the "Recent" placeholder used
// when a source exposes no parseable date.
func RelativeAge(t time.Time) string {
	if t.IsZero() {
		return "Recent"
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 30*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}
