package valueobject

import (
	"fmt"
	"strings"
	"time"
)

// DuplicateWindow is the calendar granularity used when fingerprinting invoice dates.
type DuplicateWindow struct {
	value string
}

var (
	DuplicateWindowDay   = DuplicateWindow{value: "day"}
	DuplicateWindowWeek  = DuplicateWindow{value: "week"}
	DuplicateWindowMonth = DuplicateWindow{value: "month"}
)

// DuplicateWindowFromString parses "day", "week" or "month" (case-insensitive).
func DuplicateWindowFromString(s string) (DuplicateWindow, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "day", "":
		return DuplicateWindowDay, nil
	case "week":
		return DuplicateWindowWeek, nil
	case "month":
		return DuplicateWindowMonth, nil
	default:
		return DuplicateWindow{}, fmt.Errorf("invalid duplicate window: %q", s)
	}
}

// Bucket truncates t to the window and returns a stable key for it.
// Weeks follow ISO 8601, so a Sunday and the following Monday fall in different buckets.
func (w DuplicateWindow) Bucket(t time.Time) string {
	t = t.UTC()
	switch w.value {
	case "week":
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case "month":
		return t.Format("2006-01")
	default:
		return t.Format("2006-01-02")
	}
}

// String returns the string representation.
func (w DuplicateWindow) String() string {
	if w.value == "" {
		return DuplicateWindowDay.value
	}
	return w.value
}

// IsZero returns true if the window has not been set.
func (w DuplicateWindow) IsZero() bool {
	return w.value == ""
}
