package feature

import (
	"fmt"
	"strings"
	"time"
)

// Timestamp layouts found in site records. Most carry no zone.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// TimeLayout is used when writing timestamps back
const TimeLayout = "2006-01-02T15:04:05"

// ParseTime parses an ISO-8601-like timestamp. A timestamp without zone is
// read as UTC, one with a zone is converted to UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// FormatTime is the inverse of ParseTime
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
