package output

import (
	"fmt"
	"time"
)

// timestampLayout is the UTC format the service uses for execution times.
const timestampLayout = "2006-01-02T15:04:05.999999Z"

func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, s)
	if err == nil {
		return t, nil
	}
	if t, err2 := time.Parse(time.RFC3339Nano, s); err2 == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
}

// ScanDuration is the time between two service timestamps.
func ScanDuration(createdAt, endTime string) (time.Duration, error) {
	start, err := ParseTimestamp(createdAt)
	if err != nil {
		return 0, err
	}
	end, err := ParseTimestamp(endTime)
	if err != nil {
		return 0, err
	}
	return end.Sub(start), nil
}

// FormatDuration renders d as "{days}d {hours}h {minutes}m {seconds}s".
// Fractions of a second are dropped.
func FormatDuration(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	total := int64(d / time.Second)
	days := total / 86400
	hours := total % 86400 / 3600
	minutes := total % 3600 / 60
	seconds := total % 60
	return fmt.Sprintf("%s%dd %dh %dm %ds", sign, days, hours, minutes, seconds)
}
