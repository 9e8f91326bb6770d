package timefmt

import "time"

// Now returns the current time as fractional epoch seconds, the
// timestamp representation used throughout the on-disk schema
// (created_at, updated_at, next_attempt_at, accepted_at).
func Now() float64 {
	return Epoch(time.Now())
}

// Epoch converts a time.Time to fractional epoch seconds.
func Epoch(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// Since returns how many seconds have elapsed since an epoch-seconds
// timestamp, relative to now.
func Since(epochSeconds float64) float64 {
	return Now() - epochSeconds
}

// Human renders an epoch-seconds timestamp for log lines and CLI
// output, e.g. "2025-06-15T10:30:45.123Z".
func Human(epochSeconds float64) string {
	sec := int64(epochSeconds)
	nsec := int64((epochSeconds - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC().Format("2006-01-02T15:04:05.000Z")
}
