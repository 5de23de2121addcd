// Package simclock is the host-side timestamp type cmd/ualinksim
// stamps log lines and invocation counters with: milliseconds since
// the Unix epoch.
package simclock

import "time"

// Time is milliseconds since Jan 1 1970 00:00:00 UTC.
type Time uint64

// Now returns the current time.
func Now() Time {
	return Time(time.Now().UnixMilli())
}

// FromTime converts a time.Time to Time.
func FromTime(t time.Time) Time {
	return Time(t.UnixMilli())
}

// ToTime converts Time back to a time.Time.
func (t Time) ToTime() time.Time {
	return time.UnixMilli(int64(t))
}

// IsValid reports whether t is non-zero.
func (t Time) IsValid() bool {
	return t != 0
}

// Zero returns the zero Time.
func Zero() Time {
	return Time(0)
}
