// Package clock provides indirection for accessing current time.
package clock

import "time"

// Now is overridable in tests that need deterministic timestamps.
var Now = func() time.Time {
	return time.Now()
}

// Since returns time since the given timestamp.
func Since(t time.Time) time.Duration {
	return Now().Sub(t)
}

// Until returns duration of time between now and a given time.
func Until(t time.Time) time.Duration {
	return t.Sub(Now())
}
