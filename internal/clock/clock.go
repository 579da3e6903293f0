// Package clock supplies the wall-clock timestamps stamped on queued records.
package clock

import "time"

// Clock returns the current time.
//
// Implemented by System (production) and testutil.ManualClock (tests).
type Clock interface {
	Now() time.Time
}

// System reads the operating system clock, normalised to UTC.
//
// Thread-safety: System is stateless and safe for concurrent use.
type System struct{}

// Now returns time.Now in UTC.
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Func adapts an ordinary function to the Clock interface.
type Func func() time.Time

// Now calls f.
func (f Func) Now() time.Time {
	return f()
}
