// Package clock provides the system clock implementation.
package clock

import "time"

// System returns the real current time.
type System struct{}

// New returns a system clock.
func New() *System {
	return &System{}
}

// Now implements pipeline.Clock.
func (*System) Now() time.Time {
	return time.Now()
}
