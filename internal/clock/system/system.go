// Package system supplies the wall clock used to stamp update logs and
// snapshots.
package system

import "time"

// Clock reads the host clock in UTC so stamps do not depend on the
// machine's zone.
type Clock struct{}

// New returns a Clock.
func New() *Clock {
	return &Clock{}
}

func (Clock) Now() time.Time {
	return time.Now().UTC()
}
