// Package clock supplies the reference instant used by ward read models and
// the wall-clock formats shown on the bed board.
package clock

import (
	"fmt"
	"time"
)

// Clock supplies "now" in the hospital's local time zone.
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

type systemClock struct {
	loc *time.Location
}

// System returns a Clock backed by time.Now, reporting instants in loc.
func System(loc *time.Location) Clock {
	if loc == nil {
		loc = time.Local
	}
	return systemClock{loc: loc}
}

func (c systemClock) Now() time.Time           { return time.Now().In(c.loc) }
func (c systemClock) Location() *time.Location { return c.loc }

// FixedClock always returns the same instant. Used by tests and replays.
type FixedClock struct {
	T time.Time
}

// Fixed returns a Clock frozen at t. The location of t is the local zone.
func Fixed(t time.Time) *FixedClock {
	return &FixedClock{T: t}
}

func (c *FixedClock) Now() time.Time           { return c.T }
func (c *FixedClock) Location() *time.Location { return c.T.Location() }

// Advance moves the fixed instant forward by d.
func (c *FixedClock) Advance(d time.Duration) { c.T = c.T.Add(d) }

// LoadLocation resolves an IANA zone name. An empty name means UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", name, err)
	}
	return loc, nil
}
