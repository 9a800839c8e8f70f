// Package clock resolves "now" and "today" in the household timezone and
// converts local calendar-day boundaries into absolute instants for
// comparison against fetched or stored timestamps.
package clock

import (
	"time"

	"daybrief/internal/model"
)

// Clock carries the household zone and an injectable now source so every
// consumer of local time is testable against fixed instants.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// New constructs a Clock for the given location. A nil location means UTC.
func New(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{loc: loc, now: time.Now}
}

// NewFixed constructs a Clock whose Now always returns the given instant,
// for tests.
func NewFixed(loc *time.Location, at time.Time) *Clock {
	c := New(loc)
	c.now = func() time.Time { return at }
	return c
}

func (c *Clock) Location() *time.Location {
	return c.loc
}

func (c *Clock) Now() time.Time {
	return c.now().In(c.loc)
}

// Today returns the local calendar date at the invocation instant.
func (c *Clock) Today() model.Date {
	return model.DateOf(c.Now())
}

// Window returns the inclusive instant pair covering start-of-today
// through end-of-day today+daysAhead, in the household zone. Boundaries
// are built with time.Date so DST transitions inside the window shift the
// wall-clock instants rather than the dates.
func (c *Clock) Window(daysAhead int) (start, end time.Time) {
	today := c.Today()
	last := today.AddDays(daysAhead)
	start = today.In(c.loc)
	end = last.In(c.loc).AddDate(0, 0, 1).Add(-time.Nanosecond)
	return start, end
}
