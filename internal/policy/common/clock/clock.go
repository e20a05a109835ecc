package clock

import "time"

type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (c RealClock) Now() time.Time {
	return time.Now()
}

// ZonedClock reports wall time in a fixed location. Day-of-week and HH:MM
// comparisons for time restrictions depend on the household's zone, not the host's.
type ZonedClock struct {
	Base     Clock
	Location *time.Location
}

func (c ZonedClock) Now() time.Time {
	base := c.Base
	if base == nil {
		base = RealClock{}
	}
	if c.Location == nil {
		return base.Now()
	}
	return base.Now().In(c.Location)
}

type MockClock struct {
	CurrentTime time.Time
}

func (c *MockClock) Now() time.Time {
	return c.CurrentTime
}

func (c *MockClock) Advance(d time.Duration) {
	c.CurrentTime = c.CurrentTime.Add(d)
}
