package calendar

import (
	"sync"
	"time"
)

// Clock supplies the wall-clock time used to decide which day is "today".
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now in a fixed location.
type SystemClock struct {
	Location *time.Location
}

// NewSystemClock loads the named IANA zone; an empty name means time.Local.
func NewSystemClock(timezone string) (*SystemClock, error) {
	if timezone == "" {
		return &SystemClock{Location: time.Local}, nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, err
	}
	return &SystemClock{Location: loc}, nil
}

func (c *SystemClock) Now() time.Time {
	if c == nil || c.Location == nil {
		return time.Now()
	}
	return time.Now().In(c.Location)
}

// FixedClock always reports the same instant. Safe for concurrent use.
type FixedClock struct {
	mu sync.RWMutex
	t  time.Time
}

// NewFixedClock pins the clock to midday of the given day.
func NewFixedClock(day DateKey) *FixedClock {
	return &FixedClock{t: day.Time().Add(12 * time.Hour)}
}

func (c *FixedClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.t
}

// Set moves the clock to midday of day.
func (c *FixedClock) Set(day DateKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = day.Time().Add(12 * time.Hour)
}

// Today returns the current calendar day according to c.
func Today(c Clock) DateKey {
	return KeyOf(c.Now())
}
