// Package calendar provides day-granularity date keys used to index per-date room state.
package calendar

import (
	"fmt"
	"time"
)

// Layout is the canonical date key format.
const Layout = "2006-01-02"

// DateKey identifies a calendar day as "YYYY-MM-DD". It carries no timezone.
type DateKey string

// KeyOf returns the calendar day of t in t's own location.
func KeyOf(t time.Time) DateKey {
	return DateKey(t.Format(Layout))
}

// Parse validates s and returns it as a DateKey.
func Parse(s string) (DateKey, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return "", fmt.Errorf("invalid date %q; expected YYYY-MM-DD", s)
	}
	return KeyOf(t), nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) DateKey {
	k, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return k
}

// Time returns midnight UTC of the day.
func (k DateKey) Time() time.Time {
	t, err := time.Parse(Layout, string(k))
	if err != nil {
		return time.Time{}
	}
	return t
}

func (k DateKey) String() string {
	return string(k)
}

// IsZero reports whether the key is empty.
func (k DateKey) IsZero() bool {
	return k == ""
}

// AddDays returns the key n days later (n may be negative).
func (k DateKey) AddDays(n int) DateKey {
	return KeyOf(k.Time().AddDate(0, 0, n))
}

// Before reports whether k is an earlier day than other.
// Lexical order of the layout equals chronological order.
func (k DateKey) Before(other DateKey) bool {
	return k < other
}

// After reports whether k is a later day than other.
func (k DateKey) After(other DateKey) bool {
	return k > other
}

// DaysBetween returns to - from in whole days.
func DaysBetween(from, to DateKey) int {
	return int(to.Time().Sub(from.Time()).Hours() / 24)
}

// Range returns every day in the half-open interval [from, to).
func Range(from, to DateKey) []DateKey {
	n := DaysBetween(from, to)
	if n <= 0 {
		return nil
	}
	keys := make([]DateKey, 0, n)
	start := from.Time()
	for i := 0; i < n; i++ {
		keys = append(keys, KeyOf(start.AddDate(0, 0, i)))
	}
	return keys
}

// Contains reports whether day lies in [from, to).
func Contains(from, to, day DateKey) bool {
	return !day.Before(from) && day.Before(to)
}
