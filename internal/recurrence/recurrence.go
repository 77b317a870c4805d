// Package recurrence decides on which calendar days a decree is active.
//
// All day arithmetic happens in the location of the date being asked about:
// creation and due timestamps are moved into that location and truncated to
// local midnight before comparing.
package recurrence

import (
	"time"

	"royal-decrees/internal/model"
)

// IsActiveOn reports whether the decree shows up on the calendar day of date.
// It never panics for a decree with a nil or partially filled recurrence.
func IsActiveOn(d model.Decree, date time.Time) bool {
	loc := date.Location()
	day := StartOfDay(date, loc)
	start := StartOfDay(d.CreatedAt, loc)

	var end *time.Time
	if d.DueDate != nil {
		e := EndOfDay(*d.DueDate, loc)
		end = &e
	}

	if day.Before(start) {
		return false
	}
	if end != nil && day.After(*end) {
		return false
	}

	if !d.Recurrence.Repetitive() {
		if end != nil {
			return SameDay(day, *end)
		}
		return SameDay(day, start)
	}

	rule := d.Recurrence
	switch rule.Frequency {
	case model.FrequencyDaily:
		return true
	case model.FrequencyWeekly, model.FrequencyCustom:
		weekday := int(day.Weekday())
		for _, wd := range rule.Days {
			if wd == weekday {
				return true
			}
		}
		return false
	case model.FrequencyMonthly:
		// No month-based rule is defined; MONTHLY decrees stay off the calendar.
		return false
	default:
		interval := Interval(*rule)
		if interval <= 1 {
			return false
		}
		return DaysBetween(start, day)%interval == 0
	}
}

// Interval returns the step in days for interval-based frequencies.
func Interval(r model.Recurrence) int {
	switch r.Frequency {
	case model.FrequencyEvery2Days:
		return 2
	case model.FrequencyBiweekly:
		return 14
	default:
		return r.Interval
	}
}

// StartOfDay returns local midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// EndOfDay returns the last representable instant of t's calendar day in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), loc)
}

// SameDay compares calendar dates, ignoring time of day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

const secondsPerDay = 24 * 60 * 60

// DaysBetween counts whole calendar days from a to b. It is negative when b
// is before a. Both dates are read in their own location, so DST shifts do
// not produce 23 or 25 hour days.
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	from := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	to := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int((to.Unix() - from.Unix()) / secondsPerDay)
}
