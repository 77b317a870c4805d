// Package calendar projects decrees onto the war table calendar.
package calendar

import (
	"time"

	"royal-decrees/internal/model"
	"royal-decrees/internal/recurrence"
)

// DefaultWindowDays is how far the war table looks before and after its center date.
const DefaultWindowDays = 45

const dateKeyLayout = "2006-01-02"

// Marker aggregates every decree active on one date.
type Marker struct {
	HasPending       bool `json:"hasPending"`
	HasOnlyCompleted bool `json:"hasOnlyCompleted"`
	Total            int  `json:"total"`
}

// DateKey formats t as the key used by Project.
func DateKey(t time.Time) string {
	return t.Format(dateKeyLayout)
}

// ParseDateKey reads a key in the given location.
func ParseDateKey(key string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dateKeyLayout, key, loc)
}

// Project walks [center-windowDays, center+windowDays] and returns markers for
// the dates that have at least one active decree. Pending dominates: a date is
// only "completed" when every decree active on it is COMPLETED.
func Project(decrees []model.Decree, center time.Time, windowDays int) map[string]Marker {
	markers := make(map[string]Marker)
	if len(decrees) == 0 {
		return markers
	}
	if windowDays < 0 {
		windowDays = 0
	}

	base := recurrence.StartOfDay(center, center.Location())
	for offset := -windowDays; offset <= windowDays; offset++ {
		date := base.AddDate(0, 0, offset)

		var total, completed int
		pending := false
		for _, d := range decrees {
			if !recurrence.IsActiveOn(d, date) {
				continue
			}
			total++
			switch d.Status {
			case model.StatusPending:
				pending = true
			case model.StatusCompleted:
				completed++
			}
		}
		if total == 0 {
			continue
		}

		markers[DateKey(date)] = Marker{
			HasPending:       pending,
			HasOnlyCompleted: !pending && completed == total,
			Total:            total,
		}
	}
	return markers
}

// Cell is one day of a month grid. Day is zero for padding cells.
type Cell struct {
	Day    int
	Key    string
	Marker *Marker
}

// MonthGrid lays out the month containing center as weeks starting on Sunday.
func MonthGrid(center time.Time, markers map[string]Marker) [][]Cell {
	y, m, _ := center.Date()
	first := time.Date(y, m, 1, 0, 0, 0, 0, center.Location())
	daysInMonth := first.AddDate(0, 1, -1).Day()

	var weeks [][]Cell
	week := make([]Cell, int(first.Weekday()), 7)
	for d := 1; d <= daysInMonth; d++ {
		date := time.Date(y, m, d, 0, 0, 0, 0, center.Location())
		cell := Cell{Day: d, Key: DateKey(date)}
		if mk, ok := markers[cell.Key]; ok {
			mk := mk
			cell.Marker = &mk
		}
		week = append(week, cell)
		if len(week) == 7 {
			weeks = append(weeks, week)
			week = make([]Cell, 0, 7)
		}
	}
	if len(week) > 0 {
		for len(week) < 7 {
			week = append(week, Cell{})
		}
		weeks = append(weeks, week)
	}
	return weeks
}
