package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"royal-decrees/internal/calendar"
	"royal-decrees/internal/model"
)

// CalendarService draws the war table: decrees projected onto calendar days.
type CalendarService struct {
	decrees    *DecreeService
	windowDays int
	loc        *time.Location
}

func NewCalendarService(decrees *DecreeService, windowDays int, loc *time.Location) *CalendarService {
	if windowDays <= 0 {
		windowDays = calendar.DefaultWindowDays
	}
	if loc == nil {
		loc = time.Local
	}
	return &CalendarService{decrees: decrees, windowDays: windowDays, loc: loc}
}

// WarTable projects the monarch's decrees around center.
func (s *CalendarService) WarTable(ctx context.Context, monarch *model.Monarch, center time.Time) (map[string]calendar.Marker, error) {
	decrees, err := s.decrees.List(ctx, monarch)
	if err != nil {
		return nil, err
	}
	return calendar.Project(decrees, center.In(s.loc), s.windowDays), nil
}

// Window is the number of days projected on each side of the center date.
func (s *CalendarService) Window() int { return s.windowDays }

// Location is where calendar days begin and end.
func (s *CalendarService) Location() *time.Location { return s.loc }

// Marker glyphs used by RenderMonth.
const (
	glyphEmpty     = "·"
	glyphPending   = "⚔"
	glyphCompleted = "✓"
	glyphOther     = "○"
)

// RenderMonth renders the month around center as a fixed-width grid.
func RenderMonth(center time.Time, markers map[string]calendar.Marker) string {
	var b strings.Builder
	b.WriteString(center.Format("January 2006"))
	b.WriteByte('\n')
	b.WriteString("Su  Mo  Tu  We  Th  Fr  Sa\n")

	for _, week := range calendar.MonthGrid(center, markers) {
		cells := make([]string, 0, len(week))
		for _, cell := range week {
			if cell.Day == 0 {
				cells = append(cells, "   ")
				continue
			}
			cells = append(cells, fmt.Sprintf("%2d%s", cell.Day, glyph(cell.Marker)))
		}
		b.WriteString(strings.TrimRight(strings.Join(cells, " "), " "))
		b.WriteByte('\n')
	}

	b.WriteString(fmt.Sprintf("%s pending  %s fulfilled  %s other", glyphPending, glyphCompleted, glyphOther))
	return b.String()
}

func glyph(m *calendar.Marker) string {
	switch {
	case m == nil:
		return glyphEmpty
	case m.HasPending:
		return glyphPending
	case m.HasOnlyCompleted:
		return glyphCompleted
	default:
		return glyphOther
	}
}
